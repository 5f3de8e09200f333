// Package types defines the shared types used across all talim packages.
//
// These types form the lingua franca between the capture controller, the turn
// orchestrator, the playback synchronizer, the providers, and the history
// store. Each package defines its own domain types; cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Transcript is a speech-to-text result from the recognizer. Both interim
// (volatile) and final (committed) results use this type; IsFinal tells them
// apart.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal reports whether this is a committed result. Interim results are
	// best-guess hypotheses that wholly replace the previous interim value.
	IsFinal bool

	// Confidence is the recognizer's confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost is a recognition vocabulary hint. Simulation-specific terms
// (product names, role-play jargon) get boosted so the recognizer prefers
// them over phonetically similar common words.
type KeywordBoost struct {
	// Keyword is the term to boost.
	Keyword string

	// Boost is the provider-specific boost intensity. 1.0 is a mild hint;
	// Deepgram accepts values up to 10.
	Boost float64
}

// VoiceGender selects which of the configured synthesis voices a session
// uses. Chosen once at session init and fixed for the session's lifetime.
type VoiceGender string

const (
	VoiceMale   VoiceGender = "male"
	VoiceFemale VoiceGender = "female"
)

// IsValid reports whether g is a recognised voice gender.
func (g VoiceGender) IsValid() bool {
	return g == VoiceMale || g == VoiceFemale
}

// VoiceProfile identifies a synthesis voice at a TTS provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g., "onyx", "nova").
	ID string

	// Gender is the catalogue slot this voice fills.
	Gender VoiceGender
}

// Turn is one completed exchange: what the trainee said and what the AI
// counterpart replied. Immutable once persisted.
type Turn struct {
	// ThreadID is the backend conversation thread this turn belongs to.
	ThreadID string

	// CourseID identifies the course the simulation runs under.
	CourseID string

	// UserID identifies the trainee.
	UserID string

	// SimulationName is the simulation this turn was produced in.
	SimulationName string

	// UserTranscript is the trainee's assembled final transcript. Non-empty.
	UserTranscript string

	// AIReply is the counterpart's reply text.
	AIReply string

	// CreatedAt is when the exchange completed.
	CreatedAt time.Time
}

// ScoreItem is one extracted (label, points) pair from a terminal reply.
type ScoreItem struct {
	// N is the 1-based index the model assigned ("Key3" → 3).
	N int

	// Label is the scored criterion name (e.g., "Açılış").
	Label string

	// Points is the score awarded for this criterion.
	Points int
}

// ScoreRecord is the structured payload extracted from a terminal AI reply.
//
// When the reply contains no extractable pairs the record is all-null (no
// items, nil total) rather than absent: the session is still closed with a
// degenerate record so it can never be left permanently unterminated.
type ScoreRecord struct {
	// Items holds the extracted pairs in index order. Practically at most 10.
	Items []ScoreItem

	// Total is the explicit "Toplam_Puan" value when present, or the sum of
	// item points when at least one pair was found. Nil for a null record.
	Total *int
}

// IsNull reports whether no score data could be extracted.
func (r ScoreRecord) IsNull() bool {
	return len(r.Items) == 0 && r.Total == nil
}

// Sum returns the sum of all item points.
func (r ScoreRecord) Sum() int {
	total := 0
	for _, it := range r.Items {
		total += it.Points
	}
	return total
}
