// Package capture owns the microphone side of a session: transcript
// accumulation across interim and final recognition results, vocabulary-aware
// correction of finals, and the start/stop lifecycle of a streaming
// recognition session.
package capture

import (
	"strings"
	"sync"
)

// TranscriptBuffer accumulates recognition results for the current turn.
//
// Final fragments append; the interim hypothesis is replaced wholesale on
// every recognizer event — interim text is never accumulated, only the latest
// partial is shown. Finals are cleared only by [TranscriptBuffer.Reset] (after
// a successful submission or an explicit restart), never by interim traffic.
//
// TranscriptBuffer is safe for concurrent use.
type TranscriptBuffer struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

// NewTranscriptBuffer returns an empty buffer.
func NewTranscriptBuffer() *TranscriptBuffer {
	return &TranscriptBuffer{}
}

// AppendFinal commits one finalized fragment and drops the interim hypothesis
// it supersedes. Empty fragments are ignored.
func (b *TranscriptBuffer) AppendFinal(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finals = append(b.finals, text)
	b.interim = ""
}

// SetInterim replaces the volatile interim hypothesis.
func (b *TranscriptBuffer) SetInterim(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interim = text
}

// Final returns the committed transcript assembled from all final fragments.
func (b *TranscriptBuffer) Final() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.finals, " ")
}

// Interim returns the current interim hypothesis.
func (b *TranscriptBuffer) Interim() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interim
}

// Display returns what the trainee should see while speaking: the committed
// transcript followed by the live interim hypothesis.
func (b *TranscriptBuffer) Display() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	final := strings.Join(b.finals, " ")
	if b.interim == "" {
		return final
	}
	if final == "" {
		return b.interim
	}
	return final + " " + b.interim
}

// Reset clears both the committed transcript and the interim hypothesis.
func (b *TranscriptBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finals = nil
	b.interim = ""
}
