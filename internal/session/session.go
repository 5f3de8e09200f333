// Package session implements the turn orchestrator: one engine per active
// simulation session, owning the capture controller, the playback
// synchronizer, and the conversation with the backend. The engine is
// server-resident; clients are thin shells that forward commands and render
// the event stream.
package session

import (
	"errors"
	"time"

	"github.com/talimhq/talim/pkg/chat"
	"github.com/talimhq/talim/pkg/types"
)

var (
	// ErrSessionEnded is returned for commands arriving after the terminal
	// state. The conversation declared its own ending; capture stays closed.
	ErrSessionEnded = errors.New("session: session has ended")

	// ErrSubmissionInFlight is returned when a command would interleave with
	// an outstanding submission.
	ErrSubmissionInFlight = errors.New("session: submission in flight")
)

// Info is the immutable identity of one simulation attempt, fixed at session
// init. ThreadID is the backend conversation thread reused for every turn.
type Info struct {
	ThreadID       string
	CourseID       string
	UserID         string
	SimulationName string
	Mode           chat.Mode
	Voice          types.VoiceProfile

	// Opening is the counterpart's scripted first line, presented before the
	// first turn. Empty means the trainee speaks first.
	Opening string
}

// Timings carries the engine's pacing constants, resolved from configuration.
type Timings struct {
	RevealStartDelay time.Duration
	RevealTick       time.Duration
	AudioReadyWait   time.Duration
	ClearFade        time.Duration
	RedirectDelay    time.Duration
	TTSMaxRunes      int
}

// Trigger distinguishes how a submit was initiated. A manual submit of an
// empty transcript warns the trainee; an automatic one (stop with nothing
// captured) fails silently because it is a legitimate occurrence.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)
