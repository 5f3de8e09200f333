package session

import (
	"fmt"
	"time"

	"github.com/talimhq/talim/internal/playback"
	"github.com/talimhq/talim/pkg/types"
)

// State is the engine's position in the turn cycle. Transitions are driven by
// client commands, recognizer events, and backend replies; the engine owns
// them exclusively.
type State int

const (
	// StateIdle: no capture, no submission in flight. Commands accepted.
	StateIdle State = iota

	// StateListening: recognition is running (or winding down after a stop;
	// the state holds until the recognizer's end signal).
	StateListening

	// StateSending: a submit was accepted and its request is being assembled.
	StateSending

	// StateAwaitingReply: the turn request is with the conversational backend.
	StateAwaitingReply

	// StatePresenting: a reply is being revealed and/or spoken.
	StatePresenting

	// StateEnded: the conversation declared its ending. Terminal; capture is
	// permanently disabled.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StatePresenting:
		return "presenting"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is the engine state published to the client on every transition.
// It carries everything a thin presentation shell needs to enable or disable
// its controls; transcript and reveal text travel in their own events.
type Snapshot struct {
	State    State
	ThreadID string

	// Listening mirrors the capture controller for the toggle's label.
	Listening bool

	// Busy reports a submission in flight; the toggle is disabled while set.
	Busy bool

	// Terminal reports the session has ended; all capture controls lock.
	Terminal bool
}

// Redirect is the navigation target for the results view. Only offered when
// every field is known; otherwise the automatic redirect is withheld and the
// client falls back to a manual action.
type Redirect struct {
	ThreadID       string
	CourseID       string
	SimulationName string
}

// Ending is the terminal event of a session.
type Ending struct {
	// Reply is the terminal AI reply, shown as the locked closing message.
	Reply string

	// Score is the extracted record; null when nothing matched the grammar.
	Score types.ScoreRecord

	// Redirect is non-nil when the results destination is known; the client
	// renders it as the manual path to the results view.
	Redirect *Redirect

	// AutoNavigate reports that an automatic navigation to Redirect is
	// scheduled. False when the finalization write failed: the session still
	// locks, but only the manual path is offered.
	AutoNavigate bool
}

// Events receive engine output. All callbacks fire from engine goroutines;
// implementations must be quick and must not call back into the engine.
// Any field may be nil.
type Events struct {
	// OnState fires on every state transition.
	OnState func(snap Snapshot)

	// OnTranscript fires when the trainee's visible transcript changes.
	OnTranscript func(display string)

	// OnLevel fires with the microphone level while listening.
	OnLevel func(level float64)

	// OnComposing toggles the counterpart's composing indicator.
	OnComposing func(active bool)

	// OnReveal fires with each successive prefix of the reply text.
	OnReveal func(prefix string)

	// OnClip delivers a freshly synthesized clip for the client to load.
	// Playback itself waits for OnPlay.
	OnClip func(clip *playback.Clip)

	// OnPlay asks the client to start the loaded clip.
	OnPlay func(clip *playback.Clip)

	// OnCleared fires when the transcript display is wiped. fade is how long
	// the client keeps the old text visible before blanking it.
	OnCleared func(fade time.Duration)

	// OnWarning fires for user-facing, recoverable conditions.
	OnWarning func(code, message string)

	// OnEnded fires exactly once, when the session reaches its terminal state.
	OnEnded func(end Ending)

	// OnRedirect fires after the redirect delay when an Ending carried a
	// Redirect, unless the engine is closed first.
	OnRedirect func(target Redirect)
}
