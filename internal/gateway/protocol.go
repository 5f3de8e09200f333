// Package gateway exposes the session engine over WebSocket. The browser
// client is a thin shell: it captures microphone Opus packets, renders the
// events the server pushes, and reports playback milestones back. All turn
// state lives server-side.
package gateway

import (
	"encoding/json"
	"fmt"
)

// Client-to-server command types. Commands arrive as JSON text frames;
// microphone audio arrives as binary frames carrying one Opus packet each.
const (
	CmdOpen           = "open"
	CmdStartCapture   = "start_capture"
	CmdStopCapture    = "stop_capture"
	CmdToggle         = "toggle"
	CmdSubmit         = "submit"
	CmdSubmitText     = "submit_text"
	CmdUnlockAudio    = "unlock_audio"
	CmdCaptureFailure = "capture_failure"
	CmdClipEvent      = "clip_event"
)

// Server-to-client event types.
const (
	EvtOpened     = "opened"
	EvtState      = "state"
	EvtTranscript = "transcript"
	EvtLevel      = "level"
	EvtComposing  = "composing"
	EvtReveal     = "reveal"
	EvtClip       = "clip"
	EvtPlay       = "play"
	EvtCleared    = "cleared"
	EvtWarning    = "warning"
	EvtEnded      = "ended"
	EvtRedirect   = "redirect"
	EvtError      = "error"
)

// Command is one client control message. Type selects which of the optional
// fields are meaningful.
type Command struct {
	Type string `json:"type"`

	// open
	Simulation string `json:"simulation,omitempty"`
	CourseID   string `json:"course_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`

	// stop_capture
	AutoSubmit bool `json:"auto_submit,omitempty"`

	// submit_text
	Text string `json:"text,omitempty"`

	// capture_failure
	Reason string `json:"reason,omitempty"`

	// clip_event
	ClipID string `json:"clip_id,omitempty"`
	Event  string `json:"event,omitempty"`
}

// ParseCommand decodes one text frame into a Command.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("gateway: parse command: %w", err)
	}
	if cmd.Type == "" {
		return Command{}, fmt.Errorf("gateway: command missing type")
	}
	return cmd, nil
}

// Event is one server push message. Type selects which of the optional
// fields are populated.
type Event struct {
	Type string `json:"type"`

	// opened
	ThreadID string `json:"thread_id,omitempty"`

	// state
	State     string `json:"state,omitempty"`
	Listening bool   `json:"listening,omitempty"`
	Busy      bool   `json:"busy,omitempty"`
	Terminal  bool   `json:"terminal,omitempty"`

	// transcript, reveal
	Text string `json:"text,omitempty"`

	// level
	Level float64 `json:"level,omitempty"`

	// composing
	Active bool `json:"active,omitempty"`

	// cleared: how long the client fades the old display before blanking.
	FadeMS int `json:"fade_ms,omitempty"`

	// clip, play. Audio is base64 in the JSON encoding.
	ClipID string `json:"clip_id,omitempty"`
	Audio  []byte `json:"audio,omitempty"`
	MIME   string `json:"mime,omitempty"`

	// warning, error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// ended. AutoNavigate tells the client a redirect event will follow; when
	// false the redirect payload is only the manual path to the results view.
	Reply        string     `json:"reply,omitempty"`
	Score        *ScoreWire `json:"score,omitempty"`
	AutoNavigate bool       `json:"auto_navigate,omitempty"`

	// redirect. Also set on ended when a results navigation is scheduled, so
	// the client can show the destination before the redirect fires.
	Redirect *RedirectWire `json:"redirect,omitempty"`
}

// ScoreWire is the JSON shape of an extracted score. A null score is encoded
// as the literal JSON null so the client can distinguish "no score" from a
// zero-point one.
type ScoreWire struct {
	Items []ScoreItemWire `json:"items"`
	Total int             `json:"total"`
}

// ScoreItemWire is one rubric entry in a ScoreWire.
type ScoreItemWire struct {
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// RedirectWire carries the identity triple the client needs to build the
// results view URL.
type RedirectWire struct {
	ThreadID   string `json:"thread_id"`
	CourseID   string `json:"course_id"`
	Simulation string `json:"simulation"`
}

// EncodeEvent marshals an Event for transmission as a text frame.
func EncodeEvent(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("gateway: encode event: %w", err)
	}
	return data, nil
}
