// Package playback owns the presentation side of a turn: the lifecycle of a
// synthesized speech clip, the sticky audio-unlock latch, the typewriter
// reveal of reply text, and the synchronizer that gates the reveal on the
// clip becoming playable.
package playback

import (
	"errors"
	"fmt"
	"sync"
)

// ClipState is the lifecycle state of one synthesized speech clip. The engine
// hands clip bytes to the client and mirrors the client's element state here;
// transitions only ever move forward.
type ClipState int

const (
	ClipIdle ClipState = iota
	ClipLoading
	ClipReady
	ClipPlaying
	ClipEnded
	ClipError
)

func (s ClipState) String() string {
	switch s {
	case ClipIdle:
		return "idle"
	case ClipLoading:
		return "loading"
	case ClipReady:
		return "ready"
	case ClipPlaying:
		return "playing"
	case ClipEnded:
		return "ended"
	case ClipError:
		return "error"
	default:
		return fmt.Sprintf("ClipState(%d)", int(s))
	}
}

// ErrClipDetached is reported by a clip torn down before it finished.
var ErrClipDetached = errors.New("playback: clip detached")

// Clip tracks one synthesized reply's audio through its lifecycle. A clip has
// a single owner (the synchronizer of the attempt that created it); a new
// presentation attempt detaches the old clip before attaching its own, so a
// stale clip's late events can never leak into the current attempt.
type Clip struct {
	id    string
	audio []byte
	mime  string

	mu      sync.Mutex
	state   ClipState
	err     error
	readyCh chan struct{} // closed once the clip is playable or failed
	endedCh chan struct{} // closed once playback finished or failed
}

// NewClip wraps synthesized audio in a fresh lifecycle.
func NewClip(id string, audio []byte, mime string) *Clip {
	return &Clip{
		id:      id,
		audio:   audio,
		mime:    mime,
		state:   ClipIdle,
		readyCh: make(chan struct{}),
		endedCh: make(chan struct{}),
	}
}

// ID returns the clip identifier carried in client events.
func (c *Clip) ID() string { return c.id }

// Audio returns the synthesized audio bytes.
func (c *Clip) Audio() []byte { return c.audio }

// MIME returns the audio container type (e.g. "audio/mpeg").
func (c *Clip) MIME() string { return c.mime }

// State returns the current lifecycle state.
func (c *Clip) State() ClipState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that moved the clip to ClipError, if any.
func (c *Clip) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ready is closed once the clip is playable or has failed. Callers select on
// this against the audio-ready timeout; check Err afterwards to tell the two
// apart.
func (c *Clip) Ready() <-chan struct{} { return c.readyCh }

// Ended is closed once playback finished, failed, or the clip was detached.
func (c *Clip) Ended() <-chan struct{} { return c.endedCh }

// MarkLoading records that the client started fetching the clip.
func (c *Clip) MarkLoading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ClipIdle {
		c.state = ClipLoading
	}
}

// MarkReady records that the clip is buffered enough to play.
func (c *Clip) MarkReady() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ClipIdle && c.state != ClipLoading {
		return
	}
	c.state = ClipReady
	close(c.readyCh)
}

// MarkPlaying records that audible playback started.
func (c *Clip) MarkPlaying() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ClipReady {
		return
	}
	c.state = ClipPlaying
}

// MarkEnded records that playback ran to completion.
func (c *Clip) MarkEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ClipEnded || c.state == ClipError {
		return
	}
	c.state = ClipEnded
	close(c.endedCh)
}

// MarkError moves the clip to its terminal failure state. The reveal must not
// stay blocked on a clip that will never play, so Ready unblocks here too.
func (c *Clip) MarkError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ClipEnded || c.state == ClipError {
		return
	}
	prev := c.state
	c.state = ClipError
	c.err = err
	if prev == ClipIdle || prev == ClipLoading {
		close(c.readyCh)
	}
	close(c.endedCh)
}

// Detach tears the clip down on behalf of a newer presentation attempt. Safe
// to call in any state, including after the clip already finished.
func (c *Clip) Detach() {
	c.MarkError(ErrClipDetached)
}
