package playback

import (
	"errors"
	"testing"
)

func TestClipHappyPath(t *testing.T) {
	t.Parallel()

	c := NewClip("clip-1", []byte{0x01}, "audio/mpeg")
	if got := c.State(); got != ClipIdle {
		t.Fatalf("initial State() = %v, want idle", got)
	}

	c.MarkLoading()
	if got := c.State(); got != ClipLoading {
		t.Errorf("State() = %v, want loading", got)
	}

	select {
	case <-c.Ready():
		t.Fatal("Ready() closed before MarkReady")
	default:
	}

	c.MarkReady()
	select {
	case <-c.Ready():
	default:
		t.Fatal("Ready() not closed after MarkReady")
	}

	c.MarkPlaying()
	if got := c.State(); got != ClipPlaying {
		t.Errorf("State() = %v, want playing", got)
	}

	c.MarkEnded()
	if got := c.State(); got != ClipEnded {
		t.Errorf("State() = %v, want ended", got)
	}
	select {
	case <-c.Ended():
	default:
		t.Fatal("Ended() not closed after MarkEnded")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestClipReadyWithoutLoading(t *testing.T) {
	t.Parallel()

	// Small clips can be playable before a loading event ever fires.
	c := NewClip("clip-1", nil, "audio/mpeg")
	c.MarkReady()
	if got := c.State(); got != ClipReady {
		t.Errorf("State() = %v, want ready", got)
	}
}

func TestClipErrorUnblocksReady(t *testing.T) {
	t.Parallel()

	c := NewClip("clip-1", nil, "audio/mpeg")
	c.MarkLoading()
	c.MarkError(errors.New("decode failed"))

	select {
	case <-c.Ready():
	default:
		t.Fatal("Ready() not closed after MarkError")
	}
	select {
	case <-c.Ended():
	default:
		t.Fatal("Ended() not closed after MarkError")
	}
	if c.Err() == nil {
		t.Error("Err() = nil, want the failure")
	}
}

func TestClipTransitionsAreForwardOnly(t *testing.T) {
	t.Parallel()

	c := NewClip("clip-1", nil, "audio/mpeg")
	c.MarkPlaying() // not ready yet
	if got := c.State(); got != ClipIdle {
		t.Errorf("State() after premature MarkPlaying = %v, want idle", got)
	}

	c.MarkError(errors.New("boom"))
	c.MarkReady() // would double-close on a regression
	c.MarkEnded()
	if got := c.State(); got != ClipError {
		t.Errorf("State() = %v, want error to stick", got)
	}
}

func TestClipDetachIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewClip("clip-1", nil, "audio/mpeg")
	c.MarkReady()
	c.MarkEnded()
	c.Detach() // after a clean end: no-op
	if got := c.State(); got != ClipEnded {
		t.Errorf("State() = %v, want ended preserved", got)
	}

	d := NewClip("clip-2", nil, "audio/mpeg")
	d.Detach()
	d.Detach()
	if !errors.Is(d.Err(), ErrClipDetached) {
		t.Errorf("Err() = %v, want ErrClipDetached", d.Err())
	}
}
