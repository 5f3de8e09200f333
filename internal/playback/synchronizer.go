package playback

import (
	"sync"
	"time"
	"unicode/utf8"
)

// Callbacks receive presentation events. They are invoked from the
// synchronizer's goroutines and must not call back into it.
type Callbacks struct {
	// OnComposing toggles the counterpart's "composing" indicator.
	OnComposing func(active bool)

	// OnReveal fires with each successive prefix of the reply text.
	OnReveal func(text string)

	// OnPlay asks the client to start the clip. Fires at most once per
	// presentation attempt, after the clip is playable and audio is unlocked.
	OnPlay func(clip *Clip)

	// OnCleared fires when the previous display is being wiped for a new
	// attempt or a fresh capture. fade is how long the client should keep
	// the old text visible before blanking it.
	OnCleared func(fade time.Duration)
}

// Config carries the presentation timings.
type Config struct {
	// RevealStartDelay holds the text back so the voice leads.
	RevealStartDelay time.Duration

	// RevealTick is the pace of the typewriter, one rune per tick.
	RevealTick time.Duration

	// AudioReadyWait bounds how long the reveal waits for the clip. When it
	// elapses the text goes ahead without audio rather than stalling the turn.
	AudioReadyWait time.Duration

	// ClearFade is how long the old display stays visible before blanking.
	// Carried to the client with every cleared notification; a wipe is never
	// instantaneous.
	ClearFade time.Duration
}

// Synchronizer coordinates one reply presentation at a time: it tears down
// the previous attempt completely before attaching a new clip, gates the
// typewriter reveal on the clip becoming playable (bounded by AudioReadyWait),
// and routes the actual play request through the audio-unlock latch.
type Synchronizer struct {
	cfg    Config
	unlock *UnlockManager
	cbs    Callbacks

	mu      sync.Mutex
	attempt int
	reveal  *Reveal
	clip    *Clip
	stop    chan struct{} // closed to abort the current attempt's gate
}

// NewSynchronizer builds a Synchronizer around the session's unlock latch.
func NewSynchronizer(cfg Config, unlock *UnlockManager, cbs Callbacks) *Synchronizer {
	return &Synchronizer{cfg: cfg, unlock: unlock, cbs: cbs}
}

// Composing toggles the composing indicator.
func (s *Synchronizer) Composing(active bool) {
	if s.cbs.OnComposing != nil {
		s.cbs.OnComposing(active)
	}
}

// Present starts a new presentation attempt for text. clip may be nil when
// synthesis failed; the reply then reveals text-only right away. Any previous
// attempt is torn down first.
func (s *Synchronizer) Present(text string, clip *Clip) {
	s.mu.Lock()
	s.teardownLocked()
	s.attempt++
	attempt := s.attempt
	s.clip = clip
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	s.Composing(false)

	if clip == nil {
		s.startReveal(attempt, text)
		return
	}
	go s.gate(attempt, text, clip, stop)
}

// gate releases the reveal once the clip is playable or the wait expires,
// whichever comes first. A clip that becomes playable after the wait still
// gets its play request; only teardown silences it.
func (s *Synchronizer) gate(attempt int, text string, clip *Clip, stop chan struct{}) {
	wait := time.NewTimer(s.cfg.AudioReadyWait)
	defer wait.Stop()

	select {
	case <-stop:
		return
	case <-clip.Ready():
		if clip.Err() == nil {
			s.requestPlay(attempt, clip)
		}
		s.startReveal(attempt, text)
		return
	case <-wait.C:
	}

	// Timed out: text goes first, audio joins if it ever arrives.
	s.startReveal(attempt, text)
	select {
	case <-stop:
	case <-clip.Ready():
		if clip.Err() == nil {
			s.requestPlay(attempt, clip)
		}
	}
}

func (s *Synchronizer) requestPlay(attempt int, clip *Clip) {
	s.unlock.RequestPlay(func() {
		if !s.currentAttempt(attempt) {
			return
		}
		if s.cbs.OnPlay != nil {
			s.cbs.OnPlay(clip)
		}
	})
}

func (s *Synchronizer) startReveal(attempt int, text string) {
	s.mu.Lock()
	if attempt != s.attempt {
		s.mu.Unlock()
		return
	}
	r := StartReveal(text, s.cfg.RevealStartDelay, s.cfg.RevealTick, func(prefix string) {
		if !s.currentAttempt(attempt) {
			return
		}
		if s.cbs.OnReveal != nil {
			s.cbs.OnReveal(prefix)
		}
	})
	s.reveal = r
	s.mu.Unlock()
}

func (s *Synchronizer) currentAttempt(attempt int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return attempt == s.attempt
}

// Clear tears down the current attempt and wipes the display, e.g. when a new
// capture begins. The client applies the configured fade before blanking.
func (s *Synchronizer) Clear() {
	s.Teardown()
	if s.cbs.OnCleared != nil {
		s.cbs.OnCleared(s.cfg.ClearFade)
	}
}

// Teardown cancels the active reveal, detaches the clip, and drops any play
// request still deferred behind the unlock latch. Idempotent.
func (s *Synchronizer) Teardown() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
}

func (s *Synchronizer) teardownLocked() {
	// Bump the attempt so in-flight emits from the old one are dropped even
	// before their goroutines observe the cancellation.
	s.attempt++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	if s.reveal != nil {
		s.reveal.Cancel()
		s.reveal = nil
	}
	if s.clip != nil {
		s.clip.Detach()
		s.clip = nil
	}
	s.unlock.DropDeferred()
}

// TruncateForSpeech bounds text sent to synthesis. Replies past the limit are
// cut at the last space before it so the voice does not stop mid-word; the
// full text still reveals on screen.
func TruncateForSpeech(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)[:maxRunes]
	for i := len(runes) - 1; i > 0; i-- {
		if runes[i] == ' ' {
			runes = runes[:i]
			break
		}
	}
	return string(runes)
}
