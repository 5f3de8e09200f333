package playback

import (
	"sync"
	"time"
)

// Reveal is one cancelable typewriter pass over a reply's text. The text
// appears one rune per tick after an initial hold, so the first words land
// roughly when the voice does instead of spoiling the reply ahead of it.
//
// A Reveal runs in its own goroutine; Cancel stops it between ticks and no
// further text is emitted afterwards.
type Reveal struct {
	cancel chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartReveal begins revealing text, emitting each successive rune prefix.
// emit is called from the reveal goroutine. The final emit always carries the
// complete text unless the reveal is canceled first.
func StartReveal(text string, startDelay, tick time.Duration, emit func(string)) *Reveal {
	r := &Reveal{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.run(text, startDelay, tick, emit)
	return r
}

func (r *Reveal) run(text string, startDelay, tick time.Duration, emit func(string)) {
	defer close(r.done)

	runes := []rune(text)
	if len(runes) == 0 {
		return
	}

	hold := time.NewTimer(startDelay)
	defer hold.Stop()
	select {
	case <-hold.C:
	case <-r.cancel:
		return
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for i := 1; i <= len(runes); i++ {
		emit(string(runes[:i]))
		if i == len(runes) {
			return
		}
		select {
		case <-ticker.C:
		case <-r.cancel:
			return
		}
	}
}

// Cancel stops the reveal. Safe to call multiple times and after completion.
func (r *Reveal) Cancel() {
	r.once.Do(func() { close(r.cancel) })
}

// Done is closed when the reveal goroutine has exited, whether it completed
// or was canceled.
func (r *Reveal) Done() <-chan struct{} { return r.done }
