package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/talimhq/talim/pkg/audio"
	"github.com/talimhq/talim/pkg/provider/stt"
	"github.com/talimhq/talim/pkg/types"
)

// Capture failure reasons. Permission and device failures originate on the
// client (the browser owns the microphone) and are mapped through
// [ClassifyClientReason]; stream failures originate here.
var (
	ErrPermissionDenied = errors.New("capture: microphone permission denied")
	ErrNoDevice         = errors.New("capture: no audio input device")
	ErrCapture          = errors.New("capture: recognition stream failed")
	ErrUnsupported      = errors.New("capture: audio capture not supported")
)

// ClassifyClientReason maps a client-reported capture failure reason onto one
// of the package error values. Unknown reasons map to [ErrCapture].
func ClassifyClientReason(reason string) error {
	switch reason {
	case "permission_denied":
		return ErrPermissionDenied
	case "no_device":
		return ErrNoDevice
	case "unsupported":
		return ErrUnsupported
	default:
		return ErrCapture
	}
}

// captureSampleRate is the PCM rate sent to the recognizer. Client opus audio
// is decoded at 48kHz and downsampled before it reaches the controller.
const captureSampleRate = 16000

// defaultLevelInterval throttles level callbacks to 20 per second.
const defaultLevelInterval = 50 * time.Millisecond

// vocabularyBoost is the recognition boost applied to simulation vocabulary.
const vocabularyBoost = 2.0

// Callbacks receive capture events. All callbacks are invoked from the
// controller's internal goroutines; implementations must be safe for that and
// must not call back into the controller's Start/Stop.
type Callbacks struct {
	// OnDisplay fires whenever the visible transcript changes: an interim
	// hypothesis replaced it or a corrected final fragment was committed.
	OnDisplay func(text string)

	// OnLevel fires with a normalized input level in [0,1] while listening,
	// throttled to the configured interval.
	OnLevel func(level float64)

	// OnEnded fires exactly once per Start, after the recognizer has fully
	// ended. autoSubmit reports whether the preceding Stop armed submission.
	OnEnded func(autoSubmit bool)
}

// Config configures a [Controller].
type Config struct {
	// Provider is the streaming recognizer. May be nil when no recognizer
	// is configured; Start then fails with ErrUnsupported.
	Provider stt.Provider

	// Language is the recognition language hint (e.g., "tr").
	Language string

	// Vocabulary lists domain terms to boost during recognition and to
	// correct in final fragments.
	Vocabulary []string

	// LevelInterval throttles level callbacks. Default 50ms.
	LevelInterval time.Duration
}

// Controller owns one session's microphone lifecycle. Start opens a streaming
// recognition session; audio frames are pushed while listening; Stop halts
// recognition and optionally arms a one-shot auto-submit that fires only after
// the recognizer's own end signal — recognizer shutdown is asynchronous, and
// submitting before it completes races with a fresh Start.
type Controller struct {
	provider      stt.Provider
	language      string
	vocabulary    []string
	corrector     *Corrector
	buf           *TranscriptBuffer
	levelInterval time.Duration
	cbs           Callbacks

	mu        sync.Mutex
	sess      stt.SessionHandle
	listening bool
	armed     bool
	gen       int
	endOnce   *sync.Once
	lastLevel time.Time

	wg sync.WaitGroup
}

// NewController builds a Controller. cbs fields may be nil. A nil provider
// is allowed; Start then fails with [ErrUnsupported] and the trainee types
// their turns instead.
func NewController(cfg Config, cbs Callbacks) (*Controller, error) {
	interval := cfg.LevelInterval
	if interval <= 0 {
		interval = defaultLevelInterval
	}
	return &Controller{
		provider:      cfg.Provider,
		language:      cfg.Language,
		vocabulary:    cfg.Vocabulary,
		corrector:     NewCorrector(cfg.Vocabulary),
		buf:           NewTranscriptBuffer(),
		levelInterval: interval,
		cbs:           cbs,
	}, nil
}

// Buffer exposes the transcript accumulator for the current turn.
func (c *Controller) Buffer() *TranscriptBuffer {
	return c.buf
}

// IsListening reports whether a recognition session is active.
func (c *Controller) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Start resets the transcript buffer and opens a new streaming recognition
// session. Starting while already listening is an error; the caller decides
// toggle semantics.
func (c *Controller) Start(ctx context.Context) error {
	if c.provider == nil {
		return fmt.Errorf("%w: no recognition provider configured", ErrUnsupported)
	}

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return fmt.Errorf("capture: already listening")
	}

	var keywords []types.KeywordBoost
	for _, term := range c.vocabulary {
		keywords = append(keywords, types.KeywordBoost{Keyword: term, Boost: vocabularyBoost})
	}

	c.mu.Unlock()
	sess, err := c.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: captureSampleRate,
		Channels:   1,
		Language:   c.language,
		Keywords:   keywords,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}

	c.mu.Lock()
	if c.listening {
		// Lost a race with another Start; shut the extra session down.
		c.mu.Unlock()
		_ = sess.Close()
		return fmt.Errorf("capture: already listening")
	}
	c.buf.Reset()
	c.sess = sess
	c.listening = true
	c.armed = false
	c.gen++
	gen := c.gen
	c.endOnce = &sync.Once{}
	c.mu.Unlock()

	c.wg.Add(2)
	go c.consumeInterims(sess, gen)
	go c.consumeFinals(sess, gen)
	return nil
}

// Stop halts recognition. When autoSubmit is set, a one-shot flag is armed and
// the OnEnded callback reports it once the recognizer fully ends. Stopping
// while idle is a no-op.
func (c *Controller) Stop(autoSubmit bool) {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.armed = autoSubmit
	sess := c.sess
	c.mu.Unlock()

	// Close flushes buffered audio; the recognizer's remaining finals drain
	// through consumeFinals before the end signal fires.
	if sess != nil {
		_ = sess.Close()
	}
}

// PushFrame feeds one PCM frame (16kHz mono s16le) into the recognizer and
// samples the input level. Frames arriving while not listening are dropped.
func (c *Controller) PushFrame(pcm []byte) error {
	c.mu.Lock()
	if !c.listening || c.sess == nil {
		c.mu.Unlock()
		return nil
	}
	sess := c.sess
	emitLevel := false
	if c.cbs.OnLevel != nil && time.Since(c.lastLevel) >= c.levelInterval {
		c.lastLevel = time.Now()
		emitLevel = true
	}
	c.mu.Unlock()

	if emitLevel {
		c.cbs.OnLevel(audio.Level(pcm))
	}
	if err := sess.SendAudio(pcm); err != nil {
		return fmt.Errorf("%w: send audio: %v", ErrCapture, err)
	}
	return nil
}

// consumeInterims replaces the interim hypothesis wholesale for every
// recognizer interim event.
func (c *Controller) consumeInterims(sess stt.SessionHandle, gen int) {
	defer c.wg.Done()
	for tr := range sess.Interims() {
		if !c.current(gen) {
			continue
		}
		c.buf.SetInterim(tr.Text)
		if c.cbs.OnDisplay != nil {
			c.cbs.OnDisplay(c.buf.Display())
		}
	}
}

// consumeFinals appends normalized, vocabulary-corrected final fragments.
// Closure of the finals channel is the recognizer's end signal: the one-shot
// ended callback fires here and nowhere else.
func (c *Controller) consumeFinals(sess stt.SessionHandle, gen int) {
	defer c.wg.Done()
	for tr := range sess.Finals() {
		if !c.current(gen) {
			continue
		}
		text := c.corrector.Correct(Normalize(tr.Text))
		c.buf.AppendFinal(text)
		if c.cbs.OnDisplay != nil {
			c.cbs.OnDisplay(c.buf.Display())
		}
	}
	c.finish(gen)
}

// current reports whether gen is still the active recognition session.
func (c *Controller) current(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// finish marks the session ended and fires OnEnded exactly once.
func (c *Controller) finish(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.sess = nil
	armed := c.armed
	c.armed = false
	once := c.endOnce
	c.mu.Unlock()

	once.Do(func() {
		if c.cbs.OnEnded != nil {
			c.cbs.OnEnded(armed)
		}
	})
}
