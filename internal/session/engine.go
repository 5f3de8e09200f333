package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/talimhq/talim/internal/capture"
	"github.com/talimhq/talim/internal/history"
	"github.com/talimhq/talim/internal/observe"
	"github.com/talimhq/talim/internal/playback"
	"github.com/talimhq/talim/internal/score"
	"github.com/talimhq/talim/pkg/chat"
	"github.com/talimhq/talim/pkg/provider/stt"
	"github.com/talimhq/talim/pkg/provider/tts"
	"github.com/talimhq/talim/pkg/types"
)

// submitTimeout bounds one turn round-trip to the conversational backend.
const submitTimeout = 60 * time.Second

// Deps are the engine's collaborators. Backend and Recorder are required.
// TTS is optional (replies degrade to text-only); STT is optional (capture
// fails as unsupported and trainees type their turns).
type Deps struct {
	Backend  chat.Backend
	STT      stt.Provider
	TTS      tts.Provider
	Recorder *history.Recorder
	Metrics  *observe.Metrics
	Logger   *slog.Logger

	// Language is the recognition language hint.
	Language string

	// Vocabulary lists the simulation's domain terms for recognition
	// boosting and transcript correction.
	Vocabulary []string
}

// Engine runs one session's turn cycle. It owns the capture controller and
// the playback synchronizer exclusively: starting capture always tears down
// playback first, and a submit is accepted only between the recognizer's end
// signal and the next capture.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	info     Info
	timings  Timings
	backend  chat.Backend
	tts      tts.Provider
	recorder *history.Recorder
	metrics  *observe.Metrics
	logger   *slog.Logger
	events   Events

	capture *capture.Controller
	unlock  *playback.UnlockManager
	sync    *playback.Synchronizer

	ctx    context.Context
	cancel context.CancelFunc

	// startMu serializes StartCapture so concurrent calls cannot both pass
	// the state check and race the provider start.
	startMu sync.Mutex

	mu            sync.Mutex
	state         State
	clipSeq       int
	currentClip   *playback.Clip
	redirectTimer *time.Timer
	lastActive    time.Time

	// wg tracks submit goroutines so tests and shutdown can synchronise
	// with the end of a turn.
	wg sync.WaitGroup
}

// NewEngine wires up the engine for one session. events fields may be nil.
func NewEngine(info Info, timings Timings, deps Deps, events Events) (*Engine, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("session: no conversational backend")
	}
	if deps.Recorder == nil {
		return nil, fmt.Errorf("session: no history recorder")
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		info:     info,
		timings:  timings,
		backend:  deps.Backend,
		tts:      deps.TTS,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		logger: deps.Logger.With(
			"thread_id", info.ThreadID,
			"simulation", info.SimulationName),
		events:     events,
		unlock:     playback.NewUnlockManager(),
		ctx:        ctx,
		cancel:     cancel,
		lastActive: time.Now(),
	}

	e.sync = playback.NewSynchronizer(playback.Config{
		RevealStartDelay: timings.RevealStartDelay,
		RevealTick:       timings.RevealTick,
		AudioReadyWait:   timings.AudioReadyWait,
		ClearFade:        timings.ClearFade,
	}, e.unlock, playback.Callbacks{
		OnComposing: func(active bool) { e.emitComposing(active) },
		OnReveal:    func(prefix string) { e.emitReveal(prefix) },
		OnPlay:      func(clip *playback.Clip) { e.emitPlay(clip) },
		OnCleared:   func(fade time.Duration) { e.emitCleared(fade) },
	})

	ctl, err := capture.NewController(capture.Config{
		Provider:   deps.STT,
		Language:   deps.Language,
		Vocabulary: deps.Vocabulary,
	}, capture.Callbacks{
		OnDisplay: func(text string) { e.emitTranscript(text) },
		OnLevel:   func(level float64) { e.emitLevel(level) },
		OnEnded:   func(autoSubmit bool) { e.onCaptureEnded(autoSubmit) },
	})
	if err != nil {
		cancel()
		return nil, err
	}
	e.capture = ctl
	return e, nil
}

// Info returns the session's identity.
func (e *Engine) Info() Info { return e.info }

// Snapshot returns the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		State:     e.state,
		ThreadID:  e.info.ThreadID,
		Listening: e.state == StateListening,
		Busy:      e.state == StateSending || e.state == StateAwaitingReply,
		Terminal:  e.state == StateEnded,
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	if e.state == StateEnded && s != StateEnded {
		// Terminal is terminal.
		e.mu.Unlock()
		return
	}
	e.state = s
	e.lastActive = time.Now()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if e.events.OnState != nil {
		e.events.OnState(snap)
	}
}

// ─── commands ────────────────────────────────────────────────────────────────

// StartCapture stops any in-flight playback and begins recognition. Rejected
// while a submission is outstanding or after the session ended. A concurrent
// call waits for the first one and then sees it already listening.
func (e *Engine) StartCapture(ctx context.Context) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.mu.Lock()
	switch e.state {
	case StateListening:
		e.mu.Unlock()
		return nil
	case StateSending, StateAwaitingReply:
		e.mu.Unlock()
		return ErrSubmissionInFlight
	case StateEnded:
		e.mu.Unlock()
		return ErrSessionEnded
	}
	e.mu.Unlock()

	// Exclusive ownership: the microphone and the audio output are never
	// both live. Starting capture wipes the previous reply's presentation.
	e.sync.Clear()

	if err := e.capture.Start(ctx); err != nil {
		e.setState(StateIdle)
		e.warnCaptureError(err)
		return err
	}
	e.metrics.ActiveCaptures.Add(ctx, 1)
	e.setState(StateListening)
	return nil
}

// StopCapture halts recognition. With autoSubmit the transcript is submitted
// once, after the recognizer's own end signal; without it the captured text
// stays in the buffer.
func (e *Engine) StopCapture(autoSubmit bool) {
	e.mu.Lock()
	if e.state != StateListening {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.capture.Stop(autoSubmit)
}

// Toggle implements the single capture control: start when idle, stop-and-
// submit when listening.
func (e *Engine) Toggle(ctx context.Context) error {
	if e.capture.IsListening() {
		e.StopCapture(true)
		return nil
	}
	return e.StartCapture(ctx)
}

// PushFrame feeds one decoded PCM frame to the recognizer.
func (e *Engine) PushFrame(pcm []byte) error {
	e.mu.Lock()
	e.lastActive = time.Now()
	e.mu.Unlock()
	return e.capture.PushFrame(pcm)
}

// SubmitText appends typed text to the turn transcript and submits it.
// Serves deployments without a speech recognizer; typed text is normalized
// like recognized speech but skips phonetic correction.
func (e *Engine) SubmitText(text string) {
	e.StopCapture(false)
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		e.capture.Buffer().AppendFinal(capture.Normalize(trimmed))
		e.emitTranscript(e.capture.Buffer().Display())
	}
	e.Submit(TriggerManual)
}

// LastActive reports when the engine last saw a state change or an audio
// frame. The manager's reaper uses it to close abandoned sessions.
func (e *Engine) LastActive() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActive
}

// UnlockAudio records the client's unlock gesture; a deferred clip plays now.
func (e *Engine) UnlockAudio() {
	e.unlock.Unlock()
}

// ReportCaptureFailure handles a client-reported capture failure (permission,
// device, environment). Recognition is forced back to idle and the trainee
// gets actionable guidance.
func (e *Engine) ReportCaptureFailure(reason string) {
	e.capture.Stop(false)
	e.setState(StateIdle)
	e.warnCaptureError(capture.ClassifyClientReason(reason))
}

// onCaptureEnded runs on the recognizer's end signal — the only place an
// automatic submit can originate, and it fires at most once per capture.
func (e *Engine) onCaptureEnded(autoSubmit bool) {
	e.metrics.ActiveCaptures.Add(context.Background(), -1)
	if autoSubmit {
		e.Submit(TriggerAuto)
		return
	}
	e.mu.Lock()
	listening := e.state == StateListening
	e.mu.Unlock()
	if listening {
		e.setState(StateIdle)
	}
}

// Submit sends the assembled final transcript as one turn. A submit while
// another is outstanding is rejected, not queued. An empty transcript warns
// on a manual trigger and passes silently on an automatic one.
func (e *Engine) Submit(trigger Trigger) {
	e.mu.Lock()
	switch e.state {
	case StateSending, StateAwaitingReply:
		e.mu.Unlock()
		e.logger.Debug("submit rejected, one already outstanding", "trigger", trigger)
		return
	case StatePresenting, StateEnded:
		e.mu.Unlock()
		return
	}

	transcript := strings.TrimSpace(e.capture.Buffer().Final())
	if transcript == "" {
		e.state = StateIdle
		snap := e.snapshotLocked()
		e.mu.Unlock()
		if e.events.OnState != nil {
			e.events.OnState(snap)
		}
		if trigger == TriggerManual {
			e.warn("empty_transcript", "Gönderilecek bir şey yok. Lütfen önce konuşun.")
		}
		return
	}

	e.state = StateSending
	snap := e.snapshotLocked()
	e.mu.Unlock()
	if e.events.OnState != nil {
		e.events.OnState(snap)
	}

	e.wg.Add(1)
	go e.submitTurn(transcript)
}

// ─── turn flow ───────────────────────────────────────────────────────────────

func (e *Engine) submitTurn(transcript string) {
	defer e.wg.Done()

	start := time.Now()
	ctx, cancel := context.WithTimeout(e.ctx, submitTimeout)
	defer cancel()

	ctx, span := observe.StartTurnSpan(ctx, e.info.ThreadID, e.info.SimulationName)
	defer span.End()

	// Composing phase: indicator on, display blanked, reply area empty.
	e.sync.Composing(true)
	e.setState(StateAwaitingReply)

	reply, err := e.backend.SubmitTurn(ctx, chat.TurnRequest{
		ThreadID: e.info.ThreadID,
		Content:  transcript,
	})
	e.metrics.ChatDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("simulation", e.info.SimulationName)))

	if err != nil || strings.TrimSpace(reply) == "" {
		// Recoverable: the transcript buffer is preserved so the trainee does
		// not lose their captured speech, and the toggle re-enables.
		e.sync.Composing(false)
		e.setState(StateIdle)
		e.metrics.RecordProviderRequest(ctx, "chat", "submit", "error")
		if err != nil {
			e.logger.Error("turn submission failed", "error", err)
		} else {
			e.logger.Error("turn submission returned an empty reply")
		}
		e.warn("submit_failed", "Yanıt alınamadı. Lütfen tekrar gönderin.")
		return
	}
	e.metrics.RecordProviderRequest(ctx, "chat", "submit", "ok")

	turn := types.Turn{
		ThreadID:       e.info.ThreadID,
		CourseID:       e.info.CourseID,
		UserID:         e.info.UserID,
		SimulationName: e.info.SimulationName,
		UserTranscript: transcript,
		AIReply:        reply,
		CreatedAt:      time.Now(),
	}

	// A reply carrying the ending sentinel always terminates, even when it
	// also contains well-formed score pairs a normal reply never would.
	if score.ContainsSentinel(reply) {
		e.finalize(ctx, turn)
		return
	}

	// Persist before presenting: a presentation failure must never cost the
	// history row, and a history failure must never block the reply.
	e.recorder.RecordTurn(turn)
	e.metrics.RecordTurn(ctx, e.info.SimulationName, string(e.info.Mode))

	// The buffered transcript served its purpose; the display fades out over
	// the configured delay rather than snapping blank.
	e.capture.Buffer().Reset()
	e.emitCleared(e.timings.ClearFade)

	clip := e.synthesize(ctx, reply)
	e.setState(StatePresenting)
	if clip != nil {
		e.emitClip(clip)
	}
	e.sync.Present(reply, clip)

	e.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("simulation", e.info.SimulationName)))
}

// finalize closes the session on a terminal reply. Extraction never fails
// the close: zero matches degrade to a null record and the session still
// finalizes. The finalization write is observed: when it fails the trainee
// is warned and the automatic redirect is withheld, leaving the manual path.
func (e *Engine) finalize(ctx context.Context, turn types.Turn) {
	record := score.Extract(turn.AIReply)

	e.recorder.RecordTurn(turn)
	resultErr := e.recorder.RecordResult(ctx, history.SessionResult{
		ThreadID:        e.info.ThreadID,
		CourseID:        e.info.CourseID,
		UserID:          e.info.UserID,
		SimulationName:  e.info.SimulationName,
		FinalTranscript: turn.UserTranscript,
		FinalReply:      turn.AIReply,
		Score:           record,
		EndedAt:         time.Now(),
	})

	// Terminal lock is unconditional: the conversation declared its ending
	// whether or not the record landed.
	e.capture.Stop(false)
	e.sync.Teardown()
	e.sync.Composing(false)
	e.setState(StateEnded)

	outcome := "scored"
	if record.IsNull() {
		outcome = "null_score"
	}
	e.metrics.RecordSessionEnd(ctx, outcome)
	e.logger.Info("session ended", "outcome", outcome)

	if resultErr != nil {
		e.logger.Error("finalization write failed", "error", resultErr)
		e.warn("finalize_failed", "Sonuç kaydedilemedi. Puanınız sonuçlar sayfasında eksik görünebilir.")
	}

	end := Ending{Reply: turn.AIReply, Score: record}
	if e.info.ThreadID != "" && e.info.CourseID != "" && e.info.SimulationName != "" {
		target := Redirect{
			ThreadID:       e.info.ThreadID,
			CourseID:       e.info.CourseID,
			SimulationName: e.info.SimulationName,
		}
		end.Redirect = &target
		if resultErr == nil {
			end.AutoNavigate = true
			e.mu.Lock()
			e.redirectTimer = time.AfterFunc(e.timings.RedirectDelay, func() {
				if e.events.OnRedirect != nil {
					e.events.OnRedirect(target)
				}
			})
			e.mu.Unlock()
		}
	}
	if e.events.OnEnded != nil {
		e.events.OnEnded(end)
	}
}

// PresentOpening plays the counterpart's scripted first line, if the
// simulation has one. Called once, before the first capture.
func (e *Engine) PresentOpening() {
	if e.info.Opening == "" {
		return
	}
	ctx, cancel := context.WithTimeout(e.ctx, submitTimeout)
	defer cancel()

	clip := e.synthesize(ctx, e.info.Opening)
	e.setState(StatePresenting)
	if clip != nil {
		e.emitClip(clip)
	}
	e.sync.Present(e.info.Opening, clip)
}

// synthesize renders a reply clip, or nil when TTS is unavailable or fails —
// the reveal then proceeds text-only.
func (e *Engine) synthesize(ctx context.Context, text string) *playback.Clip {
	if e.tts == nil {
		return nil
	}
	start := time.Now()
	out, err := e.tts.Synthesize(ctx, playback.TruncateForSpeech(text, e.timings.TTSMaxRunes), e.info.Voice)
	e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("simulation", e.info.SimulationName)))
	if err != nil {
		e.metrics.RecordProviderError(ctx, "tts", "synthesize")
		e.logger.Warn("speech synthesis failed, presenting text only", "error", err)
		return nil
	}

	e.mu.Lock()
	e.clipSeq++
	clip := playback.NewClip(fmt.Sprintf("clip_%d", e.clipSeq), out.Audio, out.MIMEType)
	e.currentClip = clip
	e.mu.Unlock()
	return clip
}

// ClipEvent applies a client-reported audio element event to the current
// clip. Events for a clip that is no longer current are stale and dropped.
func (e *Engine) ClipEvent(clipID, event string) {
	e.mu.Lock()
	clip := e.currentClip
	e.mu.Unlock()
	if clip == nil || clip.ID() != clipID {
		return
	}

	switch event {
	case "loading":
		clip.MarkLoading()
	case "ready":
		clip.MarkReady()
	case "playing":
		clip.MarkPlaying()
	case "ended":
		clip.MarkEnded()
	case "error":
		clip.MarkError(fmt.Errorf("playback: client reported a playback error"))
	default:
		e.logger.Debug("unknown clip event", "clip_id", clipID, "event", event)
	}
}

// Close tears the engine down: capture stopped, playback canceled, redirect
// timer stopped, in-flight submits abandoned. Safe to call multiple times.
func (e *Engine) Close() {
	e.cancel()
	e.capture.Stop(false)
	e.sync.Teardown()

	e.mu.Lock()
	if e.redirectTimer != nil {
		e.redirectTimer.Stop()
		e.redirectTimer = nil
	}
	e.mu.Unlock()
}

// Wait blocks until in-flight submit goroutines have finished. Primarily for
// tests and graceful shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ─── event emission ──────────────────────────────────────────────────────────

func (e *Engine) emitTranscript(display string) {
	if e.events.OnTranscript != nil {
		e.events.OnTranscript(display)
	}
}

func (e *Engine) emitLevel(level float64) {
	if e.events.OnLevel != nil {
		e.events.OnLevel(level)
	}
}

func (e *Engine) emitComposing(active bool) {
	if e.events.OnComposing != nil {
		e.events.OnComposing(active)
	}
}

func (e *Engine) emitReveal(prefix string) {
	if e.events.OnReveal != nil {
		e.events.OnReveal(prefix)
	}
}

func (e *Engine) emitClip(clip *playback.Clip) {
	if e.events.OnClip != nil {
		e.events.OnClip(clip)
	}
}

func (e *Engine) emitPlay(clip *playback.Clip) {
	if e.events.OnPlay != nil {
		e.events.OnPlay(clip)
	}
}

func (e *Engine) emitCleared(fade time.Duration) {
	if e.events.OnCleared != nil {
		e.events.OnCleared(fade)
	}
}

func (e *Engine) warn(code, message string) {
	if e.events.OnWarning != nil {
		e.events.OnWarning(code, message)
	}
}

func (e *Engine) warnCaptureError(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, capture.ErrPermissionDenied):
		e.warn("permission_denied", "Mikrofon izni verilmedi. Tarayıcı ayarlarından mikrofon erişimine izin verin.")
	case errors.Is(err, capture.ErrNoDevice):
		e.warn("no_device", "Mikrofon bulunamadı. Bir mikrofon bağlayıp tekrar deneyin.")
	case errors.Is(err, capture.ErrUnsupported):
		e.warn("unsupported", "Tarayıcınız ses kaydını desteklemiyor.")
	default:
		e.warn("capture_error", "Ses yakalama başlatılamadı. Lütfen tekrar deneyin.")
	}
}
