package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sttmock "github.com/talimhq/talim/pkg/provider/stt/mock"
)

// endRecorder collects OnEnded invocations for assertions.
type endRecorder struct {
	mu    sync.Mutex
	calls []bool
	ch    chan bool
}

func newEndRecorder() *endRecorder {
	return &endRecorder{ch: make(chan bool, 4)}
}

func (r *endRecorder) onEnded(autoSubmit bool) {
	r.mu.Lock()
	r.calls = append(r.calls, autoSubmit)
	r.mu.Unlock()
	r.ch <- autoSubmit
}

func (r *endRecorder) wait(t *testing.T) bool {
	t.Helper()
	select {
	case v := <-r.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnEnded")
		return false
	}
}

func (r *endRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestControllerStartWithoutProviderIsUnsupported(t *testing.T) {
	t.Parallel()

	ctl, err := NewController(Config{}, Callbacks{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctl.Start(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Start() error = %v, want ErrUnsupported", err)
	}
}

func TestControllerStartErrorWrapsErrCapture(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{StartErr: errors.New("dial refused")}
	ctl, err := NewController(Config{Provider: provider}, Callbacks{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	if err := ctl.Start(context.Background()); !errors.Is(err, ErrCapture) {
		t.Errorf("Start() error = %v, want ErrCapture", err)
	}
	if ctl.IsListening() {
		t.Error("IsListening() = true after failed Start")
	}
}

func TestControllerPassesVocabularyAsKeywords(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ctl, err := NewController(Config{
		Provider:   provider,
		Language:   "tr",
		Vocabulary: []string{"hemoglobin", "insulin"},
	}, Callbacks{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer ctl.Stop(false)

	calls := provider.StartCalls()
	if len(calls) != 1 {
		t.Fatalf("StartStream calls = %d, want 1", len(calls))
	}
	cfg := calls[0]
	if cfg.Language != "tr" {
		t.Errorf("Language = %q, want %q", cfg.Language, "tr")
	}
	if cfg.SampleRate != captureSampleRate || cfg.Channels != 1 {
		t.Errorf("format = %d Hz / %d ch, want %d Hz / 1 ch",
			cfg.SampleRate, cfg.Channels, captureSampleRate)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[0].Keyword != "hemoglobin" {
		t.Errorf("Keywords = %+v, want the two vocabulary terms", cfg.Keywords)
	}
}

func TestControllerStartWhileListeningFails(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ctl, err := NewController(Config{Provider: provider}, Callbacks{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	defer ctl.Stop(false)

	if err := ctl.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}

func TestControllerInterimAndFinalFlow(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ends := newEndRecorder()

	var mu sync.Mutex
	var displays []string

	ctl, err := NewController(Config{Provider: provider}, Callbacks{
		OnDisplay: func(text string) {
			mu.Lock()
			displays = append(displays, text)
			mu.Unlock()
		},
		OnEnded: ends.onEnded,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sess := provider.Sessions()[0]
	sess.EmitInterim("merha")
	sess.EmitInterim("merhaba")
	sess.EmitFinal("Merhaba, nasılsınız?")
	sess.Close()
	ctl.wg.Wait()

	if got := ctl.Buffer().Final(); got != "Merhaba nasılsınız" {
		t.Errorf("Final() = %q, want normalized %q", got, "Merhaba nasılsınız")
	}

	mu.Lock()
	last := displays[len(displays)-1]
	mu.Unlock()
	if last != "Merhaba nasılsınız" {
		t.Errorf("last display = %q, want %q", last, "Merhaba nasılsınız")
	}

	// Recognizer ended on its own: no auto-submit.
	if got := ends.wait(t); got {
		t.Error("OnEnded(autoSubmit) = true, want false without Stop(true)")
	}
	if ctl.IsListening() {
		t.Error("IsListening() = true after recognizer end")
	}
}

func TestControllerFinalsAreVocabularyCorrected(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ctl, err := NewController(Config{
		Provider:   provider,
		Vocabulary: []string{"hemoglobin"},
	}, Callbacks{})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sess := provider.Sessions()[0]
	sess.EmitFinal("hemoglobyn değeri düşük")
	sess.Close()
	ctl.wg.Wait()

	if got := ctl.Buffer().Final(); got != "hemoglobin değeri düşük" {
		t.Errorf("Final() = %q, want corrected %q", got, "hemoglobin değeri düşük")
	}
}

func TestControllerStopArmsAutoSubmitOnce(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ends := newEndRecorder()
	ctl, err := NewController(Config{Provider: provider}, Callbacks{OnEnded: ends.onEnded})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sess := provider.Sessions()[0]
	sess.EmitFinal("kan şekeri yüksek")
	ctl.Stop(true)
	ctl.Stop(true) // second stop after the first is a no-op
	ctl.wg.Wait()

	if got := ends.wait(t); !got {
		t.Error("OnEnded(autoSubmit) = false, want true after Stop(true)")
	}
	if n := ends.count(); n != 1 {
		t.Errorf("OnEnded fired %d times, want exactly 1", n)
	}
	if got := ctl.Buffer().Final(); got != "kan şekeri yüksek" {
		t.Errorf("Final() = %q, want %q", got, "kan şekeri yüksek")
	}
}

func TestControllerStopWithoutArmingReportsFalse(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ends := newEndRecorder()
	ctl, err := NewController(Config{Provider: provider}, Callbacks{OnEnded: ends.onEnded})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctl.Stop(false)
	ctl.wg.Wait()

	if got := ends.wait(t); got {
		t.Error("OnEnded(autoSubmit) = true, want false after Stop(false)")
	}
}

func TestControllerStopWhileIdleIsNoop(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ends := newEndRecorder()
	ctl, err := NewController(Config{Provider: provider}, Callbacks{OnEnded: ends.onEnded})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	ctl.Stop(true)
	if n := ends.count(); n != 0 {
		t.Errorf("OnEnded fired %d times while idle, want 0", n)
	}
}

func TestControllerRestartResetsTranscript(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	ends := newEndRecorder()
	ctl, err := NewController(Config{Provider: provider}, Callbacks{OnEnded: ends.onEnded})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	first := provider.Sessions()[0]
	first.EmitFinal("ilk tur")
	ctl.Stop(true)
	ctl.wg.Wait()
	ends.wait(t)

	// The previous arming must not leak into the next session.
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	second := provider.Sessions()[1]
	second.EmitFinal("ikinci tur")
	second.Close()
	ctl.wg.Wait()

	if got := ends.wait(t); got {
		t.Error("OnEnded(autoSubmit) = true on second session, want false")
	}
	if got := ctl.Buffer().Final(); got != "ikinci tur" {
		t.Errorf("Final() = %q, want %q", got, "ikinci tur")
	}
	if n := ends.count(); n != 2 {
		t.Errorf("OnEnded fired %d times across two sessions, want 2", n)
	}
}

func TestControllerPushFrame(t *testing.T) {
	t.Parallel()

	provider := &sttmock.Provider{}
	var mu sync.Mutex
	var levels []float64

	ctl, err := NewController(Config{Provider: provider}, Callbacks{
		OnLevel: func(level float64) {
			mu.Lock()
			levels = append(levels, level)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	// Dropped silently while idle.
	if err := ctl.PushFrame([]byte{0x00, 0x40}); err != nil {
		t.Errorf("PushFrame() while idle error = %v, want nil", err)
	}

	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	frame := []byte{0x00, 0x40, 0x00, 0x40} // two loud samples
	if err := ctl.PushFrame(frame); err != nil {
		t.Fatalf("PushFrame() error = %v", err)
	}
	ctl.Stop(false)
	ctl.wg.Wait()

	sess := provider.Sessions()[0]
	chunks := sess.AudioChunks()
	if len(chunks) != 1 {
		t.Fatalf("recorded %d audio chunks, want 1", len(chunks))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(levels) == 0 {
		t.Fatal("no level callbacks fired")
	}
	if levels[0] <= 0 || levels[0] > 1 {
		t.Errorf("level = %v, want in (0, 1]", levels[0])
	}
}

func TestClassifyClientReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason string
		want   error
	}{
		{"permission_denied", ErrPermissionDenied},
		{"no_device", ErrNoDevice},
		{"unsupported", ErrUnsupported},
		{"capture_error", ErrCapture},
		{"something_else", ErrCapture},
		{"", ErrCapture},
	}
	for _, tt := range tests {
		if got := ClassifyClientReason(tt.reason); !errors.Is(got, tt.want) {
			t.Errorf("ClassifyClientReason(%q) = %v, want %v", tt.reason, got, tt.want)
		}
	}
}
