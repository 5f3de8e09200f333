package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talimhq/talim/internal/config"
	"github.com/talimhq/talim/internal/history"
	"github.com/talimhq/talim/internal/observe"
	"github.com/talimhq/talim/pkg/chat"
	"github.com/talimhq/talim/pkg/provider/stt"
	"github.com/talimhq/talim/pkg/provider/tts"
	"github.com/talimhq/talim/pkg/types"
)

// ManagerConfig wires the shared collaborators every session engine uses.
type ManagerConfig struct {
	Backend  chat.Backend
	STT      stt.Provider
	TTS      tts.Provider
	Recorder *history.Recorder
	Metrics  *observe.Metrics
	Logger   *slog.Logger

	// Language is the recognition language for all simulations.
	Language string

	Timings     Timings
	Simulations []config.SimulationConfig
}

// TimingsFromConfig resolves engine pacing from the loaded configuration.
func TimingsFromConfig(ec config.EngineConfig) Timings {
	return Timings{
		RevealStartDelay: ec.RevealStartDelay(),
		RevealTick:       ec.RevealTick(),
		AudioReadyWait:   ec.AudioReadyTimeout(),
		ClearFade:        ec.ClearFade(),
		RedirectDelay:    ec.RedirectDelay(),
		TTSMaxRunes:      ec.TTSMaxRunes,
	}
}

// OpenParams identify one session attempt.
type OpenParams struct {
	SimulationName string
	CourseID       string
	UserID         string
}

// Manager holds the live session engines, keyed by backend thread id. One
// engine exists per connected trainee; the WebSocket gateway opens one on
// session init and closes it when the connection goes away.
type Manager struct {
	cfg  ManagerConfig
	sims map[string]config.SimulationConfig

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager builds an empty session registry.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	sims := make(map[string]config.SimulationConfig, len(cfg.Simulations))
	for _, sim := range cfg.Simulations {
		sims[sim.Name] = sim
	}
	return &Manager{
		cfg:     cfg,
		sims:    sims,
		engines: make(map[string]*Engine),
	}
}

// Open creates the backend conversation thread for a simulation and builds
// the session engine around it. The returned engine is registered under its
// thread id until Close.
func (m *Manager) Open(ctx context.Context, params OpenParams, events Events) (*Engine, error) {
	sim, ok := m.sims[params.SimulationName]
	if !ok {
		return nil, fmt.Errorf("session: unknown simulation %q", params.SimulationName)
	}
	if params.UserID == "" || params.CourseID == "" {
		return nil, fmt.Errorf("session: user and course are required")
	}

	threadID, err := m.cfg.Backend.CreateThread(ctx, chat.ThreadSpec{
		Mode:           sim.Mode,
		AssistantID:    sim.AssistantID,
		Priming:        sim.Priming,
		SimulationName: sim.Name,
		Opening:        sim.Opening,
	})
	if err != nil {
		return nil, fmt.Errorf("session: create thread: %w", err)
	}

	info := Info{
		ThreadID:       threadID,
		CourseID:       params.CourseID,
		UserID:         params.UserID,
		SimulationName: sim.Name,
		Mode:           sim.Mode,
		Voice:          types.VoiceProfile{ID: sim.VoiceID, Gender: sim.VoiceGender},
		Opening:        sim.Opening,
	}
	engine, err := NewEngine(info, m.cfg.Timings, Deps{
		Backend:    m.cfg.Backend,
		STT:        m.cfg.STT,
		TTS:        m.cfg.TTS,
		Recorder:   m.cfg.Recorder,
		Metrics:    m.cfg.Metrics,
		Logger:     m.cfg.Logger,
		Language:   m.cfg.Language,
		Vocabulary: sim.Vocabulary,
	}, events)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.engines[threadID] = engine
	m.mu.Unlock()
	m.cfg.Metrics.ActiveSessions.Add(ctx, 1)

	m.cfg.Logger.Info("session opened",
		"thread_id", threadID,
		"simulation", sim.Name,
		"mode", string(sim.Mode),
		"user_id", params.UserID)
	return engine, nil
}

// Get returns the engine registered under threadID.
func (m *Manager) Get(threadID string) (*Engine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	engine, ok := m.engines[threadID]
	return engine, ok
}

// Close tears down and unregisters the engine for threadID. Unknown ids are
// a no-op; connection teardown and explicit close can race benignly.
func (m *Manager) Close(threadID string) {
	m.mu.Lock()
	engine, ok := m.engines[threadID]
	delete(m.engines, threadID)
	m.mu.Unlock()
	if !ok {
		return
	}
	engine.Close()
	m.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
	m.cfg.Logger.Info("session closed", "thread_id", threadID)
}

// Default reaper cadence. A session with no state change or audio frame for
// maxIdle is considered abandoned.
const (
	DefaultMaxIdle      = 30 * time.Minute
	DefaultReapInterval = time.Minute
)

// StartReaper closes engines that have been idle longer than maxIdle,
// sweeping every interval until ctx is cancelled. The gateway closes
// sessions on disconnect; the reaper catches the ones whose connection
// vanished without one.
func (m *Manager) StartReaper(ctx context.Context, maxIdle, interval time.Duration) {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, threadID := range m.staleThreads(maxIdle) {
					m.cfg.Logger.Info("reaping idle session", "thread_id", threadID)
					m.Close(threadID)
				}
			}
		}
	}()
}

func (m *Manager) staleThreads(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []string
	for threadID, engine := range m.engines {
		if engine.LastActive().Before(cutoff) {
			stale = append(stale, threadID)
		}
	}
	return stale
}

// CloseAll tears down every live session. Used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	engines := m.engines
	m.engines = make(map[string]*Engine)
	m.mu.Unlock()

	for threadID, engine := range engines {
		engine.Close()
		m.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
		m.cfg.Logger.Info("session closed", "thread_id", threadID)
	}
}
