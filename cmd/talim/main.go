// Command talim is the conversational simulation training server. It hosts
// the session engine behind a WebSocket gateway: trainees speak their turns,
// an AI counterpart replies in voice and text, and finished sessions are
// scored and persisted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/talimhq/talim/internal/config"
	"github.com/talimhq/talim/internal/gateway"
	"github.com/talimhq/talim/internal/history"
	"github.com/talimhq/talim/internal/observe"
	"github.com/talimhq/talim/internal/resilience"
	"github.com/talimhq/talim/internal/session"
	"github.com/talimhq/talim/pkg/chat"
	chatanyllm "github.com/talimhq/talim/pkg/chat/anyllm"
	chatopenai "github.com/talimhq/talim/pkg/chat/openai"
	"github.com/talimhq/talim/pkg/provider/embeddings"
	embedollama "github.com/talimhq/talim/pkg/provider/embeddings/ollama"
	embedopenai "github.com/talimhq/talim/pkg/provider/embeddings/openai"
	"github.com/talimhq/talim/pkg/provider/stt"
	"github.com/talimhq/talim/pkg/provider/stt/deepgram"
	"github.com/talimhq/talim/pkg/provider/tts"
	ttsopenai "github.com/talimhq/talim/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "talim: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "talim: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("talim starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"simulations", len(cfg.Simulations),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "talim",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	backend, err := buildChatBackend(cfg.Providers)
	if err != nil {
		slog.Error("failed to build chat backend", "err", err)
		return 1
	}

	recognizer, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to build speech recognizer", "err", err)
		return 1
	}

	synthesizer, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to build speech synthesizer", "err", err)
		return 1
	}

	embedder, err := buildEmbeddings(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}

	// ── History store ─────────────────────────────────────────────────────────
	var store history.Store
	if cfg.History.PostgresDSN != "" {
		dims := cfg.History.EmbeddingDimensions
		if dims == 0 && embedder != nil {
			dims = embedder.Dimensions()
		}
		pg, err := history.NewPostgresStore(ctx, cfg.History.PostgresDSN, dims)
		if err != nil {
			slog.Error("failed to open history store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		if dims > 0 {
			slog.Info("history persistence enabled", "embedding_dimensions", dims)
		} else {
			slog.Info("history persistence enabled without embeddings; semantic search is disabled")
		}
	} else {
		slog.Warn("history persistence disabled; sessions will not be recorded")
	}
	recorder := history.NewRecorder(store, embedder, logger)

	// ── Session manager and gateway ───────────────────────────────────────────
	manager := session.NewManager(session.ManagerConfig{
		Backend:     backend,
		STT:         recognizer,
		TTS:         synthesizer,
		Recorder:    recorder,
		Logger:      logger,
		Language:    cfg.Providers.STT.Language,
		Timings:     session.TimingsFromConfig(cfg.Engine.WithDefaults()),
		Simulations: cfg.Simulations,
	})

	manager.StartReaper(ctx, session.DefaultMaxIdle, session.DefaultReapInterval)

	searcher := history.NewSearcher(store, embedder)
	server := gateway.NewServer(cfg.Server.ListenAddr, manager, searcher, nil, logger)

	slog.Info("server ready — press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if tlsCfg := cfg.Server.TLS; tlsCfg != nil {
			return server.ListenAndServeTLS(gctx, tlsCfg.CertFile, tlsCfg.KeyFile)
		}
		return server.ListenAndServe(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// Let in-flight history writes land before the store closes.
	recorder.WaitIdle()
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildChatBackend constructs the counterpart backend, wrapped in a failover
// chain when a fallback is configured.
func buildChatBackend(pc config.ProvidersConfig) (chat.Backend, error) {
	primary, err := newChatBackend(pc.Chat)
	if err != nil {
		return nil, err
	}
	if pc.ChatFallback == nil {
		return primary, nil
	}

	secondary, err := newChatBackend(*pc.ChatFallback)
	if err != nil {
		return nil, fmt.Errorf("chat fallback: %w", err)
	}
	fb := resilience.NewChatFallback(primary, pc.Chat.Name, resilience.BreakerConfig{})
	fb.AddFallback(pc.ChatFallback.Name, secondary)
	return fb, nil
}

// newChatBackend builds one chat backend by provider name. "openai" uses the
// native client so assistant-mode simulations work; every other name goes
// through any-llm's unified completion client and supports direct mode only.
func newChatBackend(entry config.ProviderEntry) (chat.Backend, error) {
	switch entry.Name {
	case "openai":
		var opts []chatopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, chatopenai.WithBaseURL(entry.BaseURL))
		}
		return chatopenai.New(entry.APIKey, entry.Model, opts...)
	default:
		var libOpts []anyllmlib.Option
		if entry.APIKey != "" {
			libOpts = append(libOpts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			libOpts = append(libOpts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return chatanyllm.New(entry.Name, entry.Model, libOpts)
	}
}

func buildSTT(entry config.ProviderEntry) (stt.Provider, error) {
	switch entry.Name {
	case "":
		// No recognizer: trainees type their turns.
		return nil, nil
	case "deepgram":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.Language != "" {
			opts = append(opts, deepgram.WithLanguage(entry.Language))
		}
		return deepgram.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
	}
}

func buildTTS(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "":
		// No synthesizer: replies are text-only.
		return nil, nil
	case "openai":
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}

func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "":
		return nil, nil
	case "openai":
		var opts []embedopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, embedopenai.WithBaseURL(entry.BaseURL))
		}
		return embedopenai.New(entry.APIKey, entry.Model, opts...)
	case "ollama":
		return embedollama.New(entry.BaseURL, entry.Model)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

// ── Logging ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
