package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/talimhq/talim/pkg/chat"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":       {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram"},
	"tts":        {"openai"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.Engine = cfg.Engine.WithDefaults()
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	if cfg.Providers.ChatFallback != nil {
		validateProviderName("chat", cfg.Providers.ChatFallback.Name)
	}

	// Provider availability
	if cfg.Providers.Chat.Name == "" && len(cfg.Simulations) > 0 {
		errs = append(errs, errors.New("providers.chat is required when simulations are configured"))
	}
	if cfg.Providers.STT.Name == "" && len(cfg.Simulations) > 0 {
		slog.Warn("no STT provider configured; trainees will only be able to type their turns")
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Simulations) > 0 {
		slog.Warn("no TTS provider configured; counterpart replies will be text-only")
	}

	// Embeddings ↔ history dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.History.EmbeddingDimensions <= 0 {
		slog.Warn("history.embedding_dimensions is not set; using the embedding provider's reported width")
	}
	if cfg.History.PostgresDSN == "" && len(cfg.Simulations) > 0 {
		slog.Warn("history.postgres_dsn is empty; turn history will not be persisted")
	}

	// Simulations
	namesSeen := make(map[string]int, len(cfg.Simulations))
	for i, sim := range cfg.Simulations {
		prefix := fmt.Sprintf("simulations[%d]", i)
		if sim.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[sim.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of simulations[%d]", prefix, sim.Name, prev))
			}
			namesSeen[sim.Name] = i
		}
		if !sim.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("%s.mode %q is invalid; valid values: assistant, direct", prefix, sim.Mode))
		}
		if sim.Mode == chat.ModeAssistant && sim.AssistantID == "" {
			errs = append(errs, fmt.Errorf("%s.assistant_id is required when mode is assistant", prefix))
		}
		if sim.Mode == chat.ModeDirect && sim.Priming == "" {
			errs = append(errs, fmt.Errorf("%s.priming is required when mode is direct", prefix))
		}
		if sim.VoiceGender != "" && !sim.VoiceGender.IsValid() {
			errs = append(errs, fmt.Errorf("%s.voice_gender %q is invalid; valid values: male, female", prefix, sim.VoiceGender))
		}
	}

	// Engine knobs are clamped to defaults rather than rejected, but negative
	// values are almost certainly mistakes.
	if cfg.Engine.RevealTickMS < 0 || cfg.Engine.AudioReadyTimeoutMS < 0 || cfg.Engine.RedirectDelayMS < 0 {
		errs = append(errs, errors.New("engine timing values must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
