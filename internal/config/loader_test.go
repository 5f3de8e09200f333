package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/talimhq/talim/internal/config"
)

func TestLoadFromReader_ValidConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: info
providers:
  chat:
    name: openai
    api_key: sk-test
    model: gpt-4o
  stt:
    name: deepgram
    api_key: dg-test
    language: tr
  tts:
    name: openai
    api_key: sk-test
history:
  postgres_dsn: "postgres://localhost/test"
  embedding_dimensions: 1536
simulations:
  - name: zor-musteri
    mode: direct
    priming: "You play a difficult customer."
    voice_gender: female
    vocabulary: ["iade", "fatura"]
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Simulations[0].Name != "zor-musteri" {
		t.Errorf("simulation name = %q, want zor-musteri", cfg.Simulations[0].Name)
	}
	if got := cfg.Engine.RevealTick(); got != 35*time.Millisecond {
		t.Errorf("default reveal tick = %v, want 35ms", got)
	}
	if got := cfg.Engine.RedirectDelay(); got != 6*time.Second {
		t.Errorf("default redirect delay = %v, want 6s", got)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_address: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field listen_address, got nil")
	}
}

func TestValidate_DuplicateSimulationNames(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  chat:
    name: openai
simulations:
  - name: satis-gorusmesi
    mode: direct
    priming: "p"
  - name: satis-gorusmesi
    mode: direct
    priming: "p"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate simulation names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_AssistantModeRequiresAssistantID(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  chat:
    name: openai
simulations:
  - name: mulakat
    mode: assistant
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for assistant mode without assistant_id, got nil")
	}
	if !strings.Contains(err.Error(), "assistant_id") {
		t.Errorf("error should mention assistant_id, got: %v", err)
	}
}

func TestValidate_DirectModeRequiresPriming(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  chat:
    name: openai
simulations:
  - name: mulakat
    mode: direct
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for direct mode without priming, got nil")
	}
	if !strings.Contains(err.Error(), "priming") {
		t.Errorf("error should mention priming, got: %v", err)
	}
}

func TestValidate_SimulationsRequireChatProvider(t *testing.T) {
	t.Parallel()
	yaml := `
simulations:
  - name: mulakat
    mode: direct
    priming: "p"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing chat provider, got nil")
	}
	if !strings.Contains(err.Error(), "providers.chat") {
		t.Errorf("error should mention providers.chat, got: %v", err)
	}
}

func TestValidate_InvalidVoiceGender(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  chat:
    name: openai
simulations:
  - name: mulakat
    mode: direct
    priming: "p"
    voice_gender: robot
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid voice_gender, got nil")
	}
	if !strings.Contains(err.Error(), "voice_gender") {
		t.Errorf("error should mention voice_gender, got: %v", err)
	}
}

func TestValidate_NegativeEngineTiming(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  reveal_tick_ms: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative engine timing, got nil")
	}
}

func TestEngineConfig_OverridesKept(t *testing.T) {
	t.Parallel()
	yaml := `
engine:
  reveal_tick_ms: 50
  tts_max_runes: 200
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Engine.RevealTick(); got != 50*time.Millisecond {
		t.Errorf("reveal tick = %v, want 50ms", got)
	}
	if cfg.Engine.TTSMaxRunes != 200 {
		t.Errorf("tts_max_runes = %d, want 200", cfg.Engine.TTSMaxRunes)
	}
	// Untouched knobs still get defaults.
	if got := cfg.Engine.AudioReadyTimeout(); got != 2500*time.Millisecond {
		t.Errorf("audio ready timeout = %v, want 2.5s", got)
	}
}
