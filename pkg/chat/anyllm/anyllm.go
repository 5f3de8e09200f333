// Package anyllm provides a direct-mode chat backend backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. Assistant-mode threads are not supported since no remote thread state
// exists behind a plain completion API; use the openai backend for those.
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/talimhq/talim/pkg/chat"
)

// Backend implements chat.Backend by wrapping github.com/mozilla-ai/any-llm-go.
type Backend struct {
	backend     anyllmlib.Provider
	model       string
	temperature float64
	maxTokens   int

	history *chat.History
}

var _ chat.Backend = (*Backend)(nil)

// config holds optional configuration collected from functional options.
type config struct {
	temperature float64
	maxTokens   int
}

// Option is a functional option for Backend.
type Option func(*config)

// WithTemperature sets the sampling temperature for completions.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// WithMaxTokens caps completion length.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// New creates a Backend for the given provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". model is the
// specific model (e.g. "claude-3-5-sonnet-latest"). libOpts are any-llm-go
// options such as anyllmlib.WithAPIKey; without an API key option the
// provider reads its usual environment variable.
func New(providerName string, model string, libOpts []anyllmlib.Option, opts ...Option) (*Backend, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm chat: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm chat: model must not be empty")
	}

	backend, err := createBackend(providerName, libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm chat: create %q backend: %w", providerName, err)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	return &Backend{
		backend:     backend,
		model:       model,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
		history:     chat.NewHistory(),
	}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// CreateThread implements chat.Backend. Only ModeDirect is supported.
func (b *Backend) CreateThread(_ context.Context, spec chat.ThreadSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if spec.Mode != chat.ModeDirect {
		return "", fmt.Errorf("anyllm chat: mode %q not supported, only %q", spec.Mode, chat.ModeDirect)
	}
	return b.history.Open(spec), nil
}

// SubmitTurn implements chat.Backend.
func (b *Backend) SubmitTurn(ctx context.Context, req chat.TurnRequest) (string, error) {
	msgs, ok := b.history.Messages(req.ThreadID)
	if !ok {
		return "", chat.ErrUnknownThread
	}

	var messages []anyllmlib.Message
	for _, m := range msgs {
		messages = append(messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, anyllmlib.Message{Role: "user", Content: req.Content})

	params := anyllmlib.CompletionParams{
		Model:    b.model,
		Messages: messages,
	}
	if b.temperature != 0 {
		t := b.temperature
		params.Temperature = &t
	}
	if b.maxTokens > 0 {
		mt := b.maxTokens
		params.MaxTokens = &mt
	}

	resp, err := b.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anyllm chat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm chat: empty choices in response")
	}
	reply := resp.Choices[0].Message.ContentString()

	if err := b.history.Append(req.ThreadID, chat.Message{Role: "user", Content: req.Content}); err != nil {
		return "", err
	}
	if err := b.history.Append(req.ThreadID, chat.Message{Role: "assistant", Content: reply}); err != nil {
		return "", err
	}
	return reply, nil
}
