// Package openai provides a chat backend backed by the OpenAI API.
//
// It serves both conversation modes: assistant-mode threads live on OpenAI's
// side (Assistants API, Beta.Threads) and are advanced with a polled run per
// turn; direct-mode threads are kept locally and replayed through the Chat
// Completions API with the simulation's priming as the system prompt.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/talimhq/talim/pkg/chat"
)

// Backend implements chat.Backend using the OpenAI API.
type Backend struct {
	client oai.Client
	model  string

	temperature float64
	maxTokens   int

	// direct-mode threads and their replayed histories
	history *chat.History

	// assistant-mode threads: remote thread id -> assistant id
	mu     sync.Mutex
	remote map[string]string
}

var _ chat.Backend = (*Backend)(nil)

// config holds optional configuration for the backend.
type config struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
	maxTokens   int
}

// Option is a functional option for Backend.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTemperature sets the sampling temperature for direct-mode completions.
// Assistant-mode runs use the assistant's own settings.
func WithTemperature(t float64) Option {
	return func(c *config) {
		c.temperature = t
	}
}

// WithMaxTokens caps completion length for direct-mode completions.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// New constructs an OpenAI chat Backend. model is the completion model used
// for direct-mode threads (e.g. "gpt-4o").
func New(apiKey string, model string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai chat: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai chat: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Backend{
		client:      oai.NewClient(reqOpts...),
		model:       model,
		temperature: cfg.temperature,
		maxTokens:   cfg.maxTokens,
		history:     chat.NewHistory(),
		remote:      make(map[string]string),
	}, nil
}

// CreateThread implements chat.Backend.
func (b *Backend) CreateThread(ctx context.Context, spec chat.ThreadSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	if spec.Mode == chat.ModeDirect {
		return b.history.Open(spec), nil
	}

	thread, err := b.client.Beta.Threads.New(ctx, oai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("openai chat: create thread: %w", err)
	}

	// Seed the counterpart's scripted first line so the assistant sees its
	// own opening when later turns run.
	if spec.Opening != "" {
		_, err := b.client.Beta.Threads.Messages.New(ctx, thread.ID, oai.BetaThreadMessageNewParams{
			Role: oai.BetaThreadMessageNewParamsRoleAssistant,
			Content: oai.BetaThreadMessageNewParamsContentUnion{
				OfString: param.NewOpt(spec.Opening),
			},
		})
		if err != nil {
			return "", fmt.Errorf("openai chat: seed opening: %w", err)
		}
	}

	b.mu.Lock()
	b.remote[thread.ID] = spec.AssistantID
	b.mu.Unlock()

	return thread.ID, nil
}

// SubmitTurn implements chat.Backend.
func (b *Backend) SubmitTurn(ctx context.Context, req chat.TurnRequest) (string, error) {
	b.mu.Lock()
	assistantID, isRemote := b.remote[req.ThreadID]
	b.mu.Unlock()

	if isRemote {
		return b.submitAssistant(ctx, req.ThreadID, assistantID, req.Content)
	}
	return b.submitDirect(ctx, req.ThreadID, req.Content)
}

// submitAssistant appends the utterance to the remote thread, runs the
// assistant to completion and returns the newest assistant message.
func (b *Backend) submitAssistant(ctx context.Context, threadID, assistantID, content string) (string, error) {
	_, err := b.client.Beta.Threads.Messages.New(ctx, threadID, oai.BetaThreadMessageNewParams{
		Role: oai.BetaThreadMessageNewParamsRoleUser,
		Content: oai.BetaThreadMessageNewParamsContentUnion{
			OfString: param.NewOpt(content),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: append message: %w", err)
	}

	run, err := b.client.Beta.Threads.Runs.NewAndPoll(ctx, threadID, oai.BetaThreadRunNewParams{
		AssistantID: assistantID,
	}, 0)
	if err != nil {
		return "", fmt.Errorf("openai chat: run assistant: %w", err)
	}
	if run.Status != oai.RunStatusCompleted {
		return "", fmt.Errorf("openai chat: run ended with status %q", run.Status)
	}

	page, err := b.client.Beta.Threads.Messages.List(ctx, threadID, oai.BetaThreadMessageListParams{
		Order: oai.BetaThreadMessageListParamsOrderDesc,
		Limit: param.NewOpt(int64(1)),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: list messages: %w", err)
	}
	if len(page.Data) == 0 {
		return "", fmt.Errorf("openai chat: no messages after run")
	}

	var sb strings.Builder
	for _, part := range page.Data[0].Content {
		if part.Text.Value != "" {
			sb.WriteString(part.Text.Value)
		}
	}
	reply := sb.String()
	if reply == "" {
		return "", fmt.Errorf("openai chat: empty assistant reply")
	}
	return reply, nil
}

// submitDirect replays the local history plus the new utterance through chat
// completions and records both sides of the exchange.
func (b *Backend) submitDirect(ctx context.Context, threadID, content string) (string, error) {
	msgs, ok := b.history.Messages(threadID)
	if !ok {
		return "", chat.ErrUnknownThread
	}

	var messages []oai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case "system":
			messages = append(messages, oai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}
	messages = append(messages, oai.UserMessage(content))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(b.model),
		Messages: messages,
	}
	if b.temperature != 0 {
		params.Temperature = param.NewOpt(b.temperature)
	}
	if b.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(b.maxTokens))
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: empty choices in response")
	}
	reply := resp.Choices[0].Message.Content

	if err := b.history.Append(threadID, chat.Message{Role: "user", Content: content}); err != nil {
		return "", err
	}
	if err := b.history.Append(threadID, chat.Message{Role: "assistant", Content: reply}); err != nil {
		return "", err
	}
	return reply, nil
}
