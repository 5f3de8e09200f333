// Package chat defines the Backend interface for the conversational
// counterpart of a simulation session.
//
// A chat backend owns the conversation threads of a running process. A thread
// is opened once per session with CreateThread and then advanced one exchange
// at a time with SubmitTurn; the backend is responsible for whatever state the
// underlying API needs to keep the conversation coherent (a remote assistant
// thread, or a locally replayed message history for plain completion APIs).
//
// Implementors must be safe for concurrent use: a server process drives many
// sessions against a single Backend.
package chat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownThread is returned by SubmitTurn when the thread id was not issued
// by this backend (or the backend has been restarted since it was issued).
var ErrUnknownThread = errors.New("chat: unknown thread")

// Mode selects how a simulation's conversation is driven.
type Mode string

const (
	// ModeAssistant drives the conversation through a remote assistant with
	// server-side thread state (e.g. the OpenAI Assistants API). The
	// assistant's instructions live on the remote object; only an assistant id
	// is needed per simulation.
	ModeAssistant Mode = "assistant"

	// ModeDirect drives the conversation through a plain completion API. The
	// backend keeps the message history locally and replays it on every turn,
	// with the simulation's priming text as the system prompt.
	ModeDirect Mode = "direct"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeAssistant || m == ModeDirect
}

// ThreadSpec describes the conversation to open. Which fields matter depends
// on Mode: AssistantID for ModeAssistant, Priming for ModeDirect.
// SimulationName is carried for logging only.
type ThreadSpec struct {
	Mode           Mode
	AssistantID    string
	Priming        string
	SimulationName string

	// Opening, when non-empty, is seeded into the thread as the counterpart's
	// scripted first line, so the model sees its own opening as conversation
	// context on every later turn.
	Opening string
}

// Validate reports whether the spec is internally consistent.
func (s ThreadSpec) Validate() error {
	if !s.Mode.IsValid() {
		return fmt.Errorf("chat: invalid mode %q", s.Mode)
	}
	if s.Mode == ModeAssistant && s.AssistantID == "" {
		return errors.New("chat: assistant mode requires an assistant id")
	}
	return nil
}

// TurnRequest carries one trainee utterance into an existing thread.
type TurnRequest struct {
	ThreadID string
	Content  string
}

// Backend is the abstraction over any conversational counterpart API.
type Backend interface {
	// CreateThread opens a new conversation for the given spec and returns its
	// thread id. The id is opaque to callers; it is only ever passed back to
	// the same backend.
	CreateThread(ctx context.Context, spec ThreadSpec) (string, error)

	// SubmitTurn appends req.Content as the trainee's next utterance and
	// returns the counterpart's full reply text. Returns ErrUnknownThread for
	// ids this backend did not issue.
	SubmitTurn(ctx context.Context, req TurnRequest) (string, error)
}

// ─── local thread bookkeeping ────────────────────────────────────────────────

// Message is one entry of a locally kept conversation log.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// History is an in-memory per-thread message log for direct-mode backends.
// Threads opened here get a locally issued id; the spec recorded at Open time
// is available again at submit time so a single backend can serve simulations
// with different priming. History is safe for concurrent use.
type History struct {
	mu      sync.Mutex
	threads map[string][]Message
	specs   map[string]ThreadSpec
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{
		threads: make(map[string][]Message),
		specs:   make(map[string]ThreadSpec),
	}
}

// Open registers a new thread for spec and returns its id. When spec.Priming
// is non-empty it is seeded as the thread's system message, and spec.Opening
// as the first assistant message.
func (h *History) Open(spec ThreadSpec) string {
	id := newThreadID()

	var seed []Message
	if spec.Priming != "" {
		seed = append(seed, Message{Role: "system", Content: spec.Priming})
	}
	if spec.Opening != "" {
		seed = append(seed, Message{Role: "assistant", Content: spec.Opening})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.specs[id] = spec
	h.threads[id] = seed
	return id
}

// Spec returns the ThreadSpec recorded when the thread was opened.
func (h *History) Spec(threadID string) (ThreadSpec, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	spec, ok := h.specs[threadID]
	return spec, ok
}

// Append adds a message to the thread's log. Returns ErrUnknownThread when the
// thread was not opened here.
func (h *History) Append(threadID string, m Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.specs[threadID]; !ok {
		return ErrUnknownThread
	}
	h.threads[threadID] = append(h.threads[threadID], m)
	return nil
}

// Messages returns a copy of the thread's log in order.
func (h *History) Messages(threadID string) ([]Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs, ok := h.threads[threadID]
	if !ok {
		if _, known := h.specs[threadID]; !known {
			return nil, false
		}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, true
}

// newThreadID returns a random locally scoped thread id.
func newThreadID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("chat: read random bytes: %v", err))
	}
	return "thread_local_" + hex.EncodeToString(b[:])
}
