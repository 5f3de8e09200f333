package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/talimhq/talim/pkg/chat"
)

// ErrAllFailed is returned by [ChatFallback.CreateThread] when every backend
// in the chain either failed or is marked down.
var ErrAllFailed = errors.New("resilience: all chat backends failed")

// backendEntry is one chat backend in the failover chain with its own
// breaker, so a dead primary does not block its fallbacks.
type backendEntry struct {
	name    string
	backend chat.Backend
	breaker *Breaker
}

// ChatFallback implements [chat.Backend] with automatic failover across
// multiple chat backends.
//
// Thread ids are scoped to the backend that issued them, so failover happens
// only when a thread is created: CreateThread walks the chain until a healthy
// backend opens the thread, and every later turn on that thread is pinned to
// the owning backend (still guarded by its breaker). A session whose owning
// backend dies mid-conversation surfaces the error rather than silently
// restarting the dialogue on a backend with no history.
type ChatFallback struct {
	entries []backendEntry
	cfg     BreakerConfig

	mu    sync.Mutex
	owner map[string]int // thread id -> entry index
}

var _ chat.Backend = (*ChatFallback)(nil)

// NewChatFallback creates a [ChatFallback] with primary as the preferred
// backend. cfg's Name is overridden per entry.
func NewChatFallback(primary chat.Backend, primaryName string, cfg BreakerConfig) *ChatFallback {
	f := &ChatFallback{cfg: cfg, owner: make(map[string]int)}
	f.add(primaryName, primary)
	return f
}

// AddFallback registers an additional chat backend. Fallbacks are tried in
// the order they are added, after the primary.
func (f *ChatFallback) AddFallback(name string, backend chat.Backend) {
	f.add(name, backend)
}

func (f *ChatFallback) add(name string, backend chat.Backend) {
	cfg := f.cfg
	cfg.Name = name
	f.entries = append(f.entries, backendEntry{
		name:    name,
		backend: backend,
		breaker: NewBreaker(cfg),
	})
}

// CreateThread opens the thread on the first healthy backend and records
// which backend owns it.
func (f *ChatFallback) CreateThread(ctx context.Context, spec chat.ThreadSpec) (string, error) {
	var lastErr error
	for i := range f.entries {
		entry := &f.entries[i]
		var id string
		err := entry.breaker.Do(func() error {
			var innerErr error
			id, innerErr = entry.backend.CreateThread(ctx, spec)
			return innerErr
		})
		if err == nil {
			f.mu.Lock()
			f.owner[id] = i
			f.mu.Unlock()
			return id, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// SubmitTurn routes the turn to the backend that owns the thread, through
// that backend's breaker.
func (f *ChatFallback) SubmitTurn(ctx context.Context, req chat.TurnRequest) (string, error) {
	f.mu.Lock()
	idx, ok := f.owner[req.ThreadID]
	f.mu.Unlock()
	if !ok {
		return "", chat.ErrUnknownThread
	}

	entry := &f.entries[idx]
	var reply string
	err := entry.breaker.Do(func() error {
		var innerErr error
		reply, innerErr = entry.backend.SubmitTurn(ctx, req)
		return innerErr
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}
