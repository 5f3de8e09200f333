// Package mock provides a scriptable chat.Backend for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/talimhq/talim/pkg/chat"
)

// Backend implements chat.Backend with scripted replies.
//
// Replies are consumed in order, one per SubmitTurn call; once exhausted the
// last reply repeats. The zero value answers every turn with a fixed
// placeholder.
type Backend struct {
	// Replies is the scripted reply sequence.
	Replies []string

	// CreateErr, when non-nil, is returned by CreateThread.
	CreateErr error

	// SubmitErr, when non-nil, is returned by SubmitTurn.
	SubmitErr error

	// Delay, when non-nil, makes SubmitTurn block until a value is received
	// (or ctx is cancelled). Lets tests hold a turn in flight.
	Delay chan struct{}

	mu      sync.Mutex
	next    int
	threads []chat.ThreadSpec
	turns   []chat.TurnRequest
}

var _ chat.Backend = (*Backend)(nil)

// CreateThread implements chat.Backend.
func (b *Backend) CreateThread(_ context.Context, spec chat.ThreadSpec) (string, error) {
	if b.CreateErr != nil {
		return "", b.CreateErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.threads = append(b.threads, spec)
	return fmt.Sprintf("thread_mock_%d", len(b.threads)), nil
}

// SubmitTurn implements chat.Backend.
func (b *Backend) SubmitTurn(ctx context.Context, req chat.TurnRequest) (string, error) {
	if b.Delay != nil {
		select {
		case <-b.Delay:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if b.SubmitErr != nil {
		return "", b.SubmitErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, req)

	if len(b.Replies) == 0 {
		return "mock reply", nil
	}
	reply := b.Replies[b.next]
	if b.next < len(b.Replies)-1 {
		b.next++
	}
	return reply, nil
}

// Threads returns the specs passed to CreateThread so far.
func (b *Backend) Threads() []chat.ThreadSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]chat.ThreadSpec, len(b.threads))
	copy(out, b.threads)
	return out
}

// Turns returns the requests passed to SubmitTurn so far.
func (b *Backend) Turns() []chat.TurnRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]chat.TurnRequest, len(b.turns))
	copy(out, b.turns)
	return out
}
