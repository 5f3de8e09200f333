// Package mock provides an in-memory history.Store for tests.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/talimhq/talim/internal/history"
	"github.com/talimhq/talim/pkg/types"
)

// Store keeps turns and results in memory. Configure WriteTurnErr or
// WriteResultErr to make the corresponding writes fail.
type Store struct {
	WriteTurnErr   error
	WriteResultErr error

	mu      sync.Mutex
	turns   []types.Turn
	vectors [][]float32
	results map[string]history.SessionResult
}

var _ history.Store = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{results: make(map[string]history.SessionResult)}
}

// WriteTurn implements history.Store.
func (s *Store) WriteTurn(_ context.Context, turn types.Turn, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteTurnErr != nil {
		return s.WriteTurnErr
	}
	s.turns = append(s.turns, turn)
	s.vectors = append(s.vectors, embedding)
	return nil
}

// Turns implements history.Store.
func (s *Store) Turns(_ context.Context, threadID string) ([]types.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.Turn{}
	for _, t := range s.turns {
		if t.ThreadID == threadID {
			out = append(out, t)
		}
	}
	return out, nil
}

// WriteResult implements history.Store.
func (s *Store) WriteResult(_ context.Context, res history.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteResultErr != nil {
		return s.WriteResultErr
	}
	s.results[res.ThreadID] = res
	return nil
}

// SearchText implements history.Store with a plain substring match.
func (s *Store) SearchText(_ context.Context, query string, opts history.SearchOpts) ([]types.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.Turn{}
	for _, t := range s.turns {
		if opts.ThreadID != "" && t.ThreadID != opts.ThreadID {
			continue
		}
		if strings.Contains(t.UserTranscript, query) || strings.Contains(t.AIReply, query) {
			out = append(out, t)
		}
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// SearchSemantic implements history.Store; every embedded turn matches with
// distance zero, which is enough for wiring tests.
func (s *Store) SearchSemantic(_ context.Context, _ []float32, topK int, opts history.SearchOpts) ([]history.TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []history.TurnResult{}
	for i, t := range s.turns {
		if s.vectors[i] == nil {
			continue
		}
		if opts.ThreadID != "" && t.ThreadID != opts.ThreadID {
			continue
		}
		out = append(out, history.TurnResult{Turn: t})
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out, nil
}

// AllTurns returns every stored turn in write order.
func (s *Store) AllTurns() []types.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Embeddings returns the embedding recorded for each turn, in write order.
func (s *Store) Embeddings() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, len(s.vectors))
	copy(out, s.vectors)
	return out
}

// Result returns the stored result for a thread.
func (s *Store) Result(threadID string) (history.SessionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[threadID]
	return res, ok
}
