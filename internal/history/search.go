package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/talimhq/talim/pkg/provider/embeddings"
	"github.com/talimhq/talim/pkg/types"
)

// Search errors distinguish "nothing to search" from a failing backend so the
// HTTP layer can answer with the right status.
var (
	// ErrSearchUnavailable means no history store is configured.
	ErrSearchUnavailable = errors.New("history: search unavailable, no store configured")

	// ErrSemanticUnavailable means semantic search specifically cannot run:
	// either no embedding provider is configured or the store has no
	// embedding column.
	ErrSemanticUnavailable = errors.New("history: semantic search unavailable")

	// ErrEmptyQuery rejects blank search input before it reaches the store.
	ErrEmptyQuery = errors.New("history: empty search query")
)

// defaultSearchLimit caps result sets when the caller does not ask for a
// specific size.
const defaultSearchLimit = 20

// Searcher answers transcript queries for the results view: keyword lookup
// through the store's full-text index, and similarity lookup by embedding the
// query with the same provider that embedded the stored turns.
//
// Safe for concurrent use.
type Searcher struct {
	store    Store
	embedder embeddings.Provider
}

// NewSearcher builds a Searcher over the given store. Either argument may be
// nil; the corresponding queries then fail with the unavailable errors above
// instead of panicking.
func NewSearcher(store Store, embedder embeddings.Provider) *Searcher {
	return &Searcher{store: store, embedder: embedder}
}

// Text runs a keyword search over turn transcripts and replies.
func (s *Searcher) Text(ctx context.Context, query string, opts SearchOpts) ([]types.Turn, error) {
	if s.store == nil {
		return nil, ErrSearchUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultSearchLimit
	}
	turns, err := s.store.SearchText(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("history: text search: %w", err)
	}
	return turns, nil
}

// Semantic embeds the query and returns the closest stored turns, nearest
// first. topK values outside (0, defaultSearchLimit*5] are clamped.
func (s *Searcher) Semantic(ctx context.Context, query string, topK int, opts SearchOpts) ([]TurnResult, error) {
	if s.store == nil {
		return nil, ErrSearchUnavailable
	}
	if s.embedder == nil {
		return nil, ErrSemanticUnavailable
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = defaultSearchLimit
	}
	if max := defaultSearchLimit * 5; topK > max {
		topK = max
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: embed query: %w", err)
	}
	results, err := s.store.SearchSemantic(ctx, vec, topK, opts)
	if err != nil {
		if errors.Is(err, ErrNoSemanticIndex) {
			return nil, ErrSemanticUnavailable
		}
		return nil, fmt.Errorf("history: semantic search: %w", err)
	}
	return results, nil
}
