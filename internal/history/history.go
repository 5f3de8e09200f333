// Package history persists completed turns and session results. Turn writes
// go through [Recorder] fire-and-forget: the turn flow never blocks on the
// database, and a persistence failure costs a history row, not a session.
// The finalization write is observed, since the results view depends on it.
package history

import (
	"context"
	"time"

	"github.com/talimhq/talim/pkg/types"
)

// SessionResult is the final record of one simulation session: identity
// fields plus the extracted score. A null score (no items, nil total) is
// stored as-is — the session closed, the model just produced nothing
// extractable.
type SessionResult struct {
	ThreadID       string
	CourseID       string
	UserID         string
	SimulationName string

	// FinalTranscript is the trainee's last turn before the conversation
	// declared its ending; FinalReply is the terminal reply that carried the
	// sentinel and the score block.
	FinalTranscript string
	FinalReply      string

	Score   types.ScoreRecord
	EndedAt time.Time
}

// SearchOpts filters turn searches. Zero values mean "no filter".
type SearchOpts struct {
	ThreadID       string
	UserID         string
	SimulationName string
	After          time.Time
	Before         time.Time
	Limit          int
}

// TurnResult is one semantic search hit with its cosine distance.
type TurnResult struct {
	Turn     types.Turn
	Distance float64
}

// Store is the persistence backend for turns and session results.
//
// All methods are safe for concurrent use.
type Store interface {
	// WriteTurn appends one completed exchange. embedding may be nil when no
	// embedding provider is configured; the row is still written.
	WriteTurn(ctx context.Context, turn types.Turn, embedding []float32) error

	// Turns returns all turns of a thread, oldest first.
	Turns(ctx context.Context, threadID string) ([]types.Turn, error)

	// WriteResult records the session's final score. Writing the same thread
	// again replaces the previous record.
	WriteResult(ctx context.Context, res SessionResult) error

	// SearchText runs a full-text search over turn transcripts and replies.
	SearchText(ctx context.Context, query string, opts SearchOpts) ([]types.Turn, error)

	// SearchSemantic returns the topK turns closest to the query embedding.
	SearchSemantic(ctx context.Context, embedding []float32, topK int, opts SearchOpts) ([]TurnResult, error)
}
