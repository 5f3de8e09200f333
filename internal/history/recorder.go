package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talimhq/talim/internal/observe"
	"github.com/talimhq/talim/pkg/provider/embeddings"
	"github.com/talimhq/talim/pkg/types"
)

// writeTimeout bounds each background write; a slow database must not pile
// up goroutines behind an active session.
const writeTimeout = 10 * time.Second

// Recorder persists turns and session results. Turn writes are
// fire-and-forget: failures are logged and counted, the session carries on,
// and the turn flow never waits on the database. The finalization write is
// the exception; see [Recorder.RecordResult].
type Recorder struct {
	store    Store
	embedder embeddings.Provider // optional
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewRecorder builds a Recorder. store may be nil, which disables
// persistence entirely; sessions still run. embedder may be nil; turns are
// then stored without embeddings and semantic search skips them. logger may
// be nil.
func NewRecorder(store Store, embedder embeddings.Provider, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, embedder: embedder, logger: logger}
}

// RecordTurn persists one completed exchange in the background.
func (r *Recorder) RecordTurn(turn types.Turn) {
	if r.store == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		var embedding []float32
		if r.embedder != nil {
			vec, err := r.embedder.Embed(ctx, turn.UserTranscript+"\n"+turn.AIReply)
			if err != nil {
				// Embedding is an enrichment; the row is written either way.
				r.logger.Warn("turn embedding failed",
					"thread_id", turn.ThreadID,
					"model", r.embedder.ModelID(),
					"error", err)
			} else {
				embedding = vec
			}
		}

		if err := r.store.WriteTurn(ctx, turn, embedding); err != nil {
			observe.DefaultMetrics().RecordProviderError(ctx, "history", "write_turn")
			r.logger.Error("turn persistence failed",
				"thread_id", turn.ThreadID,
				"error", err)
		}
	}()
}

// RecordResult persists the session's final score. Unlike turn writes this
// one is synchronous: the finalization record is what the results view shows,
// so the caller gets the outcome back and decides whether the automatic
// navigation may proceed. A nil store acknowledges without writing.
func (r *Recorder) RecordResult(ctx context.Context, res SessionResult) error {
	if r.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := r.store.WriteResult(ctx, res); err != nil {
		observe.DefaultMetrics().RecordProviderError(ctx, "history", "write_result")
		r.logger.Error("result persistence failed",
			"thread_id", res.ThreadID,
			"error", err)
		return fmt.Errorf("history: write result: %w", err)
	}
	return nil
}

// WaitIdle blocks until all in-flight writes have finished. Used by tests
// and by graceful shutdown.
func (r *Recorder) WaitIdle() {
	r.wg.Wait()
}
