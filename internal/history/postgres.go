package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/talimhq/talim/pkg/types"
)

var _ Store = (*PostgresStore)(nil)

// ErrNoSemanticIndex is returned by SearchSemantic when the store was opened
// without an embedding column.
var ErrNoSemanticIndex = errors.New("history store: no embedding column configured")

// PostgresStore persists turns and session results in PostgreSQL. Turn text
// carries a Turkish full-text index; embeddings, when present, carry a
// pgvector HNSW index for semantic lookup in the results view.
//
// All operations are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
	dims int
}

// NewPostgresStore connects to the database at dsn and ensures the schema
// exists.
//
// embeddingDimensions must match the configured embedding model's output
// width (e.g., 1536 for text-embedding-3-small, 768 for nomic-embed-text);
// changing it after the first start requires a manual schema change. Zero or
// negative opens the store without an embedding column: history and text
// search work, semantic search returns [ErrNoSemanticIndex], and the pgvector
// extension is never touched.
func NewPostgresStore(ctx context.Context, dsn string, embeddingDimensions int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}
	if embeddingDimensions > 0 {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}
	if err := EnsureSchema(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: schema: %w", err)
	}
	return &PostgresStore{pool: pool, dims: embeddingDimensions}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// ddlTurns returns the turns DDL with the embedding dimension substituted;
// the dimension is baked into the column type at creation time. A dimension
// of zero or below omits the embedding column, its HNSW index and the vector
// extension entirely, so the store runs on a plain PostgreSQL without
// pgvector installed.
func ddlTurns(embeddingDimensions int) string {
	extension := ""
	embeddingColumn := ""
	embeddingIndex := ""
	if embeddingDimensions > 0 {
		extension = "CREATE EXTENSION IF NOT EXISTS vector;\n\n"
		embeddingColumn = fmt.Sprintf("    embedding       vector(%d),\n", embeddingDimensions)
		embeddingIndex = `
CREATE INDEX IF NOT EXISTS idx_turns_embedding
    ON turns USING hnsw (embedding vector_cosine_ops);
`
	}
	return fmt.Sprintf(`
%sCREATE TABLE IF NOT EXISTS turns (
    id              BIGSERIAL    PRIMARY KEY,
    thread_id       TEXT         NOT NULL,
    course_id       TEXT         NOT NULL DEFAULT '',
    user_id         TEXT         NOT NULL DEFAULT '',
    simulation_name TEXT         NOT NULL DEFAULT '',
    user_transcript TEXT         NOT NULL,
    ai_reply        TEXT         NOT NULL,
%s    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_turns_thread_id
    ON turns (thread_id);

CREATE INDEX IF NOT EXISTS idx_turns_thread_created
    ON turns (thread_id, created_at);

CREATE INDEX IF NOT EXISTS idx_turns_fts
    ON turns USING GIN (to_tsvector('turkish', user_transcript || ' ' || ai_reply));
%s`, extension, embeddingColumn, embeddingIndex)
}

const ddlSessionResults = `
CREATE TABLE IF NOT EXISTS session_results (
    thread_id        TEXT         PRIMARY KEY,
    course_id        TEXT         NOT NULL DEFAULT '',
    user_id          TEXT         NOT NULL DEFAULT '',
    simulation_name  TEXT         NOT NULL DEFAULT '',
    final_transcript TEXT         NOT NULL DEFAULT '',
    final_reply      TEXT         NOT NULL DEFAULT '',
    items            JSONB,
    total            INTEGER,
    ended_at         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_session_results_user
    ON session_results (user_id);

CREATE INDEX IF NOT EXISTS idx_session_results_simulation
    ON session_results (simulation_name);
`

// EnsureSchema creates the required tables and indexes, plus the vector
// extension when an embedding dimension is set. Idempotent and safe to run on
// every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	for _, stmt := range []string{ddlTurns(embeddingDimensions), ddlSessionResults} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
	}
	return nil
}

// WriteTurn implements [Store]. Without an embedding column the embedding
// argument is ignored.
func (s *PostgresStore) WriteTurn(ctx context.Context, turn types.Turn, embedding []float32) error {
	args := []any{
		turn.ThreadID,
		turn.CourseID,
		turn.UserID,
		turn.SimulationName,
		turn.UserTranscript,
		turn.AIReply,
	}

	q := `
		INSERT INTO turns
		    (thread_id, course_id, user_id, simulation_name, user_transcript, ai_reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if s.dims > 0 {
		var vec any
		if embedding != nil {
			vec = pgvector.NewVector(embedding)
		}
		args = append(args, vec)
		q = `
		INSERT INTO turns
		    (thread_id, course_id, user_id, simulation_name, user_transcript, ai_reply, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	}
	args = append(args, turn.CreatedAt)

	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("history store: write turn: %w", err)
	}
	return nil
}

// Turns implements [Store].
func (s *PostgresStore) Turns(ctx context.Context, threadID string) ([]types.Turn, error) {
	const q = `
		SELECT thread_id, course_id, user_id, simulation_name, user_transcript, ai_reply, created_at
		FROM   turns
		WHERE  thread_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, threadID)
	if err != nil {
		return nil, fmt.Errorf("history store: turns: %w", err)
	}
	return collectTurns(rows)
}

// WriteResult implements [Store]. A null score stores NULL items and total.
func (s *PostgresStore) WriteResult(ctx context.Context, res SessionResult) error {
	const q = `
		INSERT INTO session_results
		    (thread_id, course_id, user_id, simulation_name, final_transcript, final_reply, items, total, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (thread_id) DO UPDATE SET
		    course_id        = EXCLUDED.course_id,
		    user_id          = EXCLUDED.user_id,
		    simulation_name  = EXCLUDED.simulation_name,
		    final_transcript = EXCLUDED.final_transcript,
		    final_reply      = EXCLUDED.final_reply,
		    items            = EXCLUDED.items,
		    total            = EXCLUDED.total,
		    ended_at         = EXCLUDED.ended_at`

	var items any
	if len(res.Score.Items) > 0 {
		encoded, err := json.Marshal(res.Score.Items)
		if err != nil {
			return fmt.Errorf("history store: encode score items: %w", err)
		}
		items = encoded
	}
	_, err := s.pool.Exec(ctx, q,
		res.ThreadID,
		res.CourseID,
		res.UserID,
		res.SimulationName,
		res.FinalTranscript,
		res.FinalReply,
		items,
		res.Score.Total,
		res.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("history store: write result: %w", err)
	}
	return nil
}

// SearchText implements [Store]. The query goes through plainto_tsquery so no
// operator syntax is needed.
func (s *PostgresStore) SearchText(ctx context.Context, query string, opts SearchOpts) ([]types.Turn, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('turkish', user_transcript || ' ' || ai_reply) @@ plainto_tsquery('turkish', $1)",
	}
	conditions = appendFilters(conditions, next, opts)

	q := "SELECT thread_id, course_id, user_id, simulation_name, user_transcript, ai_reply, created_at\n" +
		"FROM   turns\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: search text: %w", err)
	}
	return collectTurns(rows)
}

// SearchSemantic implements [Store]. Results are ordered by ascending cosine
// distance; rows without an embedding never match. Returns
// [ErrNoSemanticIndex] when the store has no embedding column.
func (s *PostgresStore) SearchSemantic(ctx context.Context, embedding []float32, topK int, opts SearchOpts) ([]TurnResult, error) {
	if s.dims <= 0 {
		return nil, ErrNoSemanticIndex
	}
	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"embedding IS NOT NULL"}
	conditions = appendFilters(conditions, next, opts)

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT thread_id, course_id, user_id, simulation_name, user_transcript, ai_reply, created_at,
		       embedding <=> $1 AS distance
		FROM   turns
		WHERE  %s
		ORDER  BY distance
		LIMIT  %s`, strings.Join(conditions, "\n  AND  "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: search semantic: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TurnResult, error) {
		var tr TurnResult
		if err := row.Scan(
			&tr.Turn.ThreadID,
			&tr.Turn.CourseID,
			&tr.Turn.UserID,
			&tr.Turn.SimulationName,
			&tr.Turn.UserTranscript,
			&tr.Turn.AIReply,
			&tr.Turn.CreatedAt,
			&tr.Distance,
		); err != nil {
			return TurnResult{}, err
		}
		return tr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if results == nil {
		results = []TurnResult{}
	}
	return results, nil
}

// appendFilters translates SearchOpts into WHERE conditions.
func appendFilters(conditions []string, next func(any) string, opts SearchOpts) []string {
	if opts.ThreadID != "" {
		conditions = append(conditions, "thread_id = "+next(opts.ThreadID))
	}
	if opts.UserID != "" {
		conditions = append(conditions, "user_id = "+next(opts.UserID))
	}
	if opts.SimulationName != "" {
		conditions = append(conditions, "simulation_name = "+next(opts.SimulationName))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "created_at < "+next(opts.Before))
	}
	return conditions
}

// collectTurns scans pgx rows into a slice of turns.
func collectTurns(rows pgx.Rows) ([]types.Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Turn, error) {
		var t types.Turn
		if err := row.Scan(
			&t.ThreadID,
			&t.CourseID,
			&t.UserID,
			&t.SimulationName,
			&t.UserTranscript,
			&t.AIReply,
			&t.CreatedAt,
		); err != nil {
			return types.Turn{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan rows: %w", err)
	}
	if turns == nil {
		turns = []types.Turn{}
	}
	return turns, nil
}
