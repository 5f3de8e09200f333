package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/talimhq/talim/internal/history"
	"github.com/talimhq/talim/pkg/types"
)

// Transcript search lives next to the session endpoint so the results view
// talks to one host. GET /history/search with:
//
//	q          search text (required)
//	thread_id  restrict to one conversation thread
//	user_id    restrict to one trainee
//	simulation restrict to one simulation
//	limit      result cap, default 20
//	semantic   "true" switches from keyword to similarity search

// searchHit is one matched turn on the wire. Distance is only present on
// semantic hits.
type searchHit struct {
	ThreadID       string    `json:"thread_id"`
	CourseID       string    `json:"course_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	SimulationName string    `json:"simulation_name,omitempty"`
	UserTranscript string    `json:"user_transcript"`
	AIReply        string    `json:"ai_reply"`
	CreatedAt      time.Time `json:"created_at"`
	Distance       *float64  `json:"distance,omitempty"`
}

type searchResponse struct {
	Query string      `json:"query"`
	Mode  string      `json:"mode"`
	Hits  []searchHit `json:"hits"`
}

func hitFromTurn(t types.Turn) searchHit {
	return searchHit{
		ThreadID:       t.ThreadID,
		CourseID:       t.CourseID,
		UserID:         t.UserID,
		SimulationName: t.SimulationName,
		UserTranscript: t.UserTranscript,
		AIReply:        t.AIReply,
		CreatedAt:      t.CreatedAt,
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	query := q.Get("q")
	opts := history.SearchOpts{
		ThreadID:       q.Get("thread_id"),
		UserID:         q.Get("user_id"),
		SimulationName: q.Get("simulation"),
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp := searchResponse{Query: query, Mode: "text", Hits: []searchHit{}}
	var err error
	if q.Get("semantic") == "true" {
		resp.Mode = "semantic"
		var results []history.TurnResult
		results, err = s.searcher.Semantic(r.Context(), query, limit, opts)
		for _, res := range results {
			hit := hitFromTurn(res.Turn)
			d := res.Distance
			hit.Distance = &d
			resp.Hits = append(resp.Hits, hit)
		}
	} else {
		opts.Limit = limit
		var turns []types.Turn
		turns, err = s.searcher.Text(r.Context(), query, opts)
		for _, turn := range turns {
			resp.Hits = append(resp.Hits, hitFromTurn(turn))
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, history.ErrEmptyQuery):
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	case errors.Is(err, history.ErrSearchUnavailable), errors.Is(err, history.ErrSemanticUnavailable):
		http.Error(w, err.Error(), http.StatusNotImplemented)
		return
	default:
		s.logger.Error("history search failed", "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("search response write failed", "error", err)
	}
}
