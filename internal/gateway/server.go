package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talimhq/talim/internal/history"
	"github.com/talimhq/talim/internal/observe"
	"github.com/talimhq/talim/internal/session"
)

// Server is the HTTP front of the engine: the /ws session endpoint, the
// /history/search results endpoint, metrics and health.
type Server struct {
	manager  *session.Manager
	searcher *history.Searcher
	metrics  *observe.Metrics
	logger   *slog.Logger

	// InsecureSkipOriginVerify disables the WebSocket origin check. Only for
	// local development; the config loader never sets it.
	InsecureSkipOriginVerify bool

	httpSrv *http.Server
}

// NewServer wires the session manager and the history searcher behind an
// HTTP mux. searcher may be nil; the search endpoint then reports itself
// unavailable.
func NewServer(addr string, manager *session.Manager, searcher *history.Searcher, metrics *observe.Metrics, logger *slog.Logger) *Server {
	if searcher == nil {
		searcher = history.NewSearcher(nil, nil)
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager:  manager,
		searcher: searcher,
		metrics:  metrics,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/history/search", s.handleSearch)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the server's root handler, mainly for tests that mount it
// on an httptest server.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks until the context is cancelled or the listener
// fails. Shutdown drains in-flight connections before returning.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		s.manager.CloseAll()
		return err
	}
}

// ListenAndServeTLS is ListenAndServe over HTTPS.
func (s *Server) ListenAndServeTLS(ctx context.Context, certFile, keyFile string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpSrv.Addr, "tls", true)
		errCh <- s.httpSrv.ListenAndServeTLS(certFile, keyFile)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.httpSrv.Shutdown(shutdownCtx)
		s.manager.CloseAll()
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: s.InsecureSkipOriginVerify,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c, err := newConn(ws, s.manager, s.logger.With("remote", r.RemoteAddr))
	if err != nil {
		s.logger.Error("connection setup failed", "error", err)
		ws.Close(websocket.StatusInternalError, "setup failed")
		return
	}
	c.serve(r.Context())
}
