// Package httpapi serves the operator endpoints: health, Prometheus metrics,
// the live conversation status and recent log lines.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/logx"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/status"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/version"
)

// StatusSource is the live registry; *status.Multiplexer implements it.
type StatusSource interface {
	Snapshot() []status.Row
}

// QueueSource reports queued messages; *dispatch.Dispatcher implements it.
type QueueSource interface {
	Pending() map[string]int
}

// Deps are the sources the endpoints read. Queues and Registry may be nil.
type Deps struct {
	Status   StatusSource
	Queues   QueueSource
	Registry *prometheus.Registry
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Conversations []status.Row   `json:"conversations"`
	Queued        map[string]int `json:"queued,omitempty"`
}

// Server is the HTTP listener.
type Server struct {
	deps    Deps
	handler http.Handler
	srv     *http.Server
	logger  *logx.Logger
}

// New builds the router.
func New(deps Deps) *Server {
	s := &Server{deps: deps, logger: logx.NewLogger("httpapi")}
	s.handler = s.routes()
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/logs", s.handleLogs)
	if s.deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s %d %s", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return logx.Wrap(err, "listen on "+addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()
	s.logger.Info("status endpoint listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Conversations: []status.Row{}}
	if s.deps.Status != nil {
		resp.Conversations = append(resp.Conversations, s.deps.Status.Snapshot()...)
	}
	if s.deps.Queues != nil {
		for id, n := range s.deps.Queues.Pending() {
			if n == 0 {
				continue
			}
			if resp.Queued == nil {
				resp.Queued = make(map[string]int)
			}
			resp.Queued[id] = n
		}
	}
	s.writeJSON(w, resp)
}

// handleLogs serves buffered log entries. Query: component (prefix) and
// since (RFC3339).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
		since = t
	}
	s.writeJSON(w, logx.Recent(r.URL.Query().Get("component"), since))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response: %v", err)
	}
}
