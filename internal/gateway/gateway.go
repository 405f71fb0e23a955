// Package gateway is the HTTP surface of focusd: the /api REST endpoints
// for the action feed, the /mcp protocol mount, and /healthz.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	otelapi "go.opentelemetry.io/otel"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/ledger"
	"github.com/focusapp/focus/internal/otel"
	"github.com/focusapp/focus/internal/persistence"
	"github.com/focusapp/focus/internal/shared"
)

const maxBodyBytes = 1 << 20

type Server struct {
	resolver *auth.Resolver
	feed     *ledger.Feed
	store    *persistence.Store
	mcp      http.Handler
	logger   *slog.Logger
	metrics  *otel.Metrics
}

func New(resolver *auth.Resolver, feed *ledger.Feed, store *persistence.Store, mcpHandler http.Handler, logger *slog.Logger, metrics *otel.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		resolver: resolver,
		feed:     feed,
		store:    store,
		mcp:      mcpHandler,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handler builds the route table. /healthz is unauthenticated; /api goes
// through the auth middleware; /mcp does its own credential handling so
// failures surface as JSON-RPC errors.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/mcp", s.mcp)

	api := http.NewServeMux()
	api.HandleFunc("/api/actions", s.handleListActions)
	api.HandleFunc("/api/actions/read", s.handleMarkRead)
	api.HandleFunc("/api/actions/read_all", s.handleMarkAllRead)
	api.HandleFunc("/api/actions/unread_count", s.handleUnreadCount)
	mux.Handle("/api/", s.resolver.Middleware(api))

	return s.observe(withRequestID(sizeLimit(mux, maxBodyBytes)))
}

// withRequestID stamps each request with an id so log lines from one
// request can be correlated across packages.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := shared.NewRequestID()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(shared.WithRequestID(r.Context(), id)))
	})
}

// sizeLimit caps request bodies to keep a hostile client from buffering
// unbounded JSON.
func sizeLimit(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.StartServerSpan(r.Context(), otelapi.Tracer(otel.TracerName), r.Method+" "+r.URL.Path)
		defer span.End()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		if s.metrics != nil {
			s.metrics.RequestDuration.Record(ctx, time.Since(start).Seconds())
		}
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	dbOK := s.store.DB().PingContext(r.Context()) == nil
	payload := map[string]any{
		"healthy": dbOK,
		"db_ok":   dbOK,
	}
	w.Header().Set("Content-Type", "application/json")
	if !dbOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
