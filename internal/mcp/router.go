package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/otel"
	"github.com/focusapp/focus/internal/shared"
)

const maxRequestBytes = 1 << 20

// Router owns the protocol endpoint: it resolves the actor, maps the
// Mcp-Session-Id header to a live session, and dispatches JSON-RPC
// requests to the tool registry.
//
// Session policy is strict: only initialize may arrive without a session
// header; any other request without one is a 400, and an id the registry
// does not know is a 404.
type Router struct {
	resolver *auth.Resolver
	sessions SessionStore
	registry *Registry
	logger   *slog.Logger
	metrics  *otel.Metrics
}

func NewRouter(resolver *auth.Resolver, sessions SessionStore, registry *Registry, logger *slog.Logger, metrics *otel.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver: resolver,
		sessions: sessions,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.handlePost(w, r)
	case http.MethodDelete:
		rt.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		http.Error(w, "missing "+SessionHeader+" header", http.StatusBadRequest)
		return
	}
	if _, ok := rt.sessions.Get(id); !ok {
		http.Error(w, "session not found (it may have expired)", http.StatusNotFound)
		return
	}
	rt.sessions.Delete(id)
	if rt.metrics != nil {
		rt.metrics.SessionsActive.Add(r.Context(), -1)
	}
	rt.logger.Info("protocol session closed", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeRPCError(w, nil, ErrCodeParse, "unreadable request body")
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, ErrCodeParse, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCError(w, req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC request")
		return
	}

	principal, err := rt.resolver.Resolve(r.Context(), r)
	if errors.Is(err, auth.ErrUnauthenticated) {
		writeRPCError(w, req.ID, ErrCodeUnauthorized, "Unauthorized")
		return
	}
	if err != nil {
		rt.logger.Error("protocol auth failed", "error", err)
		writeRPCError(w, req.ID, ErrCodeInternal, "internal error")
		return
	}
	ctx := auth.WithPrincipal(r.Context(), principal)

	if req.Method == "initialize" {
		rt.handleInitialize(ctx, w, &req)
		return
	}

	id := r.Header.Get(SessionHeader)
	if id == "" {
		http.Error(w, "missing "+SessionHeader+" header", http.StatusBadRequest)
		return
	}
	sess, ok := rt.sessions.Get(id)
	if !ok {
		http.Error(w, "session not found (it may have expired)", http.StatusNotFound)
		return
	}

	ctx = shared.WithMCPSessionID(ctx, sess.ID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	rt.dispatch(ctx, w, &req)
}

func (rt *Router) handleInitialize(ctx context.Context, w http.ResponseWriter, req *rpcRequest) {
	sess := newSession()
	rt.sessions.Put(sess)
	if rt.metrics != nil {
		rt.metrics.SessionsActive.Add(ctx, 1)
	}
	rt.logger.Info("protocol session opened", "session_id", sess.ID)

	w.Header().Set(SessionHeader, sess.ID)
	writeRPCResult(w, req.ID, initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ServerInfo: serverInfo{Name: serverName, Version: otel.Version},
	})
}

func (rt *Router) dispatch(ctx context.Context, w http.ResponseWriter, req *rpcRequest) {
	if req.isNotification() {
		// Notifications get no response body.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "ping":
		writeRPCResult(w, req.ID, map[string]any{})
	case "tools/list":
		writeRPCResult(w, req.ID, toolsListResult{Tools: rt.registry.Descriptors()})
	case "tools/call":
		var params callToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
			writeRPCError(w, req.ID, ErrCodeInvalidParams, "invalid tools/call params")
			return
		}
		result, rpcErr := rt.registry.Call(ctx, params.Name, params.Arguments)
		if rpcErr != nil {
			writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
			return
		}
		writeRPCResult(w, req.ID, result)
	default:
		writeRPCError(w, req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	writeRPC(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
