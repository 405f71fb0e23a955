package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/otel"
	"github.com/focusapp/focus/internal/persistence"
)

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p := auth.PrincipalFromContext(r.Context())

	q := r.URL.Query()
	f := persistence.ActionFilter{
		ViewerUserID: p.User.ID,
		EntityType:   persistence.EntityType(q.Get("entity_type")),
		EntityID:     q.Get("entity_id"),
		ActorKind:    persistence.ActorKind(q.Get("actor_kind")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("is_read"); v != "" {
		isRead, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "is_read must be a boolean")
			return
		}
		f.IsRead = &isRead
	}
	if v := q.Get("include_own"); v != "" {
		includeOwn, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "include_own must be a boolean")
			return
		}
		f.IncludeOwn = includeOwn
	}

	if f.EntityID != "" {
		trace.SpanFromContext(r.Context()).SetAttributes(
			otel.AttrEntityType.String(string(f.EntityType)),
			otel.AttrEntityID.String(f.EntityID))
	}

	actions, err := s.feed.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("list actions failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if actions == nil {
		actions = []persistence.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "count": len(actions)})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: ids must be an array of strings")
		return
	}
	if len(body.IDs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	n, err := s.feed.MarkRead(r.Context(), body.IDs)
	if err != nil {
		s.logger.Error("mark actions read failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": n})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p := auth.PrincipalFromContext(r.Context())

	n, err := s.feed.MarkAllRead(r.Context(), p.User.ID)
	if err != nil {
		s.logger.Error("mark all actions read failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": n})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	p := auth.PrincipalFromContext(r.Context())

	count, err := s.feed.UnreadCount(r.Context(), p.User.ID)
	if err != nil {
		s.logger.Error("unread count failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}
