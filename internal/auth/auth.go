// Package auth resolves the acting identity for every request. A browser
// session cookie always wins over a bearer token; a session identifies the
// human directly, a token identifies an agent acting on the owner's behalf.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/focusapp/focus/internal/persistence"
)

// ActorKind classifies who is acting: the human directly, an agent holding
// an API token, or the system itself (retention, migrations).
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorAgent  ActorKind = "agent"
	ActorSystem ActorKind = "system"
)

// ErrUnauthenticated is returned when neither credential resolves.
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is the resolved identity attached to a request. TokenLabel is
// the human-readable name of the API token and is set only for agents.
type Principal struct {
	User       *persistence.User
	ActorKind  ActorKind
	TokenLabel string
}

// SessionProvider resolves a browser session cookie value to its user.
type SessionProvider interface {
	UserForSession(ctx context.Context, token string) (*persistence.User, error)
}

// TokenStore resolves bearer token hashes and records token usage.
type TokenStore interface {
	FindTokenByHash(ctx context.Context, tokenHash string) (*persistence.APIToken, error)
	TouchToken(ctx context.Context, id string) error
	GetUser(ctx context.Context, id string) (*persistence.User, error)
}

// Resolver turns request credentials into a Principal.
type Resolver struct {
	sessions   SessionProvider
	tokens     TokenStore
	cookieName string
	logger     *slog.Logger
}

func NewResolver(sessions SessionProvider, tokens TokenStore, cookieName string, logger *slog.Logger) *Resolver {
	if cookieName == "" {
		cookieName = "focus_session"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sessions: sessions, tokens: tokens, cookieName: cookieName, logger: logger}
}

// Resolve checks the session cookie first, then the Authorization bearer
// token. A present-but-unresolvable cookie is ignored, whatever the cause:
// a stale cookie or a broken session backend must not block an agent's
// valid token. If neither resolves the request is unauthenticated.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Principal, error) {
	if cookie, err := req.Cookie(r.cookieName); err == nil && cookie.Value != "" {
		user, err := r.sessions.UserForSession(ctx, cookie.Value)
		if err == nil {
			return &Principal{User: user, ActorKind: ActorUser}, nil
		}
		if errors.Is(err, persistence.ErrNotFound) {
			r.logger.Debug("session cookie did not resolve, trying bearer token")
		} else {
			r.logger.Warn("session lookup failed, trying bearer token", "error", err)
		}
	}

	bearer := extractBearer(req)
	if bearer == "" {
		return nil, ErrUnauthenticated
	}

	token, err := r.tokens.FindTokenByHash(ctx, persistence.HashToken(bearer))
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("resolve bearer token: %w", err)
	}

	user, err := r.tokens.GetUser(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("load token owner: %w", err)
	}

	// Usage tracking is best effort; a write failure must not fail auth.
	if err := r.tokens.TouchToken(ctx, token.ID); err != nil {
		r.logger.Warn("touch api token failed", "token_id", token.ID, "error", err)
	}

	return &Principal{User: user, ActorKind: ActorAgent, TokenLabel: token.Name}, nil
}

func extractBearer(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// principalContextKey is the context key type for resolved principals.
type principalContextKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the resolved principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalContextKey{}).(*Principal); ok {
		return p
	}
	return nil
}

// Middleware resolves the principal and injects it into the request
// context, rejecting unauthenticated requests with 401.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		principal, err := r.Resolve(req.Context(), req)
		if errors.Is(err, ErrUnauthenticated) {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err != nil {
			r.logger.Error("auth resolution failed", "error", err)
			writeAuthError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), principal)))
	})
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
