package persistence

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// CreateAuthSession issues a browser session token for the user. The actual
// login flow (password/OAuth) lives outside this service; this is only the
// session handle the resolver checks.
func (s *Store) CreateAuthSession(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)

	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO auth_sessions (token, user_id, expires_at) VALUES (?, ?, ?);
		`, token, userID, time.Now().UTC().Add(ttl))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create auth session: %w", err)
	}
	return token, nil
}

// UserForSession resolves a session token to its user, rejecting expired
// sessions.
func (s *Store) UserForSession(ctx context.Context, token string) (*User, error) {
	var userID string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM auth_sessions WHERE token = ?;
	`, token).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup auth session: %w", err)
	}
	if time.Now().UTC().After(expiresAt) {
		return nil, ErrNotFound
	}
	return s.GetUser(ctx, userID)
}

// DeleteAuthSession logs a session out. Deleting a missing token is a no-op.
func (s *Store) DeleteAuthSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token = ?;`, token); err != nil {
		return fmt.Errorf("delete auth session: %w", err)
	}
	return nil
}
