package persistence

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIToken is a long-lived bearer credential that lets an agent act on
// behalf of its owning user. Only the SHA-256 of the token is stored.
type APIToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HashToken returns the hex SHA-256 of a presented bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateAPIToken mints a new token for the user and returns the record plus
// the cleartext token. The cleartext is shown exactly once and never stored.
func (s *Store) CreateAPIToken(ctx context.Context, userID, name string) (*APIToken, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	cleartext := "fct_" + hex.EncodeToString(raw)
	id := uuid.NewString()

	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO api_tokens (id, user_id, name, token_hash) VALUES (?, ?, ?, ?);
		`, id, userID, name, HashToken(cleartext))
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("create api token: %w", err)
	}

	tok, err := s.getAPIToken(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return tok, cleartext, nil
}

func (s *Store) getAPIToken(ctx context.Context, id string) (*APIToken, error) {
	var t APIToken
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, last_used_at, created_at FROM api_tokens WHERE id = ?;
	`, id).Scan(&t.ID, &t.UserID, &t.Name, &lastUsed, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("api token %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get api token: %w", err)
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	return &t, nil
}

// FindTokenByHash resolves a presented token's hash to its record.
func (s *Store) FindTokenByHash(ctx context.Context, tokenHash string) (*APIToken, error) {
	var t APIToken
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, last_used_at, created_at FROM api_tokens WHERE token_hash = ?;
	`, tokenHash).Scan(&t.ID, &t.UserID, &t.Name, &lastUsed, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	return &t, nil
}

// ListAPITokens returns a user's tokens, newest first.
func (s *Store) ListAPITokens(ctx context.Context, userID string) ([]APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, last_used_at, created_at
		FROM api_tokens WHERE user_id = ? ORDER BY created_at DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []APIToken
	for rows.Next() {
		var t APIToken
		var lastUsed sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &lastUsed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api token: %w", err)
		}
		if lastUsed.Valid {
			t.LastUsedAt = &lastUsed.Time
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// TouchToken updates last_used_at. Best-effort on the auth path; callers
// ignore the error.
func (s *Store) TouchToken(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens SET last_used_at = CURRENT_TIMESTAMP WHERE id = ?;
	`, id)
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

// DeleteAPIToken revokes a token.
func (s *Store) DeleteAPIToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete api token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api token %s: %w", id, ErrNotFound)
	}
	return nil
}
