package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Goal struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	TargetDate *time.Time `json:"target_date,omitempty"`
	Completed  bool       `json:"completed"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

var goalColumns = map[string]string{
	"title":       "title",
	"target_date": "target_date",
	"completed":   "completed",
}

func (s *Store) CreateGoal(ctx context.Context, userID, title string, targetDate *time.Time) (*Goal, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("goal title required")
	}
	id := uuid.NewString()
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO goals (id, user_id, title, target_date) VALUES (?, ?, ?, ?);
		`, id, userID, title, nullTime(targetDate))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return s.GetGoal(ctx, id)
}

func (s *Store) GetGoal(ctx context.Context, id string) (*Goal, error) {
	var g Goal
	var target sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, target_date, completed, created_at, updated_at
		FROM goals WHERE id = ?;
	`, id).Scan(&g.ID, &g.UserID, &g.Title, &target, &g.Completed, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	if target.Valid {
		g.TargetDate = &target.Time
	}
	return &g, nil
}

func (s *Store) ListGoals(ctx context.Context, userID string) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, target_date, completed, created_at, updated_at
		FROM goals WHERE user_id = ?
		ORDER BY created_at DESC, id DESC;
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		var g Goal
		var target sql.NullTime
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &target, &g.Completed, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		if target.Valid {
			g.TargetDate = &target.Time
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("goal rows: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateGoal(ctx context.Context, id string, fields map[string]any) (*Goal, error) {
	if len(fields) == 0 {
		return s.GetGoal(ctx, id)
	}
	var sets []string
	var args []any
	for field, value := range fields {
		col, ok := goalColumns[field]
		if !ok {
			return nil, fmt.Errorf("unknown goal field %q", field)
		}
		sets = append(sets, col+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE goals SET `+strings.Join(sets, ", ")+` WHERE id = ?;`, args...)
		if err != nil {
			return fmt.Errorf("update goal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("goal %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetGoal(ctx, id)
}

func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("delete goal: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("goal %s: %w", id, ErrNotFound)
		}
		return nil
	})
}
