package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the kind of record an action row describes.
type EntityType string

const (
	EntityTask    EntityType = "task"
	EntityProject EntityType = "project"
	EntityGoal    EntityType = "goal"
)

// ActorKind distinguishes who performed a mutation.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorAgent  ActorKind = "agent"
	ActorSystem ActorKind = "system"
)

// ActionKind is the verb recorded for a mutation. Completion toggles are
// recorded as complete/uncomplete rather than a generic update.
type ActionKind string

const (
	ActionCreate     ActionKind = "create"
	ActionUpdate     ActionKind = "update"
	ActionDelete     ActionKind = "delete"
	ActionComplete   ActionKind = "complete"
	ActionUncomplete ActionKind = "uncomplete"
)

// Action is one append-only audit row. Changes holds the submitted field
// diff; Metadata holds display context captured at write time (entity
// name, token label).
type Action struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entity_id"`
	EntityType EntityType      `json:"entity_type"`
	ActorID    string          `json:"actor_id"`
	ActorKind  ActorKind       `json:"actor_kind"`
	ActionKind ActionKind      `json:"action_kind"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	IsRead     bool            `json:"is_read"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewAction is the insert payload for one audit row. Changes and Metadata
// are marshalled as JSON; nil maps store SQL NULL.
type NewAction struct {
	EntityID   string
	EntityType EntityType
	ActorID    string
	ActorKind  ActorKind
	ActionKind ActionKind
	Changes    map[string]any
	Metadata   map[string]any
}

func (s *Store) InsertAction(ctx context.Context, n NewAction) (*Action, error) {
	if n.EntityID == "" || n.ActorID == "" {
		return nil, errors.New("insert action: entity_id and actor_id are required")
	}
	changes, err := marshalNullable(n.Changes)
	if err != nil {
		return nil, fmt.Errorf("marshal action changes: %w", err)
	}
	metadata, err := marshalNullable(n.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal action metadata: %w", err)
	}

	id := uuid.NewString()
	err = retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO actions (id, entity_id, entity_type, actor_id, actor_kind, action_kind, changes, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?);
		`, id, n.EntityID, string(n.EntityType), n.ActorID, string(n.ActorKind), string(n.ActionKind), changes, metadata)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert action: %w", err)
	}
	return s.GetAction(ctx, id)
}

func marshalNullable(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Store) GetAction(ctx context.Context, id string) (*Action, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, entity_type, actor_id, actor_kind, action_kind, changes, metadata, is_read, created_at
		FROM actions WHERE id = ?;
	`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*Action, error) {
	var a Action
	var changes, metadata sql.NullString
	var isRead int
	if err := row.Scan(&a.ID, &a.EntityID, &a.EntityType, &a.ActorID, &a.ActorKind, &a.ActionKind, &changes, &metadata, &isRead, &a.CreatedAt); err != nil {
		return nil, err
	}
	if changes.Valid {
		a.Changes = json.RawMessage(changes.String)
	}
	if metadata.Valid {
		a.Metadata = json.RawMessage(metadata.String)
	}
	a.IsRead = isRead != 0
	return &a, nil
}

// ActionFilter narrows ListActions. ViewerUserID activates the feed
// visibility rule: rows written by that user acting directly are hidden,
// while agent and system rows remain visible. IncludeOwn disables the
// rule for audit views.
type ActionFilter struct {
	ViewerUserID string
	IncludeOwn   bool
	EntityType   EntityType
	EntityID     string
	ActorKind    ActorKind
	// IsRead filters on read state when set; nil means both.
	IsRead *bool
	Limit  int
}

func (s *Store) ListActions(ctx context.Context, f ActionFilter) ([]Action, error) {
	var where []string
	var args []any

	if f.ViewerUserID != "" && !f.IncludeOwn {
		where = append(where, `NOT (actor_kind = 'user' AND actor_id = ?)`)
		args = append(args, f.ViewerUserID)
	}
	if f.EntityType != "" {
		where = append(where, `entity_type = ?`)
		args = append(args, string(f.EntityType))
	}
	if f.EntityID != "" {
		where = append(where, `entity_id = ?`)
		args = append(args, f.EntityID)
	}
	if f.ActorKind != "" {
		where = append(where, `actor_kind = ?`)
		args = append(args, string(f.ActorKind))
	}
	if f.IsRead != nil {
		where = append(where, `is_read = ?`)
		if *f.IsRead {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}

	query := `SELECT id, entity_id, entity_type, actor_id, actor_kind, action_kind, changes, metadata, is_read, created_at FROM actions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?;`

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("action rows: %w", err)
	}
	return out, nil
}

// MarkActionsRead flags the given rows as read. Unknown IDs are ignored;
// an empty slice is a no-op.
func (s *Store) MarkActionsRead(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var affected int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE actions SET is_read = 1 WHERE id IN (`+placeholders+`) AND is_read = 0;`, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark actions read: %w", err)
	}
	return affected, nil
}

// MarkAllActionsRead flags every unread row visible to the user as read.
func (s *Store) MarkAllActionsRead(ctx context.Context, viewerUserID string) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE actions SET is_read = 1
			WHERE is_read = 0 AND NOT (actor_kind = 'user' AND actor_id = ?);
		`, viewerUserID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark all actions read: %w", err)
	}
	return affected, nil
}

// CountUnreadActions counts unread rows visible to the user under the
// feed visibility rule.
func (s *Store) CountUnreadActions(ctx context.Context, viewerUserID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM actions
		WHERE is_read = 0 AND NOT (actor_kind = 'user' AND actor_id = ?);
	`, viewerUserID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread actions: %w", err)
	}
	return count, nil
}

// PruneReadActions deletes read rows created before the cutoff. Unread
// rows are never pruned.
func (s *Store) PruneReadActions(ctx context.Context, olderThan time.Time) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM actions WHERE is_read = 1 AND created_at < ?;
		`, olderThan.UTC())
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune read actions: %w", err)
	}
	return affected, nil
}
