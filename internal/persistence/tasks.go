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

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

type Priority string

const (
	PriorityP1 Priority = "p1"
	PriorityP2 Priority = "p2"
	PriorityP3 Priority = "p3"
	PriorityP4 Priority = "p4"
)

type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ProjectID   string     `json:"project_id,omitempty"`
	GoalID      string     `json:"goal_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type NewTask struct {
	UserID      string
	ProjectID   string
	GoalID      string
	Title       string
	Description string
	Status      TaskStatus
	Priority    Priority
	DueDate     *time.Time
}

// taskColumns whitelists the fields an update may touch. Keys are the wire
// field names the services and tools use; values are the backing columns.
var taskColumns = map[string]string{
	"title":       "title",
	"description": "description",
	"status":      "status",
	"priority":    "priority",
	"due_date":    "due_date",
	"project_id":  "project_id",
	"goal_id":     "goal_id",
	"completed":   "completed",
}

func (s *Store) CreateTask(ctx context.Context, in NewTask) (*Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("task title required")
	}
	if in.Status == "" {
		in.Status = TaskStatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityP4
	}
	id := uuid.NewString()
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (id, user_id, project_id, goal_id, title, description, status, priority, due_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
		`, id, in.UserID, nullString(in.ProjectID), nullString(in.GoalID),
			in.Title, in.Description, in.Status, in.Priority, nullTime(in.DueDate))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return s.GetTask(ctx, id)
}

func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, COALESCE(project_id, ''), COALESCE(goal_id, ''), title, description,
			status, priority, due_date, completed, completed_at, created_at, updated_at
		FROM tasks WHERE id = ?;
	`, id)
	return scanTask(row.Scan)
}

func scanTask(scan func(dest ...any) error) (*Task, error) {
	var t Task
	var due, completedAt sql.NullTime
	err := scan(&t.ID, &t.UserID, &t.ProjectID, &t.GoalID, &t.Title, &t.Description,
		&t.Status, &t.Priority, &due, &t.Completed, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if due.Valid {
		t.DueDate = &due.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

type TaskFilter struct {
	UserID    string
	ProjectID string
	GoalID    string
	Status    TaskStatus
	Completed *bool
	Search    string
	Limit     int
}

func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	where := []string{"user_id = ?"}
	args := []any{f.UserID}
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.GoalID != "" {
		where = append(where, "goal_id = ?")
		args = append(args, f.GoalID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *f.Completed)
	}
	if f.Search != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(project_id, ''), COALESCE(goal_id, ''), title, description,
			status, priority, due_date, completed, completed_at, created_at, updated_at
		FROM tasks
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task rows: %w", err)
	}
	return out, nil
}

// UpdateTask applies a partial field update. The fields map carries exactly
// what the caller submitted; unknown fields are rejected so a typo cannot
// silently drop part of an update. Setting "completed" also maintains
// completed_at.
func (s *Store) UpdateTask(ctx context.Context, id string, fields map[string]any) (*Task, error) {
	if len(fields) == 0 {
		return s.GetTask(ctx, id)
	}
	var sets []string
	var args []any
	for field, value := range fields {
		col, ok := taskColumns[field]
		if !ok {
			return nil, fmt.Errorf("unknown task field %q", field)
		}
		sets = append(sets, col+" = ?")
		args = append(args, value)
		if field == "completed" {
			if isTrue(value) {
				sets = append(sets, "completed_at = CURRENT_TIMESTAMP")
			} else {
				sets = append(sets, "completed_at = NULL")
			}
		}
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	err := retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?;`, args...)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
