package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/focusapp/focus/internal/persistence"
)

func TestTasks_CreateAppliesDefaults(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")
	ctx := context.Background()

	task, err := store.CreateTask(ctx, persistence.NewTask{
		UserID: user.ID,
		Title:  "Write the report",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != persistence.TaskStatusTodo {
		t.Fatalf("expected default status todo, got %q", task.Status)
	}
	if task.Priority != persistence.PriorityP4 {
		t.Fatalf("expected default priority p4, got %q", task.Priority)
	}
	if task.Completed {
		t.Fatal("new task should not be completed")
	}
}

func TestTasks_CreateRejectsEmptyTitle(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")

	if _, err := store.CreateTask(context.Background(), persistence.NewTask{UserID: user.ID, Title: "   "}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestTasks_UpdateFieldMap(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")
	ctx := context.Background()

	task, err := store.CreateTask(ctx, persistence.NewTask{UserID: user.ID, Title: "Draft"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	updated, err := store.UpdateTask(ctx, task.ID, map[string]any{
		"title":    "Draft v2",
		"status":   "in_progress",
		"priority": "p2",
	})
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "Draft v2" {
		t.Fatalf("title not updated: %q", updated.Title)
	}
	if updated.Status != persistence.TaskStatusInProgress {
		t.Fatalf("status not updated: %q", updated.Status)
	}
	if updated.Priority != persistence.PriorityP2 {
		t.Fatalf("priority not updated: %q", updated.Priority)
	}
}

func TestTasks_UpdateRejectsUnknownField(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")
	ctx := context.Background()

	task, err := store.CreateTask(ctx, persistence.NewTask{UserID: user.ID, Title: "Draft"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.UpdateTask(ctx, task.ID, map[string]any{"owner": "someone"}); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestTasks_CompletedTogglesCompletedAt(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")
	ctx := context.Background()

	task, err := store.CreateTask(ctx, persistence.NewTask{UserID: user.ID, Title: "Finish"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	done, err := store.UpdateTask(ctx, task.ID, map[string]any{"completed": true})
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp, got completed=%v at=%v", done.Completed, done.CompletedAt)
	}

	undone, err := store.UpdateTask(ctx, task.ID, map[string]any{"completed": false})
	if err != nil {
		t.Fatalf("uncomplete task: %v", err)
	}
	if undone.Completed || undone.CompletedAt != nil {
		t.Fatalf("expected completed cleared, got completed=%v at=%v", undone.Completed, undone.CompletedAt)
	}
}

func TestTasks_ListFilters(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")
	other := seedUser(t, store, "other@example.com")
	ctx := context.Background()

	project, err := store.CreateProject(ctx, user.ID, "Home", "#ff0000")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if _, err := store.CreateTask(ctx, persistence.NewTask{UserID: user.ID, Title: "Buy groceries", ProjectID: project.ID}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.CreateTask(ctx, persistence.NewTask{UserID: user.ID, Title: "Mow the lawn"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.CreateTask(ctx, persistence.NewTask{UserID: other.ID, Title: "Unrelated"}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	mine, err := store.ListTasks(ctx, persistence.TaskFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 tasks for user, got %d", len(mine))
	}

	inProject, err := store.ListTasks(ctx, persistence.TaskFilter{UserID: user.ID, ProjectID: project.ID})
	if err != nil {
		t.Fatalf("list by project: %v", err)
	}
	if len(inProject) != 1 || inProject[0].Title != "Buy groceries" {
		t.Fatalf("unexpected project filter result: %+v", inProject)
	}

	found, err := store.ListTasks(ctx, persistence.TaskFilter{UserID: user.ID, Search: "lawn"})
	if err != nil {
		t.Fatalf("list by search: %v", err)
	}
	if len(found) != 1 || found[0].Title != "Mow the lawn" {
		t.Fatalf("unexpected search result: %+v", found)
	}
}

func TestTasks_DeleteThenGetNotFound(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")
	ctx := context.Background()

	task, err := store.CreateTask(ctx, persistence.NewTask{UserID: user.ID, Title: "Gone soon"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := store.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if _, err := store.GetTask(ctx, task.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestComments_CRUDAndCascade(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "tasks@example.com")
	ctx := context.Background()

	task, err := store.CreateTask(ctx, persistence.NewTask{UserID: user.ID, Title: "Discuss"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	first, err := store.CreateComment(ctx, task.ID, "first note")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if _, err := store.CreateComment(ctx, task.ID, "second note"); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	comments, err := store.ListComments(ctx, task.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}

	if err := store.DeleteComment(ctx, first.ID); err != nil {
		t.Fatalf("delete comment: %v", err)
	}

	// Task deletion cascades to its comments.
	if err := store.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	remaining, err := store.ListComments(ctx, task.ID)
	if err != nil {
		t.Fatalf("list comments after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected zero comments after cascade, got %d", len(remaining))
	}
}

func TestGoals_UpdateTargetDate(t *testing.T) {
	store := openTestStore(t)
	user := seedUser(t, store, "goals@example.com")
	ctx := context.Background()

	target := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	goal, err := store.CreateGoal(ctx, user.ID, "Run a marathon", &target)
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}

	updated, err := store.UpdateGoal(ctx, goal.ID, map[string]any{"completed": true})
	if err != nil {
		t.Fatalf("update goal: %v", err)
	}
	if !updated.Completed {
		t.Fatal("expected goal marked completed")
	}
}
