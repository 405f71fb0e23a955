package persistence_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/focusapp/focus/internal/persistence"
)

func insertTestAction(t *testing.T, store *persistence.Store, actorID string, kind persistence.ActorKind) *persistence.Action {
	t.Helper()
	a, err := store.InsertAction(context.Background(), persistence.NewAction{
		EntityID:   "task-1",
		EntityType: persistence.EntityTask,
		ActorID:    actorID,
		ActorKind:  kind,
		ActionKind: persistence.ActionUpdate,
		Changes:    map[string]any{"title": "renamed"},
		Metadata:   map[string]any{"entityName": "renamed"},
	})
	if err != nil {
		t.Fatalf("insert action: %v", err)
	}
	return a
}

func TestActions_InsertRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.InsertAction(ctx, persistence.NewAction{
		EntityID:   "task-42",
		EntityType: persistence.EntityTask,
		ActorID:    "user-1",
		ActorKind:  persistence.ActorAgent,
		ActionKind: persistence.ActionComplete,
		Changes:    map[string]any{"completed": true},
		Metadata:   map[string]any{"entityName": "Ship it", "tokenName": "laptop agent"},
	})
	if err != nil {
		t.Fatalf("insert action: %v", err)
	}
	if a.IsRead {
		t.Fatal("new action must start unread")
	}

	got, err := store.GetAction(ctx, a.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	var changes map[string]any
	if err := json.Unmarshal(got.Changes, &changes); err != nil {
		t.Fatalf("unmarshal changes: %v", err)
	}
	if changes["completed"] != true {
		t.Fatalf("unexpected changes: %v", changes)
	}
	var metadata map[string]any
	if err := json.Unmarshal(got.Metadata, &metadata); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if metadata["tokenName"] != "laptop agent" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
}

func TestActions_ListHidesViewerOwnUserActions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertTestAction(t, store, "user-1", persistence.ActorUser)
	agentAction := insertTestAction(t, store, "user-1", persistence.ActorAgent)
	otherUserAction := insertTestAction(t, store, "user-2", persistence.ActorUser)

	visible, err := store.ListActions(ctx, persistence.ActionFilter{ViewerUserID: "user-1"})
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible actions, got %d", len(visible))
	}
	ids := map[string]bool{}
	for _, a := range visible {
		ids[a.ID] = true
	}
	if !ids[agentAction.ID] {
		t.Fatal("agent action for same user must stay visible")
	}
	if !ids[otherUserAction.ID] {
		t.Fatal("another user's direct action must stay visible")
	}
}

func TestActions_ListIncludeOwnDisablesRule(t *testing.T) {
	store := openTestStore(t)

	insertTestAction(t, store, "user-1", persistence.ActorUser)
	insertTestAction(t, store, "user-1", persistence.ActorAgent)

	all, err := store.ListActions(context.Background(), persistence.ActionFilter{ViewerUserID: "user-1", IncludeOwn: true})
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 actions with IncludeOwn, got %d", len(all))
	}
}

func TestActions_ListFilterByEntityAndActorKind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertTestAction(t, store, "user-1", persistence.ActorAgent)
	if _, err := store.InsertAction(ctx, persistence.NewAction{
		EntityID:   "proj-1",
		EntityType: persistence.EntityProject,
		ActorID:    "user-1",
		ActorKind:  persistence.ActorSystem,
		ActionKind: persistence.ActionDelete,
	}); err != nil {
		t.Fatalf("insert action: %v", err)
	}

	projects, err := store.ListActions(ctx, persistence.ActionFilter{EntityType: persistence.EntityProject})
	if err != nil {
		t.Fatalf("list by entity type: %v", err)
	}
	if len(projects) != 1 || projects[0].ActionKind != persistence.ActionDelete {
		t.Fatalf("unexpected entity filter result: %+v", projects)
	}

	agents, err := store.ListActions(ctx, persistence.ActionFilter{ActorKind: persistence.ActorAgent})
	if err != nil {
		t.Fatalf("list by actor kind: %v", err)
	}
	if len(agents) != 1 || agents[0].EntityID != "task-1" {
		t.Fatalf("unexpected actor filter result: %+v", agents)
	}
}

func TestActions_ListFilterByReadState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	read := insertTestAction(t, store, "user-1", persistence.ActorAgent)
	unread := insertTestAction(t, store, "user-1", persistence.ActorAgent)
	if _, err := store.MarkActionsRead(ctx, []string{read.ID}); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	isRead := true
	got, err := store.ListActions(ctx, persistence.ActionFilter{ViewerUserID: "user-2", IsRead: &isRead})
	if err != nil {
		t.Fatalf("list read: %v", err)
	}
	if len(got) != 1 || got[0].ID != read.ID {
		t.Fatalf("expected only the read row, got %+v", got)
	}

	isRead = false
	got, err = store.ListActions(ctx, persistence.ActionFilter{ViewerUserID: "user-2", IsRead: &isRead})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(got) != 1 || got[0].ID != unread.ID {
		t.Fatalf("expected only the unread row, got %+v", got)
	}

	got, err = store.ListActions(ctx, persistence.ActionFilter{ViewerUserID: "user-2"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both rows with no read filter, got %d", len(got))
	}
}

func TestActions_MarkReadEmptyIsNoOp(t *testing.T) {
	store := openTestStore(t)

	n, err := store.MarkActionsRead(context.Background(), nil)
	if err != nil {
		t.Fatalf("mark read with no ids: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 affected, got %d", n)
	}
}

func TestActions_MarkReadAndUnreadCount(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a1 := insertTestAction(t, store, "user-1", persistence.ActorAgent)
	insertTestAction(t, store, "user-1", persistence.ActorAgent)
	insertTestAction(t, store, "user-1", persistence.ActorUser) // hidden from the viewer

	count, err := store.CountUnreadActions(ctx, "user-1")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unread, got %d", count)
	}

	n, err := store.MarkActionsRead(ctx, []string{a1.ID, "missing-id"})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 affected, got %d", n)
	}

	count, err = store.CountUnreadActions(ctx, "user-1")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unread after mark, got %d", count)
	}
}

func TestActions_MarkAllReadRespectsVisibility(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	insertTestAction(t, store, "user-1", persistence.ActorAgent)
	ownAction := insertTestAction(t, store, "user-1", persistence.ActorUser)

	n, err := store.MarkAllActionsRead(ctx, "user-1")
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 affected, got %d", n)
	}

	// The viewer's own direct action is outside their feed and stays unread.
	got, err := store.GetAction(ctx, ownAction.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if got.IsRead {
		t.Fatal("own user action should not be marked read by mark-all")
	}
}

func TestActions_PruneKeepsUnread(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	read := insertTestAction(t, store, "user-1", persistence.ActorAgent)
	insertTestAction(t, store, "user-1", persistence.ActorAgent)
	if _, err := store.MarkActionsRead(ctx, []string{read.ID}); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	n, err := store.PruneReadActions(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}

	remaining, err := store.ListActions(ctx, persistence.ActionFilter{})
	if err != nil {
		t.Fatalf("list remaining: %v", err)
	}
	if len(remaining) != 1 || remaining[0].IsRead {
		t.Fatalf("expected one unread row to survive, got %+v", remaining)
	}
}
