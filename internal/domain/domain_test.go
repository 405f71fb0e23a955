package domain_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/domain"
	"github.com/focusapp/focus/internal/ledger"
	"github.com/focusapp/focus/internal/persistence"
)

// captureRecorder records synchronously so tests can assert on exact
// ledger emissions without draining a queue.
type captureRecorder struct {
	mu      sync.Mutex
	records []persistence.NewAction
}

func (c *captureRecorder) Record(ctx context.Context, n persistence.NewAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, n)
}

func (c *captureRecorder) all() []persistence.NewAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]persistence.NewAction(nil), c.records...)
}

func newTestServices(t *testing.T) (*domain.Services, *captureRecorder, *persistence.Store) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "focus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	rec := &captureRecorder{}
	return domain.NewServices(store, rec), rec, store
}

func userPrincipal(t *testing.T, store *persistence.Store, email string) *auth.Principal {
	t.Helper()
	u, err := store.CreateUser(context.Background(), email, "Someone")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &auth.Principal{User: u, ActorKind: auth.ActorUser}
}

func agentPrincipal(p *auth.Principal, label string) *auth.Principal {
	return &auth.Principal{User: p.User, ActorKind: auth.ActorAgent, TokenLabel: label}
}

func TestTaskCreate_RecordsOneCreateAction(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, p, persistence.NewTask{Title: "Plan trip"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	records := rec.all()
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
	r := records[0]
	if r.ActionKind != persistence.ActionCreate || r.EntityID != task.ID {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.Changes["title"] != "Plan trip" {
		t.Fatalf("create changes must hold the defining field, got %v", r.Changes)
	}
	if r.ActorID != p.User.ID || r.ActorKind != persistence.ActorUser {
		t.Fatalf("unexpected actor: %+v", r)
	}
}

func TestTaskCreate_SucceedsWhenRecorderClosed(t *testing.T) {
	store, err := persistence.Open(filepath.Join(t.TempDir(), "focus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	recorder := ledger.NewRecorder(store, 4, nil, nil)
	recorder.Close()
	svc := domain.NewServices(store, recorder)

	p := userPrincipal(t, store, "a@example.com")
	task, err := svc.Tasks.Create(context.Background(), p, persistence.NewTask{Title: "Plan trip"})
	if err != nil {
		t.Fatalf("create must survive a dead recorder: %v", err)
	}
	if _, err := store.GetTask(context.Background(), task.ID); err != nil {
		t.Fatalf("task must be persisted: %v", err)
	}
}

func TestTaskUpdate_RecordsSubmittedDiff(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, p, persistence.NewTask{Title: "Plan trip"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	fields := map[string]any{"priority": "p1", "status": "in_progress"}
	if _, err := svc.Tasks.Update(ctx, p, task.ID, fields); err != nil {
		t.Fatalf("update: %v", err)
	}

	records := rec.all()
	if len(records) != 2 {
		t.Fatalf("expected create + update records, got %d", len(records))
	}
	r := records[1]
	if r.ActionKind != persistence.ActionUpdate {
		t.Fatalf("expected update kind, got %q", r.ActionKind)
	}
	if r.Changes["priority"] != "p1" || r.Changes["status"] != "in_progress" {
		t.Fatalf("changes must equal the submitted diff, got %v", r.Changes)
	}
}

func TestTaskUpdate_CompletionRelabel(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, p, persistence.NewTask{Title: "Finish"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Tasks.Update(ctx, p, task.ID, map[string]any{"completed": true}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := svc.Tasks.Update(ctx, p, task.ID, map[string]any{"completed": false}); err != nil {
		t.Fatalf("uncomplete: %v", err)
	}

	records := rec.all()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1].ActionKind != persistence.ActionComplete {
		t.Fatalf("completed=true must record complete, got %q", records[1].ActionKind)
	}
	if records[2].ActionKind != persistence.ActionUncomplete {
		t.Fatalf("completed=false must record uncomplete, got %q", records[2].ActionKind)
	}
}

func TestTaskUpdate_MetadataTitleReadAtLogTime(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, p, persistence.NewTask{Title: "Old name"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Tasks.Update(ctx, p, task.ID, map[string]any{"title": "New name"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	records := rec.all()
	meta := records[1].Metadata
	if meta["title"] != "New name" {
		t.Fatalf("metadata title must reflect the entity after the write, got %v", meta)
	}
}

func TestTaskDelete_RecordsMetadataOnly(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, p, persistence.NewTask{Title: "Doomed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Tasks.Delete(ctx, p, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	records := rec.all()
	r := records[1]
	if r.ActionKind != persistence.ActionDelete {
		t.Fatalf("expected delete kind, got %q", r.ActionKind)
	}
	if r.Changes != nil {
		t.Fatalf("delete must not carry changes, got %v", r.Changes)
	}
	if r.Metadata["title"] != "Doomed" {
		t.Fatalf("delete metadata must name the entity, got %v", r.Metadata)
	}
}

func TestAgentActions_CarryTokenName(t *testing.T) {
	svc, rec, store := newTestServices(t)
	human := userPrincipal(t, store, "a@example.com")
	agent := agentPrincipal(human, "laptop agent")
	ctx := context.Background()

	if _, err := svc.Tasks.Create(ctx, agent, persistence.NewTask{Title: "Agent made this"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	r := rec.all()[0]
	if r.ActorKind != persistence.ActorAgent {
		t.Fatalf("expected agent actor kind, got %q", r.ActorKind)
	}
	if r.ActorID != human.User.ID {
		t.Fatal("agent actions must attribute to the owning user")
	}
	if r.Metadata["tokenName"] != "laptop agent" {
		t.Fatalf("agent metadata must carry token name, got %v", r.Metadata)
	}
}

func TestUserActions_OmitTokenName(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")

	if _, err := svc.Tasks.Create(context.Background(), p, persistence.NewTask{Title: "Direct"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := rec.all()[0].Metadata["tokenName"]; ok {
		t.Fatal("direct user actions must not carry a token name")
	}
}

func TestSyncComments_OneRecordPerAddedNoneForRemoved(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, p, persistence.NewTask{Title: "Discuss"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	existing, err := svc.Tasks.AddComment(ctx, p, task.ID, "keep me")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	doomed, err := svc.Tasks.AddComment(ctx, p, task.ID, "remove me")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	before := len(rec.all()) // create + 2 comment adds

	// Keep one, drop one, add two.
	submitted := []domain.CommentInput{
		{ID: existing.ID, Content: "keep me"},
		{Content: "new one"},
		{Content: "new two"},
	}
	comments, err := svc.Tasks.SyncComments(ctx, p, task.ID, submitted)
	if err != nil {
		t.Fatalf("sync comments: %v", err)
	}
	if len(comments) != 3 {
		t.Fatalf("expected 3 comments after sync, got %d", len(comments))
	}
	for _, c := range comments {
		if c.ID == doomed.ID {
			t.Fatal("removed comment still present")
		}
	}

	records := rec.all()[before:]
	if len(records) != 2 {
		t.Fatalf("expected one record per added comment and none for removal, got %d", len(records))
	}
	for _, r := range records {
		if r.ActionKind != persistence.ActionUpdate {
			t.Fatalf("comment additions record as update, got %q", r.ActionKind)
		}
		if r.Changes["comments"] != "added" {
			t.Fatalf("unexpected changes: %v", r.Changes)
		}
		if r.Metadata["commentId"] == "" {
			t.Fatalf("comment record must carry the comment id: %v", r.Metadata)
		}
	}
}

func TestSyncComments_UnknownIDInsertsAndRecords(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, p, persistence.NewTask{Title: "Discuss"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	existing, err := svc.Tasks.AddComment(ctx, p, task.ID, "keep me")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	before := len(rec.all())

	// A client-generated ID the store has never seen counts as new.
	submitted := []domain.CommentInput{
		{ID: existing.ID, Content: "keep me"},
		{ID: "client-made-id", Content: "fresh"},
	}
	comments, err := svc.Tasks.SyncComments(ctx, p, task.ID, submitted)
	if err != nil {
		t.Fatalf("sync comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected the kept and the inserted comment, got %d", len(comments))
	}
	found := false
	for _, c := range comments {
		if c.Content == "fresh" {
			found = true
		}
	}
	if !found {
		t.Fatal("comment with unknown id was not inserted")
	}

	records := rec.all()[before:]
	if len(records) != 1 {
		t.Fatalf("expected one record for the inserted comment, got %d", len(records))
	}
	if records[0].Changes["comments"] != "added" {
		t.Fatalf("unexpected changes: %v", records[0].Changes)
	}
}

func TestUpdate_OtherUsersEntityHidden(t *testing.T) {
	svc, _, store := newTestServices(t)
	owner := userPrincipal(t, store, "owner@example.com")
	stranger := userPrincipal(t, store, "stranger@example.com")
	ctx := context.Background()

	task, err := svc.Tasks.Create(ctx, owner, persistence.NewTask{Title: "Private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Tasks.Update(ctx, stranger, task.ID, map[string]any{"title": "Hijack"}); err == nil {
		t.Fatal("expected error mutating another user's task")
	}
}

func TestProjectAndGoal_MutationRecords(t *testing.T) {
	svc, rec, store := newTestServices(t)
	p := userPrincipal(t, store, "a@example.com")
	ctx := context.Background()

	project, err := svc.Projects.Create(ctx, p, "Home", "#00ff00")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := svc.Projects.Update(ctx, p, project.ID, map[string]any{"archived": true}); err != nil {
		t.Fatalf("update project: %v", err)
	}
	goal, err := svc.Goals.Create(ctx, p, "Read 12 books", nil)
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if _, err := svc.Goals.Update(ctx, p, goal.ID, map[string]any{"completed": true}); err != nil {
		t.Fatalf("complete goal: %v", err)
	}

	records := rec.all()
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if records[0].Changes["name"] != "Home" {
		t.Fatalf("project create must log its name, got %v", records[0].Changes)
	}
	if records[1].EntityType != persistence.EntityProject || records[1].ActionKind != persistence.ActionUpdate {
		t.Fatalf("unexpected project update record: %+v", records[1])
	}
	if records[3].ActionKind != persistence.ActionComplete {
		t.Fatalf("goal completion must relabel complete, got %q", records[3].ActionKind)
	}

	// Records survive a JSON round trip the way the store persists them.
	b, err := json.Marshal(records[3].Changes)
	if err != nil {
		t.Fatalf("marshal changes: %v", err)
	}
	if string(b) != `{"completed":true}` {
		t.Fatalf("unexpected serialized changes: %s", b)
	}
}
