package domain

import (
	"context"
	"fmt"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/persistence"
)

type TaskService struct {
	store    *persistence.Store
	recorder Recorder
}

// CommentInput is one submitted comment in a task update. An ID the store
// does not know (or no ID at all) marks a new comment.
type CommentInput struct {
	ID      string `json:"id,omitempty"`
	Content string `json:"content"`
}

func (s *TaskService) List(ctx context.Context, p *auth.Principal, f persistence.TaskFilter) ([]persistence.Task, error) {
	f.UserID = p.User.ID
	return s.store.ListTasks(ctx, f)
}

func (s *TaskService) Get(ctx context.Context, p *auth.Principal, id string) (*persistence.Task, error) {
	return s.owned(ctx, p, id)
}

func (s *TaskService) Create(ctx context.Context, p *auth.Principal, in persistence.NewTask) (*persistence.Task, error) {
	in.UserID = p.User.ID
	task, err := s.store.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   task.ID,
		EntityType: persistence.EntityTask,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionCreate,
		Changes:    map[string]any{"title": task.Title},
		Metadata:   actionMeta(p, "title", task.Title),
	})
	return task, nil
}

// Update applies the submitted field diff and records one action. A
// submitted completed flag relabels the record complete/uncomplete. The
// record's changes hold exactly the submitted diff; its metadata title is
// re-read from the entity after the write.
func (s *TaskService) Update(ctx context.Context, p *auth.Principal, id string, fields map[string]any) (*persistence.Task, error) {
	if _, err := s.owned(ctx, p, id); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return s.store.GetTask(ctx, id)
	}
	task, err := s.store.UpdateTask(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   task.ID,
		EntityType: persistence.EntityTask,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: mutationKind(fields),
		Changes:    fields,
		Metadata:   actionMeta(p, "title", task.Title),
	})
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	task, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   task.ID,
		EntityType: persistence.EntityTask,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionDelete,
		Metadata:   actionMeta(p, "title", task.Title),
	})
	return nil
}

// AddComment appends one comment and records one update action carrying
// the new comment's id.
func (s *TaskService) AddComment(ctx context.Context, p *auth.Principal, taskID, content string) (*persistence.Comment, error) {
	task, err := s.owned(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	comment, err := s.store.CreateComment(ctx, taskID, content)
	if err != nil {
		return nil, err
	}
	s.recordCommentAdded(ctx, p, task, comment.ID)
	return comment, nil
}

// SyncComments reconciles a task's comments against the submitted list by
// set difference on IDs. Existing comments missing from the submission are
// deleted silently; each submitted comment whose ID is absent from the
// existing set (including no ID at all) is inserted and records one update
// action. Edits to existing comment content are not supported.
func (s *TaskService) SyncComments(ctx context.Context, p *auth.Principal, taskID string, submitted []CommentInput) ([]persistence.Comment, error) {
	task, err := s.owned(ctx, p, taskID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	existingIDs := make(map[string]bool, len(existing))
	for _, c := range existing {
		existingIDs[c.ID] = true
	}

	keep := make(map[string]bool, len(submitted))
	for _, c := range submitted {
		if c.ID != "" {
			keep[c.ID] = true
		}
	}
	for _, c := range existing {
		if !keep[c.ID] {
			if err := s.store.DeleteComment(ctx, c.ID); err != nil {
				return nil, fmt.Errorf("remove comment %s: %w", c.ID, err)
			}
		}
	}

	for _, c := range submitted {
		if existingIDs[c.ID] {
			continue
		}
		created, err := s.store.CreateComment(ctx, taskID, c.Content)
		if err != nil {
			return nil, fmt.Errorf("add comment: %w", err)
		}
		s.recordCommentAdded(ctx, p, task, created.ID)
	}

	return s.store.ListComments(ctx, taskID)
}

func (s *TaskService) recordCommentAdded(ctx context.Context, p *auth.Principal, task *persistence.Task, commentID string) {
	meta := actionMeta(p, "title", task.Title)
	meta["commentId"] = commentID
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   task.ID,
		EntityType: persistence.EntityTask,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionUpdate,
		Changes:    map[string]any{"comments": "added"},
		Metadata:   meta,
	})
}

// owned loads the task and hides it from non-owners.
func (s *TaskService) owned(ctx context.Context, p *auth.Principal, id string) (*persistence.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != p.User.ID {
		return nil, fmt.Errorf("task %s: %w", id, persistence.ErrNotFound)
	}
	return task, nil
}
