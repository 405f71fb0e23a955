package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/persistence"
)

type GoalService struct {
	store    *persistence.Store
	recorder Recorder
}

func (s *GoalService) List(ctx context.Context, p *auth.Principal) ([]persistence.Goal, error) {
	return s.store.ListGoals(ctx, p.User.ID)
}

func (s *GoalService) Create(ctx context.Context, p *auth.Principal, title string, targetDate *time.Time) (*persistence.Goal, error) {
	goal, err := s.store.CreateGoal(ctx, p.User.ID, title, targetDate)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   goal.ID,
		EntityType: persistence.EntityGoal,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionCreate,
		Changes:    map[string]any{"title": goal.Title},
		Metadata:   actionMeta(p, "title", goal.Title),
	})
	return goal, nil
}

func (s *GoalService) Update(ctx context.Context, p *auth.Principal, id string, fields map[string]any) (*persistence.Goal, error) {
	if _, err := s.owned(ctx, p, id); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return s.store.GetGoal(ctx, id)
	}
	goal, err := s.store.UpdateGoal(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   goal.ID,
		EntityType: persistence.EntityGoal,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: mutationKind(fields),
		Changes:    fields,
		Metadata:   actionMeta(p, "title", goal.Title),
	})
	return goal, nil
}

func (s *GoalService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	goal, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteGoal(ctx, id); err != nil {
		return err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   goal.ID,
		EntityType: persistence.EntityGoal,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionDelete,
		Metadata:   actionMeta(p, "title", goal.Title),
	})
	return nil
}

func (s *GoalService) owned(ctx context.Context, p *auth.Principal, id string) (*persistence.Goal, error) {
	goal, err := s.store.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	if goal.UserID != p.User.ID {
		return nil, fmt.Errorf("goal %s: %w", id, persistence.ErrNotFound)
	}
	return goal, nil
}
