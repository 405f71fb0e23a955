package domain

import (
	"context"
	"fmt"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/persistence"
)

type ProjectService struct {
	store    *persistence.Store
	recorder Recorder
}

func (s *ProjectService) List(ctx context.Context, p *auth.Principal, includeArchived bool) ([]persistence.Project, error) {
	return s.store.ListProjects(ctx, p.User.ID, includeArchived)
}

func (s *ProjectService) Create(ctx context.Context, p *auth.Principal, name, color string) (*persistence.Project, error) {
	project, err := s.store.CreateProject(ctx, p.User.ID, name, color)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   project.ID,
		EntityType: persistence.EntityProject,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionCreate,
		Changes:    map[string]any{"name": project.Name},
		Metadata:   actionMeta(p, "name", project.Name),
	})
	return project, nil
}

func (s *ProjectService) Update(ctx context.Context, p *auth.Principal, id string, fields map[string]any) (*persistence.Project, error) {
	if _, err := s.owned(ctx, p, id); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return s.store.GetProject(ctx, id)
	}
	project, err := s.store.UpdateProject(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   project.ID,
		EntityType: persistence.EntityProject,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionUpdate,
		Changes:    fields,
		Metadata:   actionMeta(p, "name", project.Name),
	})
	return project, nil
}

func (s *ProjectService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	project, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.recorder.Record(ctx, persistence.NewAction{
		EntityID:   project.ID,
		EntityType: persistence.EntityProject,
		ActorID:    p.User.ID,
		ActorKind:  actorKind(p),
		ActionKind: persistence.ActionDelete,
		Metadata:   actionMeta(p, "name", project.Name),
	})
	return nil
}

func (s *ProjectService) owned(ctx context.Context, p *auth.Principal, id string) (*persistence.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.UserID != p.User.ID {
		return nil, fmt.Errorf("project %s: %w", id, persistence.ErrNotFound)
	}
	return project, nil
}
