// Package domain holds the task, project, and goal services. Every
// successful mutation emits exactly one action record; completion toggles
// are relabelled complete/uncomplete, and entity names in record metadata
// are re-read at log time so the feed always shows current names.
package domain

import (
	"context"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/persistence"
)

// Recorder is the write side of the action ledger. Record must not block
// or fail the calling mutation.
type Recorder interface {
	Record(ctx context.Context, n persistence.NewAction)
}

// Services bundles the three entity services over one store and recorder.
type Services struct {
	Tasks    *TaskService
	Projects *ProjectService
	Goals    *GoalService
}

func NewServices(store *persistence.Store, recorder Recorder) *Services {
	return &Services{
		Tasks:    &TaskService{store: store, recorder: recorder},
		Projects: &ProjectService{store: store, recorder: recorder},
		Goals:    &GoalService{store: store, recorder: recorder},
	}
}

func actorKind(p *auth.Principal) persistence.ActorKind {
	switch p.ActorKind {
	case auth.ActorAgent:
		return persistence.ActorAgent
	case auth.ActorSystem:
		return persistence.ActorSystem
	default:
		return persistence.ActorUser
	}
}

// actionMeta builds record metadata: the entity's current display name
// under nameKey, plus the token label when an agent is acting.
func actionMeta(p *auth.Principal, nameKey, name string) map[string]any {
	m := map[string]any{nameKey: name}
	if p.ActorKind == auth.ActorAgent && p.TokenLabel != "" {
		m["tokenName"] = p.TokenLabel
	}
	return m
}

// mutationKind maps an update's submitted fields to its record verb. A
// submitted completed flag relabels the update as complete/uncomplete.
func mutationKind(fields map[string]any) persistence.ActionKind {
	completed, ok := fields["completed"]
	if !ok {
		return persistence.ActionUpdate
	}
	if b, ok := completed.(bool); ok && b {
		return persistence.ActionComplete
	}
	return persistence.ActionUncomplete
}
