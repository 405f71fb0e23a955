package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/focusapp/focus/internal/auth"
	"github.com/focusapp/focus/internal/domain"
	"github.com/focusapp/focus/internal/ledger"
	"github.com/focusapp/focus/internal/otel"
	"github.com/focusapp/focus/internal/persistence"
	"github.com/focusapp/focus/internal/shared"
)

type toolHandler func(ctx context.Context, p *auth.Principal, args map[string]any) (any, error)

type tool struct {
	name        string
	description string
	rawSchema   json.RawMessage
	compiled    *jsonschema.Schema
	handler     toolHandler
}

// Registry holds the focus_* tools with their compiled input schemas and
// dispatches tools/call requests.
type Registry struct {
	services *domain.Services
	feed     *ledger.Feed
	logger   *slog.Logger
	metrics  *otel.Metrics
	tools    map[string]*tool
	order    []string
}

func NewRegistry(services *domain.Services, feed *ledger.Feed, logger *slog.Logger, metrics *otel.Metrics) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		services: services,
		feed:     feed,
		logger:   logger,
		metrics:  metrics,
		tools:    make(map[string]*tool),
	}

	specs := []struct {
		name        string
		description string
		schema      string
		handler     toolHandler
	}{
		{"focus_list_tasks", "List the user's tasks, optionally filtered by project, goal, status, completion, or a search string.", schemaListTasks, r.listTasks},
		{"focus_create_task", "Create a task. Only a title is required.", schemaCreateTask, r.createTask},
		{"focus_update_task", "Update task fields and/or replace its comment list. Only submitted fields change.", schemaUpdateTask, r.updateTask},
		{"focus_delete_task", "Delete a task and its comments.", schemaDeleteTask, r.deleteTask},
		{"focus_add_task_comment", "Append one comment to a task.", schemaAddTaskComment, r.addTaskComment},
		{"focus_list_projects", "List the user's projects.", schemaListProjects, r.listProjects},
		{"focus_create_project", "Create a project.", schemaCreateProject, r.createProject},
		{"focus_update_project", "Update project fields. Only submitted fields change.", schemaUpdateProject, r.updateProject},
		{"focus_delete_project", "Delete a project. Its tasks survive without a project.", schemaDeleteProject, r.deleteProject},
		{"focus_list_goals", "List the user's goals.", schemaListGoals, r.listGoals},
		{"focus_create_goal", "Create a goal.", schemaCreateGoal, r.createGoal},
		{"focus_update_goal", "Update goal fields. Only submitted fields change.", schemaUpdateGoal, r.updateGoal},
		{"focus_delete_goal", "Delete a goal. Its tasks survive without a goal.", schemaDeleteGoal, r.deleteGoal},
		{"focus_list_actions", "List the activity feed, newest first. The caller's own direct actions are hidden unless include_own is set.", schemaListActions, r.listActions},
		{"focus_mark_actions_read", "Mark feed actions as read by id, or all of them.", schemaMarkActionsRead, r.markActionsRead},
	}

	for _, s := range specs {
		compiled, err := compileSchema(s.name, s.schema)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", s.name, err)
		}
		t := &tool{
			name:        s.name,
			description: s.description,
			rawSchema:   json.RawMessage(s.schema),
			compiled:    compiled,
			handler:     s.handler,
		}
		r.tools[t.name] = t
		r.order = append(r.order, t.name)
	}
	return r, nil
}

func compileSchema(name, schemaJSON string) (*jsonschema.Schema, error) {
	// jsonschema.UnmarshalJSON keeps numbers as json.Number, which the
	// validator requires.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema JSON: %w", err)
	}
	c := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resource)
}

// Descriptors returns tools/list entries in registration order.
func (r *Registry) Descriptors() []toolDescriptor {
	out := make([]toolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, toolDescriptor{
			Name:        t.name,
			Description: t.description,
			InputSchema: t.rawSchema,
		})
	}
	return out
}

// Call validates the arguments and runs the tool. Validation and domain
// failures come back as error envelopes inside the result, not JSON-RPC
// errors; only an unknown tool name is a protocol-level error.
func (r *Registry) Call(ctx context.Context, name string, rawArgs json.RawMessage) (*callToolResult, *rpcError) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &rpcError{Code: ErrCodeInvalidParams, Message: "unknown tool: " + name}
	}

	ctx, span := otel.StartSpan(ctx, otelapi.Tracer(otel.TracerName), "tools/call",
		otel.AttrToolName.String(name),
		otel.AttrSessionID.String(shared.MCPSessionID(ctx)))
	defer span.End()

	start := time.Now()
	result := r.run(ctx, t, rawArgs)
	if r.metrics != nil {
		r.metrics.ToolCallDuration.Record(ctx, time.Since(start).Seconds())
		if result.IsError {
			r.metrics.ToolCallErrors.Add(ctx, 1)
		}
	}
	return result, nil
}

func (r *Registry) run(ctx context.Context, t *tool, rawArgs json.RawMessage) (result *callToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool call panicked", "tool", t.name, "panic", rec)
			result = errorResult("internal_error", fmt.Sprintf("tool %s failed", t.name))
		}
	}()

	if len(rawArgs) == 0 {
		rawArgs = json.RawMessage("{}")
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(rawArgs)))
	if err != nil {
		return errorResult("invalid_arguments", "arguments are not valid JSON")
	}
	if err := t.compiled.Validate(doc); err != nil {
		return errorResult("invalid_arguments", err.Error())
	}
	args, _ := doc.(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	p := auth.PrincipalFromContext(ctx)
	if p == nil {
		return errorResult("unauthorized", "no resolved actor")
	}
	trace.SpanFromContext(ctx).SetAttributes(
		otel.AttrUserID.String(p.User.ID),
		otel.AttrActorKind.String(string(p.ActorKind)))

	data, err := t.handler(ctx, p, args)
	if err != nil {
		r.logger.Warn("tool call failed", "tool", t.name, "session_id", shared.MCPSessionID(ctx), "error", err)
		return errorResult(errorCode(err), err.Error())
	}
	return successResult(data)
}

func errorCode(err error) string {
	if strings.Contains(err.Error(), "not found") {
		return "not_found"
	}
	return "operation_failed"
}

func successResult(data any) *callToolResult {
	body, err := json.Marshal(map[string]any{"success": true, "data": data})
	if err != nil {
		return errorResult("internal_error", "unserializable result")
	}
	return &callToolResult{Content: []contentBlock{{Type: "text", Text: string(body)}}}
}

func errorResult(code, message string) *callToolResult {
	body, _ := json.Marshal(map[string]any{"success": false, "error": code, "message": message})
	return &callToolResult{
		Content: []contentBlock{{Type: "text", Text: string(body)}},
		IsError: true,
	}
}

// Argument helpers. Values come from jsonschema.UnmarshalJSON, so numbers
// are json.Number.

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) (bool, bool) {
	b, ok := args[key].(bool)
	return b, ok
}

func intArg(args map[string]any, key string) (int, bool) {
	n, ok := args[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// parseDate accepts RFC 3339 or a bare date.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func (r *Registry) listTasks(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	f := persistence.TaskFilter{
		ProjectID: strArg(args, "project_id"),
		GoalID:    strArg(args, "goal_id"),
		Status:    persistence.TaskStatus(strArg(args, "status")),
		Search:    strArg(args, "search"),
	}
	if b, ok := boolArg(args, "completed"); ok {
		f.Completed = &b
	}
	if n, ok := intArg(args, "limit"); ok {
		f.Limit = n
	}
	tasks, err := r.services.Tasks.List(ctx, p, f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": tasks, "count": len(tasks)}, nil
}

func (r *Registry) createTask(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	in := persistence.NewTask{
		Title:       strArg(args, "title"),
		Description: strArg(args, "description"),
		Status:      persistence.TaskStatus(strArg(args, "status")),
		Priority:    persistence.Priority(strArg(args, "priority")),
		ProjectID:   strArg(args, "project_id"),
		GoalID:      strArg(args, "goal_id"),
	}
	if s := strArg(args, "due_date"); s != "" {
		due, err := parseDate(s)
		if err != nil {
			return nil, err
		}
		in.DueDate = &due
	}
	return r.services.Tasks.Create(ctx, p, in)
}

// updatableTaskFields lists the scalar keys forwarded verbatim into the
// update diff.
var updatableTaskFields = []string{"title", "description", "status", "priority", "due_date", "project_id", "goal_id"}

func (r *Registry) updateTask(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	id := strArg(args, "id")

	fields := map[string]any{}
	for _, key := range updatableTaskFields {
		if v, ok := args[key]; ok {
			fields[key] = v
		}
	}
	if b, ok := boolArg(args, "completed"); ok {
		fields["completed"] = b
	}

	task, err := r.services.Tasks.Update(ctx, p, id, fields)
	if err != nil {
		return nil, err
	}

	raw, ok := args["comments"]
	if !ok {
		return task, nil
	}
	submitted, err := parseCommentInputs(raw)
	if err != nil {
		return nil, err
	}
	comments, err := r.services.Tasks.SyncComments(ctx, p, id, submitted)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": task, "comments": comments}, nil
}

func parseCommentInputs(raw any) ([]domain.CommentInput, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("comments must be an array")
	}
	out := make([]domain.CommentInput, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("comments entries must be objects")
		}
		out = append(out, domain.CommentInput{
			ID:      strArg(m, "id"),
			Content: strArg(m, "content"),
		})
	}
	return out, nil
}

func (r *Registry) deleteTask(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	id := strArg(args, "id")
	if err := r.services.Tasks.Delete(ctx, p, id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "id": id}, nil
}

func (r *Registry) addTaskComment(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	return r.services.Tasks.AddComment(ctx, p, strArg(args, "task_id"), strArg(args, "content"))
}

func (r *Registry) listProjects(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	includeArchived, _ := boolArg(args, "include_archived")
	projects, err := r.services.Projects.List(ctx, p, includeArchived)
	if err != nil {
		return nil, err
	}
	return map[string]any{"projects": projects, "count": len(projects)}, nil
}

func (r *Registry) createProject(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	return r.services.Projects.Create(ctx, p, strArg(args, "name"), strArg(args, "color"))
}

func (r *Registry) updateProject(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	fields := map[string]any{}
	for _, key := range []string{"name", "color"} {
		if v, ok := args[key]; ok {
			fields[key] = v
		}
	}
	if b, ok := boolArg(args, "archived"); ok {
		fields["archived"] = b
	}
	return r.services.Projects.Update(ctx, p, strArg(args, "id"), fields)
}

func (r *Registry) deleteProject(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	id := strArg(args, "id")
	if err := r.services.Projects.Delete(ctx, p, id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "id": id}, nil
}

func (r *Registry) listGoals(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	goals, err := r.services.Goals.List(ctx, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"goals": goals, "count": len(goals)}, nil
}

func (r *Registry) createGoal(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	var target *time.Time
	if s := strArg(args, "target_date"); s != "" {
		parsed, err := parseDate(s)
		if err != nil {
			return nil, err
		}
		target = &parsed
	}
	return r.services.Goals.Create(ctx, p, strArg(args, "title"), target)
}

func (r *Registry) updateGoal(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	fields := map[string]any{}
	for _, key := range []string{"title", "target_date"} {
		if v, ok := args[key]; ok {
			fields[key] = v
		}
	}
	if b, ok := boolArg(args, "completed"); ok {
		fields["completed"] = b
	}
	return r.services.Goals.Update(ctx, p, strArg(args, "id"), fields)
}

func (r *Registry) deleteGoal(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	id := strArg(args, "id")
	if err := r.services.Goals.Delete(ctx, p, id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "id": id}, nil
}

func (r *Registry) listActions(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	f := persistence.ActionFilter{
		ViewerUserID: p.User.ID,
		EntityType:   persistence.EntityType(strArg(args, "entity_type")),
		EntityID:     strArg(args, "entity_id"),
		ActorKind:    persistence.ActorKind(strArg(args, "actor_kind")),
	}
	if b, ok := boolArg(args, "include_own"); ok {
		f.IncludeOwn = b
	}
	if b, ok := boolArg(args, "is_read"); ok {
		f.IsRead = &b
	}
	if n, ok := intArg(args, "limit"); ok {
		f.Limit = n
	}
	actions, err := r.feed.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return map[string]any{"actions": actions, "count": len(actions)}, nil
}

func (r *Registry) markActionsRead(ctx context.Context, p *auth.Principal, args map[string]any) (any, error) {
	if all, _ := boolArg(args, "all"); all {
		n, err := r.feed.MarkAllRead(ctx, p.User.ID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"marked": n}, nil
	}

	var ids []string
	if raw, ok := args["ids"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	n, err := r.feed.MarkRead(ctx, ids)
	if err != nil {
		return nil, err
	}
	return map[string]any{"marked": n}, nil
}
