package mcp

// Input schemas for the focus_* tools. Enums mirror the persistence
// CHECK constraints so invalid values are rejected before they reach SQL.

const schemaListTasks = `{
	"type": "object",
	"properties": {
		"project_id": {"type": "string", "description": "Only tasks in this project"},
		"goal_id": {"type": "string", "description": "Only tasks linked to this goal"},
		"status": {"type": "string", "enum": ["todo", "in_progress", "review", "done"]},
		"completed": {"type": "boolean"},
		"search": {"type": "string", "description": "Substring match on title and description"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 200}
	},
	"additionalProperties": false
}`

const schemaCreateTask = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"status": {"type": "string", "enum": ["todo", "in_progress", "review", "done"]},
		"priority": {"type": "string", "enum": ["p1", "p2", "p3", "p4"]},
		"due_date": {"type": "string", "description": "RFC 3339 timestamp or YYYY-MM-DD"},
		"project_id": {"type": "string"},
		"goal_id": {"type": "string"}
	},
	"required": ["title"],
	"additionalProperties": false
}`

const schemaUpdateTask = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"status": {"type": "string", "enum": ["todo", "in_progress", "review", "done"]},
		"priority": {"type": "string", "enum": ["p1", "p2", "p3", "p4"]},
		"due_date": {"type": "string"},
		"project_id": {"type": "string"},
		"goal_id": {"type": "string"},
		"completed": {"type": "boolean"},
		"comments": {
			"type": "array",
			"description": "Full desired comment list; existing comments keep their id, new ones omit it",
			"items": {
				"type": "object",
				"properties": {
					"id": {"type": "string"},
					"content": {"type": "string", "minLength": 1}
				},
				"required": ["content"],
				"additionalProperties": false
			}
		}
	},
	"required": ["id"],
	"additionalProperties": false
}`

const schemaDeleteTask = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1}
	},
	"required": ["id"],
	"additionalProperties": false
}`

const schemaAddTaskComment = `{
	"type": "object",
	"properties": {
		"task_id": {"type": "string", "minLength": 1},
		"content": {"type": "string", "minLength": 1}
	},
	"required": ["task_id", "content"],
	"additionalProperties": false
}`

const schemaListProjects = `{
	"type": "object",
	"properties": {
		"include_archived": {"type": "boolean"}
	},
	"additionalProperties": false
}`

const schemaCreateProject = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"color": {"type": "string"}
	},
	"required": ["name"],
	"additionalProperties": false
}`

const schemaUpdateProject = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"color": {"type": "string"},
		"archived": {"type": "boolean"}
	},
	"required": ["id"],
	"additionalProperties": false
}`

const schemaDeleteProject = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1}
	},
	"required": ["id"],
	"additionalProperties": false
}`

const schemaListGoals = `{
	"type": "object",
	"properties": {},
	"additionalProperties": false
}`

const schemaCreateGoal = `{
	"type": "object",
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"target_date": {"type": "string", "description": "RFC 3339 timestamp or YYYY-MM-DD"}
	},
	"required": ["title"],
	"additionalProperties": false
}`

const schemaUpdateGoal = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"title": {"type": "string", "minLength": 1},
		"target_date": {"type": "string"},
		"completed": {"type": "boolean"}
	},
	"required": ["id"],
	"additionalProperties": false
}`

const schemaDeleteGoal = `{
	"type": "object",
	"properties": {
		"id": {"type": "string", "minLength": 1}
	},
	"required": ["id"],
	"additionalProperties": false
}`

const schemaListActions = `{
	"type": "object",
	"properties": {
		"entity_type": {"type": "string", "enum": ["task", "project", "goal"]},
		"entity_id": {"type": "string"},
		"actor_kind": {"type": "string", "enum": ["user", "agent", "system"]},
		"is_read": {"type": "boolean", "description": "Filter by read state; omit for both"},
		"include_own": {"type": "boolean", "description": "Include the caller's own direct actions"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 100}
	},
	"additionalProperties": false
}`

const schemaMarkActionsRead = `{
	"type": "object",
	"properties": {
		"ids": {
			"type": "array",
			"items": {"type": "string"}
		},
		"all": {"type": "boolean", "description": "Mark every unread action in the feed"}
	},
	"additionalProperties": false
}`
