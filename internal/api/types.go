package api

import "encoding/json"

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// HasMore reports whether items remain after this page.
func (p Page[T]) HasMore() bool {
	return p.Offset+len(p.Items) < p.Total
}

type Project struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type Agent struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Task statuses.
const (
	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

type Task struct {
	ID              int             `json:"id"`
	TaskID          string          `json:"task_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Status          string          `json:"status"`
	ProjectID       int             `json:"project_id"`
	AgentID         int             `json:"agent_id"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
	StartedAt       string          `json:"started_at,omitempty"`
	FinishedAt      string          `json:"finished_at,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	Progress        *float64        `json:"progress,omitempty"`
	Metadata        json.RawMessage `json:"task_metadata,omitempty"`
	Project         *Project        `json:"project,omitempty"`
	Agent           *Agent          `json:"agent,omitempty"`
}

// TaskFilter narrows Tasks. Zero fields are not sent.
type TaskFilter struct {
	Project string
	Status  string
	Limit   int
	Offset  int
}

type Setting struct {
	ID          int             `json:"id"`
	UserID      string          `json:"user_id"`
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
	IsGlobal    string          `json:"is_global,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
}

type settingUpdate struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}
