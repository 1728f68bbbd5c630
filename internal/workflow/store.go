package workflow

import "time"

// ProjectRecord is the bookkeeping row for a project. The filesystem store
// remains the durable artifact record; these rows back listings and metrics.
type ProjectRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageRunRecord tracks one execution of a stage.
type StageRunRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	StageID   int       `json:"stage_id"`
	Status    string    `json:"status"` // running, completed, failed
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// MetricsEntry is a single agent-invocation metrics row.
type MetricsEntry struct {
	Timestamp  time.Time    `json:"timestamp"`
	ProjectID  string       `json:"project_id"`
	StageID    int          `json:"stage_id"`
	Agent      string       `json:"agent"`
	Status     ResultStatus `json:"status"`
	DurationMS int64        `json:"duration_ms"`
}

// RunStore is the subset of the persistence layer the manager needs (avoids
// an import cycle with the store package). A nil RunStore disables
// bookkeeping without affecting workflow semantics.
type RunStore interface {
	CreateProject(rec ProjectRecord) error
	TouchProject(id string) error
	ListProjects() ([]ProjectRecord, error)

	CreateStageRun(rec StageRunRecord) error
	FinishStageRun(id string, status string, errMsg string) error
	ListStageRuns(projectID string) ([]StageRunRecord, error)

	RecordMetric(entry MetricsEntry) error
}
