package workflow

import "context"

// ResultStatus tags the outcome of a single agent invocation.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
	StatusSkipped ResultStatus = "skipped"
)

// ArtifactRef points at an artifact a capability produced during a stage.
type ArtifactRef struct {
	Type string `json:"type"` // json, text, image, mesh
	Name string `json:"name"`
	Path string `json:"path"`
}

// AgentResult is one entry of a stage's result list. Agent failures are
// carried here as tagged values, never as errors thrown past the stage.
type AgentResult struct {
	Agent      string        `json:"agent"`
	Status     ResultStatus  `json:"status"`
	Artifacts  []ArtifactRef `json:"artifacts,omitempty"`
	Message    string        `json:"message,omitempty"`
	DurationMS int64         `json:"duration_ms"`
}

// ArtifactSink is the write surface a capability gets for its stage
// directory. Writes are full overwrites.
type ArtifactSink interface {
	WriteJSON(name string, v any) (path string, err error)
	WriteBytes(name string, data []byte) (path string, err error)
}

// Capability is the boundary to an agent implementation. Execute may be
// long-running (network-bound); the engine bounds it with a timeout and
// converts a returned error into a StatusError result.
type Capability interface {
	Name() string
	Execute(ctx context.Context, input map[string]any, sink ArtifactSink) (AgentResult, error)
}

// Registry resolves symbolic agent identifiers at stage-run time. An
// unresolved identifier is recorded as a skipped result, not a stage failure.
type Registry interface {
	Resolve(name string) (Capability, bool)
}

// StageRun holds the results of one executed stage.
type StageRun struct {
	StageID int           `json:"stage_id"`
	Name    string        `json:"name"`
	Results []AgentResult `json:"results"`
}

// RunOutcome describes everything a single RunStage or ApproveGate call
// executed, in order, and where the pipeline came to rest.
type RunOutcome struct {
	ProjectID   string     `json:"project_id"`
	Stages      []StageRun `json:"stages"`
	PendingGate string     `json:"pending_gate,omitempty"`
	Completed   bool       `json:"completed"`
}
