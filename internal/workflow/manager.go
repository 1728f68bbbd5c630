// Package workflow drives the staged construction planning pipeline: a
// static stage graph with human-approval gates, filesystem artifact
// persistence, and input aggregation across stages.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/artifact"
)

// ErrProjectNotFound is returned for operations on unknown project ids.
var ErrProjectNotFound = errors.New("project not found")

// Options tune manager behavior.
type Options struct {
	// AgentTimeout bounds each capability call; expiry is an agent failure.
	AgentTimeout time.Duration
	// AutoApproveGates resolves every gate with a system record instead of
	// pausing, running the pipeline end to end in one call.
	AutoApproveGates bool
}

// Manager owns end-to-end project progression. Mutations on one project are
// serialized by a per-project lock; independent projects run concurrently.
type Manager struct {
	graph     *Graph
	registry  Registry
	artifacts *artifact.Store
	runs      RunStore // may be nil
	events    *EventBus
	metrics   *MetricsCollector
	logger    *slog.Logger
	opts      Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wires the engine together. The registry is constructed once at
// process start and passed in; there is no ambient agent state.
func NewManager(graph *Graph, registry Registry, artifacts *artifact.Store, runs RunStore, events *EventBus, logger *slog.Logger, opts Options) *Manager {
	if events == nil {
		events = NewEventBus()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 2 * time.Minute
	}
	return &Manager{
		graph:     graph,
		registry:  registry,
		artifacts: artifacts,
		runs:      runs,
		events:    events,
		metrics:   NewMetricsCollector(runs, events),
		logger:    logger,
		opts:      opts,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Graph exposes the static stage graph.
func (m *Manager) Graph() *Graph { return m.graph }

// Events exposes the engine's event bus.
func (m *Manager) Events() *EventBus { return m.events }

// Metrics exposes the engine's metrics collector.
func (m *Manager) Metrics() *MetricsCollector { return m.metrics }

// Artifacts exposes the filesystem artifact store.
func (m *Manager) Artifacts() *artifact.Store { return m.artifacts }

func (m *Manager) projectLock(projectID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[projectID]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[projectID] = lk
	}
	return lk
}

// CreateProject registers a new project, persists its intake payload, and
// runs stage 1.
func (m *Manager) CreateProject(ctx context.Context, name string, initial map[string]any) (string, *RunOutcome, error) {
	projectID := uuid.New().String()
	if err := m.artifacts.InitProject(projectID, m.graph.StageIDs()); err != nil {
		return "", nil, err
	}
	if initial == nil {
		initial = map[string]any{}
	}
	if err := m.artifacts.WriteInitialData(projectID, initial); err != nil {
		return "", nil, err
	}
	if m.runs != nil {
		now := time.Now().UTC()
		if err := m.runs.CreateProject(ProjectRecord{ID: projectID, Name: name, CreatedAt: now, UpdatedAt: now}); err != nil {
			m.logger.Warn("recording project failed", "project", projectID, "error", err)
		}
	}
	m.events.Publish(Event{Type: EventProjectCreated, ProjectID: projectID, Data: map[string]string{"name": name}})

	outcome, err := m.RunStage(ctx, projectID, 1)
	if err != nil {
		return projectID, nil, err
	}
	return projectID, outcome, nil
}

// RunStage executes the given stage and keeps advancing until a gate blocks
// or the last stage finishes. Advancement is synchronous; depth is bounded by
// the number of declared stages.
func (m *Manager) RunStage(ctx context.Context, projectID string, stageID int) (*RunOutcome, error) {
	if _, err := m.graph.Stage(stageID); err != nil {
		return nil, err
	}
	if !m.artifacts.ProjectExists(projectID) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrProjectNotFound)
	}
	lk := m.projectLock(projectID)
	lk.Lock()
	defer lk.Unlock()
	return m.advance(ctx, projectID, stageID)
}

// ApproveGate records a human approval for a gate and synchronously resumes
// the pipeline at the stage after the gate. A single call does both. The
// terminal gate reports completion instead of advancing.
func (m *Manager) ApproveGate(ctx context.Context, projectID, gateID string, rec ApprovalRecord) (*RunOutcome, error) {
	gt, err := m.graph.Gate(gateID)
	if err != nil {
		return nil, err
	}
	if !m.artifacts.ProjectExists(projectID) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrProjectNotFound)
	}
	lk := m.projectLock(projectID)
	lk.Lock()
	defer lk.Unlock()

	if err := m.recordApproval(projectID, gt, rec); err != nil {
		return nil, err
	}
	m.logger.Info("gate resolved", "project", projectID, "gate", gateID, "approved", rec.Approved, "by", rec.ApprovedBy)

	next, ok := m.graph.NextStageAfterGate(gt)
	if !ok {
		m.events.Publish(Event{Type: EventWorkflowCompleted, ProjectID: projectID})
		m.logger.Info("final gate resolved, workflow complete", "project", projectID)
		return &RunOutcome{ProjectID: projectID, Completed: true}, nil
	}
	return m.advance(ctx, projectID, next)
}

// advance runs stages from stageID until a gate blocks or the graph ends.
// The caller must hold the project lock.
func (m *Manager) advance(ctx context.Context, projectID string, stageID int) (*RunOutcome, error) {
	outcome := &RunOutcome{ProjectID: projectID}
	for sid := stageID; ; {
		st, err := m.graph.Stage(sid)
		if err != nil {
			return nil, err
		}
		run, err := m.executeStage(ctx, projectID, st)
		if err != nil {
			return nil, err
		}
		outcome.Stages = append(outcome.Stages, run)

		if st.GateAfter != "" {
			gt, err := m.graph.Gate(st.GateAfter)
			if err != nil {
				return nil, err
			}
			if !m.opts.AutoApproveGates {
				outcome.PendingGate = gt.ID
				m.events.Publish(Event{
					Type:      EventGatePending,
					ProjectID: projectID,
					Data:      map[string]any{"gate": gt.ID, "stage_before": gt.StageBefore},
				})
				m.logger.Info("awaiting gate approval", "project", projectID, "gate", gt.ID)
				return outcome, nil
			}
			rec := ApprovalRecord{ApprovedBy: "system", Comments: "Auto-approved for continuous workflow", Approved: true}
			if err := m.recordApproval(projectID, gt, rec); err != nil {
				return nil, err
			}
			next, ok := m.graph.NextStageAfterGate(gt)
			if !ok {
				outcome.Completed = true
				m.events.Publish(Event{Type: EventWorkflowCompleted, ProjectID: projectID})
				return outcome, nil
			}
			sid = next
			continue
		}

		if sid >= m.graph.LastStage() {
			outcome.Completed = true
			m.events.Publish(Event{Type: EventWorkflowCompleted, ProjectID: projectID})
			m.logger.Info("workflow complete", "project", projectID)
			return outcome, nil
		}
		sid++
	}
}

// executeStage runs a stage's agents sequentially. Each agent sees the
// results of the agents that already ran in this stage under the
// stage_results key. Agent failures are captured as tagged results and never
// abort the remaining agents.
func (m *Manager) executeStage(ctx context.Context, projectID string, st Stage) (StageRun, error) {
	m.logger.Info("running stage", "project", projectID, "stage", st.ID, "name", st.Name)
	m.events.Publish(Event{
		Type:      EventStageStarted,
		ProjectID: projectID,
		Data:      map[string]any{"stage": st.ID, "name": st.Name, "agents": st.Agents},
	})

	runID := uuid.New().String()[:12]
	if m.runs != nil {
		now := time.Now().UTC()
		if err := m.runs.CreateStageRun(StageRunRecord{
			ID: runID, ProjectID: projectID, StageID: st.ID,
			Status: RunStatusRunning, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			m.logger.Warn("recording stage run failed", "project", projectID, "stage", st.ID, "error", err)
		}
	}

	start := time.Now()
	inputs := aggregateInputs(m.artifacts, m.logger, projectID, st.ID)
	sink := stageSink{dir: m.artifacts.Stage(projectID, st.ID)}

	run := StageRun{StageID: st.ID, Name: st.Name, Results: []AgentResult{}}
	for _, name := range st.Agents {
		run.Results = append(run.Results, m.runAgent(ctx, projectID, st, name, inputs, sink, run.Results))
	}

	elapsed := time.Since(start)
	m.metrics.RecordStage(st.Name, RunStatusCompleted, elapsed)
	if m.runs != nil {
		if err := m.runs.FinishStageRun(runID, RunStatusCompleted, ""); err != nil {
			m.logger.Warn("finishing stage run failed", "project", projectID, "stage", st.ID, "error", err)
		}
		if err := m.runs.TouchProject(projectID); err != nil {
			m.logger.Warn("touching project failed", "project", projectID, "error", err)
		}
	}
	m.events.Publish(Event{
		Type:      EventStageCompleted,
		ProjectID: projectID,
		Data:      map[string]any{"stage": st.ID, "name": st.Name, "duration_ms": elapsed.Milliseconds()},
	})
	return run, nil
}

// runAgent invokes one capability with a bounded context and converts every
// failure mode into a tagged result.
func (m *Manager) runAgent(ctx context.Context, projectID string, st Stage, name string, inputs map[string]any, sink ArtifactSink, prior []AgentResult) AgentResult {
	capability, ok := m.registry.Resolve(name)
	if !ok {
		m.logger.Warn("agent not registered, skipping", "project", projectID, "stage", st.ID, "agent", name)
		res := AgentResult{Agent: name, Status: StatusSkipped, Message: "agent not registered"}
		m.finishAgent(projectID, st.ID, res)
		return res
	}

	agentInput := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		agentInput[k] = v
	}
	agentInput[KeyStageResults] = append([]AgentResult(nil), prior...)

	m.events.Publish(Event{
		Type:      EventAgentStarted,
		ProjectID: projectID,
		Data:      map[string]any{"stage": st.ID, "agent": name},
	})

	callCtx, cancel := context.WithTimeout(ctx, m.opts.AgentTimeout)
	defer cancel()

	start := time.Now()
	res, err := capability.Execute(callCtx, agentInput, sink)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		m.logger.Warn("agent failed", "project", projectID, "stage", st.ID, "agent", name, "error", err)
		res = AgentResult{Agent: name, Status: StatusError, Message: err.Error()}
	}
	if res.Agent == "" {
		res.Agent = name
	}
	res.DurationMS = elapsed
	m.finishAgent(projectID, st.ID, res)
	return res
}

func (m *Manager) finishAgent(projectID string, stageID int, res AgentResult) {
	m.metrics.RecordAgent(MetricsEntry{
		Timestamp:  time.Now().UTC(),
		ProjectID:  projectID,
		StageID:    stageID,
		Agent:      res.Agent,
		Status:     res.Status,
		DurationMS: res.DurationMS,
	})
	evt := EventAgentCompleted
	switch res.Status {
	case StatusError:
		evt = EventAgentFailed
	case StatusSkipped:
		evt = EventAgentSkipped
	}
	m.events.Publish(Event{
		Type:      evt,
		ProjectID: projectID,
		Data:      map[string]any{"stage": stageID, "agent": res.Agent, "status": res.Status, "message": res.Message},
	})
}

// stageSink adapts a stage directory to the capability write surface.
type stageSink struct {
	dir artifact.StageDir
}

func (s stageSink) WriteJSON(name string, v any) (string, error) {
	return s.dir.WriteJSON(name, v)
}

func (s stageSink) WriteBytes(name string, data []byte) (string, error) {
	return s.dir.WriteBytes(name, data)
}
