package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/artifact"
)

// stubCapability runs a test-provided function and counts invocations.
type stubCapability struct {
	name  string
	calls int
	fn    func(ctx context.Context, input map[string]any, sink ArtifactSink) (AgentResult, error)
}

func (c *stubCapability) Name() string { return c.name }

func (c *stubCapability) Execute(ctx context.Context, input map[string]any, sink ArtifactSink) (AgentResult, error) {
	c.calls++
	return c.fn(ctx, input, sink)
}

// stubRegistry resolves only explicitly registered stubs, falling back to a
// generic writer when permissive.
type stubRegistry struct {
	stubs      map[string]*stubCapability
	permissive bool
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{stubs: make(map[string]*stubCapability), permissive: true}
}

func (r *stubRegistry) add(name string, fn func(ctx context.Context, input map[string]any, sink ArtifactSink) (AgentResult, error)) *stubCapability {
	c := &stubCapability{name: name, fn: fn}
	r.stubs[name] = c
	return c
}

// addWriter registers a stub that writes a single JSON artifact and succeeds.
func (r *stubRegistry) addWriter(name, stem string) *stubCapability {
	return r.add(name, func(_ context.Context, _ map[string]any, sink ArtifactSink) (AgentResult, error) {
		path, err := sink.WriteJSON(stem, map[string]any{"agent": name})
		if err != nil {
			return AgentResult{}, err
		}
		return AgentResult{
			Agent:     name,
			Status:    StatusSuccess,
			Artifacts: []ArtifactRef{{Type: "json", Name: stem + ".json", Path: path}},
		}, nil
	})
}

func (r *stubRegistry) Resolve(name string) (Capability, bool) {
	if c, ok := r.stubs[name]; ok {
		return c, true
	}
	if r.permissive {
		return r.addWriter(name, name+"_output"), true
	}
	return nil, false
}

func newTestManager(t *testing.T, graph *Graph, reg Registry, opts Options) (*Manager, *artifact.Store) {
	t.Helper()
	st, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(graph, reg, st, nil, NewEventBus(), logger, opts), st
}

func TestCreateProjectStopsAtFirstGate(t *testing.T) {
	// Scenario: one agent succeeds in stage 1; the charter gate blocks.
	reg := newStubRegistry()
	mgr, st := newTestManager(t, DefaultGraph(), reg, Options{})

	projectID, outcome, err := mgr.CreateProject(context.Background(), "Test Tower", map[string]any{"project_name": "Test Tower"})
	require.NoError(t, err)
	require.NotEmpty(t, projectID)
	require.Len(t, outcome.Stages, 1)
	assert.Equal(t, 1, outcome.Stages[0].StageID)
	assert.Equal(t, "G0", outcome.PendingGate)
	assert.False(t, outcome.Completed)

	status, err := mgr.ProjectStatus(projectID)
	require.NoError(t, err)
	assert.Equal(t, "G0", status.PendingGate)
	assert.Equal(t, StageCompleted, status.Stages[0].Status)
	assert.Equal(t, StagePending, status.Stages[1].Status)
	for _, entry := range status.Stages[2:] {
		assert.Equal(t, StageLocked, entry.Status, "stage %d", entry.StageID)
	}

	gt, ok := mgr.PendingGate(projectID)
	require.True(t, ok)
	assert.Equal(t, "G0", gt.ID)
	assert.True(t, st.ProjectExists(projectID))
}

func TestApproveGateAdvancesToNextGate(t *testing.T) {
	// Scenario: approving G0 auto-runs stages 2-4 and stops at G1.
	reg := newStubRegistry()
	mgr, _ := newTestManager(t, DefaultGraph(), reg, Options{})

	projectID, _, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	outcome, err := mgr.ApproveGate(context.Background(), projectID, "G0", ApprovalRecord{ApprovedBy: "user", Approved: true})
	require.NoError(t, err)

	var ran []int
	for _, sr := range outcome.Stages {
		ran = append(ran, sr.StageID)
	}
	assert.Equal(t, []int{2, 3, 4}, ran)
	assert.Equal(t, "G1", outcome.PendingGate)

	gt, ok := mgr.PendingGate(projectID)
	require.True(t, ok)
	assert.Equal(t, "G1", gt.ID)
}

func TestApproveGateUnknownGate(t *testing.T) {
	mgr, _ := newTestManager(t, DefaultGraph(), newStubRegistry(), Options{})
	projectID, _, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	_, err = mgr.ApproveGate(context.Background(), projectID, "G9", ApprovalRecord{Approved: true})
	assert.ErrorIs(t, err, ErrGateNotFound)
}

func TestApproveGateUnknownProject(t *testing.T) {
	mgr, _ := newTestManager(t, DefaultGraph(), newStubRegistry(), Options{})
	_, err := mgr.ApproveGate(context.Background(), "missing", "G0", ApprovalRecord{Approved: true})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestDuplicateApprovalDoesNotRerunStages(t *testing.T) {
	reg := newStubRegistry()
	harvester := reg.addWriter("data_harvester_agent", "site_data_harvest")
	mgr, _ := newTestManager(t, DefaultGraph(), reg, Options{})

	projectID, _, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	_, err = mgr.ApproveGate(context.Background(), projectID, "G0", ApprovalRecord{Approved: true})
	require.NoError(t, err)
	require.Equal(t, 1, harvester.calls)

	_, err = mgr.ApproveGate(context.Background(), projectID, "G0", ApprovalRecord{Approved: true})
	assert.ErrorIs(t, err, ErrGateResolved)
	assert.Equal(t, 1, harvester.calls, "stage 2 must not run twice")
}

func TestRejectionIsRecordedButStillAdvances(t *testing.T) {
	reg := newStubRegistry()
	mgr, st := newTestManager(t, DefaultGraph(), reg, Options{})

	projectID, _, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	outcome, err := mgr.ApproveGate(context.Background(), projectID, "G0", ApprovalRecord{ApprovedBy: "reviewer", Approved: false})
	require.NoError(t, err)
	assert.NotEmpty(t, outcome.Stages)

	rec, err := st.ReadApproval(projectID, "G0")
	require.NoError(t, err)
	assert.Equal(t, false, rec["approved"])
}

func TestAgentFailureDoesNotAbortStage(t *testing.T) {
	// Scenario: one of two agents fails; both outcomes land in the result
	// list and the stage still counts as run.
	graph, err := NewGraph([]Stage{
		{ID: 1, Name: "pair", Agents: []string{"good", "bad"}},
	}, nil)
	require.NoError(t, err)

	reg := newStubRegistry()
	reg.permissive = false
	reg.addWriter("good", "good_output")
	reg.add("bad", func(_ context.Context, _ map[string]any, _ ArtifactSink) (AgentResult, error) {
		return AgentResult{}, errors.New("upstream service exploded")
	})

	mgr, _ := newTestManager(t, graph, reg, Options{})
	projectID, outcome, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	require.Len(t, outcome.Stages, 1)
	results := outcome.Stages[0].Results
	require.Len(t, results, 2)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusError, results[1].Status)
	assert.Contains(t, results[1].Message, "exploded")
	assert.True(t, outcome.Completed)

	// The good agent wrote an artifact, so the stage reads as Completed.
	status, err := mgr.ProjectStatus(projectID)
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, status.Stages[0].Status)
}

func TestStageWithAllAgentsFailingStaysPending(t *testing.T) {
	graph, err := NewGraph([]Stage{
		{ID: 1, Name: "doomed", Agents: []string{"bad"}},
	}, nil)
	require.NoError(t, err)

	reg := newStubRegistry()
	reg.permissive = false
	reg.add("bad", func(_ context.Context, _ map[string]any, _ ArtifactSink) (AgentResult, error) {
		return AgentResult{}, errors.New("boom")
	})

	mgr, _ := newTestManager(t, graph, reg, Options{})
	projectID, outcome, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, outcome.Stages[0].Results[0].Status)

	status, err := mgr.ProjectStatus(projectID)
	require.NoError(t, err)
	assert.Equal(t, StagePending, status.Stages[0].Status)
}

func TestMissingAgentIsSkipped(t *testing.T) {
	graph, err := NewGraph([]Stage{
		{ID: 1, Name: "partial", Agents: []string{"ghost", "real"}},
	}, nil)
	require.NoError(t, err)

	reg := newStubRegistry()
	reg.permissive = false
	reg.addWriter("real", "real_output")

	mgr, _ := newTestManager(t, graph, reg, Options{})
	_, outcome, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	results := outcome.Stages[0].Results
	require.Len(t, results, 2)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, "ghost", results[0].Agent)
	assert.Equal(t, StatusSuccess, results[1].Status)
}

func TestIntraStageResultThreading(t *testing.T) {
	// Agent two must see agent one's result under stage_results.
	graph, err := NewGraph([]Stage{
		{ID: 1, Name: "chain", Agents: []string{"first", "second"}},
	}, nil)
	require.NoError(t, err)

	var seen []AgentResult
	reg := newStubRegistry()
	reg.permissive = false
	reg.addWriter("first", "first_output")
	reg.add("second", func(_ context.Context, input map[string]any, sink ArtifactSink) (AgentResult, error) {
		seen = input[KeyStageResults].([]AgentResult)
		sink.WriteJSON("second_output", map[string]any{})
		return AgentResult{Agent: "second", Status: StatusSuccess}, nil
	})

	mgr, _ := newTestManager(t, graph, reg, Options{})
	_, _, err = mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "first", seen[0].Agent)
	assert.Equal(t, StatusSuccess, seen[0].Status)
}

func TestAgentTimeoutBecomesFailure(t *testing.T) {
	graph, err := NewGraph([]Stage{
		{ID: 1, Name: "slow", Agents: []string{"sleeper"}},
	}, nil)
	require.NoError(t, err)

	reg := newStubRegistry()
	reg.permissive = false
	reg.add("sleeper", func(ctx context.Context, _ map[string]any, _ ArtifactSink) (AgentResult, error) {
		<-ctx.Done()
		return AgentResult{}, ctx.Err()
	})

	mgr, _ := newTestManager(t, graph, reg, Options{AgentTimeout: 20 * time.Millisecond})
	_, outcome, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, outcome.Stages[0].Results[0].Status)
}

func TestNoGateStagesAdvanceWithoutExternalCall(t *testing.T) {
	graph, err := NewGraph([]Stage{
		{ID: 1, Name: "a", Agents: []string{"x"}},
		{ID: 2, Name: "b", Agents: []string{"y"}},
		{ID: 3, Name: "c", Agents: []string{"z"}},
	}, nil)
	require.NoError(t, err)

	mgr, _ := newTestManager(t, graph, newStubRegistry(), Options{})
	_, outcome, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	require.Len(t, outcome.Stages, 3)
	assert.True(t, outcome.Completed)
	assert.Empty(t, outcome.PendingGate)
}

func TestAutoApproveRunsWholePipeline(t *testing.T) {
	reg := newStubRegistry()
	mgr, st := newTestManager(t, DefaultGraph(), reg, Options{AutoApproveGates: true})

	projectID, outcome, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Empty(t, outcome.PendingGate)
	// G6 resumes past the last stage, so 17 stages run before completion.
	assert.Len(t, outcome.Stages, 17)

	_, pending := mgr.PendingGate(projectID)
	assert.False(t, pending)

	rec, err := st.ReadApproval(projectID, "G3")
	require.NoError(t, err)
	assert.Equal(t, "system", rec["approved_by"])
}

func TestPendingGateWalksDeclarationOrder(t *testing.T) {
	reg := newStubRegistry()
	mgr, _ := newTestManager(t, DefaultGraph(), reg, Options{})
	projectID, _, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	expected := []string{"G0", "G1", "G2", "G3", "G4", "G5", "G6"}
	for i, gateID := range expected {
		gt, ok := mgr.PendingGate(projectID)
		require.True(t, ok, "expected %s pending", gateID)
		assert.Equal(t, gateID, gt.ID)

		outcome, err := mgr.ApproveGate(context.Background(), projectID, gateID, ApprovalRecord{ApprovedBy: "user", Approved: true})
		require.NoError(t, err)
		if i == len(expected)-1 {
			assert.True(t, outcome.Completed)
		}
	}

	_, ok := mgr.PendingGate(projectID)
	assert.False(t, ok, "all gates resolved")
}

func TestProjectStatusIsIdempotent(t *testing.T) {
	mgr, _ := newTestManager(t, DefaultGraph(), newStubRegistry(), Options{})
	projectID, _, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)

	first, err := mgr.ProjectStatus(projectID)
	require.NoError(t, err)
	second, err := mgr.ProjectStatus(projectID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunStageUnknownStage(t *testing.T) {
	mgr, _ := newTestManager(t, DefaultGraph(), newStubRegistry(), Options{})
	_, err := mgr.RunStage(context.Background(), "whatever", 99)
	assert.ErrorIs(t, err, ErrStageNotFound)
}

func TestProjectStatusUnknownProject(t *testing.T) {
	mgr, _ := newTestManager(t, DefaultGraph(), newStubRegistry(), Options{})
	_, err := mgr.ProjectStatus("missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestFreshProjectStatusBootstrap(t *testing.T) {
	// A project with no artifacts at all: stage 1 is Pending, not Locked.
	mgr, st := newTestManager(t, DefaultGraph(), newStubRegistry(), Options{})
	require.NoError(t, st.InitProject("fresh", mgr.Graph().StageIDs()))

	status, err := mgr.ProjectStatus("fresh")
	require.NoError(t, err)
	assert.Equal(t, StagePending, status.Stages[0].Status)
	assert.Equal(t, "G0", status.PendingGate)
}

// failingRunStore errors on every bookkeeping call.
type failingRunStore struct{}

var errBookkeeping = errors.New("bookkeeping unavailable")

func (failingRunStore) CreateProject(ProjectRecord) error                { return errBookkeeping }
func (failingRunStore) TouchProject(string) error                       { return errBookkeeping }
func (failingRunStore) ListProjects() ([]ProjectRecord, error)          { return nil, errBookkeeping }
func (failingRunStore) CreateStageRun(StageRunRecord) error             { return errBookkeeping }
func (failingRunStore) FinishStageRun(string, string, string) error     { return errBookkeeping }
func (failingRunStore) ListStageRuns(string) ([]StageRunRecord, error)  { return nil, errBookkeeping }
func (failingRunStore) RecordMetric(MetricsEntry) error                 { return errBookkeeping }

func TestBookkeepingFailuresNeverBlockWorkflow(t *testing.T) {
	reg := newStubRegistry()
	st, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	mgr := NewManager(DefaultGraph(), reg, st, failingRunStore{}, NewEventBus(), discardLogger(), Options{})

	projectID, outcome, err := mgr.CreateProject(context.Background(), "p", nil)
	require.NoError(t, err)
	require.Len(t, outcome.Stages, 1)
	assert.Equal(t, "G0", outcome.PendingGate)

	outcome, err = mgr.ApproveGate(context.Background(), projectID, "G0", ApprovalRecord{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, "G1", outcome.PendingGate)
}
