package workflow

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/artifact"
)

func newTestStore(t *testing.T) *artifact.Store {
	t.Helper()
	st, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	return st
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregateIncludesOnlyPriorStages(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.InitProject("p1", []int{1, 2, 3, 4}))

	_, err := st.Stage("p1", 1).WriteJSON("project_brief", map[string]any{"rooms": 4})
	require.NoError(t, err)
	_, err = st.Stage("p1", 2).WriteJSON("site_data_harvest", map[string]any{"zoning": "R2"})
	require.NoError(t, err)
	_, err = st.Stage("p1", 3).WriteJSON("risk_assessment_report", map[string]any{"risks": 2})
	require.NoError(t, err)
	_, err = st.Stage("p1", 4).WriteJSON("too_late", map[string]any{"x": 1})
	require.NoError(t, err)

	inputs := aggregateInputs(st, discardLogger(), "p1", 3)

	assert.Contains(t, inputs, "project_brief")
	assert.Contains(t, inputs, "site_data_harvest")
	assert.NotContains(t, inputs, "risk_assessment_report", "own stage excluded")
	assert.NotContains(t, inputs, "too_late", "later stage excluded")

	brief := inputs["project_brief"].(map[string]any)
	assert.Equal(t, float64(4), brief["rooms"])
}

func TestAggregateReservedKeys(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.InitProject("p1", []int{1, 2}))
	require.NoError(t, st.WriteInitialData("p1", map[string]any{"project_name": "Villa"}))

	// An artifact trying to shadow a reserved key loses.
	_, err := st.Stage("p1", 1).WriteJSON("stage_id", map[string]any{"bogus": true})
	require.NoError(t, err)

	inputs := aggregateInputs(st, discardLogger(), "p1", 2)

	assert.Equal(t, 2, inputs[KeyStageID])
	initial := inputs[KeyInitialData].(map[string]any)
	assert.Equal(t, "Villa", initial["project_name"])
}

func TestAggregateMalformedArtifactDegradesToEmpty(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.InitProject("p1", []int{1, 2}))

	_, err := st.Stage("p1", 1).WriteBytes("broken.json", []byte("{not json"))
	require.NoError(t, err)
	_, err = st.Stage("p1", 1).WriteJSON("fine", map[string]any{"ok": true})
	require.NoError(t, err)

	inputs := aggregateInputs(st, discardLogger(), "p1", 2)

	assert.Equal(t, map[string]any{}, inputs["broken"])
	fine := inputs["fine"].(map[string]any)
	assert.Equal(t, true, fine["ok"])
}

func TestAggregateLastWriterWinsPerStem(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.InitProject("p1", []int{1, 2, 3}))

	_, err := st.Stage("p1", 1).WriteJSON("shared", map[string]any{"version": 1})
	require.NoError(t, err)
	_, err = st.Stage("p1", 2).WriteJSON("shared", map[string]any{"version": 2})
	require.NoError(t, err)

	inputs := aggregateInputs(st, discardLogger(), "p1", 3)
	shared := inputs["shared"].(map[string]any)
	assert.Equal(t, float64(2), shared["version"])
}

func TestAggregateIgnoresNonJSONArtifacts(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.InitProject("p1", []int{1, 2}))

	_, err := st.Stage("p1", 1).WriteBytes("render.png", []byte{0x89, 0x50})
	require.NoError(t, err)

	inputs := aggregateInputs(st, discardLogger(), "p1", 2)
	assert.NotContains(t, inputs, "render")
}
