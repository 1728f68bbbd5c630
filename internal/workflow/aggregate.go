package workflow

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/artifact"
)

// Reserved input keys. They are set after artifact merging and can never be
// shadowed by an artifact stem.
const (
	KeyStageID      = "stage_id"
	KeyInitialData  = "initial_data"
	KeyStageResults = "stage_results"
)

// aggregateInputs builds the input mapping for a stage: every JSON artifact
// from stages 1..stageID-1 merged flat, keyed by filename stem, last writer
// wins. Artifacts from stageID itself or later are never included. A
// malformed artifact degrades to an empty object with a warning.
func aggregateInputs(store *artifact.Store, logger *slog.Logger, projectID string, stageID int) map[string]any {
	inputs := make(map[string]any)
	for i := 1; i < stageID; i++ {
		files, err := store.Stage(projectID, i).Files()
		if err != nil {
			logger.Warn("listing stage artifacts failed", "project", projectID, "stage", i, "error", err)
			continue
		}
		for _, f := range files {
			if f.Ext != ".json" {
				continue
			}
			raw, err := os.ReadFile(f.Path)
			if err != nil {
				logger.Warn("reading artifact failed", "project", projectID, "artifact", f.Name, "error", err)
				inputs[f.Stem] = map[string]any{}
				continue
			}
			var parsed map[string]any
			if err := json.Unmarshal(raw, &parsed); err != nil {
				logger.Warn("artifact is not valid JSON", "project", projectID, "artifact", f.Name, "error", err)
				inputs[f.Stem] = map[string]any{}
				continue
			}
			inputs[f.Stem] = parsed
		}
	}
	inputs[KeyStageID] = stageID
	inputs[KeyInitialData] = store.InitialData(projectID)
	return inputs
}
