package workflow

import (
	"encoding/json"
	"fmt"
	"os"
)

// StageStatus is the derived state of one stage.
type StageStatus string

const (
	StageLocked    StageStatus = "Locked"
	StagePending   StageStatus = "Pending"
	StageCompleted StageStatus = "Completed"
)

// ArtifactView is an artifact surfaced in a status payload. JSON content is
// inlined; embedded renders are lifted out as image_base64; binary files are
// listed by name and size only (fetch them through the artifact endpoint).
type ArtifactView struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // json, text, image_base64, binary, error
	Content any    `json:"content,omitempty"`
	Size    int64  `json:"size,omitempty"`
}

// StageStatusEntry is one stage's slice of the status payload.
type StageStatusEntry struct {
	StageID   int            `json:"stage_id"`
	Name      string         `json:"name"`
	Status    StageStatus    `json:"status"`
	Artifacts []ArtifactView `json:"artifacts"`
}

// ProjectStatus is the full derived status of a project.
type ProjectStatus struct {
	ProjectID   string             `json:"project_id"`
	Stages      []StageStatusEntry `json:"stages"`
	PendingGate string             `json:"pending_gate,omitempty"`
}

// renderKeys are JSON keys whose values are embedded base64 images; they are
// surfaced as standalone image artifacts.
var renderKeys = []string{"refined_render_base64", "conceptual_render_base64"}

// ProjectStatus derives every stage's status: artifacts present means
// Completed; otherwise a stage is Pending up to the stage unlocked by the
// first unresolved gate (its stage_before plus one) and Locked beyond it.
// Stage 1 is at least Pending even with zero artifacts. The derivation is
// read-only and idempotent.
func (m *Manager) ProjectStatus(projectID string) (*ProjectStatus, error) {
	if !m.artifacts.ProjectExists(projectID) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrProjectNotFound)
	}

	unlockedUntil := m.graph.LastStage()
	status := &ProjectStatus{ProjectID: projectID}
	if gt, ok := m.PendingGate(projectID); ok {
		status.PendingGate = gt.ID
		unlockedUntil = gt.StageBefore + 1
	}

	for _, sid := range m.graph.StageIDs() {
		st, _ := m.graph.Stage(sid)
		views := m.stageArtifacts(projectID, sid)

		derived := StageLocked
		switch {
		case len(views) > 0:
			derived = StageCompleted
		case sid <= unlockedUntil || sid == 1:
			derived = StagePending
		}

		status.Stages = append(status.Stages, StageStatusEntry{
			StageID:   sid,
			Name:      st.Name,
			Status:    derived,
			Artifacts: views,
		})
	}
	return status, nil
}

// stageArtifacts lists a stage's artifacts for the status payload. Unreadable
// or corrupt files degrade to an error-typed view, never a failed request.
func (m *Manager) stageArtifacts(projectID string, stageID int) []ArtifactView {
	files, err := m.artifacts.Stage(projectID, stageID).Files()
	if err != nil {
		m.logger.Warn("listing stage artifacts failed", "project", projectID, "stage", stageID, "error", err)
		return nil
	}
	var views []ArtifactView
	for _, f := range files {
		switch f.Ext {
		case ".json":
			raw, err := os.ReadFile(f.Path)
			if err != nil {
				views = append(views, ArtifactView{Name: f.Name, Type: "error", Content: err.Error()})
				continue
			}
			var content map[string]any
			if err := json.Unmarshal(raw, &content); err != nil {
				m.logger.Warn("artifact is not valid JSON", "project", projectID, "artifact", f.Name, "error", err)
				views = append(views, ArtifactView{Name: f.Name, Type: "json", Content: map[string]any{}})
				continue
			}
			for _, key := range renderKeys {
				if render, ok := content[key].(string); ok && render != "" {
					views = append(views, ArtifactView{Name: f.Name, Type: "image_base64", Content: render})
				}
			}
			views = append(views, ArtifactView{Name: f.Name, Type: "json", Content: content})
		case ".txt", ".md":
			raw, err := os.ReadFile(f.Path)
			if err != nil {
				views = append(views, ArtifactView{Name: f.Name, Type: "error", Content: err.Error()})
				continue
			}
			views = append(views, ArtifactView{Name: f.Name, Type: "text", Content: string(raw)})
		default:
			views = append(views, ArtifactView{Name: f.Name, Type: "binary", Size: f.Size})
		}
	}
	return views
}
