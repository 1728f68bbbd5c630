package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/artifact"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/workflow"
)

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createProject(w, r)
	case http.MethodGet:
		s.listProjects(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// createProject registers a project from the intake payload and runs stage 1
// before replying.
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var initial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&initial); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	name, _ := initial["project_name"].(string)
	if name == "" {
		http.Error(w, "project_name is required", http.StatusBadRequest)
		return
	}

	projectID, outcome, err := s.manager.CreateProject(r.Context(), name, initial)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var stage1 *workflow.StageRun
	if len(outcome.Stages) > 0 {
		stage1 = &outcome.Stages[0]
	}
	writeJSONStatus(w, http.StatusCreated, map[string]any{
		"project_id":      projectID,
		"stage_1_results": stage1,
		"pending_gate":    outcome.PendingGate,
		"completed":       outcome.Completed,
		"status_url":      "/projects/" + projectID,
	})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	if s.runs != nil {
		if records, err := s.runs.ListProjects(); err == nil {
			writeJSON(w, map[string]any{"projects": records})
			return
		}
	}
	ids, err := s.manager.Artifacts().ListProjects()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"projects": ids})
}

// handleProject routes /projects/{id}[/...] by path segments.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/projects/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" {
		http.Error(w, "project id required", http.StatusBadRequest)
		return
	}
	projectID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.projectStatus(w, projectID)
	case len(parts) == 3 && parts[1] == "approve" && r.Method == http.MethodPost:
		s.approveGate(w, r, projectID, parts[2])
	case len(parts) == 4 && parts[1] == "artifacts" && r.Method == http.MethodGet:
		s.artifactContent(w, projectID, parts[2], parts[3])
	case len(parts) == 2 && parts[1] == "risks" && r.Method == http.MethodGet:
		s.riskSummary(w, projectID)
	case len(parts) == 2 && parts[1] == "financials" && r.Method == http.MethodGet:
		s.financialSummary(w, projectID)
	case len(parts) == 2 && parts[1] == "knowledge" && r.Method == http.MethodGet:
		s.knowledgeSummary(w, projectID)
	case len(parts) == 2 && parts[1] == "runs" && r.Method == http.MethodGet:
		s.stageRuns(w, projectID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) projectStatus(w http.ResponseWriter, projectID string) {
	status, err := s.manager.ProjectStatus(projectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, status)
}

func (s *Server) approveGate(w http.ResponseWriter, r *http.Request, projectID, gateID string) {
	var req struct {
		ApprovedBy string `json:"approved_by"`
		Comments   string `json:"comments"`
		Approved   *bool  `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}

	outcome, err := s.manager.ApproveGate(r.Context(), projectID, gateID, workflow.ApprovalRecord{
		ApprovedBy: req.ApprovedBy,
		Comments:   req.Comments,
		Approved:   approved,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	message := "Gate " + gateID + " approved. Workflow continues."
	if outcome.Completed && len(outcome.Stages) == 0 {
		message = "Final gate approved. Workflow complete."
	}
	writeJSON(w, map[string]any{
		"status":       "approved",
		"gate":         gateID,
		"message":      message,
		"stages":       outcome.Stages,
		"pending_gate": outcome.PendingGate,
		"completed":    outcome.Completed,
	})
}

// artifactContent serves one artifact: JSON artifacts as parsed JSON (with
// embedded renders lifted out), everything else as raw bytes.
func (s *Server) artifactContent(w http.ResponseWriter, projectID, stage, name string) {
	stageID, err := strconv.Atoi(strings.TrimPrefix(stage, "stage_"))
	if err != nil {
		http.Error(w, "invalid stage", http.StatusBadRequest)
		return
	}

	data, err := s.manager.Artifacts().ReadArtifact(projectID, stageID, name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if strings.ToLower(path.Ext(name)) == ".json" {
		var content map[string]any
		if err := json.Unmarshal(data, &content); err != nil {
			s.logger.Warn("artifact is not valid JSON", "project", projectID, "artifact", name, "error", err)
			writeJSON(w, map[string]any{"type": "json", "content": map[string]any{}})
			return
		}
		for _, key := range []string{"refined_render_base64", "conceptual_render_base64"} {
			if render, ok := content[key].(string); ok && render != "" {
				writeJSON(w, map[string]any{"type": "image_base64", "content": render})
				return
			}
		}
		writeJSON(w, map[string]any{"type": "json", "content": content})
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Write(data)
}

// riskSummary returns the consolidated risk register written during the
// feasibility scan.
func (s *Server) riskSummary(w http.ResponseWriter, projectID string) {
	data, err := s.manager.Artifacts().ReadArtifact(projectID, 3, "risk_assessment_report.json")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		report = map[string]any{}
	}
	writeJSON(w, map[string]any{
		"project_id":    projectID,
		"risk_register": report["risk_register"],
	})
}

// financialSummary returns the cost plan and schedule baseline.
func (s *Server) financialSummary(w http.ResponseWriter, projectID string) {
	data, err := s.manager.Artifacts().ReadArtifact(projectID, 9, "cost_schedule_baseline.json")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		report = map[string]any{}
	}
	writeJSON(w, map[string]any{
		"project_id":               projectID,
		"total_estimated_cost_usd": report["total_estimated_cost_usd"],
		"cost_breakdown":           report["cost_breakdown"],
		"estimated_duration_weeks": report["estimated_duration_weeks"],
		"key_phases":               report["key_phases"],
	})
}

// knowledgeSummary returns the lessons-learned report written during
// commissioning.
func (s *Server) knowledgeSummary(w http.ResponseWriter, projectID string) {
	data, err := s.manager.Artifacts().ReadArtifact(projectID, 17, "lessons_learned_report.json")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		report = map[string]any{}
	}
	writeJSON(w, map[string]any{
		"project_id":              projectID,
		"lessons_learned_summary": report["lessons_learned_summary"],
		"key_successes":           report["key_successes"],
		"challenges_encountered":  report["challenges_encountered"],
		"actionable_lessons":      report["actionable_lessons"],
	})
}

func (s *Server) stageRuns(w http.ResponseWriter, projectID string) {
	if s.runs == nil {
		writeJSON(w, map[string]any{"runs": []any{}})
		return
	}
	runs, err := s.runs.ListStageRuns(projectID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

// writeError maps engine errors onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrProjectNotFound),
		errors.Is(err, workflow.ErrStageNotFound),
		errors.Is(err, workflow.ErrGateNotFound),
		errors.Is(err, artifact.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, workflow.ErrGateResolved):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	case ".glb":
		return "model/gltf-binary"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
