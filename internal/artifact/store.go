// Package artifact implements the per-project filesystem store:
// projects/{id}/stage_{n}/{name} for stage outputs and
// projects/{id}/gate_{g}_approval.json for gate approval records.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("not found")

const initialDataFile = "initial_project_data.json"

// Store is the root of the project artifact tree.
type Store struct {
	root string
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create project store: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string { return s.root }

// ProjectDir returns the directory for a project id.
func (s *Store) ProjectDir(projectID string) string {
	return filepath.Join(s.root, projectID)
}

// InitProject creates the project directory with one subdirectory per stage.
func (s *Store) InitProject(projectID string, stageIDs []int) error {
	dir := s.ProjectDir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	for _, id := range stageIDs {
		if err := os.MkdirAll(filepath.Join(dir, stageDirName(id)), 0o755); err != nil {
			return fmt.Errorf("create stage dir %d: %w", id, err)
		}
	}
	return nil
}

// ProjectExists reports whether a project directory exists.
func (s *Store) ProjectExists(projectID string) bool {
	info, err := os.Stat(s.ProjectDir(projectID))
	return err == nil && info.IsDir()
}

// ListProjects returns all project ids, sorted.
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read project store: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteInitialData persists the project-intake payload.
func (s *Store) WriteInitialData(projectID string, data map[string]any) error {
	return writeJSONFile(filepath.Join(s.ProjectDir(projectID), initialDataFile), data)
}

// InitialData returns the intake payload, or an empty map when none was
// recorded.
func (s *Store) InitialData(projectID string) map[string]any {
	raw, err := os.ReadFile(filepath.Join(s.ProjectDir(projectID), initialDataFile))
	if err != nil {
		return map[string]any{}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]any{}
	}
	return data
}

// Stage returns a handle for one stage's artifact directory.
func (s *Store) Stage(projectID string, stageID int) StageDir {
	return StageDir{
		path:    filepath.Join(s.ProjectDir(projectID), stageDirName(stageID)),
		stageID: stageID,
	}
}

// ReadArtifact returns the raw bytes of a named artifact in a stage.
func (s *Store) ReadArtifact(projectID string, stageID int, name string) ([]byte, error) {
	path := filepath.Join(s.ProjectDir(projectID), stageDirName(stageID), filepath.Base(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s in stage %d: %w", name, stageID, ErrNotFound)
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// GateResolved reports whether an approval record exists for the gate.
// Presence of the record is the sole resolution signal.
func (s *Store) GateResolved(projectID, gateID string) bool {
	_, err := os.Stat(s.approvalPath(projectID, gateID))
	return err == nil
}

// WriteApproval persists a gate approval record. The record overwrites any
// previous one; callers guard against duplicate resolution.
func (s *Store) WriteApproval(projectID, gateID string, record any) error {
	return writeJSONFile(s.approvalPath(projectID, gateID), record)
}

// ReadApproval returns the stored approval record for a gate.
func (s *Store) ReadApproval(projectID, gateID string) (map[string]any, error) {
	raw, err := os.ReadFile(s.approvalPath(projectID, gateID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("approval for gate %s: %w", gateID, ErrNotFound)
		}
		return nil, err
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse approval for gate %s: %w", gateID, err)
	}
	return rec, nil
}

func (s *Store) approvalPath(projectID, gateID string) string {
	return filepath.Join(s.ProjectDir(projectID), fmt.Sprintf("gate_%s_approval.json", gateID))
}

// FileInfo describes one artifact file in a stage directory.
type FileInfo struct {
	Name string // filename with extension
	Stem string // filename without extension
	Ext  string // lowercase, with leading dot
	Path string
	Size int64
}

// StageDir is a handle on one stage's artifact directory.
type StageDir struct {
	path    string
	stageID int
}

// Path returns the stage directory path.
func (d StageDir) Path() string { return d.path }

// WriteJSON writes a pretty-printed JSON artifact, overwriting any previous
// content. The name should not carry an extension.
func (d StageDir) WriteJSON(name string, v any) (string, error) {
	path := filepath.Join(d.path, filepath.Base(name)+".json")
	if err := writeJSONFile(path, v); err != nil {
		return "", err
	}
	return path, nil
}

// WriteBytes writes a raw artifact (images, meshes, text) under the given
// filename, extension included.
func (d StageDir) WriteBytes(name string, data []byte) (string, error) {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}
	path := filepath.Join(d.path, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return path, nil
}

// Files lists the stage's artifact files sorted by name. A missing directory
// lists as empty.
func (d StageDir) Files() ([]FileInfo, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stage dir: %w", err)
	}
	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		files = append(files, FileInfo{
			Name: name,
			Stem: strings.TrimSuffix(name, filepath.Ext(name)),
			Ext:  ext,
			Path: filepath.Join(d.path, name),
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// HasArtifacts reports whether the stage directory holds at least one file.
func (d StageDir) HasArtifacts() bool {
	files, err := d.Files()
	return err == nil && len(files) > 0
}

func stageDirName(id int) string {
	return fmt.Sprintf("stage_%d", id)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
