// Package store persists run bookkeeping (project index, stage executions,
// agent metrics) in SQLite. The filesystem artifact tree stays the durable
// record of project output.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/workflow"
)

// SQLiteStore implements workflow.RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and applies migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ---------- Projects ----------

func (s *SQLiteStore) CreateProject(rec workflow.ProjectRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, created_at, updated_at) VALUES (?,?,?,?)`,
		rec.ID, rec.Name, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TouchProject(id string) error {
	_, err := s.db.Exec(`UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) ListProjects() ([]workflow.ProjectRecord, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at, updated_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []workflow.ProjectRecord
	for rows.Next() {
		var rec workflow.ProjectRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------- Stage runs ----------

func (s *SQLiteStore) CreateStageRun(rec workflow.StageRunRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO stage_runs (id, project_id, stage_id, status, error_message, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.ProjectID, rec.StageID, rec.Status, rec.Error, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stage run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishStageRun(id string, status string, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE stage_runs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC(), id,
	)
	return err
}

func (s *SQLiteStore) ListStageRuns(projectID string) ([]workflow.StageRunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, stage_id, status, error_message, created_at, updated_at
		 FROM stage_runs WHERE project_id = ? ORDER BY created_at ASC, stage_id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()

	var out []workflow.StageRunRecord
	for rows.Next() {
		var rec workflow.StageRunRecord
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.StageID, &rec.Status, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---------- Metrics ----------

func (s *SQLiteStore) RecordMetric(entry workflow.MetricsEntry) error {
	_, err := s.db.Exec(
		`INSERT INTO agent_metrics (project_id, stage_id, agent, status, duration_ms, timestamp)
		 VALUES (?,?,?,?,?,?)`,
		entry.ProjectID, entry.StageID, entry.Agent, string(entry.Status), entry.DurationMS, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert agent metric: %w", err)
	}
	return nil
}

// AgentAggregate summarizes one agent's recorded invocations for a project.
type AgentAggregate struct {
	Agent      string `json:"agent"`
	Calls      int    `json:"calls"`
	Failures   int    `json:"failures"`
	Skipped    int    `json:"skipped"`
	DurationMS int64  `json:"duration_ms"`
}

// LoadAgentAggregates returns per-agent metrics for a project.
func (s *SQLiteStore) LoadAgentAggregates(projectID string) ([]AgentAggregate, error) {
	rows, err := s.db.Query(
		`SELECT agent,
		        COUNT(*),
		        SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END),
		        SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END),
		        COALESCE(SUM(duration_ms), 0)
		 FROM agent_metrics WHERE project_id = ? GROUP BY agent ORDER BY agent`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query agent metrics: %w", err)
	}
	defer rows.Close()

	var out []AgentAggregate
	for rows.Next() {
		var agg AgentAggregate
		if err := rows.Scan(&agg.Agent, &agg.Calls, &agg.Failures, &agg.Skipped, &agg.DurationMS); err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}
