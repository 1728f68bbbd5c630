package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrGateResolved is returned when an approval record already exists for a
// gate. Gates resolve at most once; a duplicate call is an error rather than
// an overwrite so an approved stage can never run twice.
var ErrGateResolved = errors.New("gate already resolved")

// ApprovalRecord is written exactly once per gate. Its presence is the sole
// resolution signal. Approved=false is recorded but does not block
// advancement.
type ApprovalRecord struct {
	ApprovedBy string    `json:"approved_by"`
	Comments   string    `json:"comments"`
	Approved   bool      `json:"approved"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PendingGate returns the first gate in declaration order lacking an approval
// record. ok is false when every declared gate is resolved.
func (m *Manager) PendingGate(projectID string) (Gate, bool) {
	for _, gt := range m.graph.Gates() {
		if !m.artifacts.GateResolved(projectID, gt.ID) {
			return gt, true
		}
	}
	return Gate{}, false
}

// GateApproval returns the stored approval record for a resolved gate.
func (m *Manager) GateApproval(projectID, gateID string) (map[string]any, error) {
	if _, err := m.graph.Gate(gateID); err != nil {
		return nil, err
	}
	return m.artifacts.ReadApproval(projectID, gateID)
}

// recordApproval persists the approval record for an unresolved gate. The
// caller must hold the project lock.
func (m *Manager) recordApproval(projectID string, gt Gate, rec ApprovalRecord) error {
	if m.artifacts.GateResolved(projectID, gt.ID) {
		return fmt.Errorf("gate %s: %w", gt.ID, ErrGateResolved)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	if err := m.artifacts.WriteApproval(projectID, gt.ID, rec); err != nil {
		return fmt.Errorf("write approval for gate %s: %w", gt.ID, err)
	}
	m.metrics.RecordGate(gt.ID, rec.Approved)
	m.events.Publish(Event{
		Type:      EventGateResolved,
		ProjectID: projectID,
		Data: map[string]any{
			"gate":        gt.ID,
			"approved":    rec.Approved,
			"approved_by": rec.ApprovedBy,
		},
	})
	return nil
}
