package workflow

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrStageNotFound = errors.New("stage not found")
	ErrGateNotFound  = errors.New("gate not found")
)

// Stage is one step of the project pipeline. Definitions are immutable once
// the graph is built.
type Stage struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Agents    []string `json:"agents"`
	GateAfter string   `json:"gate_after,omitempty"` // empty means pass straight through
}

// Gate is a human-approval checkpoint that blocks progression past StageBefore
// until an approval record exists.
type Gate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	StageBefore int    `json:"stage_before"`
}

// Graph is the static stage/gate lookup table. It holds no mutable state.
type Graph struct {
	stages    map[int]Stage
	gates     map[string]Gate
	stageIDs  []int  // ascending
	gateOrder []string
}

// NewGraph validates the definitions and builds a graph. Stage ids must be
// contiguous starting at 1, and every gate must be referenced by exactly one
// stage's GateAfter.
func NewGraph(stages []Stage, gates []Gate) (*Graph, error) {
	g := &Graph{
		stages: make(map[int]Stage, len(stages)),
		gates:  make(map[string]Gate, len(gates)),
	}
	for _, st := range stages {
		if _, dup := g.stages[st.ID]; dup {
			return nil, fmt.Errorf("duplicate stage id %d", st.ID)
		}
		g.stages[st.ID] = st
		g.stageIDs = append(g.stageIDs, st.ID)
	}
	sort.Ints(g.stageIDs)
	for i, id := range g.stageIDs {
		if id != i+1 {
			return nil, fmt.Errorf("stage ids must be contiguous from 1, got %v", g.stageIDs)
		}
	}

	refs := make(map[string]int)
	for _, id := range g.stageIDs {
		if ga := g.stages[id].GateAfter; ga != "" {
			refs[ga]++
		}
	}
	for _, gt := range gates {
		if _, dup := g.gates[gt.ID]; dup {
			return nil, fmt.Errorf("duplicate gate id %s", gt.ID)
		}
		if _, ok := g.stages[gt.StageBefore]; !ok {
			return nil, fmt.Errorf("gate %s references unknown stage %d", gt.ID, gt.StageBefore)
		}
		if refs[gt.ID] != 1 {
			return nil, fmt.Errorf("gate %s must be referenced by exactly one stage, got %d", gt.ID, refs[gt.ID])
		}
		g.gates[gt.ID] = gt
		g.gateOrder = append(g.gateOrder, gt.ID)
	}
	for ref := range refs {
		if _, ok := g.gates[ref]; !ok {
			return nil, fmt.Errorf("stage references undeclared gate %s", ref)
		}
	}
	return g, nil
}

// Stage looks up a stage definition by id.
func (g *Graph) Stage(id int) (Stage, error) {
	st, ok := g.stages[id]
	if !ok {
		return Stage{}, fmt.Errorf("stage %d: %w", id, ErrStageNotFound)
	}
	return st, nil
}

// HasStage reports whether the given stage id is declared.
func (g *Graph) HasStage(id int) bool {
	_, ok := g.stages[id]
	return ok
}

// Gate looks up a gate definition by id.
func (g *Graph) Gate(id string) (Gate, error) {
	gt, ok := g.gates[id]
	if !ok {
		return Gate{}, fmt.Errorf("gate %s: %w", id, ErrGateNotFound)
	}
	return gt, nil
}

// Gates returns all gates in declaration order.
func (g *Graph) Gates() []Gate {
	out := make([]Gate, 0, len(g.gateOrder))
	for _, id := range g.gateOrder {
		out = append(out, g.gates[id])
	}
	return out
}

// StageIDs returns all stage ids in ascending order.
func (g *Graph) StageIDs() []int {
	return append([]int(nil), g.stageIDs...)
}

// LastStage returns the highest declared stage id.
func (g *Graph) LastStage() int {
	return g.stageIDs[len(g.stageIDs)-1]
}

// NextStageAfterGate returns the stage that resumes after the given gate is
// approved. ok is false for the terminal gate.
func (g *Graph) NextStageAfterGate(gt Gate) (int, bool) {
	next := gt.StageBefore + 1
	_, ok := g.stages[next]
	return next, ok
}

// DefaultGraph returns the 18-stage construction planning pipeline with its
// seven decision gates.
func DefaultGraph() *Graph {
	g, err := NewGraph(defaultStages, defaultGates)
	if err != nil {
		panic(err) // static table, validated by tests
	}
	return g
}

var defaultStages = []Stage{
	{ID: 1, Name: "Client Intake", Agents: []string{"briefing_constraint_extraction_agent"}, GateAfter: "G0"},
	{ID: 2, Name: "Data & Constraints Harvest", Agents: []string{"data_harvester_agent", "geospatial_site_context_agent"}},
	{ID: 3, Name: "Feasibility & Risk Scan", Agents: []string{"risk_mitigation_agent"}},
	{ID: 4, Name: "Optioneering & Strategic Scenarios", Agents: []string{"optioneering_strategy_agent"}, GateAfter: "G1"},
	{ID: 5, Name: "Concept Massing & Facade", Agents: []string{"massing_facade_agent"}},
	{ID: 6, Name: "Space Planning & Adjacency", Agents: []string{"space_planning_adjacency_agent", "interior_design_agent"}, GateAfter: "G2"},
	{ID: 7, Name: "Structural & Material Strategy", Agents: []string{"structural_design_agent"}},
	{ID: 8, Name: "MEP & Sustainability Strategy", Agents: []string{"mep_systems_agent", "sustainability_energy_agent"}, GateAfter: "G3"},
	{ID: 9, Name: "Cost Plan & Schedule Baseline", Agents: []string{"cost_schedule_agent"}},
	{ID: 10, Name: "Detailed Design & BIM Development", Agents: []string{"bim_cad_documentation_agent", "architectural_detailing_agent", "visualization_agent"}, GateAfter: "G4"},
	{ID: 11, Name: "Clash Detection & Coordination", Agents: []string{"clash_coordination_agent"}},
	{ID: 12, Name: "Code Compliance & Standards Check", Agents: []string{"code_standards_agent", "compliance_and_construction_agent"}, GateAfter: "G5"},
	{ID: 13, Name: "Procurement & Supply Chain Strategy", Agents: []string{"procurement_supply_chain_agent"}},
	{ID: 14, Name: "Site Logistics & Safety Plan", Agents: []string{"site_logistics_safety_agent"}},
	{ID: 15, Name: "Construction Monitoring & CV", Agents: []string{"construction_monitoring_cv_agent"}},
	{ID: 16, Name: "Change Control & Claims Management", Agents: []string{"change_control_claims_agent"}},
	{ID: 17, Name: "Commissioning & Asset Management", Agents: []string{"commissioning_asset_agent"}, GateAfter: "G6"},
	{ID: 18, Name: "Digital Twin Finalization & Handover", Agents: []string{"bim_cad_documentation_agent"}},
}

var defaultGates = []Gate{
	{ID: "G0", Name: "Project Charter Approval", StageBefore: 1},
	{ID: "G1", Name: "Strategy/Options Approval", StageBefore: 4},
	{ID: "G2", Name: "Concept Design Approval", StageBefore: 6},
	{ID: "G3", Name: "Schematic/Prelim Engineering Approval", StageBefore: 8},
	{ID: "G4", Name: "Design Development/BIM Approval", StageBefore: 10},
	{ID: "G5", Name: "Construction Docs/Permits Approval", StageBefore: 12},
	// G6 blocks past stage 18 even though stage 17 declares it: approving the
	// terminal gate reports completion instead of advancing.
	{ID: "G6", Name: "Handover/Digital Twin Approval", StageBefore: 18},
}
