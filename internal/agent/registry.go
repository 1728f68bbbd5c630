// Package agent holds the capability registry: an explicit, statically built
// table mapping agent identifiers to their implementations. The registry is
// constructed once at process start and passed into the workflow manager.
package agent

import (
	"log/slog"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/genai"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/workflow"
)

// spec declares one generative agent: its identifier, the role line used in
// its prompt, and the artifact stem it writes.
type spec struct {
	name        string
	role        string
	deliverable string
}

var specs = []spec{
	{"briefing_constraint_extraction_agent", "a briefing analyst extracting client requirements and hard constraints", "project_brief"},
	{"data_harvester_agent", "a data researcher harvesting zoning, utility and market data for the site", "site_data_harvest"},
	{"geospatial_site_context_agent", "a geospatial analyst describing site context, topography and access", "geospatial_context"},
	{"risk_mitigation_agent", "a risk manager building the project risk register with mitigations", "risk_assessment_report"},
	{"optioneering_strategy_agent", "a strategy consultant comparing development scenarios", "strategic_options"},
	{"massing_facade_agent", "a concept architect proposing massing and facade direction", "concept_massing"},
	{"space_planning_adjacency_agent", "a space planner laying out program areas and adjacencies", "space_plan"},
	{"interior_design_agent", "an interior designer defining the interior concept", "interior_concept"},
	{"structural_design_agent", "a structural engineer selecting the structural system and materials", "structural_strategy"},
	{"mep_systems_agent", "an MEP engineer outlining mechanical, electrical and plumbing systems", "mep_strategy"},
	{"sustainability_energy_agent", "a sustainability consultant setting the energy and certification strategy", "sustainability_strategy"},
	{"cost_schedule_agent", "a cost planner producing the cost plan and schedule baseline", "cost_schedule_baseline"},
	{"bim_cad_documentation_agent", "a BIM manager coordinating model and drawing documentation", "bim_documentation"},
	{"architectural_detailing_agent", "an architect developing construction details", "architectural_details"},
	{"visualization_agent", "a visualization artist describing renders of the design", "visualization_package"},
	{"clash_coordination_agent", "a BIM coordinator reporting clash detection findings", "clash_report"},
	{"code_standards_agent", "a code consultant checking building-code conformance", "code_compliance_report"},
	{"compliance_and_construction_agent", "a compliance officer reviewing permits and constructability", "construction_compliance"},
	{"procurement_supply_chain_agent", "a procurement lead planning packages and the supply chain", "procurement_strategy"},
	{"site_logistics_safety_agent", "a site manager planning logistics and the safety regime", "site_logistics_plan"},
	{"construction_monitoring_cv_agent", "a monitoring engineer specifying camera-based progress tracking", "monitoring_plan"},
	{"change_control_claims_agent", "a contracts manager setting up change control and claims handling", "change_control_plan"},
	{"commissioning_asset_agent", "a commissioning manager capturing handover and lessons learned", "lessons_learned_report"},
}

// Registry resolves agent identifiers to capabilities.
type Registry struct {
	capabilities map[string]workflow.Capability
}

// NewRegistry builds the full agent table on top of a generator client.
func NewRegistry(gen genai.Generator, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{capabilities: make(map[string]workflow.Capability, len(specs))}
	for _, sp := range specs {
		r.Register(&generative{spec: sp, gen: gen, logger: logger})
	}
	return r
}

// Register adds or replaces a capability.
func (r *Registry) Register(c workflow.Capability) {
	r.capabilities[c.Name()] = c
}

// Resolve returns the capability for an identifier.
func (r *Registry) Resolve(name string) (workflow.Capability, bool) {
	c, ok := r.capabilities[name]
	return c, ok
}

// Names returns the registered identifiers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	return names
}
