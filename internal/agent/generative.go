package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mrmohammadalamin/architect-multi-agent/internal/genai"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/prompts"
	"github.com/mrmohammadalamin/architect-multi-agent/internal/workflow"
)

// generative is the common agent shape: build a prompt, call the generative
// service, parse the JSON reply, write it as the stage artifact.
type generative struct {
	spec   spec
	gen    genai.Generator
	logger *slog.Logger
}

func (g *generative) Name() string { return g.spec.name }

func (g *generative) Execute(ctx context.Context, input map[string]any, sink workflow.ArtifactSink) (workflow.AgentResult, error) {
	prompt := prompts.Agent(g.spec.role, g.spec.deliverable, input)

	text, err := g.gen.Generate(ctx, prompt)
	if err != nil {
		return workflow.AgentResult{}, fmt.Errorf("%s: %w", g.spec.name, err)
	}

	payload := g.parseReply(text)
	path, err := sink.WriteJSON(g.spec.deliverable, payload)
	if err != nil {
		return workflow.AgentResult{}, fmt.Errorf("%s: write %s: %w", g.spec.name, g.spec.deliverable, err)
	}

	return workflow.AgentResult{
		Agent:  g.spec.name,
		Status: workflow.StatusSuccess,
		Artifacts: []workflow.ArtifactRef{
			{Type: "json", Name: g.spec.deliverable + ".json", Path: path},
		},
	}, nil
}

// parseReply extracts the JSON object from the reply. A reply with no usable
// JSON degrades to a raw-text wrapper so the stage still yields an artifact.
func (g *generative) parseReply(text string) map[string]any {
	if raw := genai.ExtractJSON(text); raw != nil {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err == nil {
			return payload
		}
	}
	g.logger.Warn("reply carried no JSON object, wrapping raw text", "agent", g.spec.name)
	return map[string]any{"raw_text": text}
}
