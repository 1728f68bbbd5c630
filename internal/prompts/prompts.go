// Package prompts builds the prompt strings the generative agents send.
package prompts

import (
	"encoding/json"
	"fmt"
)

// contextBudget caps how much aggregated input is inlined into a prompt.
const contextBudget = 24000

// Agent returns the prompt for a specialist agent: its role, the aggregated
// project context, and the required JSON reply shape.
func Agent(role, deliverable string, input map[string]any) string {
	return fmt.Sprintf(`You are %s on a construction project planning team.

## Project Context
The following JSON holds the client intake data and every artifact produced by
earlier pipeline stages:

%s

## Task
Produce the "%s" deliverable for the current stage. Base it strictly on the
project context; if a required upstream artifact is missing, state reasonable
assumptions inside the deliverable instead of failing.

Reply with a single JSON object and nothing else.`, role, contextJSON(input), deliverable)
}

// contextJSON renders the input mapping as indented JSON, truncated to the
// context budget.
func contextJSON(input map[string]any) string {
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "{}"
	}
	if len(data) > contextBudget {
		data = append(data[:contextBudget], []byte("\n… (truncated)")...)
	}
	return string(data)
}
