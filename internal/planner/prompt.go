package planner

import "fmt"

// decompositionContract is the system prompt for the planning call. The
// field names here are load-bearing: extraction and validation key off
// isMultiStep, steps, stepNumber, tool, action and parameters.
const decompositionContract = `You decompose user requests into discrete, ordered steps.

Classification rules:
- A request is multi-step ONLY when it requires two or more dependent operations
  (the output of one step feeds the next, or the steps must run in a fixed order).
- A single lookup, a single command, or plain conversation is single-step.
- When in doubt, prefer single-step. Fewer steps means faster answers.

Output EXACTLY one JSON object and nothing else (no markdown, no prose):
{
  "isMultiStep": true,
  "reasoning": "<one sentence on why this needs multiple steps>",
  "steps": [
    {
      "stepNumber": 1,
      "tool": "<tool identifier, or omit for a text-only step>",
      "action": "<one-sentence description of what this step does>",
      "parameters": {"<name>": "<value>"}
    }
  ]
}

For a single-step request output exactly: {"isMultiStep": false}

Rules:
- Number steps from 1 in execution order.
- Omit "tool" when a step needs no tool (the agent answers with text).
- Put everything a step needs into "parameters"; later steps automatically
  receive the outputs of earlier ones.`

// BuildPrompt renders a user request into the planning prompt. Pure; any
// input string is acceptable, including empty.
func BuildPrompt(request string) string {
	return fmt.Sprintf("Decompose the following request.\n\nRequest:\n%s", request)
}
