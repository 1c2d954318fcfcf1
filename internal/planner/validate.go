package planner

import (
	"fmt"
	"math"
	"strings"
)

// normalize enforces shape invariants on a parsed candidate and fills
// defaults. It always produces a well-formed Plan. A candidate that is not
// multi-step, has no step sequence, or has fewer than two steps is a
// confident single-step classification by the model, not a fallback.
func normalize(candidate map[string]any) Plan {
	multi, _ := candidate["isMultiStep"].(bool)
	rawSteps, ok := candidate["steps"].([]any)
	if !multi || !ok || len(rawSteps) < 2 {
		return Plan{}
	}

	steps := make([]Step, 0, len(rawSteps))
	for i, raw := range rawSteps {
		fields, _ := raw.(map[string]any)
		steps = append(steps, normalizeStep(i, fields))
	}

	reasoning, _ := candidate["reasoning"].(string)
	return Plan{
		MultiStep: true,
		Steps:     steps,
		Reasoning: reasoning,
	}
}

func normalizeStep(index int, fields map[string]any) Step {
	step := Step{
		Number:     index + 1,
		Action:     fmt.Sprintf("Step %d", index+1),
		Parameters: map[string]any{},
	}

	// encoding/json decodes all numbers as float64; only accept integral
	// step numbers.
	if n, ok := fields["stepNumber"].(float64); ok && n == math.Trunc(n) {
		step.Number = int(n)
	}
	if tool, ok := fields["tool"].(string); ok {
		if tool = strings.TrimSpace(tool); tool != "" {
			step.Tool = &tool
		}
	}
	if action, ok := fields["action"].(string); ok && strings.TrimSpace(action) != "" {
		step.Action = action
	}
	if params, ok := fields["parameters"].(map[string]any); ok {
		step.Parameters = params
	}
	return step
}
