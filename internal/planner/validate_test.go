package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConfidentSingleStep(t *testing.T) {
	for name, candidate := range map[string]map[string]any{
		"explicit false":   {"isMultiStep": false},
		"missing flag":     {"steps": []any{map[string]any{"action": "a"}, map[string]any{"action": "b"}}},
		"flag not bool":    {"isMultiStep": "yes", "steps": []any{}},
		"steps not array":  {"isMultiStep": true, "steps": "a, b"},
		"single step only": {"isMultiStep": true, "steps": []any{map[string]any{"action": "a"}}},
	} {
		t.Run(name, func(t *testing.T) {
			plan := normalize(candidate)
			assert.False(t, plan.MultiStep)
			assert.False(t, plan.Fallback, "a confident single-step classification is not a fallback")
			assert.Empty(t, plan.Steps)
		})
	}
}

func TestNormalizeAssignsPositionalStepNumbers(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"steps": []any{
			map[string]any{"action": "first"},
			map[string]any{"action": "second"},
			map[string]any{"action": "third"},
		},
	})

	require.True(t, plan.MultiStep)
	require.Len(t, plan.Steps, 3)
	for i, step := range plan.Steps {
		assert.Equal(t, i+1, step.Number)
	}
}

func TestNormalizeKeepsExplicitIntegerStepNumbers(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"steps": []any{
			map[string]any{"stepNumber": float64(10), "action": "a"},
			map[string]any{"stepNumber": 2.5, "action": "b"},
		},
	})

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, 10, plan.Steps[0].Number)
	// Non-integral numbers fall back to the 1-based position.
	assert.Equal(t, 2, plan.Steps[1].Number)
}

func TestNormalizePreservesStepOrder(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"steps": []any{
			map[string]any{"action": "A"},
			map[string]any{"action": "B"},
			map[string]any{"action": "C"},
		},
	})

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "A", plan.Steps[0].Action)
	assert.Equal(t, "B", plan.Steps[1].Action)
	assert.Equal(t, "C", plan.Steps[2].Action)
}

func TestNormalizeMissingToolBecomesNil(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"steps": []any{
			map[string]any{"action": "text only"},
			map[string]any{"action": "with tool", "tool": "reminder"},
			map[string]any{"action": "blank tool", "tool": "   "},
		},
	})

	require.Len(t, plan.Steps, 3)
	assert.Nil(t, plan.Steps[0].Tool)
	require.NotNil(t, plan.Steps[1].Tool)
	assert.Equal(t, "reminder", *plan.Steps[1].Tool)
	assert.Nil(t, plan.Steps[2].Tool, "blank tool identifiers normalize to nil, never empty string")
}

func TestNormalizeSynthesizesActionPlaceholder(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"steps": []any{
			map[string]any{},
			map[string]any{"action": ""},
		},
	})

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "Step 1", plan.Steps[0].Action)
	assert.Equal(t, "Step 2", plan.Steps[1].Action)
}

func TestNormalizeDefaultsParametersToEmptyMap(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"steps": []any{
			map[string]any{"action": "a", "parameters": "not a map"},
			map[string]any{"action": "b", "parameters": map[string]any{"city": "Lisbon"}},
		},
	})

	require.Len(t, plan.Steps, 2)
	assert.NotNil(t, plan.Steps[0].Parameters)
	assert.Empty(t, plan.Steps[0].Parameters)
	assert.Equal(t, "Lisbon", plan.Steps[1].Parameters["city"])
}

func TestNormalizePassesReasoningThrough(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"reasoning":   "two dependent lookups",
		"steps": []any{
			map[string]any{"action": "a"},
			map[string]any{"action": "b"},
		},
	})

	assert.Equal(t, "two dependent lookups", plan.Reasoning)
}

func TestNormalizeToleratesMalformedStepEntries(t *testing.T) {
	plan := normalize(map[string]any{
		"isMultiStep": true,
		"steps": []any{
			"not an object",
			map[string]any{"action": "real"},
		},
	})

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "Step 1", plan.Steps[0].Action)
	assert.Equal(t, "real", plan.Steps[1].Action)
}
