package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidateRejectsTextWithoutObject(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not find any steps here.",
		"steps: 1, 2, 3",
		"]]}}",
	} {
		candidate, ok := parseCandidate(raw)
		assert.False(t, ok, "raw=%q", raw)
		assert.Nil(t, candidate)
	}
}

func TestParseCandidateAcceptsBareObject(t *testing.T) {
	candidate, ok := parseCandidate(`{"isMultiStep": true, "steps": [{"action": "a"}, {"action": "b"}]}`)
	require.True(t, ok)
	assert.Equal(t, true, candidate["isMultiStep"])
}

func TestParseCandidateIsFenceAgnostic(t *testing.T) {
	payload := `{"isMultiStep": true, "steps": [{"action": "a"}, {"action": "b"}]}`
	wrapped := "Sure! Here is the breakdown you asked for:\n\n```json\n" + payload + "\n```\nLet me know if you want changes."

	fromBare, ok := parseCandidate(payload)
	require.True(t, ok)
	fromWrapped, ok := parseCandidate(wrapped)
	require.True(t, ok)

	assert.Equal(t, fromBare, fromWrapped)
}

func TestParseCandidateFindsBalancedSpanInsideProse(t *testing.T) {
	raw := `The plan is {"isMultiStep": false} and that is final. {"noise": true}`
	candidate, ok := parseCandidate(raw)
	require.True(t, ok)
	assert.Equal(t, false, candidate["isMultiStep"])
	assert.NotContains(t, candidate, "noise")
}

func TestParseCandidateRepairsTruncatedOutput(t *testing.T) {
	// Two open objects and one open array, ending inside a string value.
	raw := `{"isMultiStep": true, "steps": [{"stepNumber": 1, "action": "look up the address"}, {"stepNumber": 2, "tool": "sen`
	candidate, ok := parseCandidate(raw)
	require.True(t, ok)

	steps, ok := candidate["steps"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, 2)
}

func TestParseCandidateDiscardsTrailingElision(t *testing.T) {
	raw := `{"isMultiStep": true, "steps": [{"action": "first"}, {"action": "second"}, ...`
	candidate, ok := parseCandidate(raw)
	require.True(t, ok)

	steps, ok := candidate["steps"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, 2)
}

func TestParseCandidateRepairPassFixesTrailingCommas(t *testing.T) {
	raw := `{"isMultiStep": true, "steps": [{"action": "a"}, {"action": "b"},],}`
	candidate, ok := parseCandidate(raw)
	require.True(t, ok)

	steps, ok := candidate["steps"].([]any)
	require.True(t, ok)
	assert.Len(t, steps, 2)
}

func TestParseCandidateSecondFailureIsTerminal(t *testing.T) {
	// Interior corruption: no amount of trailing-comma stripping fixes a
	// missing colon.
	_, ok := parseCandidate(`{"isMultiStep" true, "steps": []}`)
	assert.False(t, ok)
}

func TestStripTrailingCommasIsIdempotentOnValidText(t *testing.T) {
	valid := `{"a": [1, 2, 3], "b": {"c": "text with , ] inside"}}`
	once := stripTrailingCommas(valid)
	assert.Equal(t, valid, once)
	assert.Equal(t, once, stripTrailingCommas(once))
}

func TestStripTrailingCommasLeavesStringsIntact(t *testing.T) {
	s := `{"action": "wait, then stop ,}", "n": 1,}`
	got := stripTrailingCommas(s)
	assert.Equal(t, `{"action": "wait, then stop ,}", "n": 1}`, got)
	assert.True(t, json.Valid([]byte(got)))
}

func TestRemoveElisionsKeepsNumbersAndStringContent(t *testing.T) {
	s := `{"note": "to be continued...", "price": 1.25, "rest": [1, ...]}`
	got := removeElisions(s)
	assert.Equal(t, `{"note": "to be continued...", "price": 1.25, "rest": [1, ]}`, got)
}

func TestExtractObjectSpanReportsOpenDelimitersInnermostLast(t *testing.T) {
	span, open, inString, found := extractObjectSpan(`{"steps": [{"tool": "sen`)
	require.True(t, found)
	assert.True(t, inString)
	assert.Equal(t, []byte{'{', '[', '{'}, open)
	assert.Equal(t, `{"steps": [{"tool": "sen`, span)
}

func TestRepairTruncationClosesInnermostFirst(t *testing.T) {
	repaired := repairTruncation(`{"steps": [{"tool": "sen`, []byte{'{', '[', '{'}, true)
	assert.Equal(t, `{"steps": [{"tool": "sen"}]}`, repaired)
	assert.True(t, json.Valid([]byte(repaired)))
}

func TestExtractObjectSpanIgnoresBracesInsideStrings(t *testing.T) {
	span, open, inString, found := extractObjectSpan(`{"action": "use {curly} and [square] freely"}`)
	require.True(t, found)
	assert.False(t, inString)
	assert.Empty(t, open)
	assert.True(t, json.Valid([]byte(span)))
}
