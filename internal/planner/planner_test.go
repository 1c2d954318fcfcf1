package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/providers"
)

type fakeGenerator struct {
	text  string
	err   error
	calls int

	lastModel    string
	lastMessages []providers.Message
}

func (f *fakeGenerator) Complete(_ context.Context, model string, messages []providers.Message, _ []providers.Tool) (string, error) {
	f.calls++
	f.lastModel = model
	f.lastMessages = messages
	return f.text, f.err
}

func TestPlanReturnsValidatedMultiStepPlan(t *testing.T) {
	gen := &fakeGenerator{text: `{"isMultiStep": true, "steps": [
		{"tool": "search", "action": "find the venue", "parameters": {"query": "venue"}},
		{"action": "summarize the options"}
	]}`}
	p := New(gen, "fast-model", nil)

	plan := p.Plan(context.Background(), "find a venue and summarize the options")

	require.True(t, plan.MultiStep)
	assert.False(t, plan.Fallback)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, 1, plan.Steps[0].Number)
	assert.Equal(t, 2, plan.Steps[1].Number)
	require.NotNil(t, plan.Steps[0].Tool)
	assert.Equal(t, "search", *plan.Steps[0].Tool)
	assert.Nil(t, plan.Steps[1].Tool)
	assert.Equal(t, "fast-model", gen.lastModel)
}

func TestPlanSendsDecompositionPrompt(t *testing.T) {
	gen := &fakeGenerator{text: `{"isMultiStep": false}`}
	p := New(gen, "fast-model", nil)

	p.Plan(context.Background(), "what time is it?")

	require.Len(t, gen.lastMessages, 2)
	assert.Equal(t, "system", gen.lastMessages[0].Role)
	assert.Contains(t, gen.lastMessages[0].Content, "isMultiStep")
	assert.Equal(t, "user", gen.lastMessages[1].Role)
	assert.Contains(t, gen.lastMessages[1].Content, "what time is it?")
}

func TestPlanModelErrorFallsBackWithoutParsing(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("timeout")}
	p := New(gen, "fast-model", nil)

	plan := p.Plan(context.Background(), "do three things")

	assert.False(t, plan.MultiStep)
	assert.True(t, plan.Fallback)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, 1, gen.calls, "planning never retries the model call")
}

func TestPlanEmptyModelTextFallsBack(t *testing.T) {
	gen := &fakeGenerator{text: "   \n"}
	p := New(gen, "fast-model", nil)

	plan := p.Plan(context.Background(), "do three things")
	assert.True(t, plan.Fallback)
}

func TestPlanProseWithoutObjectFallsBack(t *testing.T) {
	gen := &fakeGenerator{text: "This request is simple enough to answer directly."}
	p := New(gen, "fast-model", nil)

	plan := p.Plan(context.Background(), "hello")
	assert.False(t, plan.MultiStep)
	assert.True(t, plan.Fallback)
}

func TestPlanConfidentSingleStepIsNotAFallback(t *testing.T) {
	gen := &fakeGenerator{text: `{"isMultiStep": false}`}
	p := New(gen, "fast-model", nil)

	plan := p.Plan(context.Background(), "hello")
	assert.False(t, plan.MultiStep)
	assert.False(t, plan.Fallback)
}

func TestPlanNilPlannerAndNilGeneratorFallBack(t *testing.T) {
	var p *Planner
	assert.True(t, p.Plan(context.Background(), "x").Fallback)

	p = New(nil, "fast-model", nil)
	assert.True(t, p.Plan(context.Background(), "x").Fallback)
}

func TestPlanAcceptsFencedOutputWithCommentary(t *testing.T) {
	gen := &fakeGenerator{text: "Here is the plan:\n```json\n" +
		`{"isMultiStep": true, "steps": [{"action": "a"}, {"action": "b"}]}` +
		"\n```\nHope that helps!"}
	p := New(gen, "fast-model", nil)

	plan := p.Plan(context.Background(), "two things please")
	require.True(t, plan.MultiStep)
	assert.Len(t, plan.Steps, 2)
}

func TestBuildPromptNeverFails(t *testing.T) {
	for _, request := range []string{"", "plain request", strings.Repeat("x", 10_000), "unicode 🚀 {braces}"} {
		prompt := BuildPrompt(request)
		assert.Contains(t, prompt, request)
	}
}
