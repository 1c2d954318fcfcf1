// Package planner turns a free-form user request into an ordered sequence of
// tool invocations by asking a language model for a structured decomposition
// and recovering a valid plan from its (often messy) raw output.
package planner

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"courier/internal/providers"
)

// Step is one validated entry of a multi-step plan. Tool is nil for
// text-only steps. Parameters is an open mapping; tools enforce their own
// schemas at execution time.
type Step struct {
	Number     int            `json:"stepNumber"`
	Tool       *string        `json:"tool"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

// Plan is the outcome of a planning call. Exactly one of three shapes:
//   - MultiStep=true: at least two validated steps, in execution order.
//   - MultiStep=false, Fallback=false: the model confidently classified the
//     request as single-step.
//   - MultiStep=false, Fallback=true: no usable plan could be recovered
//     (model call failed, no structured payload, or unrepairable syntax);
//     the caller must treat the request as a single opaque step.
type Plan struct {
	MultiStep bool   `json:"isMultiStep"`
	Steps     []Step `json:"steps,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// Generator is the text-generation collaborator. providers.Provider
// satisfies it.
type Generator interface {
	Complete(ctx context.Context, model string, messages []providers.Message, tools []providers.Tool) (string, error)
}

type Planner struct {
	generator Generator
	model     string
	logger    *zap.Logger
}

// New builds a planner that decomposes requests with the given model. The
// model should be a fast one: planning gates every multi-step request and
// must not dominate latency.
func New(generator Generator, model string, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		generator: generator,
		model:     model,
		logger:    logger,
	}
}

// Plan decomposes a user request into a validated multi-step plan. It never
// returns an error: planning is advisory, and every failure mode collapses
// into a fallback result so the caller can run the request as a single step.
func (p *Planner) Plan(ctx context.Context, request string) Plan {
	if p == nil || p.generator == nil {
		return Plan{Fallback: true}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	messages := []providers.Message{
		{Role: "system", Content: decompositionContract},
		{Role: "user", Content: BuildPrompt(request)},
	}

	raw, err := p.generator.Complete(ctx, p.model, messages, nil)
	if err != nil || strings.TrimSpace(raw) == "" {
		p.logger.Debug("planner model call failed, falling back to single-step",
			zap.String("model", p.model),
			zap.Error(err),
		)
		return Plan{Fallback: true}
	}

	candidate, ok := parseCandidate(raw)
	if !ok {
		p.logger.Debug("no usable plan in model output, falling back to single-step",
			zap.Int("raw_len", len(raw)),
		)
		return Plan{Fallback: true}
	}

	plan := normalize(candidate)
	if plan.MultiStep {
		p.logger.Debug("multi-step plan accepted", zap.Int("steps", len(plan.Steps)))
	} else {
		p.logger.Debug("model classified request as single-step")
	}
	return plan
}
