// Package agent routes inbound chat messages through planning, tool
// execution and model completion, and persists the resulting conversation
// turns.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"courier/internal/memory"
	"courier/internal/planner"
	"courier/internal/providers"
	"courier/internal/state"
	"courier/internal/tools"
)

const assistantContract = `You are courier, a helpful assistant reachable from chat surfaces.
Answer in plain text suitable for a chat message. Be concise.
When tool results are provided, ground your answer in them instead of guessing.`

const recallLimit = 4

// Inbound is one user message arriving from a surface.
type Inbound struct {
	ChatID  string
	Surface string
	Text    string
}

type Router struct {
	Provider providers.Provider
	Planner  *planner.Planner
	Tools    *tools.Registry
	DB       *state.DB
	Memory   *memory.Store
	Embedder memory.Embedder
	Model    string
	Logger   *zap.Logger
}

var ErrRouterNotReady = errors.New("router is not initialized")

func NewRouter(provider providers.Provider, pl *planner.Planner, registry *tools.Registry, db *state.DB, model string, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		Provider: provider,
		Planner:  pl,
		Tools:    registry,
		DB:       db,
		Model:    model,
		Logger:   logger,
	}
}

func (r *Router) Validate() error {
	if r == nil {
		return ErrRouterNotReady
	}
	if r.Provider == nil {
		return errors.New("router provider is not configured")
	}
	if strings.TrimSpace(r.Model) == "" {
		return errors.New("router model is empty")
	}
	if r.Tools == nil {
		return errors.New("router tool registry is not configured")
	}
	return nil
}

// Handle runs one conversation turn and returns the assistant reply. Progress
// is reported through sink; pass nil when no surface is listening.
func (r *Router) Handle(ctx context.Context, in Inbound, sink Sink) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.Validate(); err != nil {
		return "", err
	}

	request := Scrub(strings.TrimSpace(in.Text))
	if request == "" {
		return "", errors.New("empty request")
	}

	var session *state.Session
	if r.DB != nil {
		var err error
		session, err = r.DB.SessionForChat(ctx, in.ChatID, in.Surface)
		if err != nil {
			return "", fmt.Errorf("load session: %w", err)
		}
	}

	recalled := r.recall(ctx, session, request)

	sink.emit(EventPlanning, 0, "")
	plan := r.consultPlanner(ctx, request)
	r.auditPlan(ctx, session, request, plan)
	if sink != nil && plan.MultiStep && len(plan.Steps) >= 2 {
		sink(Event{Type: EventPlanResolved, Payload: plan, At: time.Now()})
	}

	var reply string
	var lastTool string
	var err error
	if plan.MultiStep && len(plan.Steps) >= 2 {
		reply, lastTool, err = r.executePlan(ctx, session, request, recalled, plan, sink)
	} else {
		reply, err = r.respondDirect(ctx, session, request, recalled, sink)
	}
	if err != nil {
		sink.emit(EventError, 0, err.Error())
		return "", normalizeCancellationErr(err)
	}

	reply = Scrub(reply)
	r.persistTurn(ctx, session, request, reply, lastTool)
	sink.emit(EventDone, 0, "")
	return reply, nil
}

// consultPlanner shields the turn from a missing planner: no planner means
// every request is treated as a single step.
func (r *Router) consultPlanner(ctx context.Context, request string) planner.Plan {
	if r.Planner == nil {
		return planner.Plan{}
	}
	return r.Planner.Plan(ctx, request)
}

func (r *Router) auditPlan(ctx context.Context, session *state.Session, request string, plan planner.Plan) {
	r.Logger.Debug("plan resolved",
		zap.Bool("multi_step", plan.MultiStep),
		zap.Bool("fallback", plan.Fallback),
		zap.Int("steps", len(plan.Steps)),
	)
	if r.DB == nil || session == nil {
		return
	}
	err := r.DB.SavePlanAudit(ctx, state.PlanAudit{
		SessionID: session.ID,
		Request:   request,
		MultiStep: plan.MultiStep,
		Fallback:  plan.Fallback,
		StepCount: len(plan.Steps),
	})
	if err != nil {
		r.Logger.Warn("plan audit write failed", zap.Error(err))
	}
}

// executePlan walks the plan in order. Steps naming a registered tool run it;
// the rest are answered by the model. Each step sees the results of the steps
// before it, and a final completion folds everything into one reply.
func (r *Router) executePlan(ctx context.Context, session *state.Session, request, recalled string, plan planner.Plan, sink Sink) (string, string, error) {
	var results []string
	var lastTool string

	for _, step := range plan.Steps {
		if err := checkContextCancelled(ctx); err != nil {
			return "", "", err
		}
		sink.emit(EventStepStarted, step.Number, step.Action)

		var result string
		var err error
		if step.Tool != nil {
			result, err = r.Tools.Execute(ctx, *step.Tool, step.Parameters)
			if err == nil {
				lastTool = *step.Tool
				sink.emit(EventToolRan, step.Number, *step.Tool)
			}
		} else {
			result, err = r.completeStep(ctx, session, recalled, request, results, step)
		}
		if err != nil {
			r.Logger.Warn("plan step failed",
				zap.Int("step", step.Number),
				zap.String("action", step.Action),
				zap.Error(err),
			)
			result = fmt.Sprintf("step failed: %v", err)
		}
		results = append(results, fmt.Sprintf("Step %d (%s): %s", step.Number, step.Action, result))
	}

	sink.emit(EventReplying, 0, "")
	reply, err := r.synthesize(ctx, session, recalled, request, results)
	if err != nil {
		return "", "", err
	}
	return reply, lastTool, nil
}

func (r *Router) completeStep(ctx context.Context, session *state.Session, recalled, request string, prior []string, step planner.Step) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original request: %s\n", request)
	if len(prior) > 0 {
		sb.WriteString("Completed steps so far:\n")
		for _, result := range prior {
			sb.WriteString(result)
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "Now perform step %d: %s", step.Number, step.Action)

	messages := r.buildMessages(ctx, session, recalled, sb.String())
	return r.Provider.Complete(ctx, r.Model, messages, nil)
}

func (r *Router) synthesize(ctx context.Context, session *state.Session, recalled, request string, results []string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original request: %s\n\nTool and step results:\n", request)
	for _, result := range results {
		sb.WriteString(Scrub(result))
		sb.WriteString("\n")
	}
	sb.WriteString("\nWrite the final reply to the user.")

	messages := r.buildMessages(ctx, session, recalled, sb.String())
	return r.Provider.Complete(ctx, r.Model, messages, nil)
}

func (r *Router) respondDirect(ctx context.Context, session *state.Session, request, recalled string, sink Sink) (string, error) {
	sink.emit(EventReplying, 0, "")
	messages := r.buildMessages(ctx, session, recalled, request)
	return r.Provider.Complete(ctx, r.Model, messages, r.Tools.Describe())
}

func (r *Router) buildMessages(ctx context.Context, session *state.Session, recalled, userContent string) []providers.Message {
	messages := []providers.Message{
		{Role: "system", Content: assistantContract},
	}
	if recalled != "" {
		messages = append(messages, providers.Message{
			Role:    "system",
			Content: "Relevant earlier conversation:\n" + recalled,
		})
	}

	if r.DB != nil && session != nil {
		history, err := r.DB.RecentMessages(ctx, session.ID, state.DefaultHistoryLimit)
		if err != nil {
			r.Logger.Warn("history load failed", zap.Error(err))
		}
		for _, h := range history {
			messages = append(messages, providers.Message{Role: h.Role, Content: h.Content})
		}
	}

	messages = append(messages, providers.Message{Role: "user", Content: Scrub(userContent)})
	return messages
}

func (r *Router) recall(ctx context.Context, session *state.Session, request string) string {
	if r.Memory == nil || r.Embedder == nil || session == nil {
		return ""
	}

	embedding, err := r.Embedder.Embed(ctx, request)
	if err != nil {
		r.Logger.Debug("recall embedding failed", zap.Error(err))
		return ""
	}
	turns, err := r.Memory.Recall(ctx, session.ID, embedding, recallLimit)
	if err != nil {
		r.Logger.Debug("recall lookup failed", zap.Error(err))
		return ""
	}
	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, turn := range turns {
		fmt.Fprintf(&sb, "%s: %s\n", turn.Role, Scrub(turn.Content))
	}
	return sb.String()
}

func (r *Router) persistTurn(ctx context.Context, session *state.Session, request, reply, lastTool string) {
	if r.DB == nil || session == nil {
		return
	}

	if err := r.DB.SaveMessage(ctx, session.ID, "user", request, 0); err != nil {
		r.Logger.Warn("persist user message failed", zap.Error(err))
	}
	if err := r.DB.SaveMessage(ctx, session.ID, "assistant", reply, 0); err != nil {
		r.Logger.Warn("persist assistant message failed", zap.Error(err))
	}
	if err := r.DB.TrimHistory(ctx, session.ID, state.DefaultHistoryLimit); err != nil {
		r.Logger.Warn("history trim failed", zap.Error(err))
	}
	if lastTool != "" {
		if err := r.DB.SetLastUsedTool(ctx, session.ID, lastTool); err != nil {
			r.Logger.Warn("last used tool update failed", zap.Error(err))
		}
	}

	r.rememberTurn(ctx, session, "user", request)
	r.rememberTurn(ctx, session, "assistant", reply)
}

func (r *Router) rememberTurn(ctx context.Context, session *state.Session, role, content string) {
	if r.Memory == nil || r.Embedder == nil {
		return
	}
	embedding, err := r.Embedder.Embed(ctx, content)
	if err != nil {
		r.Logger.Debug("memory embedding failed", zap.Error(err))
		return
	}
	turn := memory.Turn{
		ID:        fmt.Sprintf("%s:%s:%d", session.ID, role, time.Now().UnixNano()),
		SessionID: session.ID,
		Role:      role,
		Content:   content,
	}
	if err := r.Memory.SaveTurn(ctx, turn, embedding); err != nil {
		r.Logger.Debug("memory write failed", zap.Error(err))
	}
}
