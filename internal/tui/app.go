package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"courier/internal/agent"
	"courier/internal/planner"
)

type turnDoneMsg struct {
	reply string
	err   error
}

type agentEventMsg agent.Event

// App is the top-level bubbletea model: a chat pane plus a plan modal that
// can be pulled up while a multi-step turn runs.
type App struct {
	chat   *ChatModel
	plan   *PlanModal
	router *agent.Router
	chatID string

	width  int
	height int
	busy   bool

	events chan agent.Event
	done   chan turnDoneMsg
}

func NewApp(router *agent.Router, chatID string) *App {
	if strings.TrimSpace(chatID) == "" {
		chatID = "local"
	}
	return &App{
		chat:   NewChatModel(),
		plan:   NewPlanModal(),
		router: router,
		chatID: chatID,
	}
}

func (a *App) Init() tea.Cmd {
	return a.chat.Init()
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.chat.SetSize(msg.Width, msg.Height)
		a.plan.SetSize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "ctrl+p":
			if a.plan.HasPlan() {
				a.plan.Toggle()
			}
			return a, nil
		case "esc":
			if a.plan.Visible {
				a.plan.Close()
				return a, nil
			}
		case "enter":
			if a.plan.Visible {
				return a, nil
			}
			return a, a.submit()
		}
		if a.plan.Visible {
			return a, a.plan.Update(msg)
		}

	case agentEventMsg:
		a.applyEvent(agent.Event(msg))
		return a, a.waitActivity()

	case turnDoneMsg:
		a.busy = false
		a.chat.SetLoading(false, "")
		if msg.err != nil {
			if !agent.IsUserCancelled(msg.err) {
				a.chat.AddMessage("System", "error: "+msg.err.Error())
			}
		} else {
			a.chat.AddMessage("Courier", msg.reply)
		}
		return a, nil

	case LoadingTickMsg:
		if a.busy {
			return a, loadingTickCmd()
		}
		return a, nil
	}

	model, cmd := a.chat.Update(msg)
	if chat, ok := model.(*ChatModel); ok {
		a.chat = chat
	}
	return a, cmd
}

func (a *App) View() string {
	if a.plan.Visible {
		modal := a.plan.View()
		if a.width > 0 && a.height > 0 {
			return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, modal)
		}
		return modal
	}
	return a.chat.View()
}

func (a *App) submit() tea.Cmd {
	if a.busy {
		return nil
	}
	text := strings.TrimSpace(a.chat.GetInputValue())
	if text == "" {
		return nil
	}
	a.chat.ClearInput()
	a.chat.AddMessage("User", text)
	a.chat.SetLoading(true, "planning")
	a.busy = true
	a.plan.SetPlan(planner.Plan{})

	a.events = make(chan agent.Event, 64)
	a.done = make(chan turnDoneMsg, 1)
	events, done := a.events, a.done

	router := a.router
	chatID := a.chatID
	go func() {
		reply, err := router.Handle(context.Background(), agent.Inbound{
			ChatID:  chatID,
			Surface: "tui",
			Text:    text,
		}, func(e agent.Event) {
			select {
			case events <- e:
			default:
			}
		})
		done <- turnDoneMsg{reply: reply, err: err}
		close(events)
	}()

	return tea.Batch(a.waitActivity(), loadingTickCmd())
}

// waitActivity delivers the next router event, or the final result once the
// event stream closes.
func (a *App) waitActivity() tea.Cmd {
	events, done := a.events, a.done
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		if e, ok := <-events; ok {
			return agentEventMsg(e)
		}
		return <-done
	}
}

func (a *App) applyEvent(e agent.Event) {
	switch e.Type {
	case agent.EventPlanning:
		a.chat.SetLoading(true, "planning")
	case agent.EventPlanResolved:
		if plan, ok := e.Payload.(planner.Plan); ok {
			a.plan.SetPlan(plan)
		}
	case agent.EventStepStarted:
		detail := fmt.Sprintf("step %d", e.Step)
		if strings.TrimSpace(e.Detail) != "" {
			detail = e.Detail
		}
		a.chat.SetLoading(true, detail)
		a.plan.MarkStep(e.Step)
	case agent.EventToolRan:
		a.plan.MarkStep(e.Step + 1)
	case agent.EventReplying:
		a.chat.SetLoading(true, "writing reply")
	}
}
