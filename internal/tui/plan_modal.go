package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"courier/internal/planner"
)

var (
	planModalBoxStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("75")).
				Background(lipgloss.Color("235")).
				Padding(1, 2)
	planModalTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	planModalHintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	planModalBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	planStepDoneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	planStepActiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
)

// PlanModal shows the active multi-step plan and which step is running.
type PlanModal struct {
	Visible     bool
	plan        planner.Plan
	currentStep int
	width       int
	height      int
	viewport    viewport.Model
}

func NewPlanModal() *PlanModal {
	return &PlanModal{viewport: viewport.New(70, 14)}
}

func (m *PlanModal) SetSize(width, height int) {
	if m == nil || width <= 0 || height <= 0 {
		return
	}
	m.width = width
	m.height = height

	bodyWidth := width - 12
	if bodyWidth < 36 {
		bodyWidth = 36
	}
	bodyHeight := height - 12
	if bodyHeight < 8 {
		bodyHeight = 8
	}
	m.viewport.Width = bodyWidth
	m.viewport.Height = bodyHeight
	m.refresh()
}

func (m *PlanModal) SetPlan(plan planner.Plan) {
	if m == nil {
		return
	}
	m.plan = plan
	m.currentStep = 0
	m.refresh()
}

// MarkStep records the step number currently executing.
func (m *PlanModal) MarkStep(number int) {
	if m == nil {
		return
	}
	m.currentStep = number
	m.refresh()
}

func (m *PlanModal) Toggle() {
	if m == nil {
		return
	}
	m.Visible = !m.Visible
}

func (m *PlanModal) Close() {
	if m == nil {
		return
	}
	m.Visible = false
}

func (m *PlanModal) HasPlan() bool {
	return m != nil && len(m.plan.Steps) > 0
}

func (m *PlanModal) Update(msg tea.Msg) tea.Cmd {
	if m == nil || !m.Visible {
		return nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return cmd
}

func (m *PlanModal) View() string {
	if m == nil || !m.Visible {
		return ""
	}

	titleView := planModalTitleStyle.Render("Plan")
	body := planModalBodyStyle.Render(m.viewport.View())
	hint := planModalHintStyle.Render("p: close  up/down: scroll")
	return planModalBoxStyle.Render(fmt.Sprintf("%s\n\n%s\n\n%s", titleView, body, hint))
}

func (m *PlanModal) refresh() {
	if m == nil {
		return
	}
	width := m.viewport.Width
	if width <= 0 {
		width = 70
	}

	if len(m.plan.Steps) == 0 {
		m.viewport.SetContent("No active plan.")
		return
	}

	var lines []string
	if strings.TrimSpace(m.plan.Reasoning) != "" {
		lines = append(lines, wrapToWidth(m.plan.Reasoning, width), "")
	}
	for _, step := range m.plan.Steps {
		marker := "[ ]"
		style := planModalBodyStyle
		switch {
		case m.currentStep > step.Number:
			marker = "[x]"
			style = planStepDoneStyle
		case m.currentStep == step.Number:
			marker = "[>]"
			style = planStepActiveStyle
		}
		label := step.Action
		if step.Tool != nil {
			label = fmt.Sprintf("%s (%s)", step.Action, *step.Tool)
		}
		line := wrapWithPrefix(fmt.Sprintf("%s %d. ", marker, step.Number), label, width)
		lines = append(lines, style.Render(line))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}
