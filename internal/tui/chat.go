// Package tui is the interactive terminal chat surface.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	chatViewportStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, true, false).BorderForeground(lipgloss.Color("238"))
	assistantStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	assistantLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	systemStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	loadingStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	loadingTimerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	placeholderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	promptIndicator   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
)

// LoadingTickMsg is sent periodically to update the loading timer display.
type LoadingTickMsg struct{}

type ChatMessage struct {
	Sender  string
	Content string
}

type ChatModel struct {
	viewport       viewport.Model
	textInput      textinput.Model
	messages       []ChatMessage
	width          int
	height         int
	isLoading      bool
	loadingStarted time.Time
	loadingDetail  string
}

func NewChatModel() *ChatModel {
	ti := textinput.New()
	ti.Placeholder = ""
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 1000
	ti.Width = 50

	vp := viewport.New(0, 0)
	vp.SetContent("")

	return &ChatModel{
		viewport:  vp,
		textInput: ti,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	if _, ok := msg.(LoadingTickMsg); ok {
		// Just re-render; View() picks up the new elapsed time.
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) SetSize(w, h int) {
	if w == 0 || h == 0 {
		return
	}
	m.width = w
	m.height = h
	m.viewport.Width = w
	m.textInput.Width = m.inputWrapWidth()
	m.reflow()
	m.renderMessages()
}

// SetLoading flips the thinking indicator, with a short detail line such as
// the plan step currently running.
func (m *ChatModel) SetLoading(loading bool, detail string) {
	m.isLoading = loading
	if loading {
		if m.loadingStarted.IsZero() {
			m.loadingStarted = time.Now()
		}
		m.loadingDetail = strings.TrimSpace(detail)
	} else {
		m.loadingStarted = time.Time{}
		m.loadingDetail = ""
	}
	m.reflow()
}

func (m *ChatModel) IsLoading() bool {
	return m.isLoading
}

func loadingTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return LoadingTickMsg{}
	})
}

func (m *ChatModel) AddMessage(sender, content string) {
	m.messages = append(m.messages, ChatMessage{Sender: sender, Content: content})
	m.renderMessages()
	m.viewport.GotoBottom()
}

func (m *ChatModel) renderMessages() {
	contentWidth := m.viewport.Width
	if contentWidth <= 0 {
		contentWidth = m.width
	}
	if contentWidth <= 0 {
		contentWidth = 80
	}

	var blocks []string
	for _, msg := range m.messages {
		content := strings.TrimSpace(msg.Content)
		var block string
		switch msg.Sender {
		case "User":
			indicator := promptIndicator.Render("> ")
			block = indicator + wrapToWidth(content, contentWidth-2)
		case "System":
			block = systemStyle.Render(wrapToWidth(content, contentWidth))
		default:
			label := strings.ToUpper(strings.TrimSpace(msg.Sender)) + ": "
			block = styleWrappedPrefixStyled(label, content, contentWidth, assistantLabel, assistantStyle)
		}
		blocks = append(blocks, block)
	}
	m.viewport.SetContent(strings.Join(blocks, "\n\n"))
}

func (m *ChatModel) View() string {
	vpView := chatViewportStyle.Width(m.width).Render(m.viewport.View())

	var loadingView string
	if m.isLoading {
		loadingView = m.renderLoadingIndicator()
	}

	inputView := lipgloss.NewStyle().Padding(0, 1).Render(m.renderInputForView())

	var parts []string
	parts = append(parts, vpView)
	if loadingView != "" {
		parts = append(parts, loadingView)
	}
	parts = append(parts, inputView)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *ChatModel) renderLoadingIndicator() string {
	elapsed := time.Since(m.loadingStarted).Round(time.Second)
	spinnerFrames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	frameIdx := int(elapsed.Seconds()) % len(spinnerFrames)
	spinner := spinnerFrames[frameIdx]

	detail := m.loadingDetail
	if detail == "" {
		detail = "working"
	}

	timerStr := formatElapsed(elapsed)
	return loadingStyle.Render(spinner+" "+detail+"...") + " " + loadingTimerStyle.Render(timerStr)
}

func formatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	mins := secs / 60
	secs = secs % 60
	return fmt.Sprintf("%dm%ds", mins, secs)
}

func (m *ChatModel) GetInputValue() string {
	return m.textInput.Value()
}

func (m *ChatModel) ClearInput() {
	m.textInput.SetValue("")
}

func (m *ChatModel) reflow() {
	if m.height == 0 {
		return
	}

	inputHeight := m.inputHeight()
	loadingHeight := 0
	if m.isLoading {
		loadingHeight = 1
	}

	vpHeight := m.height - inputHeight - loadingHeight - 1
	if vpHeight < 0 {
		vpHeight = 0
	}
	m.viewport.Height = vpHeight
}

func (m *ChatModel) inputWrapWidth() int {
	width := m.width - 4
	if width <= 0 {
		width = 48
	}
	if width < 8 {
		width = 8
	}
	return width
}

func (m *ChatModel) renderInputForView() string {
	valueRunes := []rune(m.textInput.Value())
	pos := m.textInput.Position()
	if pos < 0 {
		pos = 0
	}
	if pos > len(valueRunes) {
		pos = len(valueRunes)
	}

	if len(valueRunes) == 0 {
		placeholder := placeholderStyle.Render("Ask me to do something")
		return promptIndicator.Render("> ") + "█ " + placeholder
	}

	left := string(valueRunes[:pos])
	right := string(valueRunes[pos:])
	raw := left + "█" + right

	wrapped := wrapToWidth(raw, m.inputWrapWidth())
	lines := strings.Split(wrapped, "\n")
	if len(lines) == 0 {
		lines = []string{"█"}
	}
	lines[0] = promptIndicator.Render("> ") + lines[0]
	for i := 1; i < len(lines); i++ {
		lines[i] = "  " + lines[i]
	}
	return strings.Join(lines, "\n")
}

func (m *ChatModel) inputHeight() int {
	input := m.renderInputForView()
	height := lipgloss.Height(input)
	if height < 1 {
		return 1
	}
	return height
}

// styleWrappedPrefixStyled renders a prefix with one style and content with another.
func styleWrappedPrefixStyled(prefix, content string, width int, prefStyle, contentStyle lipgloss.Style) string {
	wrapped := wrapWithPrefix(prefix, content, width)
	lines := strings.Split(wrapped, "\n")
	if len(lines) == 0 {
		return prefStyle.Render(prefix)
	}
	if strings.HasPrefix(lines[0], prefix) {
		lines[0] = prefStyle.Render(prefix) + contentStyle.Render(strings.TrimPrefix(lines[0], prefix))
	}
	for i := 1; i < len(lines); i++ {
		lines[i] = contentStyle.Render(lines[i])
	}
	return strings.Join(lines, "\n")
}
