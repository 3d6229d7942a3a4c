package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"persona-rag/internal/service"
)

// ChatPort is the TUI-facing subset of the RAG service.
type ChatPort interface {
	Chat(ctx context.Context, sessionID, message string) service.Reply
}

type line struct {
	speaker string
	text    string
	emotion string
}

type replyMsg struct {
	reply service.Reply
}

// Model is the Bubble Tea model for the chat console.
type Model struct {
	service   ChatPort
	sessionID string
	persona   string
	input     textinput.Model
	viewport  viewport.Model
	lines     []line
	status    string
	waiting   bool
	ready     bool
}

// New creates a chat console bound to one session.
func New(svc ChatPort, sessionID, persona string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Say something to " + persona + " and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		service:   svc,
		sessionID: sessionID,
		persona:   persona,
		input:     ti,
		viewport:  vp,
		status:    "Session " + sessionID,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and reply events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case replyMsg:
		m.waiting = false
		m.lines = append(m.lines, line{speaker: m.persona, text: msg.reply.Text, emotion: string(msg.reply.Emotion)})
		tr := msg.reply.Trace
		m.status = fmt.Sprintf("scope=%s retrieval=%s mode=%s", tr.Scope, tr.Retrieval, tr.Mode)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.lines = append(m.lines, line{speaker: "You", text: text})
			m.waiting = true
			m.status = m.persona + " is thinking..."
			m.refresh()
			return m, m.ask(text)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(text string) tea.Cmd {
	svc, id := m.service, m.sessionID
	return func() tea.Msg {
		return replyMsg{reply: svc.Chat(context.Background(), id, text)}
	}
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Chat with " + m.persona)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.lines) == 0 {
		return "No messages yet."
	}
	var sb strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		name := userStyle.Render(l.speaker)
		if l.speaker != "You" {
			name = personaStyle.Render(l.speaker)
			if l.emotion != "" {
				name += " " + emotionStyle.Render("["+l.emotion+"]")
			}
		}
		sb.WriteString(name + "\n" + l.text)
	}
	return sb.String()
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	personaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	emotionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
