package cli

import (
	"errors"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/voss-go/internal/client"
)

// sendFunc delivers one chat message and waits for the reply.
type sendFunc func(client.ChatRequest) (*client.ChatReply, error)

// replyMsg carries the outcome of one send.
type replyMsg struct {
	reply *client.ChatReply
	err   error
}

// chatModel is the bubbletea model for an interactive chat session.
type chatModel struct {
	send    sendFunc
	input   textinput.Model
	spinner spinner.Model
	theme   Theme
	tone    string
	chatID  string
	lines   []string
	waiting bool
	done    bool
	err     error
}

// newChatModel creates a chat model. An empty chatID starts a new chat on
// the first message.
func newChatModel(send sendFunc, chatID, tone, greeting string) chatModel {
	input := textinput.New()
	input.Prompt = "you: "
	input.Placeholder = "speak to the oracle"
	input.CharLimit = 4000

	m := chatModel{
		send:    send,
		input:   input,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		theme:   defaultTheme,
		tone:    tone,
		chatID:  chatID,
	}
	if greeting != "" {
		m.lines = append(m.lines, m.vossLine(greeting))
	}
	return m
}

// Init focuses the input.
func (m chatModel) Init() tea.Cmd {
	return m.input.Focus()
}

// Update handles key presses, replies and spinner ticks.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit
		case "enter":
			return m.submit()
		}

	case replyMsg:
		m.waiting = false
		return m.receive(msg)

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.waiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the current input unless a reply is still pending.
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	if m.waiting {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if text == "/quit" || text == "/exit" {
		m.done = true
		return m, tea.Quit
	}

	m.input.Reset()
	m.lines = append(m.lines, m.theme.headerStyle().Render("you:")+" "+text)
	m.waiting = true

	req := client.ChatRequest{Message: text, ChatID: m.chatID, Tone: m.tone}
	send := m.send
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		reply, err := send(req)
		return replyMsg{reply: reply, err: err}
	})
}

// receive records a reply or an error frame. Transport errors end the session.
func (m chatModel) receive(msg replyMsg) (tea.Model, tea.Cmd) {
	if msg.reply != nil && m.chatID == "" && msg.reply.ChatID != "" {
		m.chatID = msg.reply.ChatID
		m.lines = append(m.lines, m.theme.hintStyle().Render("chat id: "+m.chatID))
	}

	var apiErr *client.APIError
	switch {
	case errors.As(msg.err, &apiErr):
		text := apiErr.Message
		if apiErr.Fallback != "" {
			text = apiErr.Fallback
		}
		m.lines = append(m.lines, m.theme.errorStyle().Render(text))
		return m, nil
	case msg.err != nil:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	}

	m.lines = append(m.lines, m.vossLine(msg.reply.Response))
	return m, nil
}

func (m chatModel) vossLine(text string) string {
	return m.theme.oracleStyle().Render("voss:") + " " + strings.TrimSpace(text)
}

// View renders the transcript and the input line.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if m.done {
		return b.String()
	}

	b.WriteString("\n")
	if m.waiting {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.theme.oracleStyle().Render("V.O.S.S. is listening..."))
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(m.theme.hintStyle().Render("enter to send, /quit or esc to leave"))
	b.WriteString("\n")
	return b.String()
}

// runChatView runs the interactive chat UI until the user leaves.
func runChatView(send sendFunc, chatID, tone, greeting string) error {
	p := tea.NewProgram(newChatModel(send, chatID, tone, greeting))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	if m, ok := finalModel.(chatModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
