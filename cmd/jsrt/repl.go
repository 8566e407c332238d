package main

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const replHelp = `.help          show this help
.new           create a context and switch to it
.use N         switch to context N
.contexts      list contexts
.gc            run a garbage collection
.mem           show memory usage
.exit          quit`

// command runs a dot-command. It reports false when line is not one.
func (s *session) command(line string) (string, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], ".") {
		return "", false, nil
	}
	switch fields[0] {
	case ".help":
		return replHelp, true, nil
	case ".new":
		if _, err := s.newContext(); err != nil {
			return "", true, err
		}
		return fmt.Sprintf("context %d", s.current), true, nil
	case ".use":
		if len(fields) != 2 {
			return "", true, fmt.Errorf("usage: .use N")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 || n >= len(s.contexts) {
			return "", true, fmt.Errorf("no context %q", fields[1])
		}
		s.current = n
		return fmt.Sprintf("context %d", n), true, nil
	case ".contexts":
		var b strings.Builder
		for i := range s.contexts {
			mark := "  "
			if i == s.current {
				mark = "* "
			}
			fmt.Fprintf(&b, "%s%d\n", mark, i)
		}
		return strings.TrimRight(b.String(), "\n"), true, nil
	case ".gc":
		return "collected", true, s.rt.CollectGarbage()
	case ".mem":
		used, err := s.rt.MemoryUsage()
		if err != nil {
			return "", true, err
		}
		return fmt.Sprintf("%d bytes", used), true, nil
	}
	return "", true, fmt.Errorf("unknown command %s (try .help)", fields[0])
}

type evalMsg struct {
	input  string
	output string
	result string
	err    error
	// current and count describe the session after the line ran.
	current, count int
}

type replModel struct {
	sess    *session
	output  *bytes.Buffer
	input   textinput.Model
	view    viewport.Model
	lines   []string
	history []string
	histIdx int
	busy    bool
	ready   bool
	current int
	count   int
}

func newReplModel(sess *session) *replModel {
	ti := textinput.New()
	ti.Placeholder = "expression or .help"
	ti.Prompt = "> "
	ti.Focus()

	buf := &bytes.Buffer{}
	sess.out = buf
	sess.err = buf
	return &replModel{sess: sess, output: buf, input: ti, current: sess.current, count: len(sess.contexts)}
}

func (m *replModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *replModel) evaluate(line string) tea.Cmd {
	return func() tea.Msg {
		msg := evalMsg{input: line}
		if out, ok, err := m.sess.command(line); ok {
			msg.result, msg.err = out, err
		} else {
			msg.result, msg.err = m.sess.eval(line, "<repl>")
		}
		msg.output = m.output.String()
		m.output.Reset()
		msg.current, msg.count = m.sess.current, len(m.sess.contexts)
		return msg
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 4
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = height
		}
		m.input.Width = msg.Width - 4
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			if line == ".exit" {
				return m, tea.Quit
			}
			m.history = append(m.history, line)
			m.histIdx = len(m.history)
			m.input.Reset()
			m.busy = true
			return m, m.evaluate(line)

		case "up":
			if m.histIdx > 0 {
				m.histIdx--
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if m.histIdx < len(m.history)-1 {
				m.histIdx++
				m.input.SetValue(m.history[m.histIdx])
				m.input.CursorEnd()
			} else {
				m.histIdx = len(m.history)
				m.input.Reset()
			}
			return m, nil

		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		}

	case evalMsg:
		m.busy = false
		m.current, m.count = msg.current, msg.count
		m.lines = append(m.lines, inputStyle.Render("> "+msg.input))
		if msg.output != "" {
			m.lines = append(m.lines, outputStyle.Render(strings.TrimRight(msg.output, "\n")))
		}
		if msg.err != nil {
			m.lines = append(m.lines, errorStyle.Render(msg.err.Error()))
		} else if msg.result != "" {
			m.lines = append(m.lines, resultStyle.Render(msg.result))
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m *replModel) View() string {
	if !m.ready {
		return "Starting..."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("jsrt"))
	fmt.Fprintf(&b, " %s  context %d/%d\n", m.sess.rt.Surface().Name(), m.current, m.count)
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter evaluate • ↑/↓ history • pgup/pgdown scroll • .help commands • ctrl+c quit"))
	return b.String()
}

func runInteractive(sess *session) error {
	p := tea.NewProgram(newReplModel(sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
