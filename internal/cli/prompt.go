package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/missionctl/internal/output"
)

// errAborted is returned when the user cancels a prompt.
var errAborted = errors.New("aborted")

// prompter asks one question and returns an answer accepted by validate.
type prompter interface {
	Ask(label string, validate func(string) error) (string, error)
}

// newPrompter returns an interactive prompt when in is a terminal and a line
// reader otherwise.
func newPrompter(in io.Reader, out io.Writer, noColor bool) prompter {
	if output.IsTerminal(in) && output.IsTerminal(out) {
		return &teaPrompter{in: in, out: out, noColor: noColor}
	}
	return newLinePrompter(in, out)
}

// linePrompter reads answers line by line. Invalid answers are reported and
// asked again until the input ends.
type linePrompter struct {
	r   *bufio.Reader
	out io.Writer
}

func newLinePrompter(in io.Reader, out io.Writer) *linePrompter {
	return &linePrompter{r: bufio.NewReader(in), out: out}
}

func (p *linePrompter) Ask(label string, validate func(string) error) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		line, err := p.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		eof := err != nil
		answer := strings.TrimSpace(line)
		if eof && answer == "" {
			fmt.Fprintln(p.out)
			return "", fmt.Errorf("%s: %w", label, errAborted)
		}
		if verr := validate(answer); verr != nil {
			fmt.Fprintf(p.out, "  %v\n", verr)
			if eof {
				return "", fmt.Errorf("%s: %w", label, verr)
			}
			continue
		}
		return answer, nil
	}
}

// teaPrompter runs a single-line bubbletea text input per question.
type teaPrompter struct {
	in      io.Reader
	out     io.Writer
	noColor bool
}

func (p *teaPrompter) Ask(label string, validate func(string) error) (string, error) {
	m := newPromptModel(label, validate, p.noColor || os.Getenv("NO_COLOR") != "")
	if f, ok := p.out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			m.width = w
		}
	}
	final, err := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out)).Run()
	if err != nil {
		return "", err
	}
	pm := final.(promptModel)
	if pm.aborted {
		return "", errAborted
	}
	return strings.TrimSpace(pm.input.Value()), nil
}

type promptModel struct {
	label    string
	input    textinput.Model
	validate func(string) error
	err      error
	done     bool
	aborted  bool
	width    int

	labelStyle lipgloss.Style
	errStyle   lipgloss.Style
}

func newPromptModel(label string, validate func(string) error, plain bool) promptModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 64
	ti.Focus()

	m := promptModel{
		label:      label,
		input:      ti,
		validate:   validate,
		labelStyle: lipgloss.NewStyle().Bold(true),
		errStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	if plain {
		m.labelStyle = lipgloss.NewStyle()
		m.errStyle = lipgloss.NewStyle()
	}
	return m
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = size.Width
	}
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			if err := m.validate(strings.TrimSpace(m.input.Value())); err != nil {
				m.err = err
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.err = nil
	return m, cmd
}

func (m promptModel) View() string {
	if m.done {
		return fmt.Sprintf("%s %s\n", m.labelStyle.Render(m.label+":"), m.input.Value())
	}
	var b strings.Builder
	b.WriteString(m.labelStyle.Render(m.label))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.err != nil {
		msg := m.err.Error()
		if m.width > 0 {
			msg = wordwrap.String(msg, m.width)
		}
		b.WriteString(m.errStyle.Render(msg))
		b.WriteString("\n")
	}
	return b.String()
}

// normalizeBot strips the leading @ users tend to paste with a username.
func normalizeBot(s string) string {
	return strings.TrimLeft(strings.TrimSpace(s), "@")
}

func validateBot(s string) error {
	bot := normalizeBot(s)
	if bot == "" {
		return errors.New("bot username is required")
	}
	if strings.ContainsAny(bot, " \t/") {
		return fmt.Errorf("%q is not a username", bot)
	}
	return nil
}

func validateIndex(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%q is not a number", s)
	}
	if n < 0 {
		return errors.New("index must not be negative")
	}
	return nil
}
