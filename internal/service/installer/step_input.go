package installer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// InputStep asks for one free text value. An empty answer takes the
// default; optional steps may stay empty.
type InputStep struct {
	envKey   string
	title    string
	hint     string
	secret   bool
	optional bool
	// when decides from earlier answers whether to ask at all
	when     func(*InstallState) bool
	fallback func(*InstallState) string
	validate func(string) error

	input textinput.Model
	def   string
	err   error
}

func (s *InputStep) Prepare(state *InstallState) bool {
	if state.has(s.envKey) || (s.when != nil && !s.when(state)) {
		return false
	}

	s.def = ""
	if s.fallback != nil {
		s.def = s.fallback(state)
	}

	s.input = textinput.New()
	s.input.Focus()
	s.input.CharLimit = 255
	s.input.Width = 40
	s.input.Placeholder = s.hint
	if s.def != "" {
		s.input.Placeholder = s.def
	}
	if s.secret {
		s.input.EchoMode = textinput.EchoPassword
		s.input.EchoCharacter = '•'
	}
	return true
}

func (s *InputStep) Init() tea.Cmd {
	return textinput.Blink
}

func (s *InputStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		val := strings.TrimSpace(s.input.Value())
		if val == "" {
			val = s.def
		}
		if val == "" {
			if s.optional {
				return nil, nil
			}
			s.err = fmt.Errorf("a value is required")
			return s, nil
		}
		if s.validate != nil {
			if err := s.validate(val); err != nil {
				s.err = err
				return s, nil
			}
		}
		state.EnvVars[s.envKey] = val
		return nil, nil
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *InputStep) View(state *InstallState) string {
	hint := ""
	if s.optional {
		hint = " (optional, press enter to skip)"
	}
	out := fmt.Sprintf("%s%s:\n\n%s\n\n", s.title, hint, s.input.View())
	if s.err != nil {
		out += errorStyle.Render(s.err.Error()) + "\n\n"
	}
	return out + "(press enter to confirm)\n"
}

func positiveInt(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%q is not a positive number", v)
	}
	return nil
}
