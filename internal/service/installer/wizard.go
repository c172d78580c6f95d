// Package installer is the interactive setup wizard behind "tuskmem init".
package installer

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	itemStyle  = lipgloss.NewStyle().PaddingLeft(2)
	selStyle   = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("5"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

var ErrCancelled = errors.New("setup cancelled")

// Step is a single question of the wizard.
type Step interface {
	// Prepare sets the step up from the answers so far and reports whether
	// it still needs to be asked.
	Prepare(state *InstallState) bool
	Init() tea.Cmd
	Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd)
	View(state *InstallState) string
}

func getSteps() []Step {
	steps := []Step{
		NewChoiceStep(envEmbeddingProvider, "Select the embedding provider", embeddingProviders),
		&InputStep{
			envKey:   envEmbeddingModel,
			title:    "Embedding model",
			fallback: func(s *InstallState) string { return embeddingModels[s.EnvVars[envEmbeddingProvider]] },
		},
		&InputStep{
			envKey:   envEmbeddingDimension,
			title:    "Embedding dimension",
			fallback: func(*InstallState) string { return "1024" },
			validate: positiveInt,
		},
		NewChoiceStep(envExtractionProvider, "Select the extraction model provider", extractionProviders),
		&InputStep{
			envKey:   envExtractionModel,
			title:    "Extraction model",
			fallback: func(s *InstallState) string { return extractionModels[s.EnvVars[envExtractionProvider]] },
		},
	}

	for _, p := range providers {
		uses := func(s *InstallState) bool { return s.uses(p.name) }
		if p.urlEnv != "" {
			steps = append(steps, &InputStep{
				envKey:   p.urlEnv,
				title:    p.title + " base URL",
				hint:     "https://...",
				when:     uses,
				fallback: func(*InstallState) string { return p.defaultURL },
			})
		}
		steps = append(steps, &InputStep{
			envKey:   p.keyEnv,
			title:    p.title + " API key",
			hint:     p.keyHint,
			secret:   true,
			optional: p.keyOptional,
			when:     uses,
		})
	}

	return append(steps, NewSummaryStep())
}

// model runs the steps in order, skipping those already answered.
type model struct {
	steps    []Step
	current  int
	state    *InstallState
	quitting bool
	width    int
	height   int
}

func newModel(preset map[string]string) model {
	m := model{
		steps:   getSteps(),
		current: -1,
		state:   NewInstallState(preset),
	}
	m.advance()
	return m
}

func (m *model) advance() {
	for m.current++; m.current < len(m.steps); m.current++ {
		if m.steps[m.current].Prepare(m.state) {
			return
		}
	}
}

func (m model) finished() bool {
	return m.current >= len(m.steps)
}

func (m model) Init() tea.Cmd {
	if m.finished() {
		return tea.Quit
	}
	return m.steps[m.current].Init()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.finished() {
		return m, tea.Quit
	}

	next, cmd := m.steps[m.current].Update(msg, m.state, m.width, m.height)
	if next == nil {
		m.advance()
		if m.finished() {
			return m, tea.Quit
		}
		return m, m.steps[m.current].Init()
	}
	m.steps[m.current] = next
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return "Setup cancelled.\n"
	}
	if m.finished() {
		return "Configuration complete!\n"
	}
	return titleStyle.Render("Configuring tuskmem") + "\n\n" + m.steps[m.current].View(m.state)
}

// RunWizard asks for whatever preset does not answer yet and returns preset
// merged with the answers.
func RunWizard(preset map[string]string, opts ...tea.ProgramOption) (map[string]string, error) {
	p := tea.NewProgram(newModel(preset), append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	res, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("setup wizard failed: %w", err)
	}

	final := res.(model)
	if final.quitting {
		return nil, ErrCancelled
	}
	return final.state.EnvVars, nil
}
