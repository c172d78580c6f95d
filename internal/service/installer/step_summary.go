package installer

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// SummaryStep shows what will be written and waits for confirmation.
type SummaryStep struct {
	keys []string
}

func NewSummaryStep() Step {
	return &SummaryStep{}
}

func (s *SummaryStep) Prepare(state *InstallState) bool {
	s.keys = s.keys[:0]
	for _, k := range wizardKeys() {
		if state.has(k) {
			s.keys = append(s.keys, k)
		}
	}
	return true
}

func (s *SummaryStep) Init() tea.Cmd {
	return nil
}

func (s *SummaryStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		return nil, nil
	}
	return s, nil
}

func (s *SummaryStep) View(state *InstallState) string {
	var b strings.Builder
	b.WriteString("Configuration to write:\n\n")
	for _, k := range s.keys {
		v := state.EnvVars[k]
		if isSecret(k) {
			v = mask(v)
		}
		b.WriteString(itemStyle.Render(fmt.Sprintf("%-24s %s", k, v)) + "\n")
	}
	b.WriteString("\n(press enter to write, ctrl+c to quit)\n")
	return b.String()
}

// wizardKeys lists every env key the wizard may ask for, in prompt order.
func wizardKeys() []string {
	keys := []string{envEmbeddingProvider, envEmbeddingModel, envEmbeddingDimension, envExtractionProvider, envExtractionModel}
	for _, p := range providers {
		if p.urlEnv != "" {
			keys = append(keys, p.urlEnv)
		}
		keys = append(keys, p.keyEnv)
	}
	return keys
}

func isSecret(key string) bool {
	return slices.ContainsFunc(providers, func(p providerInfo) bool { return p.keyEnv == key })
}

func mask(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + strings.Repeat("*", 8)
}
