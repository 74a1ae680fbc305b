// Package setup provides the interactive setup wizard for memsearch.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"memsearch/internal/config"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

// Step identifies one wizard screen.
type Step int

const (
	StepWelcome Step = iota
	StepBackend
	StepProvider
	StepModel
	StepAutoInject
	StepStoragePath
	StepDone
)

type option struct {
	value string
	label string
	desc  string
}

var backendOptions = []option{
	{"bleve", "Lexical (Bleve)", "BM25 full-text search, no API key needed"},
	{"vec", "Semantic (sqlite-vec)", "Vector search, needs an embedding provider"},
}

var providerOptions = []option{
	{"openai", "OpenAI", "text-embedding-3-small, needs OPENAI_API_KEY"},
	{"ollama", "Ollama", "Local models via Ollama"},
	{"voyage", "Voyage AI", "voyage-3-lite, needs VOYAGE_API_KEY"},
	{"mock", "Mock", "Deterministic fake embeddings, for testing"},
}

var injectOptions = []option{
	{"hint", "Hint only", "Tell the agent memory search exists (recommended)"},
	{"inject", "Auto-inject", "Embed top matches into context on every prompt"},
}

// Model is the bubbletea model for the wizard.
type Model struct {
	step   Step
	cursor int

	cfg       *config.Config
	textInput textinput.Model

	savedPath string
	err       error
	quitting  bool
}

// New creates a wizard model seeded with defaults.
func New() Model {
	ti := textinput.New()
	ti.CharLimit = 200
	ti.Width = 50

	return Model{
		cfg:       config.New(),
		textInput: ti,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.isTextInputStep() || msg.String() == "ctrl+c" {
				m.quitting = true
				return m, tea.Quit
			}
		case "up", "k":
			if !m.isTextInputStep() && m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "j":
			if !m.isTextInputStep() && m.cursor < m.maxCursor() {
				m.cursor++
			}
			return m, nil
		case "enter":
			return m.handleEnter()
		}
	}

	if m.isTextInputStep() {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) isTextInputStep() bool {
	return m.step == StepModel || m.step == StepStoragePath
}

func (m Model) maxCursor() int {
	switch m.step {
	case StepBackend:
		return len(backendOptions) - 1
	case StepProvider:
		return len(providerOptions) - 1
	case StepAutoInject:
		return len(injectOptions) - 1
	}
	return 0
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case StepWelcome:
		m.step = StepBackend

	case StepBackend:
		m.cfg.Storage.Backend = backendOptions[m.cursor].value
		m.cursor = 0
		if m.cfg.Storage.Backend == "vec" {
			m.step = StepProvider
		} else {
			m.step = StepAutoInject
		}

	case StepProvider:
		m.cfg.Embedding.Provider = providerOptions[m.cursor].value
		m.cursor = 0
		m.step = StepModel
		m.textInput.Placeholder = "empty for the provider default"
		m.textInput.SetValue("")
		m.textInput.Focus()

	case StepModel:
		m.cfg.Embedding.Model = strings.TrimSpace(m.textInput.Value())
		m.textInput.Blur()
		m.step = StepAutoInject

	case StepAutoInject:
		m.cfg.Hook.AutoInject = injectOptions[m.cursor].value == "inject"
		m.cursor = 0
		m.step = StepStoragePath
		m.textInput.Placeholder = m.cfg.Storage.Path
		m.textInput.SetValue("")
		m.textInput.Focus()

	case StepStoragePath:
		if v := strings.TrimSpace(m.textInput.Value()); v != "" {
			m.cfg.Storage.Path = v
		}
		m.textInput.Blur()

		path, err := Save(m.cfg)
		m.savedPath = path
		m.err = err
		m.step = StepDone

	case StepDone:
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	switch m.step {
	case StepWelcome:
		b.WriteString(titleStyle.Render("memsearch setup"))
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render("Configure search backend, embeddings and the prompt hook."))
		b.WriteString("\n" + dimStyle.Render("enter to begin, q to quit"))

	case StepBackend:
		b.WriteString(titleStyle.Render("Search backend"))
		b.WriteString("\n")
		m.renderOptions(&b, backendOptions)

	case StepProvider:
		b.WriteString(titleStyle.Render("Embedding provider"))
		b.WriteString("\n")
		m.renderOptions(&b, providerOptions)

	case StepModel:
		b.WriteString(titleStyle.Render("Embedding model"))
		b.WriteString("\n")
		b.WriteString(m.textInput.View())
		b.WriteString("\n" + dimStyle.Render("enter to accept"))

	case StepAutoInject:
		b.WriteString(titleStyle.Render("Prompt hook behavior"))
		b.WriteString("\n")
		m.renderOptions(&b, injectOptions)

	case StepStoragePath:
		b.WriteString(titleStyle.Render("Storage directory"))
		b.WriteString("\n")
		b.WriteString(m.textInput.View())
		b.WriteString("\n" + dimStyle.Render("enter to accept the default"))

	case StepDone:
		if m.err != nil {
			b.WriteString(titleStyle.Render("Setup failed"))
			b.WriteString("\n" + normalStyle.Render(m.err.Error()))
		} else {
			b.WriteString(doneStyle.Render("Configuration written to " + m.savedPath))
		}
		b.WriteString("\n" + dimStyle.Render("enter to exit"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderOptions(b *strings.Builder, opts []option) {
	for i, opt := range opts {
		cursor := "  "
		style := normalStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		fmt.Fprintf(b, "%s%s\n", cursor, style.Render(opt.label))
		fmt.Fprintf(b, "    %s\n", dimStyle.Render(opt.desc))
	}
	b.WriteString("\n" + dimStyle.Render("up/down to move, enter to select"))
}

// Save writes cfg to the default config path, creating directories as needed.
func Save(cfg *config.Config) (string, error) {
	path := config.DefaultPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, err
	}

	f, err := os.Create(path)
	if err != nil {
		return path, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return path, fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

// Run launches the wizard and blocks until it finishes.
func Run() error {
	p := tea.NewProgram(New())
	_, err := p.Run()
	return err
}
