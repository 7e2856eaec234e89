package ui

import (
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"vesper/internal/engine"
	"vesper/internal/styles"
)

func NewModel(eng *engine.Engine, log *zap.Logger) *Model {
	if log == nil {
		log = zap.NewNop()
	}

	ti := textarea.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = maxInputHeight
	ti.SetHeight(1)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.BlurredStyle.Prompt = ti.FocusedStyle.Prompt
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.BlurredStyle.Placeholder = ti.FocusedStyle.Placeholder
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB"))

	cwd, _ := os.Getwd()

	m := &Model{
		Engine:     eng,
		Log:        log,
		TextInput:  ti,
		Spinner:    sp,
		ModelVP:    viewport.New(styles.ContentWidth, 15),
		WorkingDir: cwd,
	}

	// A previous session staged at initialization claims the keyboard
	// until the user answers Y/N.
	if candidate := eng.PendingResume(); candidate != nil {
		m.Overlay = ResumePromptOverlay(candidate)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.TextInput.Cursor.BlinkCmd(), m.Spinner.Tick)
}

func NewProgram(eng *engine.Engine, log *zap.Logger) *tea.Program {
	return tea.NewProgram(NewModel(eng, log), tea.WithAltScreen())
}
