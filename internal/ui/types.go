package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"vesper/internal/engine"
)

const (
	// CharsPerToken is a rough estimate for the token counter in the
	// status bar; nothing depends on it being accurate.
	CharsPerToken = 4

	maxInputHeight = 6
	chromePadRows  = 2
)

type (
	streamDeltaMsg string
	streamDoneMsg  struct{ err error }
	titleMsg       engine.TitleResult
)

// Model is the bubbletea model gluing the conversation engine, the
// overlay state machine and the scroll window together.
type Model struct {
	Engine *engine.Engine
	Log    *zap.Logger

	TextInput textarea.Model
	Spinner   spinner.Model
	ModelVP   viewport.Model
	Renderer  *glamour.TermRenderer

	Overlay Overlay

	WorkingDir   string
	WindowWidth  int
	WindowHeight int
	ScrollOffset int

	deltas chan string
	done   chan error

	quitting bool
}
