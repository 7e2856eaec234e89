package ui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"vesper/internal/engine"
	"vesper/internal/styles"
)

const scrollPage = 3

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.WindowWidth = msg.Width
		m.WindowHeight = msg.Height
		m.resize()
		m.ScrollOffset = ClampOffset(m.Engine.Messages(), m.ScrollOffset)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case streamDeltaMsg:
		m.Engine.ApplyDelta(string(msg))
		m.ScrollOffset = 0
		return m, m.waitForDelta()

	case streamDoneMsg:
		m.drainDeltas()
		if msg.err != nil {
			m.Engine.FailStream(msg.err)
		} else {
			m.Engine.FinishStream()
		}
		m.ScrollOffset = 0
		return m, nil

	case titleMsg:
		m.Engine.ApplyTitle(engine.TitleResult(msg))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.TextInput, cmd = m.TextInput.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	// The resume prompt claims the keyboard outright: only Y and N
	// are accepted, everything else is discarded.
	if m.Overlay.Kind == OverlayResumePrompt {
		switch strings.ToLower(msg.String()) {
		case "y":
			m.Engine.ConfirmResume(true)
			m.Overlay = Overlay{}
		case "n":
			m.Engine.ConfirmResume(false)
			m.Overlay = Overlay{}
		}
		return m, nil
	}

	switch msg.String() {
	case "esc":
		next, exit := m.Overlay.CloseInnermost()
		if exit {
			return m.quit()
		}
		m.Overlay = next
		return m, nil

	case "up", "ctrl+p":
		if m.Overlay.Open() {
			m.Overlay.MoveUp()
			return m, nil
		}
	case "down", "ctrl+n":
		if m.Overlay.Open() {
			m.Overlay.MoveDown()
			return m, nil
		}
	case "tab":
		if m.Overlay.Open() {
			return m, m.commitOverlay()
		}
	case "enter":
		if m.Overlay.Open() {
			return m, m.commitOverlay()
		}
		return m.submit()

	case "alt+enter", "ctrl+j":
		m.TextInput.InsertString("\n")
		m.growInput()
		return m, nil

	case "ctrl+r":
		if sub := m.Engine.Regenerate(); sub.Action == engine.ActionCompletion {
			return m, m.startCompletion(sub)
		}
		return m, nil

	case "ctrl+e":
		if text, ok := m.Engine.EditLast(); ok {
			m.TextInput.SetValue(text)
			m.TextInput.CursorEnd()
			m.growInput()
			m.refreshTriggers()
		}
		return m, nil

	case "pgup":
		m.ScrollOffset = ClampOffset(m.Engine.Messages(), m.ScrollOffset+scrollPage)
		return m, nil
	case "pgdown":
		m.ScrollOffset = ClampOffset(m.Engine.Messages(), m.ScrollOffset-scrollPage)
		return m, nil
	}

	// Model picker swallows everything it does not understand; the
	// textual overlays track the input as it changes.
	if m.Overlay.Kind == OverlayModelPicker {
		return m, nil
	}

	var cmd tea.Cmd
	m.TextInput, cmd = m.TextInput.Update(msg)
	m.growInput()
	m.refreshTriggers()
	return m, cmd
}

// refreshTriggers recomputes the typed-trigger overlays from the input
// buffer: an '@' file reference wins over a slash palette; neither
// matching closes whatever typed overlay was open.
func (m *Model) refreshTriggers() {
	value := m.TextInput.Value()
	cursor := TextareaCursorIndex(m.TextInput)

	if next, ok := FilePickerFor(m.WorkingDir, value, cursor); ok {
		// Selection survives keystrokes only while the candidate
		// list is unchanged; a new list resets it.
		if m.Overlay.Kind == OverlayFilePicker && sameList(m.Overlay.Files, next.Files) {
			next.Index = m.Overlay.Index
		}
		m.Overlay = next
		return
	}
	if next, ok := CommandPaletteFor(value); ok {
		if m.Overlay.Kind == OverlayCommandPalette && len(next.Commands) == len(m.Overlay.Commands) {
			next.Index = m.Overlay.Index
		}
		m.Overlay = next
		return
	}
	if m.Overlay.Kind == OverlayFilePicker || m.Overlay.Kind == OverlayCommandPalette {
		m.Overlay = Overlay{}
	}
}

func (m *Model) commitOverlay() tea.Cmd {
	effect := m.Overlay.Commit()
	switch {
	case effect.OpenModelPicker:
		m.TextInput.Reset()
		m.growInput()
		m.openModelPicker()
	case effect.InsertText != "":
		m.Overlay = Overlay{}
		m.TextInput.SetValue(effect.InsertText)
		m.TextInput.CursorEnd()
		m.refreshTriggers()
	case effect.ModelID != "":
		m.Engine.SetModel(effect.ModelID)
		m.Overlay = Overlay{}
	case effect.FilePath != "":
		m.commitFile(effect)
	default:
		m.Overlay = Overlay{}
	}
	return nil
}

// commitFile splices the chosen path over the '@' reference being
// typed. Choosing a directory descends into it and keeps the picker
// open; choosing a file records the attachment.
func (m *Model) commitFile(effect CommitEffect) {
	value := m.TextInput.Value()
	tail := effect.AtStart + 1 + len(effect.AtPrefix)
	if tail > len(value) {
		tail = len(value)
	}

	if isDir(m.joinWorking(effect.FilePath)) {
		next := value[:effect.AtStart+1] + effect.FilePath + "/" + value[tail:]
		m.TextInput.SetValue(next)
		SetTextareaCursorIndex(&m.TextInput, effect.AtStart+1+len(effect.FilePath)+1)
		m.refreshTriggers()
		return
	}

	next := value[:effect.AtStart] + effect.FilePath + " " + value[tail:]
	m.Engine.AttachFile(m.joinWorking(effect.FilePath))
	m.Overlay = Overlay{}
	m.TextInput.SetValue(next)
	SetTextareaCursorIndex(&m.TextInput, effect.AtStart+len(effect.FilePath)+1)
	m.growInput()
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	value := m.TextInput.Value()
	if strings.TrimSpace(value) == "" {
		return m, nil
	}
	if m.Engine.StreamActive() {
		// Keep the draft; it can be sent once the reply settles.
		return m, nil
	}

	sub := m.Engine.Submit(value)
	switch sub.Action {
	case engine.ActionNone:
		return m, nil
	case engine.ActionExit:
		return m.quit()
	case engine.ActionOpenModelPicker:
		m.TextInput.Reset()
		m.growInput()
		m.openModelPicker()
		return m, nil
	case engine.ActionHandled:
		m.TextInput.Reset()
		m.growInput()
		m.ScrollOffset = 0
		return m, nil
	case engine.ActionCompletion:
		m.TextInput.Reset()
		m.growInput()
		m.ScrollOffset = 0
		return m, m.startCompletion(sub)
	}
	return m, nil
}

// startCompletion pumps the gateway stream through a channel pair so
// each delta arrives as its own message; waitForDelta re-arms after
// every one.
func (m *Model) startCompletion(sub engine.Submission) tea.Cmd {
	m.deltas = make(chan string, 64)
	m.done = make(chan error, 1)
	deltas, done := m.deltas, m.done
	eng := m.Engine

	go func() {
		stream, err := eng.OpenStream(context.Background(), sub)
		if err != nil {
			done <- err
			return
		}
		defer stream.Close()
		for stream.Next() {
			deltas <- stream.Text()
		}
		done <- stream.Err()
	}()

	cmds := []tea.Cmd{m.waitForDelta()}
	if sub.NeedsTitle {
		cmds = append(cmds, m.requestTitle(sub))
	}
	return tea.Batch(cmds...)
}

func (m *Model) waitForDelta() tea.Cmd {
	deltas, done := m.deltas, m.done
	return func() tea.Msg {
		select {
		case d := <-deltas:
			return streamDeltaMsg(d)
		case err := <-done:
			return streamDoneMsg{err: err}
		}
	}
}

// drainDeltas folds in any deltas still buffered when the done signal
// won the select race.
func (m *Model) drainDeltas() {
	for {
		select {
		case d := <-m.deltas:
			m.Engine.ApplyDelta(d)
		default:
			return
		}
	}
}

func (m *Model) requestTitle(sub engine.Submission) tea.Cmd {
	eng := m.Engine
	return func() tea.Msg {
		return titleMsg(eng.RequestTitle(context.Background(), sub))
	}
}

func (m *Model) openModelPicker() {
	m.Overlay = ModelPickerOverlay(m.Engine.Model())
	m.ModelVP = viewport.New(styles.ContentWidth, modelPickerHeight(m.WindowHeight))
	m.syncModelPicker()
}

func (m *Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.Engine.Flush()
	return m, tea.Quit
}

func (m *Model) resize() {
	width := m.WindowWidth - 4
	if width > styles.ContentWidth+20 {
		width = styles.ContentWidth + 20
	}
	if width < 20 {
		width = 20
	}
	m.TextInput.SetWidth(width)
	m.growInput()

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.Log.Debug("markdown renderer unavailable", zap.Error(err))
	} else {
		m.Renderer = r
	}
}

func (m *Model) growInput() {
	h := WrappedLineCount(m.TextInput.Value(), m.TextInput.Width())
	if h > maxInputHeight {
		h = maxInputHeight
	}
	m.TextInput.SetHeight(h)
}

func sameList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *Model) joinWorking(rel string) string {
	if m.WorkingDir == "" {
		return rel
	}
	return m.WorkingDir + "/" + rel
}
