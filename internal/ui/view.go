package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vesper/internal/engine"
	"vesper/internal/models"
	"vesper/internal/styles"
)

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.WindowWidth == 0 {
		return "Loading..."
	}

	width := m.contentWidth()
	header := m.renderHeader(width)
	chat := m.renderChat(width)
	input := m.renderInput()
	status := m.renderStatusBar()

	var parts []string
	parts = append(parts, header, chat)
	if attached := m.renderAttachments(); attached != "" {
		parts = append(parts, attached)
	}
	if popup := m.renderPopup(); popup != "" {
		parts = append(parts, popup)
	}
	parts = append(parts, input)

	body := lipgloss.JoinVertical(lipgloss.Left, parts...)
	body = lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, body)
	content := lipgloss.JoinVertical(lipgloss.Left, body, status)

	switch m.Overlay.Kind {
	case OverlayModelPicker:
		return m.placeModal(m.renderModelPicker())
	case OverlayResumePrompt:
		return m.placeModal(m.renderResumePrompt())
	}
	return content
}

func (m *Model) contentWidth() int {
	width := m.WindowWidth - 4
	if width > styles.ContentWidth+20 {
		width = styles.ContentWidth + 20
	}
	if width < 20 {
		width = 20
	}
	return width
}

func (m *Model) renderHeader(width int) string {
	title := "VESPER"
	if t := m.Engine.Title(); t != "" {
		title = "VESPER · " + TruncateRunes(t, width-10)
	}
	return styles.TitleStyle.Render(title)
}

// renderChat shows the window of messages that fits above the input,
// with indicators when older or newer messages are scrolled out.
func (m *Model) renderChat(width int) string {
	msgs := m.Engine.Messages()
	thinking := m.Engine.StreamPhase() == engine.StreamAwaitingFirstToken

	if len(msgs) == 0 && !thinking {
		rows := m.chatRows()
		return lipgloss.Place(m.contentWidth(), rows, lipgloss.Center, lipgloss.Center, WelcomeScreen())
	}

	win := VisibleWindow(msgs, m.WindowHeight, width, m.ScrollOffset, m.reservedRows())

	var lines []string
	if win.HasMoreAbove {
		lines = append(lines, styles.HintStyle.Render(fmt.Sprintf("↑ %d earlier", win.Start)))
	}
	for i := win.Start; i < win.End; i++ {
		lines = append(lines, m.renderMessage(msgs[i], width))
	}
	if thinking {
		lines = append(lines, styles.AssistantLabelStyle.Render("VESPER")+"\n"+m.Spinner.View()+" Thinking...")
	}
	if win.HasMoreBelow {
		lines = append(lines, styles.HintStyle.Render(fmt.Sprintf("↓ %d newer", m.ScrollOffset)))
	}
	return strings.Join(lines, "\n\n")
}

func (m *Model) renderMessage(msg models.Message, width int) string {
	switch {
	case msg.Role == models.RoleUser:
		return FormatUserMessage(msg.Content, width)
	case msg.Announcement:
		return FormatAnnouncement(msg.Content)
	case msg.IsStreaming:
		return FormatAssistantMessage(msg.Content + "▋")
	default:
		content := msg.Content
		if m.Renderer != nil {
			if rendered, err := m.Renderer.Render(content); err == nil {
				content = strings.TrimRight(rendered, "\n")
			}
		}
		out := FormatAssistantMessage(content)
		if msg.Model != "" {
			if mdl, _, ok := models.FindModel(msg.Model); ok {
				out += "\n" + styles.HintStyle.Render("  "+mdl.Name)
			}
		}
		return out
	}
}

func (m *Model) renderInput() string {
	return styles.InputBoxStyle.Width(m.contentWidth()).Render(m.TextInput.View())
}

func (m *Model) renderAttachments() string {
	files := m.Engine.Attachments()
	if len(files) == 0 {
		return ""
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	return styles.HintStyle.Render("Attached: " + strings.Join(names, ", "))
}

// renderPopup draws the inline overlays anchored above the input: the
// command palette and the file picker.
func (m *Model) renderPopup() string {
	switch m.Overlay.Kind {
	case OverlayCommandPalette:
		var lines []string
		for i, cmd := range m.Overlay.Commands {
			line := fmt.Sprintf("%-10s %s", cmd.Name, styles.HintStyle.Render(cmd.Description))
			if i == m.Overlay.Index {
				lines = append(lines, styles.ModalSelectedStyle.Render("▸ "+line))
			} else {
				lines = append(lines, styles.ModalItemStyle.Render("  "+line))
			}
		}
		return styles.ModalStyle.Padding(0, 1).Render(strings.Join(lines, "\n"))

	case OverlayFilePicker:
		header := styles.HintStyle.Italic(true).Render("  Files (↑↓ select, Tab/Enter insert)")
		lines := []string{header}
		for i, file := range m.Overlay.Files {
			display := file
			if isDir(m.joinWorking(file)) {
				display += "/"
			}
			if i == m.Overlay.Index {
				lines = append(lines, styles.ModalSelectedStyle.Render("▸ "+display))
			} else {
				lines = append(lines, styles.ModalItemStyle.Render("  "+display))
			}
		}
		return styles.ModalStyle.Padding(0, 1).Render(strings.Join(lines, "\n"))
	}
	return ""
}

func (m *Model) renderStatusBar() string {
	modelName := m.Engine.Model()
	if mdl, _, ok := models.FindModel(modelName); ok {
		modelName = mdl.Name
	}
	left := styles.StatusStyle.Render(TruncateRunes(modelName, 25))

	cwd := m.WorkingDir
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(cwd, home) {
		cwd = "~" + cwd[len(home):]
	}
	middle := styles.HintStyle.Render(TruncateRunes(cwd, 30))

	tokens := EstimateHistoryTokens(m.Engine.Messages())
	right := styles.HintStyle.Render(fmt.Sprintf("~%d tok • /help", tokens))

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", middle)
	gap := m.WindowWidth - lipgloss.Width(leftSide) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	bar := leftSide + strings.Repeat(" ", gap) + right

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#333333")).
		Padding(0, 1).
		Render(bar)
}

// syncModelPicker rebuilds the model list grouped under provider
// headers and keeps the selection in view.
func (m *Model) syncModelPicker() {
	var items []string
	selectedLine := 0
	var lastProvider string
	for i, mdl := range models.Available {
		if mdl.Provider != lastProvider {
			if lastProvider != "" {
				items = append(items, "")
			}
			color := "#545454"
			if c, ok := styles.ProviderColors[mdl.Provider]; ok {
				color = c
			}
			items = append(items, styles.ModalHeaderStyle.Foreground(lipgloss.Color(color)).Render(mdl.Provider))
			lastProvider = mdl.Provider
		}

		display := "  " + mdl.Name
		if mdl.ID == m.Engine.Model() {
			display = "● " + mdl.Name
		}
		if i == m.Overlay.Index {
			selectedLine = len(items)
			items = append(items, styles.ModalSelectedStyle.Render(display))
		} else {
			items = append(items, styles.ModalItemStyle.Render(display))
		}
	}

	m.ModelVP.SetContent(lipgloss.JoinVertical(lipgloss.Left, items...))
	if selectedLine < m.ModelVP.YOffset {
		m.ModelVP.SetYOffset(selectedLine)
	} else if selectedLine >= m.ModelVP.YOffset+m.ModelVP.Height {
		m.ModelVP.SetYOffset(selectedLine - m.ModelVP.Height + 1)
	}
}

func (m *Model) renderModelPicker() string {
	m.syncModelPicker()
	title := styles.ModalTitleStyle.Render("Select Model")
	hint := styles.HintStyle.Width(styles.ContentWidth).PaddingTop(1).
		Render("↑/↓ navigate • Enter select • Esc close")
	return lipgloss.JoinVertical(lipgloss.Left, title, m.ModelVP.View(), hint)
}

func (m *Model) renderResumePrompt() string {
	sess := m.Overlay.Resume
	title := styles.ModalTitleStyle.Render("Resume previous session?")

	name := sess.Title
	if name == "" {
		name = "(untitled)"
	}
	summary := fmt.Sprintf("%s\n%d messages, %s",
		TruncateRunes(name, styles.ContentWidth-4),
		len(sess.Messages),
		RelativeTime(sess.UpdatedAt))
	body := styles.ModalItemStyle.Render(summary)

	hint := styles.HintStyle.Width(styles.ContentWidth).PaddingTop(1).
		Render("Y resume • N start fresh")
	return lipgloss.JoinVertical(lipgloss.Left, title, body, hint)
}

func (m *Model) placeModal(inner string) string {
	modal := styles.ModalStyle.Render(inner)
	return lipgloss.Place(m.WindowWidth, m.WindowHeight, lipgloss.Center, lipgloss.Center, modal)
}

// reservedRows is the vertical chrome around the chat area: header,
// input box with its border, and the status bar.
func (m *Model) reservedRows() int {
	return 1 + (m.TextInput.Height() + 2) + 2 + chromePadRows
}

func (m *Model) chatRows() int {
	rows := m.WindowHeight - m.reservedRows()
	if rows < 3 {
		rows = 3
	}
	return rows
}

func modelPickerHeight(windowHeight int) int {
	h := windowHeight - 10
	if h > 15 {
		h = 15
	}
	if h < 5 {
		h = 5
	}
	return h
}
