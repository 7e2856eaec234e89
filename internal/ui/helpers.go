package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/mattn/go-runewidth"

	"vesper/internal/models"
	"vesper/internal/styles"
)

// EstimateTokens provides a rough token count based on character count.
func EstimateTokens(s string) int {
	return len(s) / CharsPerToken
}

// EstimateHistoryTokens is the approximate token count for the whole
// conversation, for the status bar.
func EstimateHistoryTokens(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func RelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if d < 24*time.Hour {
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1 hr ago"
		}
		return fmt.Sprintf("%d hrs ago", hrs)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

// WrappedLineCount counts terminal rows the value needs at the given
// width, used to grow the input box as the user types.
func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	count := 0
	for _, line := range strings.Split(value, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	if count < 1 {
		count = 1
	}
	return count
}

// TextareaCursorIndex maps the textarea's row/column cursor to a byte
// offset into its value.
func TextareaCursorIndex(t textarea.Model) int {
	value := t.Value()
	row := t.Line()
	li := t.LineInfo()
	col := li.StartColumn + li.ColumnOffset

	lines := strings.Split(value, "\n")
	if len(lines) == 0 {
		return 0
	}
	if row < 0 {
		row = 0
	}
	if row >= len(lines) {
		row = len(lines) - 1
	}
	index := 0
	for i := 0; i < row; i++ {
		index += len(lines[i]) + 1
	}
	return index + byteIndexForRuneColumn(lines[row], col)
}

// SetTextareaCursorIndex positions the cursor at a byte offset.
func SetTextareaCursorIndex(t *textarea.Model, index int) {
	value := t.Value()
	if index < 0 {
		index = 0
	}
	if index > len(value) {
		index = len(value)
	}

	row, col := 0, 0
	pos := 0
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		if index <= pos+len(line) {
			row = i
			col = utf8.RuneCountInString(line[:index-pos])
			break
		}
		pos += len(line) + 1
	}

	for i := 0; i < 10000 && t.Line() > 0; i++ {
		t.CursorUp()
	}
	for i := 0; i < 10000 && t.Line() < row; i++ {
		t.CursorDown()
	}
	t.SetCursor(col)
}

func byteIndexForRuneColumn(s string, col int) int {
	if col <= 0 {
		return 0
	}
	count := 0
	for i := range s {
		if count >= col {
			return i
		}
		count++
	}
	return len(s)
}

func FormatUserMessage(content string, width int) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(width - 4).Render(content)
	return fmt.Sprintf("%s\n%s", label, msg)
}

func FormatAssistantMessage(content string) string {
	label := styles.AssistantLabelStyle.Render("VESPER")
	msg := styles.AssistantMsgStyle.Render(content)
	return fmt.Sprintf("%s\n%s", label, msg)
}

func FormatAnnouncement(content string) string {
	label := styles.AssistantLabelStyle.Render("VESPER")
	msg := styles.AnnouncementStyle.Render(content)
	return fmt.Sprintf("%s\n%s", label, msg)
}

func WelcomeScreen() string {
	art := `
 ╭─────────────────────────────────────────╮
 │                                         │
 │   ██╗   ██╗███████╗███████╗██████╗      │
 │   ██║   ██║██╔════╝██╔════╝██╔══██╗     │
 │   ██║   ██║█████╗  ███████╗██████╔╝     │
 │   ╚██╗ ██╔╝██╔══╝  ╚════██║██╔═══╝      │
 │    ╚████╔╝ ███████╗███████║██║          │
 │     ╚═══╝  ╚══════╝╚══════╝╚═╝          │
 │                                         │
 ╰─────────────────────────────────────────╯
`
	sub := styles.WelcomeSubtitleStyle.Render("Type a message to start, or /help for commands.")
	return styles.WelcomeArtStyle.Render(art) + "\n" + sub
}
