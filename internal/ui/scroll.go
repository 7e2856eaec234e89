package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"vesper/internal/models"
)

const (
	// messageOverheadRows covers the role label line and the blank
	// line between messages.
	messageOverheadRows = 2
	minVisibleMessages  = 1
)

// Window is the contiguous slice of the message list that fits the
// viewport. Start and End are slice bounds over the message list.
type Window struct {
	Start, End   int
	HasMoreAbove bool
	HasMoreBelow bool
}

// VisibleWindow walks the message list backward from the scroll
// position, accumulating estimated rows until the viewport budget is
// exhausted. At least minVisibleMessages are always returned, even
// when a single message overflows the budget.
func VisibleWindow(msgs []models.Message, viewportRows, viewportCols, scrollOffset, reservedRows int) Window {
	if len(msgs) == 0 {
		return Window{}
	}
	scrollOffset = ClampOffset(msgs, scrollOffset)

	end := len(msgs) - scrollOffset
	budget := viewportRows - reservedRows

	start := end
	used := 0
	for start > 0 {
		rows := estimateRows(msgs[start-1], viewportCols)
		if used+rows > budget && end-start >= minVisibleMessages {
			break
		}
		used += rows
		start--
	}

	return Window{
		Start:        start,
		End:          end,
		HasMoreAbove: start > 0,
		HasMoreBelow: scrollOffset > 0,
	}
}

// estimateRows predicts how many terminal rows a message will consume:
// a fixed overhead plus the wrapped height of each content line.
func estimateRows(m models.Message, viewportCols int) int {
	usable := viewportCols - 2
	if usable < 1 {
		usable = 1
	}
	rows := messageOverheadRows
	for _, line := range strings.Split(m.Content, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w-1)/usable + 1
	}
	return rows
}

// ClampOffset keeps the scroll offset inside the message list so it
// never points before the start.
func ClampOffset(msgs []models.Message, offset int) int {
	if offset < 0 {
		return 0
	}
	if max := len(msgs) - minVisibleMessages; offset > max {
		if max < 0 {
			return 0
		}
		return max
	}
	return offset
}
