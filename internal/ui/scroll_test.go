package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesper/internal/models"
)

func chat(n int) []models.Message {
	msgs := make([]models.Message, n)
	for i := range msgs {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		msgs[i] = models.Message{Role: role, Content: "message body"}
	}
	return msgs
}

func TestVisibleWindowEmpty(t *testing.T) {
	win := VisibleWindow(nil, 24, 80, 0, 4)
	assert.Equal(t, Window{}, win)
}

func TestVisibleWindowAnchorsToNewest(t *testing.T) {
	msgs := chat(10)
	win := VisibleWindow(msgs, 24, 80, 0, 4)

	assert.Equal(t, len(msgs), win.End)
	assert.False(t, win.HasMoreBelow)
	assert.True(t, win.Start <= win.End)
	assert.True(t, win.Start >= 0)
}

func TestVisibleWindowScrollsBack(t *testing.T) {
	msgs := chat(10)
	win := VisibleWindow(msgs, 12, 80, 3, 4)

	assert.Equal(t, 7, win.End)
	assert.True(t, win.HasMoreBelow)
	assert.True(t, win.HasMoreAbove)
}

func TestVisibleWindowFloor(t *testing.T) {
	// A single message taller than the whole viewport still shows.
	huge := []models.Message{
		{Role: models.RoleAssistant, Content: strings.Repeat("long line of text\n", 200)},
	}
	win := VisibleWindow(huge, 10, 40, 0, 4)
	assert.Equal(t, 0, win.Start)
	assert.Equal(t, 1, win.End)

	// Same with many messages and no room at all.
	win = VisibleWindow(chat(6), 3, 40, 0, 10)
	require.GreaterOrEqual(t, win.End-win.Start, minVisibleMessages)
}

func TestVisibleWindowTinyViewport(t *testing.T) {
	win := VisibleWindow(chat(4), 1, 1, 0, 0)
	assert.GreaterOrEqual(t, win.End-win.Start, minVisibleMessages)
	assert.LessOrEqual(t, win.End, 4)
}

func TestClampOffset(t *testing.T) {
	msgs := chat(5)
	assert.Equal(t, 0, ClampOffset(msgs, -3))
	assert.Equal(t, 2, ClampOffset(msgs, 2))
	assert.Equal(t, 4, ClampOffset(msgs, 99), "at least one message stays visible")
	assert.Equal(t, 0, ClampOffset(nil, 7))
}

func TestEstimateRowsWraps(t *testing.T) {
	narrow := estimateRows(models.Message{Content: strings.Repeat("x", 100)}, 52)
	wide := estimateRows(models.Message{Content: strings.Repeat("x", 100)}, 120)
	assert.Greater(t, narrow, wide)

	empty := estimateRows(models.Message{Content: ""}, 80)
	assert.Equal(t, messageOverheadRows+1, empty)
}

func TestEstimateRowsWideRunes(t *testing.T) {
	ascii := estimateRows(models.Message{Content: strings.Repeat("a", 40)}, 42)
	cjk := estimateRows(models.Message{Content: strings.Repeat("五", 40)}, 42)
	assert.Greater(t, cjk, ascii, "double-width runes wrap sooner")
}
