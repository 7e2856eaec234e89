package ui

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesper/internal/models"
)

func TestCommandPaletteFor(t *testing.T) {
	t.Run("matches prefix", func(t *testing.T) {
		o, ok := CommandPaletteFor("/mo")
		require.True(t, ok)
		assert.Equal(t, OverlayCommandPalette, o.Kind)
		require.Len(t, o.Commands, 2)
		assert.Equal(t, "/model", o.Commands[0].Name)
		assert.Equal(t, "/models", o.Commands[1].Name)
	})

	t.Run("bare slash matches everything", func(t *testing.T) {
		o, ok := CommandPaletteFor("/")
		require.True(t, ok)
		assert.Greater(t, len(o.Commands), 5)
	})

	t.Run("case insensitive", func(t *testing.T) {
		_, ok := CommandPaletteFor("/MO")
		assert.True(t, ok)
	})

	t.Run("no match closes", func(t *testing.T) {
		_, ok := CommandPaletteFor("/zzz")
		assert.False(t, ok)
	})

	t.Run("space ends the palette", func(t *testing.T) {
		_, ok := CommandPaletteFor("/model g")
		assert.False(t, ok)
	})

	t.Run("plain text never opens", func(t *testing.T) {
		_, ok := CommandPaletteFor("hello /model")
		assert.False(t, ok)
	})
}

func TestOverlayNavigationWraps(t *testing.T) {
	o, ok := CommandPaletteFor("/")
	require.True(t, ok)
	n := len(o.Commands)

	o.MoveUp()
	assert.Equal(t, n-1, o.Index, "up from the top wraps to the bottom")
	o.MoveDown()
	assert.Equal(t, 0, o.Index)
	for i := 0; i < n; i++ {
		o.MoveDown()
	}
	assert.Equal(t, 0, o.Index, "a full cycle returns to the start")
}

func TestOverlayExclusivity(t *testing.T) {
	// One tagged value holds the overlay state, so opening one mode
	// structurally replaces the previous one.
	o, ok := CommandPaletteFor("/mo")
	require.True(t, ok)
	assert.True(t, o.Open())

	o = ModelPickerOverlay(models.DefaultModel().ID)
	assert.Equal(t, OverlayModelPicker, o.Kind)
	assert.Empty(t, o.Commands)
}

func TestCloseInnermost(t *testing.T) {
	o := ModelPickerOverlay(models.DefaultModel().ID)
	next, exit := o.CloseInnermost()
	assert.False(t, exit)
	assert.Equal(t, OverlayNone, next.Kind)

	_, exit = next.CloseInnermost()
	assert.True(t, exit, "esc with nothing open quits")
}

func TestCommitEffects(t *testing.T) {
	t.Run("palette inserts command", func(t *testing.T) {
		o, ok := CommandPaletteFor("/res")
		require.True(t, ok)
		effect := o.Commit()
		assert.Equal(t, "/resume ", effect.InsertText)
		assert.False(t, effect.OpenModelPicker)
	})

	t.Run("palette model entries open the picker", func(t *testing.T) {
		o, ok := CommandPaletteFor("/model")
		require.True(t, ok)
		assert.True(t, o.Commit().OpenModelPicker)

		o.MoveDown() // /models
		assert.True(t, o.Commit().OpenModelPicker)
	})

	t.Run("model picker yields the model id", func(t *testing.T) {
		o := ModelPickerOverlay("openai/gpt-4o-mini")
		effect := o.Commit()
		assert.Equal(t, "openai/gpt-4o-mini", effect.ModelID)
	})

	t.Run("picker seeds at the active model", func(t *testing.T) {
		_, idx, ok := models.FindModel("openai/gpt-4o-mini")
		require.True(t, ok)
		o := ModelPickerOverlay("openai/gpt-4o-mini")
		assert.Equal(t, idx, o.Index)
	})
}

func TestAtTokenAt(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		cursor int
		prefix string
		start  int
		ok     bool
	}{
		{"bare at", "@", 1, "", 0, true},
		{"with prefix", "look at @ma", 11, "ma", 8, true},
		{"mid word rejected", "user@ma", 7, "", 0, false},
		{"escaped rejected", `\@ma`, 4, "", 0, false},
		{"space breaks it", "@ma in", 6, "", 0, false},
		{"cursor before at", "x @ma", 1, "", 0, false},
		{"subdir prefix", "@src/ma", 7, "src/ma", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prefix, start, ok := atTokenAt(tc.input, tc.cursor)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.prefix, prefix)
				assert.Equal(t, tc.start, start)
			}
		})
	}
}

func TestFilePickerFor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "makefile"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "maps"), 0o755))

	t.Run("prefix filters and sorts dirs first", func(t *testing.T) {
		o, ok := FilePickerFor(dir, "@ma", 3)
		require.True(t, ok)
		assert.Equal(t, OverlayFilePicker, o.Kind)
		require.Equal(t, []string{"maps", "main.go", "makefile"}, o.Files)
		assert.Equal(t, 0, o.AtStart)
		assert.Equal(t, "ma", o.AtPrefix)
	})

	t.Run("hidden files need a dot prefix", func(t *testing.T) {
		_, ok := FilePickerFor(dir, "@h", 2)
		assert.False(t, ok)

		o, ok := FilePickerFor(dir, "@.h", 3)
		require.True(t, ok)
		assert.Equal(t, []string{".hidden"}, o.Files)
	})

	t.Run("subdirectory listing", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "maps", "world.txt"), nil, 0o644))
		o, ok := FilePickerFor(dir, "@maps/w", 7)
		require.True(t, ok)
		assert.Equal(t, []string{"maps/world.txt"}, o.Files)
	})

	t.Run("no candidates means no overlay", func(t *testing.T) {
		_, ok := FilePickerFor(dir, "@zzz", 4)
		assert.False(t, ok)
	})

	t.Run("commit carries the splice point", func(t *testing.T) {
		o, ok := FilePickerFor(dir, "see @main", 9)
		require.True(t, ok)
		effect := o.Commit()
		assert.Equal(t, "main.go", effect.FilePath)
		assert.Equal(t, 4, effect.AtStart)
		assert.Equal(t, "main", effect.AtPrefix)
	})
}

func TestResumePromptOverlay(t *testing.T) {
	sess := &models.Session{ID: "20260101120000-abcd1234", Title: "old chat"}
	o := ResumePromptOverlay(sess)
	assert.Equal(t, OverlayResumePrompt, o.Kind)
	assert.Same(t, sess, o.Resume)

	// The prompt has no list to navigate.
	o.MoveDown()
	assert.Equal(t, 0, o.Index)
}
