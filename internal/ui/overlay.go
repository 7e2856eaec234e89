package ui

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vesper/internal/engine"
	"vesper/internal/models"
)

// OverlayKind tags the single active input-overlay mode. Keystrokes
// are interpreted against exactly one mode at a time; opening one
// overlay replaces whatever was open before, so two overlays can never
// be active together.
type OverlayKind int

const (
	OverlayNone OverlayKind = iota
	OverlayCommandPalette
	OverlayModelPicker
	OverlayFilePicker
	OverlayResumePrompt
)

const maxFileSuggestions = 10

// Overlay is the tagged-variant overlay state. Only the fields of the
// active Kind are meaningful.
type Overlay struct {
	Kind     OverlayKind
	Commands []engine.Command // palette: filtered command list
	Files    []string         // file picker: candidate paths
	Index    int
	AtStart  int    // file picker: byte offset of the '@' in the input
	AtPrefix string // file picker: partial text typed after '@'
	Resume   *models.Session
}

func (o Overlay) Open() bool { return o.Kind != OverlayNone }

func (o Overlay) size() int {
	switch o.Kind {
	case OverlayCommandPalette:
		return len(o.Commands)
	case OverlayModelPicker:
		return len(models.Available)
	case OverlayFilePicker:
		return len(o.Files)
	default:
		return 0
	}
}

// MoveUp and MoveDown cycle the selection, wrapping at both ends.
func (o *Overlay) MoveUp() {
	if n := o.size(); n > 0 {
		o.Index = (o.Index - 1 + n) % n
	}
}

func (o *Overlay) MoveDown() {
	if n := o.size(); n > 0 {
		o.Index = (o.Index + 1) % n
	}
}

// CloseInnermost closes the active overlay; with none open it signals
// that the application should exit.
func (o Overlay) CloseInnermost() (Overlay, bool) {
	if o.Kind == OverlayNone {
		return o, true
	}
	return Overlay{}, false
}

// CommitEffect is what committing the current selection should do to
// the wider model.
type CommitEffect struct {
	InsertText      string
	OpenModelPicker bool
	ModelID         string
	FilePath        string
	AtStart         int
	AtPrefix        string
}

func (o Overlay) Commit() CommitEffect {
	switch o.Kind {
	case OverlayCommandPalette:
		if o.Index >= len(o.Commands) {
			return CommitEffect{}
		}
		cmd := o.Commands[o.Index]
		if cmd.Name == "/model" || cmd.Name == "/models" {
			return CommitEffect{OpenModelPicker: true}
		}
		return CommitEffect{InsertText: cmd.Name + " "}
	case OverlayModelPicker:
		if o.Index >= len(models.Available) {
			return CommitEffect{}
		}
		return CommitEffect{ModelID: models.Available[o.Index].ID}
	case OverlayFilePicker:
		if o.Index >= len(o.Files) {
			return CommitEffect{}
		}
		return CommitEffect{FilePath: o.Files[o.Index], AtStart: o.AtStart, AtPrefix: o.AtPrefix}
	}
	return CommitEffect{}
}

// ModelPickerOverlay opens the model picker seeded with the index of
// the currently active model.
func ModelPickerOverlay(currentModel string) Overlay {
	_, idx, _ := models.FindModel(currentModel)
	return Overlay{Kind: OverlayModelPicker, Index: idx}
}

// ResumePromptOverlay stages the resume confirmation. While it is
// active every other overlay is suppressed and only Y/N are accepted.
func ResumePromptOverlay(candidate *models.Session) Overlay {
	return Overlay{Kind: OverlayResumePrompt, Resume: candidate}
}

// CommandPaletteFor returns the palette for the given input: input
// must be a single slash-prefixed token and at least one command must
// match it by case-insensitive prefix.
func CommandPaletteFor(input string) (Overlay, bool) {
	raw := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(raw, "/") || strings.ContainsAny(raw, " \t\n") {
		return Overlay{}, false
	}
	prefix := strings.ToLower(raw)
	var matched []engine.Command
	for _, cmd := range engine.Commands {
		if strings.HasPrefix(strings.ToLower(cmd.Name), prefix) {
			matched = append(matched, cmd)
		}
	}
	if len(matched) == 0 {
		return Overlay{}, false
	}
	return Overlay{Kind: OverlayCommandPalette, Commands: matched}, true
}

// FilePickerFor returns the file picker when the cursor sits after an
// unescaped '@' file reference being typed. dir is the directory the
// scan is rooted at.
func FilePickerFor(dir, input string, cursor int) (Overlay, bool) {
	prefix, start, ok := atTokenAt(input, cursor)
	if !ok {
		return Overlay{}, false
	}
	files := fileSuggestions(dir, prefix)
	if len(files) == 0 {
		return Overlay{}, false
	}
	return Overlay{Kind: OverlayFilePicker, Files: files, AtStart: start, AtPrefix: prefix}, true
}

// atTokenAt scans backward from the cursor for an '@' that starts a
// file reference: not escaped, not immediately preceded by a word
// character, and with no whitespace between it and the cursor.
func atTokenAt(input string, cursor int) (prefix string, start int, ok bool) {
	if cursor > len(input) {
		cursor = len(input)
	}
	for i := cursor - 1; i >= 0; i-- {
		switch ch := input[i]; {
		case ch == '@':
			if i > 0 && (isWordByte(input[i-1]) || input[i-1] == '\\') {
				return "", 0, false
			}
			return input[i+1 : cursor], i, true
		case ch == ' ' || ch == '\t' || ch == '\n':
			return "", 0, false
		}
	}
	return "", 0, false
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// fileSuggestions lists entries of dir (or a subdirectory named in the
// prefix) whose name starts with the typed prefix, directories first.
func fileSuggestions(dir, prefix string) []string {
	sub := ""
	namePrefix := prefix
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		sub = prefix[:idx+1]
		namePrefix = prefix[idx+1:]
	}

	entries, err := os.ReadDir(filepath.Join(dir, sub))
	if err != nil {
		return nil
	}

	lower := strings.ToLower(namePrefix)
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(namePrefix, ".") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), lower) {
			out = append(out, sub+name)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		iDir := isDir(filepath.Join(dir, out[i]))
		jDir := isDir(filepath.Join(dir, out[j]))
		if iDir != jDir {
			return iDir
		}
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})

	if len(out) > maxFileSuggestions {
		out = out[:maxFileSuggestions]
	}
	return out
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
