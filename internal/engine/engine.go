package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vesper/internal/config"
	"vesper/internal/db"
	"vesper/internal/models"
)

// Gateway is the completion provider as seen by the engine. Both
// methods may fail; failures surface as announcement messages and the
// conversation stays usable.
type Gateway interface {
	StreamCompletion(ctx context.Context, model string, msgs []models.Message) (Stream, error)
	GenerateTitle(ctx context.Context, seed string) (string, error)
}

// Stream is a lazily-produced sequence of text deltas.
type Stream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// Command is one entry of the fixed slash-command surface.
type Command struct {
	Name        string
	Description string
}

var Commands = []Command{
	{Name: "/clear", Description: "clear the current conversation"},
	{Name: "/exit", Description: "quit"},
	{Name: "/help", Description: "show commands and key bindings"},
	{Name: "/model", Description: "switch model (/model <name> or pick)"},
	{Name: "/models", Description: "open the model picker"},
	{Name: "/new", Description: "start a new session"},
	{Name: "/quit", Description: "quit"},
	{Name: "/resume", Description: "resume a session (/resume <id>)"},
	{Name: "/sessions", Description: "list recent sessions"},
}

// Action tells the caller what a submission resolved to.
type Action int

const (
	ActionNone Action = iota // rejected or empty input
	ActionHandled            // slash command executed in place
	ActionExit
	ActionOpenModelPicker
	ActionCompletion // a completion stream should be opened
)

// Submission is the result of Submit or Regenerate. For
// ActionCompletion it carries everything needed to open the stream and
// (optionally) request a session title.
type Submission struct {
	Action     Action
	Model      string
	Prompt     []models.Message
	SessionID  string
	NeedsTitle bool
	TitleSeed  string
}

// TitleResult is the outcome of an asynchronous title request, tagged
// with the session it was generated for so stale results can be
// discarded after /new.
type TitleResult struct {
	SessionID string
	Title     string
}

const (
	saveDebounce       = 250 * time.Millisecond
	maxAttachmentLines = 1000
	fallbackTitleWords = 5
	fallbackTitleLen   = 30
	sessionListLimit   = 10
)

// Engine owns the conversation state: the message list, the active
// model, session identity and title. All mutations go through its
// methods; the streaming coordinator and the session store are driven
// from here.
type Engine struct {
	store *db.SessionStore
	gw    Gateway
	log   *zap.Logger

	cfg     config.Config
	cfgPath string

	session        *models.Session
	stream         Coordinator
	attachments    []string
	pendingResume  *models.Session
	initialized    bool
	titleRequested bool

	saveMu      sync.Mutex
	saveTimer   *time.Timer
	savePending *models.Session
}

// New wires an engine. store may be nil when the session database
// could not be opened; persistence then degrades to a no-op.
func New(store *db.SessionStore, gw Gateway, cfgPath string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, gw: gw, cfgPath: cfgPath, log: log}
}

// NewSessionID mints a time-ordered unique session id.
func NewSessionID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
}

// Initialize loads the config, picks the active model (falling back to
// the default when the stored one is unsupported), mints a fresh
// session id, and stages the previous session as a resume candidate if
// it still exists and has at least one message. The candidate is not
// loaded until the user confirms.
func (e *Engine) Initialize() {
	cfg, err := config.Load(e.cfgPath)
	if err != nil {
		e.log.Warn("config load failed, using defaults", zap.Error(err))
	}
	e.cfg = cfg

	model := e.cfg.CurrentModel
	if _, _, ok := models.FindModel(model); !ok {
		model = models.DefaultModel().ID
		e.cfg.CurrentModel = model
	}

	now := time.Now()
	e.session = &models.Session{
		ID:        NewSessionID(),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{},
	}

	if e.store != nil && e.cfg.LastSessionID != "" {
		if prev, err := e.store.Load(e.cfg.LastSessionID); err == nil && len(prev.Messages) > 0 {
			e.pendingResume = prev
		}
	}

	e.cfg.LastSessionID = e.session.ID
	e.saveConfig()
	e.initialized = true
}

func (e *Engine) Session() *models.Session       { return e.session }
func (e *Engine) Messages() []models.Message     { return e.session.Messages }
func (e *Engine) Model() string                  { return e.session.Model }
func (e *Engine) Title() string                  { return e.session.Title }
func (e *Engine) StreamPhase() StreamPhase       { return e.stream.Phase() }
func (e *Engine) StreamActive() bool             { return e.stream.Active() }
func (e *Engine) PendingResume() *models.Session { return e.pendingResume }
func (e *Engine) Attachments() []string          { return e.attachments }

// AttachFile records a committed file reference for the next
// submission. Duplicates are kept; the attachment list is not
// deduplicated.
func (e *Engine) AttachFile(path string) {
	e.attachments = append(e.attachments, path)
}

// Submit interprets one line of user input: slash commands dispatch to
// internal actions, everything else becomes a user message followed by
// a completion request. Submitting while a stream is in flight is a
// no-op.
func (e *Engine) Submit(text string) Submission {
	if !e.initialized || e.stream.Active() {
		return Submission{Action: ActionNone}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Submission{Action: ActionNone}
	}

	if strings.HasPrefix(text, "/") {
		if sub, ok := e.dispatchCommand(text); ok {
			return sub
		}
		// Unrecognized slash text is sent as literal user content.
	}

	outgoing := expandAttachments(text, e.attachments)
	e.attachments = nil

	e.session.Messages = append(e.session.Messages, models.Message{
		Role:    models.RoleUser,
		Content: outgoing,
	})

	needsTitle := false
	if !e.titleRequested && countUserMessages(e.session.Messages) == 1 {
		needsTitle = true
		e.titleRequested = true
	}

	e.persist()
	return e.beginCompletion(needsTitle, text)
}

func (e *Engine) beginCompletion(needsTitle bool, titleSeed string) Submission {
	if err := e.stream.Begin(e.session.Model); err != nil {
		return Submission{Action: ActionNone}
	}
	return Submission{
		Action:     ActionCompletion,
		Model:      e.session.Model,
		Prompt:     promptMessages(e.session.Messages),
		SessionID:  e.session.ID,
		NeedsTitle: needsTitle,
		TitleSeed:  titleSeed,
	}
}

func (e *Engine) dispatchCommand(text string) (Submission, bool) {
	fields := strings.Fields(text)
	name, args := fields[0], fields[1:]

	switch name {
	case "/clear":
		if len(args) == 0 {
			e.Clear()
			return Submission{Action: ActionHandled}, true
		}
	case "/exit", "/quit":
		if len(args) == 0 {
			return Submission{Action: ActionExit}, true
		}
	case "/help":
		if len(args) == 0 {
			e.announce(helpText())
			return Submission{Action: ActionHandled}, true
		}
	case "/models":
		if len(args) == 0 {
			return Submission{Action: ActionOpenModelPicker}, true
		}
	case "/model":
		if len(args) == 0 {
			return Submission{Action: ActionOpenModelPicker}, true
		}
		if len(args) == 1 {
			e.switchModel(args[0])
			return Submission{Action: ActionHandled}, true
		}
	case "/sessions":
		if len(args) == 0 {
			e.announce(e.sessionListing())
			return Submission{Action: ActionHandled}, true
		}
	case "/resume":
		if len(args) == 1 {
			e.Resume(args[0])
			return Submission{Action: ActionHandled}, true
		}
		if len(args) == 0 {
			e.announce("Usage: /resume <id or prefix>. /sessions lists what can be resumed.")
			return Submission{Action: ActionHandled}, true
		}
	case "/new":
		if len(args) == 0 {
			e.StartNew()
			return Submission{Action: ActionHandled}, true
		}
	}
	return Submission{}, false
}

func (e *Engine) switchModel(id string) {
	if mdl, _, ok := models.FindModel(id); ok {
		e.SetModel(mdl.ID)
		e.announce(fmt.Sprintf("Switched to %s.", mdl.Name))
		return
	}
	var names []string
	for _, m := range models.Available {
		names = append(names, m.ID)
	}
	e.announce(fmt.Sprintf("Unknown model %q. Available models:\n- %s", id, strings.Join(names, "\n- ")))
}

// SetModel switches the active model and rewrites the config.
func (e *Engine) SetModel(id string) {
	if _, _, ok := models.FindModel(id); !ok {
		return
	}
	e.session.Model = id
	e.cfg.CurrentModel = id
	e.saveConfig()
	e.persist()
}

// Regenerate drops the last assistant reply and everything after it,
// then re-requests a completion from the retained history. No-op when
// there is no assistant reply or no user message preceding it.
func (e *Engine) Regenerate() Submission {
	if !e.initialized || e.stream.Active() {
		return Submission{Action: ActionNone}
	}

	msgs := e.session.Messages
	assistantIdx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleAssistant && !msgs[i].Announcement {
			assistantIdx = i
			break
		}
	}
	if assistantIdx < 0 {
		return Submission{Action: ActionNone}
	}
	userIdx := -1
	for i := assistantIdx - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		return Submission{Action: ActionNone}
	}

	e.session.Messages = msgs[:assistantIdx]
	e.persist()
	return e.beginCompletion(false, "")
}

// EditLast returns the most recent user message content for
// re-population into the input field. The message list is untouched.
func (e *Engine) EditLast() (string, bool) {
	msgs := e.session.Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			return msgs[i].Content, true
		}
	}
	return "", false
}

// Clear empties the message list, keeping session identity, title and
// model.
func (e *Engine) Clear() {
	e.session.Messages = []models.Message{}
	e.persist()
}

// StartNew abandons the current session and mints a fresh one.
func (e *Engine) StartNew() {
	now := time.Now()
	e.session = &models.Session{
		ID:        NewSessionID(),
		Model:     e.session.Model,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []models.Message{},
	}
	e.titleRequested = false
	e.cfg.LastSessionID = e.session.ID
	e.saveConfig()
}

// Resume replaces the active session with a stored one resolved by id
// or id prefix. A miss is reported as an announcement, not an error.
func (e *Engine) Resume(idOrPrefix string) bool {
	if e.store == nil {
		e.announce("Session history is unavailable.")
		return false
	}
	sess, err := e.store.Resolve(idOrPrefix)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			e.announce(fmt.Sprintf("No session matching %q. /sessions lists recent ones.", idOrPrefix))
		} else {
			e.announce(fmt.Sprintf("Could not resume %q: %v", idOrPrefix, err))
		}
		return false
	}
	e.adoptSession(sess)
	return true
}

// ConfirmResume settles the staged resume candidate: accept loads it,
// decline keeps the freshly minted session.
func (e *Engine) ConfirmResume(accept bool) {
	candidate := e.pendingResume
	e.pendingResume = nil
	if accept && candidate != nil {
		e.adoptSession(candidate)
	}
}

func (e *Engine) adoptSession(sess *models.Session) {
	e.session = sess.Clone()
	if _, _, ok := models.FindModel(e.session.Model); !ok {
		e.session.Model = models.DefaultModel().ID
	}
	e.titleRequested = e.session.Title != ""
	e.cfg.LastSessionID = e.session.ID
	e.cfg.CurrentModel = e.session.Model
	e.saveConfig()
}

// OpenStream opens the completion stream for a previously accepted
// submission. A failure to open is folded into FailStream by the
// caller.
func (e *Engine) OpenStream(ctx context.Context, sub Submission) (Stream, error) {
	return e.gw.StreamCompletion(ctx, sub.Model, sub.Prompt)
}

// ApplyDelta folds one streamed delta into the conversation. The first
// delta appends the placeholder assistant message; later ones replace
// its content with the full accumulated text.
func (e *Engine) ApplyDelta(delta string) string {
	text, first := e.stream.Append(delta)
	if first {
		e.session.Messages = append(e.session.Messages, models.Message{
			Role:        models.RoleAssistant,
			Content:     text,
			IsStreaming: true,
		})
		return text
	}
	if last := e.lastStreamingMessage(); last != nil {
		last.Content = text
	}
	return text
}

// FinishStream settles the in-flight completion: the placeholder stops
// streaming and is stamped with the model that produced it.
func (e *Engine) FinishStream() {
	text, model := e.stream.Settle()
	if last := e.lastStreamingMessage(); last != nil {
		last.Content = text
		last.IsStreaming = false
		last.Model = model
	} else if text != "" {
		e.session.Messages = append(e.session.Messages, models.Message{
			Role:    models.RoleAssistant,
			Content: text,
			Model:   model,
		})
	}
	e.persist()
}

// FailStream converts a stream failure into a visible announcement.
// Accumulated partial content is replaced by the error description.
func (e *Engine) FailStream(err error) {
	e.stream.Fail(err)
	desc := fmt.Sprintf("Error: %v", err)
	if last := e.lastStreamingMessage(); last != nil {
		last.Content = desc
		last.IsStreaming = false
		last.Announcement = true
	} else {
		e.announce(desc)
		return
	}
	e.persist()
}

func (e *Engine) lastStreamingMessage() *models.Message {
	if n := len(e.session.Messages); n > 0 && e.session.Messages[n-1].IsStreaming {
		return &e.session.Messages[n-1]
	}
	return nil
}

// RequestTitle asks the gateway for a short session title, falling
// back to a prefix of the seed text on any failure.
func (e *Engine) RequestTitle(ctx context.Context, sub Submission) TitleResult {
	title, err := e.gw.GenerateTitle(ctx, sub.TitleSeed)
	title = strings.TrimSpace(title)
	if err != nil || title == "" {
		if err != nil {
			e.log.Debug("title generation failed", zap.Error(err))
		}
		title = FallbackTitle(sub.TitleSeed)
	}
	return TitleResult{SessionID: sub.SessionID, Title: title}
}

// ApplyTitle records an asynchronously generated title. Results tagged
// with a session id that is no longer active are dropped, so a slow
// title request cannot clobber a session started afterwards.
func (e *Engine) ApplyTitle(r TitleResult) {
	if r.SessionID != e.session.ID {
		e.log.Debug("dropping stale title", zap.String("for", r.SessionID))
		return
	}
	e.session.Title = r.Title
	e.persist()
}

// FallbackTitle derives a title from the first few words of text.
func FallbackTitle(text string) string {
	words := strings.Fields(text)
	if len(words) > fallbackTitleWords {
		words = words[:fallbackTitleWords]
	}
	title := strings.Join(words, " ")
	r := []rune(title)
	if len(r) > fallbackTitleLen {
		title = string(r[:fallbackTitleLen])
	}
	return title
}

func (e *Engine) announce(text string) {
	e.session.Messages = append(e.session.Messages, models.Message{
		Role:         models.RoleAssistant,
		Content:      text,
		Announcement: true,
	})
	e.persist()
}

func (e *Engine) sessionListing() string {
	if e.store == nil {
		return "Session history is unavailable."
	}
	sessions, err := e.store.List(sessionListLimit)
	if err != nil {
		return fmt.Sprintf("Could not list sessions: %v", err)
	}
	if len(sessions) == 0 {
		return "No stored sessions yet."
	}
	var b strings.Builder
	b.WriteString("Recent sessions (/resume <id>):\n")
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		marker := " "
		if s.ID == e.session.ID {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s  %s  %s\n", marker, shortID(s.ID), s.UpdatedAt.Format("Jan 2 15:04"), title)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 14 {
		return id[:14]
	}
	return id
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range Commands {
		fmt.Fprintf(&b, "  %-10s %s\n", c.Name, c.Description)
	}
	b.WriteString("\nKeys: Enter send • Ctrl+R regenerate • Ctrl+E edit last • @ attach file • Esc close/quit")
	return b.String()
}

func countUserMessages(msgs []models.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			n++
		}
	}
	return n
}

// promptMessages is the ordered history sent to the provider:
// announcements and the (not yet existing) streaming placeholder are
// excluded.
func promptMessages(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Announcement || m.IsStreaming {
			continue
		}
		out = append(out, m)
	}
	return out
}

// expandAttachments appends each referenced file as a labeled block,
// truncated past maxAttachmentLines. Unreadable files are skipped.
func expandAttachments(text string, files []string) string {
	if len(files) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n# Attached Files\n")
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		body := string(content)
		lines := strings.Split(body, "\n")
		if len(lines) > maxAttachmentLines {
			body = strings.Join(lines[:maxAttachmentLines], "\n")
			body += fmt.Sprintf("\n\n[... truncated, %d more lines]", len(lines)-maxAttachmentLines)
		}
		fmt.Fprintf(&b, "\n## %s\n```\n%s\n```\n", file, body)
	}
	return b.String()
}

func (e *Engine) saveConfig() {
	if e.cfgPath == "" {
		return
	}
	if err := config.Save(e.cfg, e.cfgPath); err != nil {
		e.log.Warn("config save failed", zap.Error(err))
	}
}

// persist schedules a debounced best-effort save of the current
// session snapshot followed by retention cleanup. Rapid mutations
// coalesce into one write.
func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	snap := e.session.Clone()

	e.saveMu.Lock()
	e.savePending = snap
	if e.saveTimer == nil {
		e.saveTimer = time.AfterFunc(saveDebounce, e.flushPending)
	}
	e.saveMu.Unlock()
}

func (e *Engine) flushPending() {
	e.saveMu.Lock()
	snap := e.savePending
	e.savePending = nil
	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}
	e.saveMu.Unlock()

	if snap == nil {
		return
	}
	if err := e.store.Save(snap); err != nil {
		e.log.Warn("session save failed", zap.String("id", snap.ID), zap.Error(err))
		return
	}
	if err := e.store.Cleanup(db.MaxRetainedSessions); err != nil {
		e.log.Debug("session cleanup failed", zap.Error(err))
	}
}

// Flush writes any pending snapshot immediately. Called on shutdown
// and by tests that need deterministic persistence.
func (e *Engine) Flush() {
	e.flushPending()
}
