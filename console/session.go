package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pitline/pitline/core"
	"github.com/pitline/pitline/internal/eventbus"
	"github.com/pitline/pitline/schema"
	"pkt.systems/pslog"
)

// AgentUpdate is one step of a streaming copilot turn. Delta carries
// displayable reply text, Notice a system line (action results). The
// channel closes after the update with Done set.
type AgentUpdate struct {
	Delta  string
	Notice string
	Err    error
	Done   bool
}

// Copilot runs one prompt turn. Implementations own the model call and
// any venue actions it requests; the session only displays updates.
type Copilot interface {
	Send(ctx context.Context, history []schema.ChatMessage, prompt string) (<-chan AgentUpdate, error)
}

// CommandResult is what a slash command wants the session to do.
type CommandResult struct {
	Lines []string
	Theme schema.ThemeName
	Clear bool
	Quit  bool
}

// CommandHandler executes slash commands the session does not handle
// itself. Unknown commands return schema.ErrUnknownCommand.
type CommandHandler interface {
	Handle(ctx context.Context, line string) (CommandResult, error)
}

// Size is a terminal geometry update.
type Size struct {
	Width  int
	Height int
}

// Snapshot is the restorable part of a session.
type Snapshot struct {
	Messages []schema.ChatMessage `json:"messages"`
	History  []string             `json:"history"`
	Theme    schema.ThemeName     `json:"theme"`
}

// Config wires a Session to its transport and collaborators. Chunks
// carries raw terminal input; the session never reads from the
// transport itself.
type Config struct {
	Output     io.Writer
	Chunks     <-chan string
	Resize     <-chan Size
	Events     <-chan eventbus.Event
	Copilot    Copilot
	Commands   CommandHandler
	UserID     schema.UserID
	VenueLabel string
	Theme      schema.ThemeName
	MaxLines   int
	Restore    *Snapshot
	OnSnapshot func(Snapshot)
}

// Session owns one terminal: transcript, prompt editor, scrollback and
// the event loop tying them together. All state is mutated from Run's
// goroutine only.
type Session struct {
	cfg    Config
	screen *screen
	ctx    context.Context

	chat      *core.ChatLog
	history   *core.History
	scroll    core.ScrollState
	decoder   Decoder
	editor    lineEditor
	themeName schema.ThemeName

	width  int
	height int

	notice     string
	spinnerIdx int
	running    bool
	queue      []string
	updates    <-chan AgentUpdate
	streamID   schema.MessageID
	cancelTurn context.CancelFunc

	historyIndex int
	historyDraft string

	dirty bool
}

// NewSession builds a session; Run drives it.
func NewSession(cfg Config) *Session {
	s := &Session{
		cfg:          cfg,
		screen:       newScreen(cfg.Output),
		chat:         core.NewChatLog(),
		history:      core.NewHistory(0),
		themeName:    cfg.Theme,
		width:        80,
		height:       24,
		historyIndex: -1,
	}
	if s.themeName == "" {
		s.themeName = schema.DefaultTheme
	}
	if cfg.Restore != nil {
		s.chat.Restore(cfg.Restore.Messages)
		s.history = core.NewHistoryFrom(cfg.Restore.History, 0)
		if cfg.Restore.Theme != "" && KnownTheme(cfg.Restore.Theme) {
			s.themeName = cfg.Restore.Theme
		}
	}
	return s
}

func (s *Session) log() pslog.Logger {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return pslog.Ctx(ctx).With("user", s.cfg.UserID)
}

// SetSize records the terminal geometry; zero or negative values fall
// back to 80x24.
func (s *Session) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	s.width = width
	s.height = height
}

// Run drives the session until the transport closes, the user exits,
// or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.screen.EnterAltScreen()
	defer s.screen.ExitAltScreen()
	defer s.snapshot()
	defer s.stopTurn()

	if s.chat.Len() == 0 {
		s.chat.AppendSystemf("pitline ready. /help for commands, plain text to talk to the copilot.")
	}
	s.render()
	s.log().Info("console session start", "width", s.width, "height", s.height)

	spinner := time.NewTicker(250 * time.Millisecond)
	defer spinner.Stop()

	events := s.cfg.Events
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-s.cfg.Chunks:
			if !ok {
				return nil
			}
			if s.handleChunk(chunk) {
				return nil
			}
		case size, ok := <-s.cfg.Resize:
			if ok {
				s.SetSize(size.Width, size.Height)
				s.dirty = true
				s.log().Debug("console resize", "width", s.width, "height", s.height)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}
			if s.handleEvent(ev) {
				return nil
			}
		case upd, ok := <-s.updates:
			if !ok {
				s.updates = nil
				s.finishTurn()
				break
			}
			s.handleUpdate(upd)
		case <-spinner.C:
			if s.running {
				s.spinnerIdx = (s.spinnerIdx + 1) % len(spinnerFrames)
				s.dirty = true
			}
		}

		if s.dirty {
			s.render()
			s.dirty = false
		}
	}
}

func (s *Session) handleEvent(ev eventbus.Event) bool {
	switch ev.Type {
	case eventbus.EventNotice:
		s.appendSystem(ev.Text)
	case eventbus.EventShutdown:
		s.appendSystem("server shutting down: " + ev.Text)
		s.render()
		return true
	}
	s.dirty = true
	return false
}

func (s *Session) handleChunk(chunk string) bool {
	keys, wheel := s.decoder.Feed(chunk)
	if wheel != 0 {
		s.scrollLines(wheel)
	}
	for _, k := range keys {
		if s.handleKey(k) {
			return true
		}
	}
	s.dirty = true
	return false
}

func (s *Session) handleKey(k key) bool {
	switch k.kind {
	case keyCtrlD:
		if s.editor.Len() == 0 {
			s.log().Info("console exit", "reason", "ctrl-d")
			return true
		}
		s.scroll.Reset()
		s.editor.Delete()
	case keyCtrlC:
		if s.running {
			s.appendSystem("turn cancelled")
			s.stopTurn()
			s.finishTurn()
			return false
		}
		s.editor.Clear()
	case keyEnter:
		return s.handleEnter()
	case keyCtrlJ:
		s.scroll.Reset()
		s.editor.InsertRune('\n')
	case keyRune:
		s.scroll.Reset()
		s.editor.InsertRune(k.r)
	case keyTab:
		s.scroll.Reset()
		s.editor.InsertRune('\t')
	case keyBackspace:
		s.scroll.Reset()
		s.editor.Backspace()
	case keyDelete:
		s.scroll.Reset()
		s.editor.Delete()
	case keyLeft:
		s.editor.MoveLeft()
	case keyRight:
		s.editor.MoveRight()
	case keyHome, keyCtrlA:
		s.editor.MoveStart()
	case keyEnd, keyCtrlE:
		s.editor.MoveEnd()
	case keyAltB:
		s.editor.MoveWordLeft()
	case keyAltF:
		s.editor.MoveWordRight()
	case keyCtrlW:
		s.scroll.Reset()
		s.editor.DeleteWordBackward()
	case keyCtrlU:
		s.scroll.Reset()
		s.editor.KillLineStart()
	case keyCtrlK:
		s.scroll.Reset()
		s.editor.KillLineEnd()
	case keyCtrlL:
		s.dirty = true
	case keyUp:
		if !s.editor.MoveUp() {
			s.historyUp()
		}
	case keyDown:
		if !s.editor.MoveDown() {
			s.historyDown()
		}
	case keyPageUp:
		s.scrollLines(s.viewHeight())
	case keyPageDown:
		s.scrollLines(-s.viewHeight())
	}
	s.dirty = true
	return false
}

func (s *Session) handleEnter() bool {
	raw := s.editor.String()
	line := strings.TrimSpace(raw)
	s.editor.Clear()
	s.historyIndex = -1
	s.historyDraft = ""
	s.notice = ""
	if line == "" {
		return false
	}
	s.history.Append(raw)

	if !strings.Contains(raw, "\n") && strings.HasPrefix(line, "/") {
		return s.handleCommand(line)
	}

	if s.running {
		s.queue = append(s.queue, raw)
		s.appendSystem(fmt.Sprintf("queued prompt: %s", strings.ReplaceAll(raw, "\n", "\\n")))
		return false
	}
	s.sendPrompt(raw)
	return false
}

func (s *Session) handleCommand(line string) bool {
	s.log().Debug("console command", "input", line)
	switch fields := strings.Fields(line); fields[0] {
	case "/exit", "/quit", "/q", "/logout":
		s.log().Info("console exit", "reason", "command", "input", line)
		return true
	case "/clear":
		s.chat.Clear()
		s.scroll.Reset()
		return false
	case "/theme":
		s.switchTheme(fields[1:])
		return false
	case "/help":
		for _, l := range helpLines() {
			s.appendSystem(l)
		}
		return false
	}

	if s.cfg.Commands == nil {
		s.appendError(schema.ErrUnknownCommand)
		return false
	}
	res, err := s.cfg.Commands.Handle(s.ctx, line)
	if err != nil {
		s.log().Warn("console command failed", "input", line, "err", err)
		s.appendError(err)
		return false
	}
	for _, l := range res.Lines {
		s.appendSystem(l)
	}
	if res.Clear {
		s.chat.Clear()
		s.scroll.Reset()
	}
	if res.Theme != "" && KnownTheme(res.Theme) {
		s.themeName = res.Theme
	}
	return res.Quit
}

func (s *Session) switchTheme(args []string) {
	if len(args) == 0 {
		names := make([]string, 0, len(ThemeNames()))
		for _, n := range ThemeNames() {
			names = append(names, string(n))
		}
		s.appendSystem("theme: " + string(s.themeName) + " (available: " + strings.Join(names, ", ") + ")")
		return
	}
	name := schema.ThemeName(args[0])
	if !KnownTheme(name) {
		s.appendError(fmt.Errorf("unknown theme %q", args[0]))
		return
	}
	s.themeName = name
	s.appendSystem("theme set to " + string(name))
}

func (s *Session) sendPrompt(prompt string) {
	if s.cfg.Copilot == nil {
		s.appendError(errors.New("copilot unavailable"))
		return
	}
	history := s.chat.Messages()
	s.appendAnchored(func() {
		s.chat.Append(schema.RoleUser, prompt)
	})

	turnCtx, cancel := context.WithCancel(s.ctx)
	updates, err := s.cfg.Copilot.Send(turnCtx, history, prompt)
	if err != nil {
		cancel()
		s.appendError(err)
		return
	}
	s.cancelTurn = cancel
	s.updates = updates
	s.running = true
	s.streamID = 0
	s.log().Debug("console prompt send", "len", len(prompt))
}

func (s *Session) handleUpdate(upd AgentUpdate) {
	if upd.Err != nil {
		s.appendError(upd.Err)
	}
	if upd.Notice != "" {
		s.appendSystem(upd.Notice)
	}
	if upd.Delta != "" {
		s.appendAnchored(func() {
			if s.streamID == 0 {
				s.streamID = s.chat.Append(schema.RoleAssistant, upd.Delta)
			} else {
				s.chat.AppendContent(s.streamID, upd.Delta)
			}
		})
	}
	if upd.Done {
		s.finishTurn()
	}
	s.dirty = true
}

func (s *Session) finishTurn() {
	if !s.running && len(s.queue) == 0 {
		return
	}
	s.stopTurn()
	s.running = false
	s.streamID = 0
	s.dirty = true
	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.sendPrompt(next)
	}
}

func (s *Session) stopTurn() {
	if s.cancelTurn != nil {
		s.cancelTurn()
		s.cancelTurn = nil
	}
	s.updates = nil
	s.running = false
}

func (s *Session) historyUp() {
	entries := s.history.Entries()
	if len(entries) == 0 {
		return
	}
	if s.historyIndex == -1 {
		s.historyDraft = s.editor.String()
		s.historyIndex = len(entries) - 1
	} else if s.historyIndex > 0 {
		s.historyIndex--
	}
	s.editor.SetString(entries[s.historyIndex])
}

func (s *Session) historyDown() {
	entries := s.history.Entries()
	if s.historyIndex == -1 {
		return
	}
	if s.historyIndex < len(entries)-1 {
		s.historyIndex++
		s.editor.SetString(entries[s.historyIndex])
		return
	}
	s.historyIndex = -1
	s.editor.SetString(s.historyDraft)
	s.historyDraft = ""
}

func (s *Session) scrollLines(delta int) {
	total := len(BuildLines(s.chat.Messages(), s.contentWidth()))
	s.scroll.Scroll(delta, total, s.viewHeight())
	s.dirty = true
}

// appendAnchored runs a transcript mutation and, when the user has
// scrolled up, grows the offset by the number of display lines the
// mutation added so the visible region does not move.
func (s *Session) appendAnchored(fn func()) {
	if s.scroll.AtBottom() {
		fn()
		return
	}
	before := len(BuildLines(s.chat.Messages(), s.contentWidth()))
	fn()
	after := len(BuildLines(s.chat.Messages(), s.contentWidth()))
	s.scroll.Anchor(after - before)
}

func (s *Session) appendSystem(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s.appendAnchored(func() {
		s.chat.AppendSystemf("%s", text)
	})
	s.dirty = true
}

func (s *Session) appendError(err error) {
	if err == nil {
		return
	}
	s.appendSystem(fmt.Sprintf("error: %v", err))
}

func (s *Session) snapshot() {
	if s.cfg.OnSnapshot == nil {
		return
	}
	s.cfg.OnSnapshot(Snapshot{
		Messages: s.chat.Messages(),
		History:  s.history.Entries(),
		Theme:    s.themeName,
	})
}

func (s *Session) contentWidth() int {
	if s.width <= 0 {
		return 80
	}
	return s.width
}

func (s *Session) viewHeight() int {
	rows, _, _ := renderInputRows(s.promptPrefix(), s.editor.String(), s.editor.cursor, s.contentWidth())
	view := s.height - 1 - len(rows)
	if view < 0 {
		view = 0
	}
	return view
}

func (s *Session) promptPrefix() string {
	if s.running && len(spinnerFrames) > 0 {
		return fmt.Sprintf("%c ", spinnerFrames[s.spinnerIdx])
	}
	return "> "
}

func (s *Session) render() {
	width := s.contentWidth()
	height := s.height
	if height <= 0 {
		height = 24
	}
	theme := themeForName(s.themeName)

	prefix := s.promptPrefix()
	inputRows, cursorRow, cursorCol := renderInputRows(stylePrompt(prefix, theme), s.editor.String(), s.editor.cursor, width)
	viewHeight := height - 1 - len(inputRows)
	if viewHeight < 0 {
		viewHeight = 0
	}

	all := BuildLines(s.chat.Messages(), width)
	win := core.Window(len(all), viewHeight, s.scroll.Offset())
	s.scroll.Scroll(win.Offset-s.scroll.Offset(), len(all), viewHeight)

	lines := make([]string, 0, height)
	lines = append(lines, renderStatusBar(s.cfg.VenueLabel, win.Offset, width, theme))
	for _, ln := range all[win.Start:win.End] {
		lines = append(lines, styleLine(ln, theme))
	}
	for len(lines) < 1+viewHeight {
		lines = append(lines, "")
	}
	if s.notice != "" {
		// The notice replaces the last viewport row until the next
		// keystroke clears it.
		lines[len(lines)-1] = ansiFgRGB(theme.ErrorFG) + trimToWidth(s.notice, width) + ansiReset
	}
	lines = append(lines, inputRows...)
	cursorRow = len(lines) - len(inputRows) + cursorRow
	if err := s.screen.Render(lines, cursorRow, cursorCol); err != nil {
		s.log().Warn("console render failed", "err", err)
	}
}

func stylePrompt(prefix string, theme tuiTheme) string {
	if strings.HasPrefix(prefix, ">") {
		return ansiBold + ansiFgRGB(theme.PromptFG) + ">" + ansiReset + strings.TrimPrefix(prefix, ">")
	}
	return ansiFgRGB(theme.SpinnerFG) + prefix + ansiReset
}

func helpLines() []string {
	return []string{
		"commands:",
		"  /help                 this help",
		"  /clear                clear the transcript",
		"  /theme [name]         show or switch color theme",
		"  /balances             venue balances",
		"  /positions            open positions",
		"  /orders               open orders",
		"  /price SYM [SYM...]   latest prices",
		"  /buy SYM SIZE [PX]    place a buy order (market when PX omitted)",
		"  /sell SYM SIZE [PX]   place a sell order",
		"  /cancel ORDER_ID      cancel an open order",
		"  /env [KEY[=VALUE]]    show or set .env entries",
		"  /usage                model token usage this session",
		"  /version              build version",
		"  /exit                 leave the console",
		"keys: PgUp/PgDn or mouse wheel to scroll, Up/Down for prompt history,",
		"Ctrl-J for a newline, Ctrl-C to cancel a running turn, Ctrl-D to exit.",
	}
}

var spinnerFrames = []rune{'|', '/', '-', '\\'}
