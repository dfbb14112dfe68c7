package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/buddy/internal/engine"
	"github.com/five82/buddy/internal/filmbuddy"
	"github.com/five82/buddy/internal/friends"
	"github.com/five82/buddy/internal/logtail"
	"github.com/five82/buddy/internal/prefs"
)

// Engine is the part of the sync engine the UI drives. *engine.Engine
// implements it.
type Engine interface {
	Snapshot() engine.Snapshot
	TakeEvents() []friends.Event
	OpenChat(peerID int64) error
	CloseChat()
	SendFriendRequest(ctx context.Context, username string) error
	Respond(ctx context.Context, requestID int64, accept bool) error
	DeleteFriend(ctx context.Context, userID int64, confirmed bool) error
	SendMessage(ctx context.Context, peerID int64, text string) error
	ArchivedHistory(ctx context.Context, peerID int64) ([]filmbuddy.ChatMessage, error)
}

// View represents the current active view.
type View int

const (
	ViewMain View = iota
	ViewLogs
)

type pane int

const (
	paneFriends pane = iota
	paneRequests
)

const (
	actionTimeout  = 10 * time.Second
	noticeLifetime = 6 * time.Second
	logLines       = 500
	usernameLimit  = 64
	messageLimit   = 2000
)

// Options configures the UI.
type Options struct {
	Context context.Context
	Engine  Engine
	// Changes receives a value whenever engine state changed.
	Changes   <-chan struct{}
	UserID    int64
	LogFile   string
	ThemeName string
	PrefsPath string
	ToastRows int
	Tick      time.Duration
}

type notice struct {
	text  string
	err   bool
	until time.Time
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	engine    Engine
	changes   <-chan struct{}
	userID    int64
	logFile   string
	prefsPath string
	toastRows int
	tick      time.Duration
	now       func() time.Time

	keys   keyMap
	theme  Theme
	view   View
	focus  pane
	width  int
	height int
	ready  bool

	snap       engine.Snapshot
	friendIdx  int
	requestIdx int

	chatPeer     int64
	chatVersion  uint64
	archived     []filmbuddy.ChatMessage
	chatViewport viewport.Model

	logViewport viewport.Model

	notices  []notice
	modal    Modal
	showHelp bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	toastRows := opts.ToastRows
	if toastRows <= 0 {
		toastRows = prefs.Defaults().ToastRows
	}

	return Model{
		ctx:          ctx,
		engine:       opts.Engine,
		changes:      opts.Changes,
		userID:       opts.UserID,
		logFile:      opts.LogFile,
		prefsPath:    prefsPath,
		toastRows:    toastRows,
		tick:         tick,
		now:          time.Now,
		keys:         DefaultKeyMap(),
		theme:        GetTheme(opts.ThemeName),
		chatViewport: viewport.New(0, 0),
		logViewport:  viewport.New(0, 0),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.tick)}
	if m.changes != nil {
		cmds = append(cmds, waitForChange(m.changes))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		m.renderChatViewport(true)
		return m, nil

	case tickMsg:
		m.refresh()
		var cmds []tea.Cmd
		if m.view == ViewLogs {
			cmds = append(cmds, readLogsCmd(m.logFile))
		}
		cmds = append(cmds, tickCmd(m.tick))
		return m, tea.Batch(cmds...)

	case changedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case actionDoneMsg:
		switch {
		case msg.err != nil:
			m.addNotice(filmbuddy.Reason(msg.err), true)
		case msg.text != "":
			m.addNotice(msg.text, false)
		}
		m.refresh()
		return m, nil

	case archiveMsg:
		if msg.peerID == m.chatPeer && len(m.snap.Chat.Messages) == 0 {
			m.archived = msg.messages
			m.renderChatViewport(true)
		}
		return m, nil

	case logLinesMsg:
		m.setLogLines(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}
	return m.renderMain()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modal != nil {
		next, cmd, closed := m.modal.Update(msg, m.keys)
		if closed {
			m.modal = nil
		} else {
			m.modal = next
		}
		return m, cmd
	}

	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if err := prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, ToastRows: m.toastRows}); err != nil {
			m.addNotice(fmt.Sprintf("save prefs: %v", err), true)
		}
		m.renderChatViewport(true)
		return m, nil
	case key.Matches(msg, m.keys.Logs):
		if m.view == ViewLogs {
			m.view = ViewMain
			return m, nil
		}
		m.view = ViewLogs
		return m, readLogsCmd(m.logFile)
	}

	if m.view == ViewLogs {
		if key.Matches(msg, m.keys.Escape) {
			m.view = ViewMain
			return m, nil
		}
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd
	}
	return m.handleMainKey(msg)
}

func (m Model) handleMainKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		if m.focus == paneFriends {
			m.focus = paneRequests
		} else {
			m.focus = paneFriends
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		if m.chatPeer != 0 {
			m.engine.CloseChat()
			m.chatPeer = 0
			m.archived = nil
			m.refresh()
			m.renderChatViewport(true)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.chatViewport, cmd = m.chatViewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.AddFriend):
		modal, cmd := newInputModal("Add friend", "username", usernameLimit, m.sendFriendRequestCmd)
		m.modal = modal
		return m, cmd

	case key.Matches(msg, m.keys.Compose):
		if m.chatPeer == 0 {
			m.addNotice("Open a chat first", true)
			return m, nil
		}
		title := "Message " + m.peerName(m.chatPeer)
		modal, cmd := newInputModal(title, "say something", messageLimit, m.sendMessageCmd(m.chatPeer))
		m.modal = modal
		return m, cmd
	}

	if m.focus == paneFriends {
		return m.handleFriendsKey(msg)
	}
	return m.handleRequestsKey(msg)
}

func (m Model) handleFriendsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	friend, ok := m.selectedFriend()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.OpenChat):
		if err := m.engine.OpenChat(friend.UserID); err != nil {
			m.addNotice(err.Error(), true)
			return m, nil
		}
		if m.chatPeer != friend.UserID {
			m.chatPeer = friend.UserID
			m.archived = nil
		}
		m.refresh()
		m.renderChatViewport(true)
		return m, m.loadArchiveCmd(friend.UserID)

	case key.Matches(msg, m.keys.DeleteFriend):
		question := fmt.Sprintf("Remove %s from your friends?", friend.Username)
		userID := friend.UserID
		name := friend.Username
		m.modal = newConfirmModal(question, func() tea.Cmd {
			return m.actionCmd("Removed "+name, func(ctx context.Context) error {
				return m.engine.DeleteFriend(ctx, userID, true)
			})
		})
		return m, nil
	}
	return m, nil
}

func (m Model) handleRequestsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	req, ok := m.selectedRequest()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Accept):
		return m, m.actionCmd("", func(ctx context.Context) error {
			return m.engine.Respond(ctx, req.RequestID, true)
		})
	case key.Matches(msg, m.keys.Reject):
		return m, m.actionCmd("Rejected "+req.FromUsername, func(ctx context.Context) error {
			return m.engine.Respond(ctx, req.RequestID, false)
		})
	}
	return m, nil
}

// refresh pulls a new snapshot and the pending friend events.
func (m *Model) refresh() {
	if m.engine == nil {
		return
	}
	m.snap = m.engine.Snapshot()
	for _, ev := range m.engine.TakeEvents() {
		m.addNotice(ev.Message(), false)
	}
	m.pruneNotices()
	m.friendIdx = clampIndex(m.friendIdx, len(m.snap.Friends))
	m.requestIdx = clampIndex(m.requestIdx, len(m.snap.Incoming))
	m.renderChatViewport(false)
}

func (m *Model) moveSelection(delta int) {
	if m.focus == paneFriends {
		m.friendIdx = clampIndex(m.friendIdx+delta, len(m.snap.Friends))
		return
	}
	m.requestIdx = clampIndex(m.requestIdx+delta, len(m.snap.Incoming))
}

func (m Model) selectedFriend() (filmbuddy.Friend, bool) {
	if m.friendIdx < 0 || m.friendIdx >= len(m.snap.Friends) {
		return filmbuddy.Friend{}, false
	}
	return m.snap.Friends[m.friendIdx], true
}

func (m Model) selectedRequest() (filmbuddy.IncomingRequest, bool) {
	if m.requestIdx < 0 || m.requestIdx >= len(m.snap.Incoming) {
		return filmbuddy.IncomingRequest{}, false
	}
	return m.snap.Incoming[m.requestIdx], true
}

func (m Model) peerName(peerID int64) string {
	for _, f := range m.snap.Friends {
		if f.UserID == peerID {
			return f.Username
		}
	}
	return fmt.Sprintf("user %d", peerID)
}

func (m *Model) addNotice(text string, isErr bool) {
	m.notices = append(m.notices, notice{text: text, err: isErr, until: m.now().Add(noticeLifetime)})
}

func (m *Model) pruneNotices() {
	now := m.now()
	var kept []notice
	for _, n := range m.notices {
		if now.Before(n.until) {
			kept = append(kept, n)
		}
	}
	m.notices = kept
}

func (m *Model) setLogLines(msg logLinesMsg) {
	if msg.err != nil {
		m.logViewport.SetContent(m.theme.Styles().DangerText.Render(msg.err.Error()))
		return
	}
	m.logViewport.SetContent(m.renderLogLines(msg.lines))
	m.logViewport.GotoBottom()
}

func clampIndex(idx, n int) int {
	if n == 0 {
		return 0
	}
	return max(0, min(idx, n-1))
}

// Messages

type tickMsg time.Time

type changedMsg struct{}

type actionDoneMsg struct {
	text string
	err  error
}

type archiveMsg struct {
	peerID   int64
	messages []filmbuddy.ChatMessage
}

type logLinesMsg struct {
	lines []string
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	if changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) actionCmd(success string, fn func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{text: success}
	}
}

func (m Model) sendFriendRequestCmd(username string) tea.Cmd {
	return m.actionCmd("Friend request sent to "+username, func(ctx context.Context) error {
		return m.engine.SendFriendRequest(ctx, username)
	})
}

func (m Model) sendMessageCmd(peerID int64) func(string) tea.Cmd {
	return func(text string) tea.Cmd {
		return m.actionCmd("", func(ctx context.Context) error {
			return m.engine.SendMessage(ctx, peerID, text)
		})
	}
}

func (m Model) loadArchiveCmd(peerID int64) tea.Cmd {
	parent := m.ctx
	eng := m.engine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, 2*time.Second)
		defer cancel()
		messages, err := eng.ArchivedHistory(ctx, peerID)
		if err != nil || len(messages) == 0 {
			return nil
		}
		return archiveMsg{peerID: peerID, messages: messages}
	}
}

func readLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		if path == "" {
			return logLinesMsg{}
		}
		lines, err := logtail.Read(path, logLines)
		return logLinesMsg{lines: lines, err: err}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}
