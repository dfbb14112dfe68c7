package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/five82/buddy/internal/chat"
	"github.com/five82/buddy/internal/filmbuddy"
	"github.com/five82/buddy/internal/friends"
	"github.com/five82/buddy/internal/notify"
	"github.com/five82/buddy/internal/scheduler"
	"github.com/five82/buddy/internal/state"
)

// Stream names, used for scheduling, health and log lines.
const (
	StreamUnread  = "unread"
	StreamFriends = "friends"
	StreamChat    = "chat"
)

const (
	DefaultUnreadInterval  = 5 * time.Second
	DefaultFriendsInterval = 5 * time.Second
	DefaultChatInterval    = 3 * time.Second

	archiveTimeout = 2 * time.Second
)

var (
	// ErrNotConfirmed is returned when a friend deletion was not confirmed.
	ErrNotConfirmed = errors.New("friend deletion not confirmed")
	// ErrBlankInput is returned for empty usernames and messages.
	ErrBlankInput = errors.New("input is empty")
	// ErrRunning is returned by Start when the engine is already running.
	ErrRunning = errors.New("engine already running")
)

// HistoryArchive persists accepted chat snapshots. *archive.Archive
// implements it.
type HistoryArchive interface {
	SaveHistory(ctx context.Context, peerID int64, messages []filmbuddy.ChatMessage) error
	LoadHistory(ctx context.Context, peerID int64) ([]filmbuddy.ChatMessage, error)
}

// Intervals sets the polling cadence of each stream. Zero values use the
// defaults.
type Intervals struct {
	Unread  time.Duration
	Friends time.Duration
	Chat    time.Duration
}

func (iv Intervals) withDefaults() Intervals {
	if iv.Unread <= 0 {
		iv.Unread = DefaultUnreadInterval
	}
	if iv.Friends <= 0 {
		iv.Friends = DefaultFriendsInterval
	}
	if iv.Chat <= 0 {
		iv.Chat = DefaultChatInterval
	}
	return iv
}

// Options configure an Engine.
type Options struct {
	Intervals Intervals
	ToastTTL  time.Duration
	Archive   HistoryArchive // optional
	// OnChange is called after any observable state changed. It must not
	// call back into the engine synchronously.
	OnChange func()
	// Clock replaces time.Now for toast timestamps.
	Clock func() time.Time
}

// Engine keeps the friend graph, toasts and the open chat in sync with the
// service by polling.
type Engine struct {
	api       filmbuddy.API
	intervals Intervals
	archive   HistoryArchive
	onChange  func()

	health  *state.Store
	toasts  *notify.Queue
	history *chat.History

	mu       sync.Mutex
	graph    friends.Graph
	events   []friends.Event
	sched    *scheduler.Scheduler
	unread   *scheduler.Handle
	friendsH *scheduler.Handle
	chatH    *scheduler.Handle
	openPeer int64

	reportedConflicts string
	archiveSeq        uint64

	archiveMu   sync.Mutex
	archivedSeq map[int64]uint64
	archiveWG   sync.WaitGroup
}

// New creates an idle engine. Call Start to begin polling.
func New(api filmbuddy.API, opts Options) *Engine {
	e := &Engine{
		api:       api,
		intervals: opts.Intervals.withDefaults(),
		archive:   opts.Archive,
		onChange:  opts.OnChange,
		health:    &state.Store{},
		history:   chat.NewHistory(),

		archivedSeq: make(map[int64]uint64),
	}
	queueOpts := []notify.Option{notify.WithOnChange(e.changed)}
	if opts.Clock != nil {
		queueOpts = append(queueOpts, notify.WithClock(opts.Clock))
	}
	e.toasts = notify.New(opts.ToastTTL, queueOpts...)
	return e
}

// Start schedules the unread and friend-graph pollers. Both run once
// immediately. Polling stops when ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sched != nil {
		return ErrRunning
	}
	e.sched = scheduler.New(ctx, e.pollFailed)
	e.unread = e.sched.Schedule(StreamUnread, e.intervals.Unread, e.pollUnread)
	e.friendsH = e.sched.Schedule(StreamFriends, e.intervals.Friends, e.pollFriends)
	return nil
}

// Stop cancels every poller. Results still in flight are discarded. The
// engine may be started again afterwards.
func (e *Engine) Stop() {
	e.mu.Lock()
	sched := e.sched
	e.sched = nil
	e.unread, e.friendsH, e.chatH = nil, nil, nil
	e.openPeer = 0
	e.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}

// Close stops polling, waits for pending archive writes and drops every
// live toast.
func (e *Engine) Close() {
	e.Stop()
	e.archiveWG.Wait()
	e.toasts.Close()
}

// OpenChat starts polling the history of peerID, replacing any chat that was
// open before.
func (e *Engine) OpenChat(peerID int64) error {
	if peerID <= 0 {
		return fmt.Errorf("invalid peer id %d", peerID)
	}
	e.mu.Lock()
	if e.sched == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine not started")
	}
	previous := e.chatH
	if previous != nil && e.openPeer == peerID {
		e.mu.Unlock()
		return nil
	}
	e.openPeer = peerID
	e.chatH = e.sched.Schedule(StreamChat, e.intervals.Chat, e.pollHistory(peerID))
	sched := e.sched
	e.mu.Unlock()

	// Cancel outside the lock: an in-flight apply holds the task guard and
	// waits for e.mu.
	sched.Cancel(previous)
	e.changed()
	return nil
}

// CloseChat stops polling the open chat. The cached history is kept.
func (e *Engine) CloseChat() {
	e.mu.Lock()
	handle := e.chatH
	sched := e.sched
	e.chatH = nil
	e.openPeer = 0
	e.mu.Unlock()

	if sched != nil {
		sched.Cancel(handle)
	}
	e.health.Forget(StreamChat)
	e.changed()
}

// OpenPeer returns the peer whose chat is open, or zero.
func (e *Engine) OpenPeer() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openPeer
}

// RefreshFriends requests an immediate friend-graph poll.
func (e *Engine) RefreshFriends() {
	e.mu.Lock()
	h := e.friendsH
	e.mu.Unlock()
	h.Trigger()
}

// RefreshChat requests an immediate poll of the open chat.
func (e *Engine) RefreshChat() {
	e.mu.Lock()
	h := e.chatH
	e.mu.Unlock()
	h.Trigger()
}

// TakeEvents returns and clears the friend notifications produced since the
// previous call. Each event is delivered exactly once.
func (e *Engine) TakeEvents() []friends.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	events := e.events
	e.events = nil
	return events
}

// Snapshot is a by-value view of everything the engine holds.
type Snapshot struct {
	Friends  []filmbuddy.Friend
	Incoming []filmbuddy.IncomingRequest
	Outgoing []filmbuddy.OutgoingRequest
	Seeded   bool

	Toasts []notify.Toast

	OpenPeer int64
	Chat     chat.Conversation

	Health  map[string]state.Health
	Offline bool
}

// Snapshot returns copies of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	graph := e.graph.Snapshot()
	peer := e.openPeer
	e.mu.Unlock()

	snap := Snapshot{
		Friends:  graph.Friends,
		Incoming: graph.Incoming,
		Outgoing: graph.Outgoing,
		Seeded:   graph.Seeded,
		Toasts:   e.toasts.Live(),
		OpenPeer: peer,
		Health:   e.health.Snapshot(),
		Offline:  e.health.Offline(),
	}
	if peer > 0 {
		snap.Chat = e.history.Conversation(peer)
	}
	return snap
}

// ArchivedHistory returns the last archived conversation with peerID, for
// display before the first history poll completes.
func (e *Engine) ArchivedHistory(ctx context.Context, peerID int64) ([]filmbuddy.ChatMessage, error) {
	if e.archive == nil {
		return nil, nil
	}
	return e.archive.LoadHistory(ctx, peerID)
}

// recordSuccess marks stream healthy. Only a recovery from failures is an
// observable change.
func (e *Engine) recordSuccess(stream string) {
	recovered := e.health.Health(stream).ConsecutiveFailures > 0
	e.health.RecordSuccess(stream)
	if recovered {
		e.changed()
	}
}

func (e *Engine) pollFailed(stream string, err error) {
	e.health.RecordFailure(stream, err)
	log.Printf("%s poll failed: %v", stream, err)
	e.changed()
}

func (e *Engine) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}

// normalize trims s and rejects blank input.
func normalize(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ErrBlankInput
	}
	return trimmed, nil
}
