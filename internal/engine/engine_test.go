package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/five82/buddy/internal/filmbuddy"
	"github.com/five82/buddy/internal/friends"
)

// fakeAPI behaves like a tiny server: actions mutate the sets later polls
// return, unless an error is configured for them.
type fakeAPI struct {
	mu sync.Mutex

	unread   []filmbuddy.UnreadNotification
	history  map[int64][]filmbuddy.ChatMessage
	friends  []filmbuddy.Friend
	incoming []filmbuddy.IncomingRequest
	outgoing []filmbuddy.OutgoingRequest

	unreadErr   error
	friendsErr  error
	requestErr  error
	respondErr  error
	deleteErr   error
	sendErr     error
	echoRequest *filmbuddy.OutgoingRequest
	echoSend    bool

	calls map[string]int
	sent  []filmbuddy.SendMessageRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history: make(map[int64][]filmbuddy.ChatMessage),
		calls:   make(map[string]int),
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) FetchUnread(context.Context) ([]filmbuddy.UnreadNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["unread"]++
	if f.unreadErr != nil {
		return nil, f.unreadErr
	}
	out := f.unread
	f.unread = nil
	return out, nil
}

func (f *fakeAPI) FetchHistory(_ context.Context, peerID int64) ([]filmbuddy.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["history"]++
	return slices.Clone(f.history[peerID]), nil
}

func (f *fakeAPI) SendMessage(_ context.Context, toUserID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["send"]++
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, filmbuddy.SendMessageRequest{ToUserID: toUserID, Text: text})
	if f.echoSend {
		ts := fmt.Sprintf("t%03d", len(f.history[toUserID])+1)
		f.history[toUserID] = append(f.history[toUserID], filmbuddy.ChatMessage{
			FromUserID: 1, ToUserID: toUserID, Text: text, Timestamp: ts,
		})
	}
	return nil
}

func (f *fakeAPI) FetchFriends(context.Context) ([]filmbuddy.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["friends"]++
	if f.friendsErr != nil {
		return nil, f.friendsErr
	}
	return slices.Clone(f.friends), nil
}

func (f *fakeAPI) FetchIncoming(context.Context) ([]filmbuddy.IncomingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.incoming), nil
}

func (f *fakeAPI) FetchOutgoing(context.Context) ([]filmbuddy.OutgoingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.outgoing), nil
}

func (f *fakeAPI) SendFriendRequest(_ context.Context, username string) (*filmbuddy.OutgoingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["request"]++
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	if f.echoRequest != nil {
		f.outgoing = append(f.outgoing, *f.echoRequest)
		echo := *f.echoRequest
		return &echo, nil
	}
	return nil, nil
}

func (f *fakeAPI) RespondFriendRequest(_ context.Context, requestID int64, accept bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["respond"]++
	if f.respondErr != nil {
		return f.respondErr
	}
	idx := slices.IndexFunc(f.incoming, func(r filmbuddy.IncomingRequest) bool { return r.RequestID == requestID })
	if idx < 0 {
		return &filmbuddy.APIError{Status: 404, Detail: "request not found"}
	}
	req := f.incoming[idx]
	f.incoming = slices.Delete(f.incoming, idx, idx+1)
	if accept {
		f.friends = append(f.friends, filmbuddy.Friend{UserID: req.FromUserID, Username: req.FromUsername})
	}
	return nil
}

func (f *fakeAPI) DeleteFriend(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.friends = slices.DeleteFunc(f.friends, func(fr filmbuddy.Friend) bool { return fr.UserID == userID })
	return nil
}

type fakeArchive struct {
	mu    sync.Mutex
	saved map[int64][]filmbuddy.ChatMessage
}

func (a *fakeArchive) SaveHistory(_ context.Context, peerID int64, messages []filmbuddy.ChatMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saved == nil {
		a.saved = make(map[int64][]filmbuddy.ChatMessage)
	}
	a.saved[peerID] = slices.Clone(messages)
	return nil
}

func (a *fakeArchive) LoadHistory(_ context.Context, peerID int64) ([]filmbuddy.ChatMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.saved[peerID]), nil
}

func (a *fakeArchive) len(peerID int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved[peerID])
}

var fast = Intervals{Unread: 10 * time.Millisecond, Friends: 10 * time.Millisecond, Chat: 10 * time.Millisecond}

func startEngine(t *testing.T, api filmbuddy.API, opts Options) *Engine {
	t.Helper()
	e := New(api, opts)
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		e.Close()
	})
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seeded(e *Engine) func() bool {
	return func() bool { return e.Snapshot().Seeded }
}

func TestUnreadBecomesToast(t *testing.T) {
	api := newFakeAPI()
	api.unread = []filmbuddy.UnreadNotification{
		{MessageID: 1, FromUserID: 7, FromUsername: "sam", Text: "hi", Timestamp: "t1"},
	}
	e := startEngine(t, api, Options{Intervals: fast, ToastTTL: time.Minute})

	waitFor(t, "toast", func() bool { return len(e.Snapshot().Toasts) == 1 })
	toast := e.Snapshot().Toasts[0]
	if toast.Content != "sam: hi" {
		t.Fatalf("toast content = %q", toast.Content)
	}
	if got := toast.ExpiresAt.Sub(toast.CreatedAt); got != time.Minute {
		t.Fatalf("toast lifetime = %v", got)
	}
}

func TestToastsExpire(t *testing.T) {
	api := newFakeAPI()
	api.unread = []filmbuddy.UnreadNotification{
		{MessageID: 1, FromUserID: 7, FromUsername: "sam", Text: "hi", Timestamp: "t1"},
	}
	e := startEngine(t, api, Options{Intervals: fast, ToastTTL: 200 * time.Millisecond})

	waitFor(t, "toast", func() bool { return len(e.Snapshot().Toasts) == 1 })
	waitFor(t, "expiry", func() bool { return len(e.Snapshot().Toasts) == 0 })
}

func TestFriendPollsProduceEvents(t *testing.T) {
	api := newFakeAPI()
	api.friends = []filmbuddy.Friend{{UserID: 2, Username: "amy"}}
	e := startEngine(t, api, Options{Intervals: fast})

	waitFor(t, "seed", seeded(e))
	if events := e.TakeEvents(); len(events) != 0 {
		t.Fatalf("seeding must not notify, got %+v", events)
	}

	api.mu.Lock()
	api.friends = append(api.friends, filmbuddy.Friend{UserID: 3, Username: "bob"})
	api.mu.Unlock()

	var events []friends.Event
	waitFor(t, "added event", func() bool {
		events = append(events, e.TakeEvents()...)
		return len(events) > 0
	})
	if len(events) != 1 || events[0].Kind != friends.FriendAdded || events[0].Friend.Username != "bob" {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[0].Message() != "Friend added: bob" {
		t.Fatalf("message = %q", events[0].Message())
	}

	api.mu.Lock()
	api.friends = []filmbuddy.Friend{{UserID: 3, Username: "bob"}}
	api.mu.Unlock()

	events = nil
	waitFor(t, "removed event", func() bool {
		events = append(events, e.TakeEvents()...)
		return len(events) > 0
	})
	if len(events) != 1 || events[0].Kind != friends.FriendRemoved || events[0].Friend.UserID != 2 {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestRespondAcceptAddsFriendOnce(t *testing.T) {
	api := newFakeAPI()
	api.incoming = []filmbuddy.IncomingRequest{{RequestID: 4, FromUserID: 9, FromUsername: "zed"}}
	e := startEngine(t, api, Options{Intervals: fast})
	waitFor(t, "incoming", func() bool { return len(e.Snapshot().Incoming) == 1 })

	if err := e.Respond(context.Background(), 4, true); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	snap := e.Snapshot()
	if len(snap.Incoming) != 0 {
		t.Fatalf("incoming should be empty, got %+v", snap.Incoming)
	}
	if _, ok := e.Friend(9); !ok {
		t.Fatal("zed should be a friend")
	}

	// Let several polls land; none may repeat the notification.
	base := api.count("friends")
	waitFor(t, "more polls", func() bool { return api.count("friends") >= base+3 })
	events := e.TakeEvents()
	if len(events) != 1 || events[0].Kind != friends.FriendAdded || events[0].Friend.UserID != 9 {
		t.Fatalf("expected exactly one FriendAdded, got %+v", events)
	}
}

func TestRespondRejectRemovesRequestOnly(t *testing.T) {
	api := newFakeAPI()
	api.incoming = []filmbuddy.IncomingRequest{{RequestID: 4, FromUserID: 9, FromUsername: "zed"}}
	e := startEngine(t, api, Options{Intervals: fast})
	waitFor(t, "incoming", func() bool { return len(e.Snapshot().Incoming) == 1 })

	if err := e.Respond(context.Background(), 4, false); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	snap := e.Snapshot()
	if len(snap.Incoming) != 0 || len(snap.Friends) != 0 {
		t.Fatalf("unexpected state %+v", snap)
	}
	if events := e.TakeEvents(); len(events) != 0 {
		t.Fatalf("reject must not notify, got %+v", events)
	}
}

func TestRespondFailureLeavesState(t *testing.T) {
	api := newFakeAPI()
	api.incoming = []filmbuddy.IncomingRequest{{RequestID: 4, FromUserID: 9, FromUsername: "zed"}}
	api.respondErr = &filmbuddy.APIError{Status: 404, Detail: "request not found"}
	e := startEngine(t, api, Options{Intervals: fast})
	waitFor(t, "incoming", func() bool { return len(e.Snapshot().Incoming) == 1 })

	err := e.Respond(context.Background(), 4, true)
	if filmbuddy.Reason(err) != "request not found" {
		t.Fatalf("Reason = %q", filmbuddy.Reason(err))
	}
	if snap := e.Snapshot(); len(snap.Incoming) != 1 || len(snap.Friends) != 0 {
		t.Fatalf("state changed on failure: %+v", snap)
	}
}

func TestDeleteFriendRequiresConfirmation(t *testing.T) {
	api := newFakeAPI()
	api.friends = []filmbuddy.Friend{{UserID: 2, Username: "amy"}}
	e := startEngine(t, api, Options{Intervals: fast})
	waitFor(t, "seed", seeded(e))

	if err := e.DeleteFriend(context.Background(), 2, false); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if api.count("delete") != 0 {
		t.Fatal("unconfirmed delete must not reach the server")
	}

	if err := e.DeleteFriend(context.Background(), 2, true); err != nil {
		t.Fatalf("DeleteFriend: %v", err)
	}
	if len(e.Snapshot().Friends) != 0 {
		t.Fatal("friend should be gone")
	}
	events := e.TakeEvents()
	if len(events) != 1 || events[0].Kind != friends.FriendRemoved || events[0].Friend.Username != "amy" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestSendFriendRequestSurfacesDetail(t *testing.T) {
	api := newFakeAPI()
	api.requestErr = &filmbuddy.APIError{Method: "POST", Path: "/users/friend_requests", Status: 400, Detail: "already friends"}
	e := startEngine(t, api, Options{Intervals: fast})
	waitFor(t, "seed", seeded(e))

	err := e.SendFriendRequest(context.Background(), "amy")
	if err == nil || err.Error() != "already friends" {
		t.Fatalf("expected server detail, got %v", err)
	}
	if len(e.Snapshot().Outgoing) != 0 {
		t.Fatal("outgoing must be unchanged after a failure")
	}
}

func TestSendFriendRequestAddsEcho(t *testing.T) {
	api := newFakeAPI()
	api.echoRequest = &filmbuddy.OutgoingRequest{RequestID: 11, ToUserID: 5, ToUsername: "kim"}
	e := startEngine(t, api, Options{Intervals: fast})
	waitFor(t, "seed", seeded(e))

	if err := e.SendFriendRequest(context.Background(), "  kim "); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}
	out := e.Snapshot().Outgoing
	if len(out) != 1 || out[0].CounterpartName() != "kim" {
		t.Fatalf("unexpected outgoing %+v", out)
	}
}

func TestBlankInputRejectedLocally(t *testing.T) {
	api := newFakeAPI()
	e := New(api, Options{})

	if err := e.SendFriendRequest(context.Background(), "   "); !errors.Is(err, ErrBlankInput) {
		t.Fatalf("expected ErrBlankInput, got %v", err)
	}
	if err := e.SendMessage(context.Background(), 7, "\t"); !errors.Is(err, ErrBlankInput) {
		t.Fatalf("expected ErrBlankInput, got %v", err)
	}
	if api.count("request")+api.count("send") != 0 {
		t.Fatal("blank input must not reach the server")
	}
}

func TestSendMessageLeavesCacheToPolls(t *testing.T) {
	api := newFakeAPI()
	api.history[7] = []filmbuddy.ChatMessage{{FromUserID: 7, ToUserID: 1, Text: "hey", Timestamp: "t001"}}
	iv := fast
	iv.Chat = time.Hour
	e := startEngine(t, api, Options{Intervals: iv})

	if err := e.OpenChat(7); err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	waitFor(t, "history", func() bool { return len(e.Snapshot().Chat.Messages) == 1 })
	version := e.Snapshot().Chat.Version

	if err := e.SendMessage(context.Background(), 7, "yo"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	// The server did not echo; the triggered poll must leave the cache alone.
	waitFor(t, "refresh", func() bool { return api.count("history") >= 2 })
	chat := e.Snapshot().Chat
	if len(chat.Messages) != 1 || chat.Version != version {
		t.Fatalf("cache mutated by send: %+v", chat)
	}
}

func TestSendMessageEchoArrivesByPoll(t *testing.T) {
	api := newFakeAPI()
	api.echoSend = true
	archive := &fakeArchive{}
	iv := fast
	iv.Chat = time.Hour
	e := startEngine(t, api, Options{Intervals: iv, Archive: archive})

	if err := e.OpenChat(7); err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	waitFor(t, "first poll", func() bool { return api.count("history") >= 1 })

	if err := e.SendMessage(context.Background(), 7, "yo"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitFor(t, "echo", func() bool { return len(e.Snapshot().Chat.Messages) == 1 })
	if got := e.Snapshot().Chat.Messages[0].Text; got != "yo" {
		t.Fatalf("message = %q", got)
	}
	waitFor(t, "archive", func() bool { return archive.len(7) == 1 })

	stored, err := e.ArchivedHistory(context.Background(), 7)
	if err != nil || len(stored) != 1 {
		t.Fatalf("ArchivedHistory = %+v, %v", stored, err)
	}
}

func TestSendMessageFailure(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = &filmbuddy.APIError{Status: 403, Detail: "you can only message friends"}
	e := New(api, Options{})

	err := e.SendMessage(context.Background(), 7, "hello")
	if filmbuddy.Reason(err) != "you can only message friends" {
		t.Fatalf("Reason = %q", filmbuddy.Reason(err))
	}
}

func TestOpenChatSwitchesPeer(t *testing.T) {
	api := newFakeAPI()
	api.history[7] = []filmbuddy.ChatMessage{{FromUserID: 7, ToUserID: 1, Text: "from seven", Timestamp: "t1"}}
	api.history[8] = []filmbuddy.ChatMessage{{FromUserID: 8, ToUserID: 1, Text: "from eight", Timestamp: "t1"}}
	e := startEngine(t, api, Options{Intervals: fast})

	if err := e.OpenChat(7); err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	waitFor(t, "peer 7", func() bool { return len(e.Snapshot().Chat.Messages) == 1 })

	if err := e.OpenChat(8); err != nil {
		t.Fatalf("OpenChat: %v", err)
	}
	waitFor(t, "peer 8", func() bool {
		c := e.Snapshot().Chat
		return c.PeerID == 8 && len(c.Messages) == 1
	})
	if got := e.Snapshot().Chat.Messages[0].Text; got != "from eight" {
		t.Fatalf("message = %q", got)
	}

	e.CloseChat()
	snap := e.Snapshot()
	if snap.OpenPeer != 0 || len(snap.Chat.Messages) != 0 {
		t.Fatalf("chat should be closed: %+v", snap)
	}
	if _, ok := snap.Health[StreamChat]; ok {
		t.Fatal("chat health should be forgotten on close")
	}
}

func TestOpenChatRequiresStart(t *testing.T) {
	e := New(newFakeAPI(), Options{})
	if err := e.OpenChat(7); err == nil {
		t.Fatal("expected error before Start")
	}
	if err := e.OpenChat(0); err == nil {
		t.Fatal("expected error for invalid peer")
	}
}

func TestStartTwice(t *testing.T) {
	e := startEngine(t, newFakeAPI(), Options{Intervals: fast})
	if err := e.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
}

func TestPollFailuresMarkOffline(t *testing.T) {
	api := newFakeAPI()
	api.unreadErr = fmt.Errorf("%w: bad entry", filmbuddy.ErrContract)
	e := startEngine(t, api, Options{Intervals: fast})

	waitFor(t, "offline", func() bool { return e.Snapshot().Offline })
	h := e.Snapshot().Health[StreamUnread]
	if !errors.Is(h.LastError, filmbuddy.ErrContract) {
		t.Fatalf("LastError = %v", h.LastError)
	}
	if len(e.Snapshot().Toasts) != 0 {
		t.Fatal("failed poll must not produce toasts")
	}

	api.mu.Lock()
	api.unreadErr = nil
	api.mu.Unlock()
	waitFor(t, "recovery", func() bool { return !e.Snapshot().Offline })
}

func TestPartialFriendPollAppliesWhatSucceeded(t *testing.T) {
	api := newFakeAPI()
	api.friendsErr = errors.New("boom")
	api.incoming = []filmbuddy.IncomingRequest{{RequestID: 4, FromUserID: 9, FromUsername: "zed"}}
	e := New(api, Options{})

	apply, err := e.pollFriends(context.Background())
	if err == nil || apply == nil {
		t.Fatalf("expected partial result, got apply=%v err=%v", apply != nil, err)
	}
	apply()
	snap := e.Snapshot()
	if len(snap.Incoming) != 1 || snap.Seeded {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestInFlightFriendPollCannotUndoDelete(t *testing.T) {
	api := newFakeAPI()
	api.friends = []filmbuddy.Friend{{UserID: 2, Username: "amy"}, {UserID: 3, Username: "bob"}}
	e := New(api, Options{})
	ctx := context.Background()

	apply, err := e.pollFriends(ctx)
	if err != nil {
		t.Fatalf("pollFriends: %v", err)
	}
	apply()

	// Fetched while bob is still a friend, applied after the delete.
	inFlight, err := e.pollFriends(ctx)
	if err != nil {
		t.Fatalf("pollFriends: %v", err)
	}
	if err := e.DeleteFriend(ctx, 3, true); err != nil {
		t.Fatalf("DeleteFriend: %v", err)
	}
	inFlight()

	snap := e.Snapshot()
	if len(snap.Friends) != 1 || snap.Friends[0].UserID != 2 {
		t.Fatalf("stale poll resurrected a friend: %+v", snap.Friends)
	}
	events := e.TakeEvents()
	if len(events) != 1 || events[0].Kind != friends.FriendRemoved {
		t.Fatalf("expected only the delete event, got %+v", events)
	}
}

func TestClosedChatDiscardsLateHistory(t *testing.T) {
	api := newFakeAPI()
	api.history[7] = []filmbuddy.ChatMessage{{FromUserID: 7, ToUserID: 1, Text: "late", Timestamp: "t1"}}
	e := New(api, Options{})

	apply, err := e.pollHistory(7)(context.Background())
	if err != nil {
		t.Fatalf("pollHistory: %v", err)
	}
	// No chat is open, so the result has nowhere to go.
	apply()
	if c := e.history.Conversation(7); len(c.Messages) != 0 {
		t.Fatalf("late history applied: %+v", c)
	}
}
