package chat

import (
	"testing"

	"github.com/five82/buddy/internal/filmbuddy"
)

func msg(from int64, text, ts string) filmbuddy.ChatMessage {
	return filmbuddy.ChatMessage{FromUserID: from, ToUserID: 1, Text: text, Timestamp: ts}
}

func TestApplySnapshot_SameTrailingTimestampIsNoop(t *testing.T) {
	h := NewHistory()
	snapshot := []filmbuddy.ChatMessage{
		msg(3, "hey", "2024-01-01T00:00:01Z"),
		msg(1, "yo", "2024-01-01T00:00:05Z"),
	}

	if !h.ApplySnapshot(3, snapshot) {
		t.Fatal("first ApplySnapshot = false, want true")
	}
	before := h.peers[3].messages
	version := h.Conversation(3).Version

	if h.ApplySnapshot(3, snapshot) {
		t.Fatal("second ApplySnapshot = true, want false")
	}
	after := h.peers[3].messages
	if &before[0] != &after[0] {
		t.Fatal("cached slice replaced on unchanged snapshot")
	}
	if got := h.Conversation(3).Version; got != version {
		t.Fatalf("Version = %d, want unchanged %d", got, version)
	}
}

func TestApplySnapshot_EmptyThenEmptyIsNoop(t *testing.T) {
	h := NewHistory()
	if h.ApplySnapshot(5, nil) {
		t.Fatal("ApplySnapshot(empty) on fresh peer = true, want false (both cursors null)")
	}
	if c := h.Cursor(5); c.Valid {
		t.Fatalf("Cursor = %#v, want invalid", c)
	}
}

func TestApplySnapshot_NewMessageReplacesAndAdvancesCursor(t *testing.T) {
	h := NewHistory()
	h.ApplySnapshot(3, []filmbuddy.ChatMessage{msg(3, "hey", "t1")})

	changed := h.ApplySnapshot(3, []filmbuddy.ChatMessage{msg(3, "hey", "t1"), msg(1, "hello", "t2")})
	if !changed {
		t.Fatal("ApplySnapshot = false, want true")
	}
	conv := h.Conversation(3)
	if len(conv.Messages) != 2 || conv.Messages[1].Text != "hello" {
		t.Fatalf("Messages = %#v, want two messages", conv.Messages)
	}
	if conv.Cursor != (Cursor{Timestamp: "t2", Valid: true}) {
		t.Fatalf("Cursor = %#v, want t2", conv.Cursor)
	}
	if conv.Version != 2 {
		t.Fatalf("Version = %d, want 2", conv.Version)
	}
}

func TestApplySnapshot_OrdersByTimestampStable(t *testing.T) {
	h := NewHistory()
	h.ApplySnapshot(3, []filmbuddy.ChatMessage{
		msg(3, "c", "t3"),
		msg(3, "a1", "t1"),
		msg(1, "a2", "t1"),
		msg(3, "b", "t2"),
	})

	got := h.Conversation(3).Messages
	want := []string{"a1", "a2", "b", "c"}
	for i := range want {
		if got[i].Text != want[i] {
			t.Fatalf("order = %v, want %v", texts(got), want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("history not non-decreasing at %d: %v", i, got)
		}
	}
	if c := h.Cursor(3); c.Timestamp != "t3" {
		t.Fatalf("Cursor = %#v, want t3", c)
	}
}

func TestApplySnapshot_StaleSnapshotIgnored(t *testing.T) {
	h := NewHistory()
	h.ApplySnapshot(3, []filmbuddy.ChatMessage{msg(3, "a", "t1"), msg(3, "b", "t2")})

	if h.ApplySnapshot(3, []filmbuddy.ChatMessage{msg(3, "a", "t1")}) {
		t.Fatal("older snapshot accepted, want cursor to stay monotonic")
	}
	if h.ApplySnapshot(3, nil) {
		t.Fatal("empty snapshot accepted after cursor was set")
	}
	if c := h.Cursor(3); c.Timestamp != "t2" {
		t.Fatalf("Cursor = %#v, want t2", c)
	}
}

func TestConversation_ReturnsCopy(t *testing.T) {
	h := NewHistory()
	input := []filmbuddy.ChatMessage{msg(3, "a", "t1")}
	h.ApplySnapshot(3, input)

	input[0].Text = "mutated"
	conv := h.Conversation(3)
	if conv.Messages[0].Text != "a" {
		t.Fatal("cache aliases caller's slice")
	}
	conv.Messages[0].Text = "changed"
	if h.Conversation(3).Messages[0].Text != "a" {
		t.Fatal("Conversation returned shared slice")
	}
}

func TestForgetAndReset(t *testing.T) {
	h := NewHistory()
	h.ApplySnapshot(3, []filmbuddy.ChatMessage{msg(3, "a", "t1")})
	h.ApplySnapshot(4, []filmbuddy.ChatMessage{msg(4, "b", "t1")})

	h.Forget(3)
	if h.Cursor(3).Valid {
		t.Fatal("Forget kept cursor")
	}
	if !h.Cursor(4).Valid {
		t.Fatal("Forget dropped another peer")
	}
	h.Reset()
	if h.Cursor(4).Valid {
		t.Fatal("Reset kept cursor")
	}
}

func texts(messages []filmbuddy.ChatMessage) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Text
	}
	return out
}
