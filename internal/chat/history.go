// Package chat caches per-peer conversation history.
//
// Each peer has an ordered message log and a cursor holding the timestamp of
// the newest accepted message. A snapshot whose newest timestamp matches the
// cursor is ignored so the cached slice, and anything rendered from it, stays
// untouched.
package chat

import (
	"slices"
	"sync"

	"github.com/five82/buddy/internal/filmbuddy"
)

// Cursor is the last-seen timestamp of a conversation. Valid is false before
// any non-empty snapshot has been accepted.
type Cursor struct {
	Timestamp string
	Valid     bool
}

// Conversation is a by-value view of one peer's history.
type Conversation struct {
	PeerID   int64
	Messages []filmbuddy.ChatMessage
	Cursor   Cursor
	// Version increases on every accepted snapshot; an unchanged version
	// means there is nothing to redraw.
	Version uint64
}

type conversation struct {
	messages []filmbuddy.ChatMessage
	cursor   Cursor
	version  uint64
}

// History owns the cached conversations.
type History struct {
	mu    sync.RWMutex
	peers map[int64]*conversation
}

// NewHistory returns an empty cache.
func NewHistory() *History {
	return &History{peers: make(map[int64]*conversation)}
}

// ApplySnapshot replaces the cached history for peerID with messages unless
// the snapshot ends at the current cursor. It reports whether the cache
// changed. Snapshots older than the cursor are stale and also ignored.
func (h *History) ApplySnapshot(peerID int64, messages []filmbuddy.ChatMessage) bool {
	ordered := slices.Clone(messages)
	slices.SortStableFunc(ordered, func(a, b filmbuddy.ChatMessage) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})
	newest := newestOf(ordered)

	h.mu.Lock()
	defer h.mu.Unlock()

	conv, ok := h.peers[peerID]
	if !ok {
		conv = &conversation{}
		h.peers[peerID] = conv
	}
	if newest == conv.cursor {
		return false
	}
	if conv.cursor.Valid && (!newest.Valid || newest.Timestamp < conv.cursor.Timestamp) {
		return false
	}

	conv.messages = ordered
	conv.cursor = newest
	conv.version++
	return true
}

// Conversation returns a copy of the cached history for peerID.
func (h *History) Conversation(peerID int64) Conversation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conv, ok := h.peers[peerID]
	if !ok {
		return Conversation{PeerID: peerID}
	}
	return Conversation{
		PeerID:   peerID,
		Messages: slices.Clone(conv.messages),
		Cursor:   conv.cursor,
		Version:  conv.version,
	}
}

// Cursor returns the cursor for peerID.
func (h *History) Cursor(peerID int64) Cursor {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conv, ok := h.peers[peerID]; ok {
		return conv.cursor
	}
	return Cursor{}
}

// Forget drops everything cached for peerID.
func (h *History) Forget(peerID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, peerID)
}

// Reset drops every conversation.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers = make(map[int64]*conversation)
}

func newestOf(messages []filmbuddy.ChatMessage) Cursor {
	if len(messages) == 0 {
		return Cursor{}
	}
	return Cursor{Timestamp: messages[len(messages)-1].Timestamp, Valid: true}
}
