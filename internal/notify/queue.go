// Package notify holds short-lived toasts derived from unread messages.
//
// Every toast expires a fixed TTL after creation. Expiries live in a min-heap
// keyed by (expiresAt, id) and are drained by a single timer, so removing one
// toast never shifts the deadline of another.
package notify

import (
	"container/heap"
	"sync"
	"time"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 5 * time.Second

// Toast is a self-expiring notification.
type Toast struct {
	ID        int64
	Content   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithOnChange registers a callback invoked (outside the queue lock) after
// toasts are pushed or expired.
func WithOnChange(fn func()) Option {
	return func(q *Queue) { q.onChange = fn }
}

// Queue is the ordered list of live toasts.
type Queue struct {
	ttl      time.Duration
	now      func() time.Time
	onChange func()

	mu     sync.Mutex
	nextID int64
	live   []Toast
	expiry expiryHeap
	timer  *time.Timer
	closed bool
}

// New creates a queue whose toasts live for ttl (DefaultTTL when <= 0).
func New(ttl time.Duration, opts ...Option) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	q := &Queue{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// TTL returns the lifetime of each toast.
func (q *Queue) TTL() time.Duration {
	return q.ttl
}

// Push adds a toast and returns its id. Ids are strictly increasing.
func (q *Queue) Push(content string) int64 {
	q.mu.Lock()
	now := q.now()
	q.nextID++
	toast := Toast{
		ID:        q.nextID,
		Content:   content,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}
	q.live = append(q.live, toast)
	heap.Push(&q.expiry, expiryEntry{at: toast.ExpiresAt, id: toast.ID})
	q.armLocked(now)
	q.mu.Unlock()

	q.notify()
	return toast.ID
}

// Live returns a copy of the toasts that have not yet expired, oldest first.
func (q *Queue) Live() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	out := make([]Toast, 0, len(q.live))
	for _, toast := range q.live {
		if now.Before(toast.ExpiresAt) {
			out = append(out, toast)
		}
	}
	return out
}

// Len returns the number of toasts still held, including any that expired
// but have not been drained yet.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.live)
}

// Close stops the expiry timer and drops every toast.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.live = nil
	q.expiry = nil
}

// drain removes every toast expired at now and reports whether any was
// removed.
func (q *Queue) drain(now time.Time) bool {
	removed := make(map[int64]struct{})
	for q.expiry.Len() > 0 && !now.Before(q.expiry[0].at) {
		entry := heap.Pop(&q.expiry).(expiryEntry)
		removed[entry.id] = struct{}{}
	}
	if len(removed) == 0 {
		return false
	}
	kept := q.live[:0]
	for _, toast := range q.live {
		if _, gone := removed[toast.ID]; !gone {
			kept = append(kept, toast)
		}
	}
	q.live = kept
	return true
}

// armLocked points the single timer at the earliest pending expiry.
func (q *Queue) armLocked(now time.Time) {
	if q.closed || q.expiry.Len() == 0 {
		return
	}
	wait := q.expiry[0].at.Sub(now)
	if wait < 0 {
		wait = 0
	}
	if q.timer == nil {
		q.timer = time.AfterFunc(wait, q.fire)
		return
	}
	q.timer.Reset(wait)
}

func (q *Queue) fire() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	now := q.now()
	changed := q.drain(now)
	q.armLocked(now)
	q.mu.Unlock()

	if changed {
		q.notify()
	}
}

func (q *Queue) notify() {
	if q.onChange != nil {
		q.onChange()
	}
}

type expiryEntry struct {
	at time.Time
	id int64
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}

func (h expiryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *expiryHeap) Push(x any) { *h = append(*h, x.(expiryEntry)) }

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}
