// Package scheduler runs named, independently cancellable periodic tasks.
//
// Each task runs once immediately and then on every tick of its interval. A
// run has two phases: a fetch, which may block and observes a context that is
// cancelled with the task, and an apply closure returned by the fetch. The
// apply runs under the task's guard and is skipped once the task has been
// cancelled, so a result arriving after Cancel is never applied.
//
// Ticks that fire while a run is still in flight are dropped (skip-if-busy).
// Failures are reported to the error hook and the task simply waits for its
// next tick; polling is the retry mechanism.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Apply commits the result of a fetch. It may be nil when there is nothing to
// apply. A task that partly failed may return both an Apply for what it did
// fetch and an error for what it did not.
type Apply func()

// Task fetches a result and returns the closure that applies it.
type Task func(ctx context.Context) (Apply, error)

// ErrorFunc receives task failures.
type ErrorFunc func(name string, err error)

// Scheduler owns a set of periodic tasks.
type Scheduler struct {
	ctx     context.Context
	onError ErrorFunc

	mu    sync.Mutex
	tasks map[*Handle]struct{}
}

// New creates a scheduler whose tasks stop when ctx is cancelled. onError may
// be nil, in which case failures are only logged.
func New(ctx context.Context, onError ErrorFunc) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler{
		ctx:     ctx,
		onError: onError,
		tasks:   make(map[*Handle]struct{}),
	}
}

// Handle identifies a scheduled task.
type Handle struct {
	name     string
	interval time.Duration
	task     Task
	onError  ErrorFunc

	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	done   chan struct{}
	once   sync.Once

	// guard serializes apply with cancellation.
	guard   sync.Mutex
	stopped bool
}

// Name returns the task name given to Schedule.
func (h *Handle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

// Schedule starts fn under name, running it now and then every interval.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn Task) *Handle {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(s.ctx)
	h := &Handle{
		name:     name,
		interval: interval,
		task:     fn,
		onError:  s.onError,
		ctx:      ctx,
		cancel:   cancel,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.tasks[h] = struct{}{}
	s.mu.Unlock()

	go h.loop()
	return h
}

// Cancel stops the task behind h. It is safe to call more than once and with
// a nil handle. No apply of that task starts after Cancel returns.
func (s *Scheduler) Cancel(h *Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	s.mu.Lock()
	delete(s.tasks, h)
	s.mu.Unlock()
}

// Stop cancels every task.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.tasks))
	for h := range s.tasks {
		handles = append(handles, h)
	}
	s.tasks = make(map[*Handle]struct{})
	s.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

// Len returns the number of scheduled tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Cancel stops the task. See Scheduler.Cancel.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.guard.Lock()
		h.stopped = true
		h.guard.Unlock()
		h.cancel()
	})
}

// Done is closed once the task goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Trigger requests an extra run as soon as possible. Requests made while a
// run is in flight collapse into a single run after it finishes.
func (h *Handle) Trigger() {
	if h == nil {
		return
	}
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

func (h *Handle) loop() {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.run()

		// Skip-if-busy: a tick that arrived during the run is dropped.
		select {
		case <-ticker.C:
		default:
		}

		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		case <-h.kick:
		}
	}
}

func (h *Handle) run() {
	if h.ctx.Err() != nil {
		return
	}
	apply, err := h.task(h.ctx)
	if err != nil {
		if h.ctx.Err() != nil {
			// Cancelled mid-flight; the failure is ours, not the server's.
			return
		}
		if h.onError != nil {
			h.onError(h.name, err)
		} else {
			log.Printf("%s poll failed: %v", h.name, err)
		}
	}
	if apply == nil {
		return
	}

	h.guard.Lock()
	defer h.guard.Unlock()
	if h.stopped {
		return
	}
	apply()
}
