package state

import (
	"fmt"
	"sync"
	"time"
)

// offlineAfter is the number of consecutive failures after which a stream
// is reported offline.
const offlineAfter = 2

// Health is the latest poll outcome of one stream.
type Health struct {
	Stream              string
	LastSuccess         time.Time
	LastAttempt         time.Time
	LastError           error
	ConsecutiveFailures int
}

// IsOffline returns true when the stream has failed multiple polls in a row.
func (h Health) IsOffline() bool {
	return h.ConsecutiveFailures >= offlineAfter
}

// Store coordinates concurrent updates to per-stream health.
type Store struct {
	mu      sync.RWMutex
	streams map[string]Health
	now     func() time.Time
}

// RecordSuccess marks a completed poll of stream.
func (s *Store) RecordSuccess(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.healthLocked(stream)
	now := s.clock()
	h.LastAttempt = now
	h.LastSuccess = now
	h.LastError = nil
	h.ConsecutiveFailures = 0
	s.streams[stream] = h
}

// RecordFailure keeps the previous success time but records err.
func (s *Store) RecordFailure(stream string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.healthLocked(stream)
	h.LastAttempt = s.clock()
	h.LastError = err
	h.ConsecutiveFailures++
	s.streams[stream] = h
}

// Health returns a copy of the health of stream.
func (s *Store) Health(stream string) Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHealth(s.streams[stream], stream)
}

// Snapshot returns a copy of every stream's health.
func (s *Store) Snapshot() map[string]Health {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Health, len(s.streams))
	for name, h := range s.streams {
		out[name] = cloneHealth(h, name)
	}
	return out
}

// Offline reports whether any tracked stream is offline.
func (s *Store) Offline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.streams {
		if h.IsOffline() {
			return true
		}
	}
	return false
}

// Forget drops a stream, e.g. when its poller is cancelled.
func (s *Store) Forget(stream string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, stream)
}

func (s *Store) healthLocked(stream string) Health {
	if s.streams == nil {
		s.streams = make(map[string]Health)
	}
	h := s.streams[stream]
	h.Stream = stream
	return h
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func cloneHealth(h Health, stream string) Health {
	h.Stream = stream
	if h.LastError != nil {
		h.LastError = fmt.Errorf("%w", h.LastError)
	}
	return h
}
