package state

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestStore_SuccessAndFailure(t *testing.T) {
	var s Store

	before := time.Now()
	s.RecordSuccess("friends")
	h := s.Health("friends")
	if h.LastSuccess.Before(before) || h.LastError != nil || h.ConsecutiveFailures != 0 {
		t.Fatalf("Health = %#v, want clean success", h)
	}
	success := h.LastSuccess

	origErr := errors.New("boom")
	s.RecordFailure("friends", origErr)
	h = s.Health("friends")
	if !h.LastSuccess.Equal(success) {
		t.Fatalf("LastSuccess changed on failure: %v vs %v", h.LastSuccess, success)
	}
	if h.LastError == nil || h.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", h.LastError)
	}
	if !errors.Is(h.LastError, origErr) {
		t.Fatal("LastError should wrap the recorded error")
	}
	if reflect.ValueOf(h.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatal("Health should clone error instance")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	if s.Health("unread").IsOffline() || s.Offline() {
		t.Fatal("fresh store reports offline")
	}

	s.RecordFailure("unread", errors.New("fail 1"))
	if s.Health("unread").IsOffline() {
		t.Fatal("IsOffline() = true after 1 failure")
	}

	s.RecordFailure("unread", errors.New("fail 2"))
	if !s.Health("unread").IsOffline() || !s.Offline() {
		t.Fatal("IsOffline() = false after 2 failures")
	}

	s.RecordSuccess("unread")
	h := s.Health("unread")
	if h.ConsecutiveFailures != 0 || h.IsOffline() {
		t.Fatalf("Health = %#v, want reset after success", h)
	}
}

func TestStore_StreamsIndependent(t *testing.T) {
	var s Store
	s.RecordFailure("chat", errors.New("x"))
	s.RecordFailure("chat", errors.New("y"))
	s.RecordSuccess("friends")

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot has %d streams, want 2", len(snap))
	}
	if snap["friends"].ConsecutiveFailures != 0 {
		t.Fatal("friends affected by chat failures")
	}

	s.Forget("chat")
	if s.Offline() {
		t.Fatal("Offline() = true after forgetting failing stream")
	}
}
