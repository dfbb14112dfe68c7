package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/five82/buddy/internal/chat"
	"github.com/five82/buddy/internal/filmbuddy"
	"github.com/five82/buddy/internal/friends"
	"github.com/five82/buddy/internal/scheduler"
)

// pollUnread turns every entry of the server's unread list into a toast. The
// server decides what is unread; no client-side dedupe is applied.
func (e *Engine) pollUnread(ctx context.Context) (scheduler.Apply, error) {
	unread, err := e.api.FetchUnread(ctx)
	if err != nil {
		return nil, err
	}
	return func() {
		e.mu.Lock()
		for _, n := range unread {
			e.toasts.Push(n.ToastText())
		}
		e.mu.Unlock()
		e.recordSuccess(StreamUnread)
	}, nil
}

// pollFriends fetches friends, incoming and outgoing requests independently;
// whichever succeeded is applied.
func (e *Engine) pollFriends(ctx context.Context) (scheduler.Apply, error) {
	e.mu.Lock()
	epoch := e.graph.Epoch()
	e.mu.Unlock()

	friendList, friendsErr := e.api.FetchFriends(ctx)
	incoming, incomingErr := e.api.FetchIncoming(ctx)
	outgoing, outgoingErr := e.api.FetchOutgoing(ctx)
	err := errors.Join(friendsErr, incomingErr, outgoingErr)
	if friendsErr != nil && incomingErr != nil && outgoingErr != nil {
		return nil, err
	}

	return func() {
		e.mu.Lock()
		events, changed, applyErr := e.applyFriendGraph(epoch, friendList, friendsErr == nil,
			incoming, incomingErr == nil, outgoing, outgoingErr == nil)
		e.events = append(e.events, events...)
		conflicts := e.newConflicts()
		e.mu.Unlock()

		for _, c := range conflicts {
			log.Printf("friend graph desync: %s", c)
		}
		switch {
		case errors.Is(applyErr, friends.ErrStale):
			log.Printf("friends poll discarded: %v", applyErr)
		case err == nil:
			e.recordSuccess(StreamFriends)
		}
		for _, ev := range events {
			log.Printf("friend %s: %s (%d)", ev.Kind, ev.Friend.Username, ev.Friend.UserID)
		}
		if changed {
			e.changed()
		}
	}, err
}

// applyFriendGraph reconciles whichever sets were fetched. changed is false
// when every diff was empty.
func (e *Engine) applyFriendGraph(
	epoch uint64,
	friendList []filmbuddy.Friend, friendsOK bool,
	incoming []filmbuddy.IncomingRequest, incomingOK bool,
	outgoing []filmbuddy.OutgoingRequest, outgoingOK bool,
) (events []friends.Event, changed bool, err error) {
	if friendsOK {
		if events, changed, err = e.graph.ReconcileFriends(epoch, friendList); err != nil {
			return nil, false, err
		}
	}
	if incomingOK {
		replaced, err := e.graph.ReplaceIncoming(epoch, incoming)
		if err != nil {
			return events, changed, err
		}
		changed = changed || replaced
	}
	if outgoingOK {
		replaced, err := e.graph.ReplaceOutgoing(epoch, outgoing)
		if err != nil {
			return events, changed, err
		}
		changed = changed || replaced
	}
	return events, changed, nil
}

// newConflicts returns the mutual exclusion violations when they differ from
// the ones last reported, so a lasting desync is logged once. Callers hold
// e.mu.
func (e *Engine) newConflicts() []friends.Conflict {
	conflicts := e.graph.Conflicts()
	key := fmt.Sprint(conflicts)
	if key == e.reportedConflicts {
		return nil
	}
	e.reportedConflicts = key
	return conflicts
}

// pollHistory returns the history task for peerID.
func (e *Engine) pollHistory(peerID int64) scheduler.Task {
	return func(ctx context.Context) (scheduler.Apply, error) {
		messages, err := e.api.FetchHistory(ctx, peerID)
		if err != nil {
			return nil, err
		}
		return func() {
			e.mu.Lock()
			if e.openPeer != peerID {
				e.mu.Unlock()
				return
			}
			changed := e.history.ApplySnapshot(peerID, messages)
			var conv chat.Conversation
			var seq uint64
			if changed && e.archive != nil {
				conv = e.history.Conversation(peerID)
				e.archiveSeq++
				seq = e.archiveSeq
			}
			e.mu.Unlock()
			e.recordSuccess(StreamChat)

			if !changed {
				return
			}
			if seq != 0 {
				e.saveArchive(ctx, seq, conv)
			}
			e.changed()
		}, nil
	}
}

// saveArchive writes conv in the background; the apply step holds the task
// guard and must not wait on disk. Writes are serialized, and one older than
// what was already stored for the peer is skipped.
func (e *Engine) saveArchive(ctx context.Context, seq uint64, conv chat.Conversation) {
	ctx = context.WithoutCancel(ctx)
	e.archiveWG.Add(1)
	go func() {
		defer e.archiveWG.Done()
		e.archiveMu.Lock()
		defer e.archiveMu.Unlock()
		if seq <= e.archivedSeq[conv.PeerID] {
			return
		}
		e.archivedSeq[conv.PeerID] = seq

		ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
		defer cancel()
		if err := e.archive.SaveHistory(ctx, conv.PeerID, conv.Messages); err != nil {
			log.Printf("archive history for %d: %v", conv.PeerID, err)
		}
	}()
}
