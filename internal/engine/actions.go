package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/five82/buddy/internal/filmbuddy"
)

// User actions call the service first and touch local state only after the
// server confirmed them. A failure leaves state exactly as it was; the
// returned error carries the server's detail (see filmbuddy.Reason).

// SendFriendRequest asks username to become a friend.
func (e *Engine) SendFriendRequest(ctx context.Context, username string) error {
	name, err := normalize(username)
	if err != nil {
		return err
	}
	created, err := e.api.SendFriendRequest(ctx, name)
	if err != nil {
		log.Printf("friend request to %q failed: %v", name, err)
		return err
	}
	if created != nil {
		e.mu.Lock()
		e.graph.AddOutgoing(*created)
		e.mu.Unlock()
		e.changed()
	}
	e.RefreshFriends()
	return nil
}

// Respond accepts or rejects the incoming request requestID.
func (e *Engine) Respond(ctx context.Context, requestID int64, accept bool) error {
	if err := e.api.RespondFriendRequest(ctx, requestID, accept); err != nil {
		log.Printf("respond to request %d failed: %v", requestID, err)
		return err
	}
	e.mu.Lock()
	events := e.graph.Responded(requestID, accept)
	e.events = append(e.events, events...)
	e.mu.Unlock()

	e.changed()
	e.RefreshFriends()
	return nil
}

// DeleteFriend removes userID from the friend set. The caller must have
// obtained explicit confirmation from the user; without it no request is
// made.
func (e *Engine) DeleteFriend(ctx context.Context, userID int64, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := e.api.DeleteFriend(ctx, userID); err != nil {
		log.Printf("delete friend %d failed: %v", userID, err)
		return err
	}
	e.mu.Lock()
	events := e.graph.Deleted(userID)
	e.events = append(e.events, events...)
	e.mu.Unlock()

	e.changed()
	e.RefreshFriends()
	return nil
}

// SendMessage posts text to peerID. The cache is not touched: the message
// shows up once a history poll echoes it back. When peerID's chat is open an
// immediate poll is requested so the echo does not wait a full interval.
func (e *Engine) SendMessage(ctx context.Context, peerID int64, text string) error {
	body, err := normalize(text)
	if err != nil {
		return err
	}
	if peerID <= 0 {
		return fmt.Errorf("invalid peer id %d", peerID)
	}
	if err := e.api.SendMessage(ctx, peerID, body); err != nil {
		log.Printf("send message to %d failed: %v", peerID, err)
		return err
	}
	if e.OpenPeer() == peerID {
		e.RefreshChat()
	}
	return nil
}

// Friend returns the friend with userID, if present.
func (e *Engine) Friend(userID int64) (filmbuddy.Friend, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph.Friend(userID)
}
