package filmbuddy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrContract marks a successful response whose payload is missing or has
// invalid required fields.
var ErrContract = errors.New("response violates contract")

// Friend mirrors an entry of /users/friends.
type Friend struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// IncomingRequest mirrors an entry of /users/friend_requests.
type IncomingRequest struct {
	RequestID    int64  `json:"request_id"`
	FromUserID   int64  `json:"from_user_id"`
	FromUsername string `json:"from_username"`
}

// CounterpartID returns the user who sent the request.
func (r IncomingRequest) CounterpartID() int64 { return r.FromUserID }

// CounterpartName returns the username of the sender.
func (r IncomingRequest) CounterpartName() string { return r.FromUsername }

// OutgoingRequest mirrors an entry of /users/friend_requests/outgoing.
type OutgoingRequest struct {
	RequestID  int64  `json:"request_id"`
	ToUserID   int64  `json:"to_user_id"`
	ToUsername string `json:"to_username"`
}

// CounterpartID returns the user the request was sent to.
func (r OutgoingRequest) CounterpartID() int64 { return r.ToUserID }

// CounterpartName returns the username of the recipient.
func (r OutgoingRequest) CounterpartName() string { return r.ToUsername }

// ChatMessage is one entry of a conversation history. Timestamp is opaque and
// compared lexicographically.
type ChatMessage struct {
	FromUserID int64  `json:"from"`
	ToUserID   int64  `json:"to"`
	Text       string `json:"text"`
	Timestamp  string `json:"ts"`
}

// HistoryResponse mirrors /chats/history.
type HistoryResponse struct {
	Messages []ChatMessage `json:"messages"`
}

// UnreadNotification mirrors an entry of /chats/unread.
type UnreadNotification struct {
	MessageID    int64  `json:"message_id"`
	FromUserID   int64  `json:"from_user_id"`
	FromUsername string `json:"from_username"`
	Text         string `json:"text"`
	Timestamp    string `json:"ts"`
}

// ToastText renders the notification as shown to the user.
func (n UnreadNotification) ToastText() string {
	return n.FromUsername + ": " + n.Text
}

// SendMessageRequest is the body of POST /chats/send.
type SendMessageRequest struct {
	ToUserID int64  `json:"to_user_id"`
	Text     string `json:"text"`
}

// FriendRequestBody is the body of POST /users/friend_requests.
type FriendRequestBody struct {
	FriendUsername string `json:"friend_username"`
}

// RespondBody is the body of POST /users/friend_requests/{id}/respond.
type RespondBody struct {
	Accept bool `json:"accept"`
}

// Validate checks the fields the client relies on.
func (f Friend) Validate() error {
	if f.UserID <= 0 {
		return fmt.Errorf("%w: friend user_id %d", ErrContract, f.UserID)
	}
	if strings.TrimSpace(f.Username) == "" {
		return fmt.Errorf("%w: friend %d has no username", ErrContract, f.UserID)
	}
	return nil
}

// Validate checks the fields the client relies on.
func (r IncomingRequest) Validate() error {
	if r.RequestID <= 0 || r.FromUserID <= 0 {
		return fmt.Errorf("%w: incoming request %d from %d", ErrContract, r.RequestID, r.FromUserID)
	}
	if strings.TrimSpace(r.FromUsername) == "" {
		return fmt.Errorf("%w: incoming request %d has no username", ErrContract, r.RequestID)
	}
	return nil
}

// Validate checks the fields the client relies on.
func (r OutgoingRequest) Validate() error {
	if r.RequestID <= 0 || r.ToUserID <= 0 {
		return fmt.Errorf("%w: outgoing request %d to %d", ErrContract, r.RequestID, r.ToUserID)
	}
	if strings.TrimSpace(r.ToUsername) == "" {
		return fmt.Errorf("%w: outgoing request %d has no username", ErrContract, r.RequestID)
	}
	return nil
}

// Validate checks the fields the client relies on.
func (m ChatMessage) Validate() error {
	if strings.TrimSpace(m.Timestamp) == "" {
		return fmt.Errorf("%w: chat message without ts", ErrContract)
	}
	return nil
}

// Validate checks the fields the client relies on.
func (n UnreadNotification) Validate() error {
	if n.MessageID <= 0 {
		return fmt.Errorf("%w: unread message_id %d", ErrContract, n.MessageID)
	}
	if strings.TrimSpace(n.FromUsername) == "" {
		return fmt.Errorf("%w: unread message %d has no username", ErrContract, n.MessageID)
	}
	return nil
}

type validator interface {
	Validate() error
}

// validateList rejects a missing list (JSON null or an absent field) as
// well as any invalid entry. An empty list is a valid snapshot.
func validateList[T validator](what string, items []T) error {
	if items == nil {
		return fmt.Errorf("%w: %s missing", ErrContract, what)
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}
