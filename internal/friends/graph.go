// Package friends holds the local view of the friend graph: friends,
// incoming requests and outgoing requests.
//
// The graph changes in two ways. Poll results are reconciled against the
// previous snapshot of each set with the diff package; only friend additions
// and removals become user-visible events. Direct transitions (accept,
// reject, delete, request sent) are applied after the server confirmed them
// and bump an epoch so that a poll fetched before the transition cannot undo
// it when it lands late.
package friends

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/five82/buddy/internal/diff"
	"github.com/five82/buddy/internal/filmbuddy"
)

// ErrStale is returned when a poll result was fetched under an older epoch.
var ErrStale = errors.New("friend graph changed while the poll was in flight")

// EventKind distinguishes friend notifications.
type EventKind int

const (
	FriendAdded EventKind = iota
	FriendRemoved
)

func (k EventKind) String() string {
	switch k {
	case FriendAdded:
		return "added"
	case FriendRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is one user-visible friend notification.
type Event struct {
	Kind   EventKind
	Friend filmbuddy.Friend
}

// Message renders the notification text.
func (e Event) Message() string {
	switch e.Kind {
	case FriendAdded:
		return "Friend added: " + e.Friend.Username
	case FriendRemoved:
		return "Friend removed: " + e.Friend.Username
	default:
		return e.Friend.Username
	}
}

// Snapshot is a by-value copy of the graph.
type Snapshot struct {
	Friends  []filmbuddy.Friend
	Incoming []filmbuddy.IncomingRequest
	Outgoing []filmbuddy.OutgoingRequest
	Seeded   bool
}

// Graph is the friend graph state. It is not safe for concurrent use; the
// engine serializes access.
type Graph struct {
	friends  []filmbuddy.Friend
	incoming []filmbuddy.IncomingRequest
	outgoing []filmbuddy.OutgoingRequest
	seeded   bool
	epoch    uint64
}

// Epoch identifies the current local revision. Capture it before fetching
// and hand it back to the Reconcile/Replace methods.
func (g *Graph) Epoch() uint64 {
	return g.epoch
}

// Snapshot returns copies of the three sets.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{
		Friends:  slices.Clone(g.friends),
		Incoming: slices.Clone(g.incoming),
		Outgoing: slices.Clone(g.outgoing),
		Seeded:   g.seeded,
	}
}

// ReconcileFriends applies a friend snapshot fetched at epoch. The set is
// diffed against the previous snapshot and left untouched when nothing
// changed; additions and removals are returned as events. The very first
// snapshot only seeds the set. changed reports whether the set was replaced.
func (g *Graph) ReconcileFriends(epoch uint64, current []filmbuddy.Friend) (events []Event, changed bool, err error) {
	if epoch != g.epoch {
		return nil, false, ErrStale
	}
	if !g.seeded {
		g.friends = slices.Clone(current)
		g.seeded = true
		return nil, true, nil
	}

	delta := diff.Diff(g.friends, current, friendKey)
	if delta.Empty() {
		return nil, false, nil
	}
	g.friends = slices.Clone(current)
	events = make([]Event, 0, len(delta.Added)+len(delta.Removed))
	for _, f := range delta.Added {
		events = append(events, Event{Kind: FriendAdded, Friend: f})
	}
	for _, f := range delta.Removed {
		events = append(events, Event{Kind: FriendRemoved, Friend: f})
	}
	return events, true, nil
}

// ReplaceIncoming swaps in an incoming snapshot fetched at epoch when it
// differs by key from the current one and reports whether it did. No events
// are produced.
func (g *Graph) ReplaceIncoming(epoch uint64, current []filmbuddy.IncomingRequest) (bool, error) {
	if epoch != g.epoch {
		return false, ErrStale
	}
	if diff.Diff(g.incoming, current, incomingKey).Empty() {
		return false, nil
	}
	g.incoming = slices.Clone(current)
	return true, nil
}

// ReplaceOutgoing is ReplaceIncoming for the outgoing set.
func (g *Graph) ReplaceOutgoing(epoch uint64, current []filmbuddy.OutgoingRequest) (bool, error) {
	if epoch != g.epoch {
		return false, ErrStale
	}
	if diff.Diff(g.outgoing, current, outgoingKey).Empty() {
		return false, nil
	}
	g.outgoing = slices.Clone(current)
	return true, nil
}

// AddOutgoing records a request the server confirmed as sent.
func (g *Graph) AddOutgoing(req filmbuddy.OutgoingRequest) {
	g.epoch++
	for _, existing := range g.outgoing {
		if existing.RequestID == req.RequestID {
			return
		}
	}
	g.outgoing = append(slices.Clone(g.outgoing), req)
}

// Incoming returns the pending incoming request with id requestID.
func (g *Graph) Incoming(requestID int64) (filmbuddy.IncomingRequest, bool) {
	for _, req := range g.incoming {
		if req.RequestID == requestID {
			return req, true
		}
	}
	return filmbuddy.IncomingRequest{}, false
}

// Friend returns the friend with id userID.
func (g *Graph) Friend(userID int64) (filmbuddy.Friend, bool) {
	for _, f := range g.friends {
		if f.UserID == userID {
			return f, true
		}
	}
	return filmbuddy.Friend{}, false
}

// Responded applies a confirmed accept or reject of requestID. Accepting
// moves the counterpart into the friend set and yields one FriendAdded event.
func (g *Graph) Responded(requestID int64, accept bool) []Event {
	g.epoch++
	req, ok := g.Incoming(requestID)
	g.incoming = slices.DeleteFunc(slices.Clone(g.incoming), func(r filmbuddy.IncomingRequest) bool {
		return r.RequestID == requestID
	})
	if !ok || !accept {
		return nil
	}
	friend := filmbuddy.Friend{UserID: req.FromUserID, Username: req.FromUsername}
	if _, exists := g.Friend(friend.UserID); exists {
		return nil
	}
	g.friends = append(slices.Clone(g.friends), friend)
	return []Event{{Kind: FriendAdded, Friend: friend}}
}

// Deleted applies a confirmed friend removal and yields one FriendRemoved
// event when the friend was present.
func (g *Graph) Deleted(userID int64) []Event {
	g.epoch++
	friend, ok := g.Friend(userID)
	if !ok {
		return nil
	}
	g.friends = slices.DeleteFunc(slices.Clone(g.friends), func(f filmbuddy.Friend) bool {
		return f.UserID == userID
	})
	return []Event{{Kind: FriendRemoved, Friend: friend}}
}

// Conflict describes a counterpart present in more than one set.
type Conflict struct {
	UserID int64
	Sets   []string
}

func (c Conflict) String() string {
	return fmt.Sprintf("user %d appears in %v", c.UserID, c.Sets)
}

// Conflicts reports counterparts that break mutual exclusion between the
// friend, incoming and outgoing sets, ordered by user id.
func (g *Graph) Conflicts() []Conflict {
	membership := make(map[int64][]string)
	for _, f := range g.friends {
		membership[f.UserID] = append(membership[f.UserID], "friends")
	}
	for _, r := range g.incoming {
		membership[r.CounterpartID()] = append(membership[r.CounterpartID()], "incoming")
	}
	for _, r := range g.outgoing {
		membership[r.CounterpartID()] = append(membership[r.CounterpartID()], "outgoing")
	}

	var conflicts []Conflict
	for id, sets := range membership {
		if len(sets) > 1 {
			conflicts = append(conflicts, Conflict{UserID: id, Sets: sets})
		}
	}
	slices.SortFunc(conflicts, func(a, b Conflict) int {
		return cmp.Compare(a.UserID, b.UserID)
	})
	return conflicts
}

// Reset clears the graph, e.g. on logout.
func (g *Graph) Reset() {
	epoch := g.epoch + 1
	*g = Graph{epoch: epoch}
}

func friendKey(f filmbuddy.Friend) int64            { return f.UserID }
func incomingKey(r filmbuddy.IncomingRequest) int64 { return r.RequestID }
func outgoingKey(r filmbuddy.OutgoingRequest) int64 { return r.RequestID }
