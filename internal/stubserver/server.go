// Package stubserver is an in-memory FilmBuddy social service. It implements
// the endpoints the sync engine polls, with the same paths, payloads and
// {"detail": ...} error bodies, and is used by integration tests and by
// cmd/buddy-stub for local development.
package stubserver

import (
	"cmp"
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/five82/buddy/internal/filmbuddy"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

// TimestampLayout is fixed width so timestamps order lexicographically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

type user struct {
	id   int64
	name string
}

type friendRequest struct {
	id   int64
	from int64
	to   int64
}

type message struct {
	id   int64
	from int64
	to   int64
	text string
	ts   string
	read bool
}

type pair struct{ a, b int64 }

func newPair(a, b int64) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// Server holds users, sessions, friendships, requests and messages.
type Server struct {
	mu          sync.Mutex
	users       map[int64]*user
	byName      map[string]int64
	sessions    map[string]int64
	friendships map[pair]struct{}
	requests    map[int64]*friendRequest
	messages    []*message
	nextUser    int64
	nextRequest int64
	nextMessage int64
	now         func() time.Time

	router *mux.Router
}

// New creates an empty service.
func New() *Server {
	s := &Server{
		users:       make(map[int64]*user),
		byName:      make(map[string]int64),
		sessions:    make(map[string]int64),
		friendships: make(map[pair]struct{}),
		requests:    make(map[int64]*friendRequest),
		now:         time.Now,
	}
	s.router = s.routes()
	return s
}

// SetClock replaces time.Now for message timestamps.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Handler returns the HTTP handler serving the API under /api.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddUser registers name and returns its id. Adding an existing name returns
// the existing id.
func (s *Server) AddUser(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byName[name]; ok {
		return id
	}
	s.nextUser++
	s.users[s.nextUser] = &user{id: s.nextUser, name: name}
	s.byName[name] = s.nextUser
	return s.nextUser
}

// Login issues a session token for userID.
func (s *Server) Login(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.sessions[token] = userID
	return token
}

// Befriend makes a and b friends directly.
func (s *Server) Befriend(a, b int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friendships[newPair(a, b)] = struct{}{}
}

// Unfriend removes the friendship between a and b, as if b deleted a from
// another client.
func (s *Server) Unfriend(a, b int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.friendships, newPair(a, b))
}

// Request creates a pending friend request from -> to and returns its id.
func (s *Server) Request(from, to int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLocked(from, to)
}

// Deliver stores a message from -> to as if sent from another client.
func (s *Server) Deliver(from, to int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliverLocked(from, to, text)
}

func (s *Server) requestLocked(from, to int64) int64 {
	s.nextRequest++
	s.requests[s.nextRequest] = &friendRequest{id: s.nextRequest, from: from, to: to}
	return s.nextRequest
}

func (s *Server) deliverLocked(from, to int64, text string) {
	s.nextMessage++
	s.messages = append(s.messages, &message{
		id:   s.nextMessage,
		from: from,
		to:   to,
		text: text,
		ts:   s.now().UTC().Format(TimestampLayout),
	})
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("/chats/unread", s.handleUnread).Methods(http.MethodGet)
	api.HandleFunc("/chats/history", s.handleHistory).Methods(http.MethodGet).Queries("peer_id", "{peer:[0-9]+}")
	api.HandleFunc("/chats/send", s.handleSend).Methods(http.MethodPost)
	api.HandleFunc("/users/friends", s.handleFriends).Methods(http.MethodGet)
	api.HandleFunc("/users/friends/{id:[0-9]+}", s.handleDeleteFriend).Methods(http.MethodDelete)
	api.HandleFunc("/users/friend_requests", s.handleIncoming).Methods(http.MethodGet)
	api.HandleFunc("/users/friend_requests", s.handleCreateRequest).Methods(http.MethodPost)
	api.HandleFunc("/users/friend_requests/outgoing", s.handleOutgoing).Methods(http.MethodGet)
	api.HandleFunc("/users/friend_requests/{id:[0-9]+}/respond", s.handleRespond).Methods(http.MethodPost)
	return r
}

type ctxKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		s.mu.Lock()
		id, ok := s.sessions[cookie.Value]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "session expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func currentUser(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	s.mu.Lock()
	out := []filmbuddy.UnreadNotification{}
	for _, m := range s.messages {
		if m.to != me || m.read {
			continue
		}
		m.read = true
		out = append(out, filmbuddy.UnreadNotification{
			MessageID:    m.id,
			FromUserID:   m.from,
			FromUsername: s.users[m.from].name,
			Text:         m.text,
			Timestamp:    m.ts,
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	peer, _ := strconv.ParseInt(mux.Vars(r)["peer"], 10, 64)

	s.mu.Lock()
	resp := filmbuddy.HistoryResponse{Messages: []filmbuddy.ChatMessage{}}
	for _, m := range s.messages {
		if !(m.from == me && m.to == peer) && !(m.from == peer && m.to == me) {
			continue
		}
		if m.to == me {
			m.read = true
		}
		resp.Messages = append(resp.Messages, filmbuddy.ChatMessage{
			FromUserID: m.from,
			ToUserID:   m.to,
			Text:       m.text,
			Timestamp:  m.ts,
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	var body filmbuddy.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeDetail(w, http.StatusBadRequest, "message is empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.friendships[newPair(me, body.ToUserID)]; !ok {
		writeDetail(w, http.StatusForbidden, "you can only message friends")
		return
	}
	s.deliverLocked(me, body.ToUserID, body.Text)
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	s.mu.Lock()
	out := []filmbuddy.Friend{}
	for p := range s.friendships {
		other := p.a
		if other == me {
			other = p.b
		} else if p.b != me {
			continue
		}
		out = append(out, filmbuddy.Friend{UserID: other, Username: s.users[other].name})
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b filmbuddy.Friend) int { return cmp.Compare(a.UserID, b.UserID) })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteFriend(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	other := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := newPair(me, other)
	if _, ok := s.friendships[key]; !ok {
		writeDetail(w, http.StatusNotFound, "not friends")
		return
	}
	delete(s.friendships, key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	s.mu.Lock()
	out := []filmbuddy.IncomingRequest{}
	for _, req := range s.sortedRequestsLocked() {
		if req.to == me {
			out = append(out, filmbuddy.IncomingRequest{
				RequestID:    req.id,
				FromUserID:   req.from,
				FromUsername: s.users[req.from].name,
			})
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOutgoing(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	s.mu.Lock()
	out := []filmbuddy.OutgoingRequest{}
	for _, req := range s.sortedRequestsLocked() {
		if req.from == me {
			out = append(out, s.outgoingLocked(req))
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	var body filmbuddy.FriendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.byName[strings.TrimSpace(body.FriendUsername)]
	switch {
	case !ok:
		writeDetail(w, http.StatusNotFound, "user not found")
		return
	case target == me:
		writeDetail(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}
	if _, friends := s.friendships[newPair(me, target)]; friends {
		writeDetail(w, http.StatusBadRequest, "already friends")
		return
	}
	for _, req := range s.requests {
		if newPair(req.from, req.to) == newPair(me, target) {
			writeDetail(w, http.StatusBadRequest, "request already pending")
			return
		}
	}
	id := s.requestLocked(me, target)
	writeJSON(w, http.StatusCreated, s.outgoingLocked(s.requests[id]))
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	id := pathID(r)
	var body filmbuddy.RespondBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.to != me {
		writeDetail(w, http.StatusNotFound, "request not found")
		return
	}
	delete(s.requests, id)
	if body.Accept {
		s.friendships[newPair(req.from, req.to)] = struct{}{}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": body.Accept})
}

func (s *Server) sortedRequestsLocked() []*friendRequest {
	out := make([]*friendRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	slices.SortFunc(out, func(a, b *friendRequest) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (s *Server) outgoingLocked(req *friendRequest) filmbuddy.OutgoingRequest {
	return filmbuddy.OutgoingRequest{
		RequestID:  req.id,
		ToUserID:   req.to,
		ToUsername: s.users[req.to].name,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
