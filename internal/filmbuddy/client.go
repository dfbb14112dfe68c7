package filmbuddy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// API is the set of FilmBuddy endpoints the sync engine depends on. It is
// implemented by *Client and can be faked in tests.
type API interface {
	FetchUnread(ctx context.Context) ([]UnreadNotification, error)
	FetchHistory(ctx context.Context, peerID int64) ([]ChatMessage, error)
	SendMessage(ctx context.Context, toUserID int64, text string) error
	FetchFriends(ctx context.Context) ([]Friend, error)
	FetchIncoming(ctx context.Context) ([]IncomingRequest, error)
	FetchOutgoing(ctx context.Context) ([]OutgoingRequest, error)
	SendFriendRequest(ctx context.Context, username string) (*OutgoingRequest, error)
	RespondFriendRequest(ctx context.Context, requestID int64, accept bool) error
	DeleteFriend(ctx context.Context, userID int64) error
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// Client talks to the FilmBuddy HTTP API.
type Client struct {
	baseURL       *url.URL
	http          *http.Client
	userAgent     string
	session       string
	sessionCookie string
}

const (
	defaultBaseURL       = "http://127.0.0.1:8000/api"
	defaultUserAgent     = "buddy/0.1"
	defaultSessionCookie = "session"
	requestTimeout       = 5 * time.Second
	maxErrorBody         = 64 * 1024
)

// Options configure a Client.
type Options struct {
	BaseURL       string
	Session       string // opaque credential, sent as a cookie
	SessionCookie string // cookie name; empty uses "session"
}

// NewClient builds a Client for the service rooted at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	cookie := strings.TrimSpace(opts.SessionCookie)
	if cookie == "" {
		cookie = defaultSessionCookie
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent:     defaultUserAgent,
		session:       strings.TrimSpace(opts.Session),
		sessionCookie: cookie,
	}, nil
}

// FetchUnread retrieves the notifications the server still considers unread.
func (c *Client) FetchUnread(ctx context.Context) ([]UnreadNotification, error) {
	var payload []UnreadNotification
	if err := c.do(ctx, http.MethodGet, "chats/unread", nil, nil, &payload); err != nil {
		return nil, err
	}
	if err := validateList("unread list", payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchHistory retrieves the full conversation with peerID.
func (c *Client) FetchHistory(ctx context.Context, peerID int64) ([]ChatMessage, error) {
	if peerID <= 0 {
		return nil, fmt.Errorf("peer id required")
	}
	query := url.Values{}
	query.Set("peer_id", strconv.FormatInt(peerID, 10))
	var payload HistoryResponse
	if err := c.do(ctx, http.MethodGet, "chats/history", query, nil, &payload); err != nil {
		return nil, err
	}
	if err := validateList("messages", payload.Messages); err != nil {
		return nil, err
	}
	return payload.Messages, nil
}

// SendMessage posts a chat message to toUserID.
func (c *Client) SendMessage(ctx context.Context, toUserID int64, text string) error {
	body := SendMessageRequest{ToUserID: toUserID, Text: text}
	return c.do(ctx, http.MethodPost, "chats/send", nil, body, nil)
}

// FetchFriends retrieves the friend set.
func (c *Client) FetchFriends(ctx context.Context) ([]Friend, error) {
	var payload []Friend
	if err := c.do(ctx, http.MethodGet, "users/friends", nil, nil, &payload); err != nil {
		return nil, err
	}
	if err := validateList("friend list", payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchIncoming retrieves pending requests sent to the current user.
func (c *Client) FetchIncoming(ctx context.Context) ([]IncomingRequest, error) {
	var payload []IncomingRequest
	if err := c.do(ctx, http.MethodGet, "users/friend_requests", nil, nil, &payload); err != nil {
		return nil, err
	}
	if err := validateList("incoming request list", payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FetchOutgoing retrieves pending requests sent by the current user.
func (c *Client) FetchOutgoing(ctx context.Context) ([]OutgoingRequest, error) {
	var payload []OutgoingRequest
	if err := c.do(ctx, http.MethodGet, "users/friend_requests/outgoing", nil, nil, &payload); err != nil {
		return nil, err
	}
	if err := validateList("outgoing request list", payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SendFriendRequest asks username to become a friend. When the server echoes
// the created request it is returned; otherwise the result is nil.
func (c *Client) SendFriendRequest(ctx context.Context, username string) (*OutgoingRequest, error) {
	body := FriendRequestBody{FriendUsername: username}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "users/friend_requests", nil, body, &raw); err != nil {
		return nil, err
	}
	var created OutgoingRequest
	if len(raw) == 0 || json.Unmarshal(raw, &created) != nil || created.Validate() != nil {
		return nil, nil
	}
	return &created, nil
}

// RespondFriendRequest accepts or rejects an incoming request.
func (c *Client) RespondFriendRequest(ctx context.Context, requestID int64, accept bool) error {
	path := "users/friend_requests/" + strconv.FormatInt(requestID, 10) + "/respond"
	return c.do(ctx, http.MethodPost, path, nil, RespondBody{Accept: accept}, nil)
}

// DeleteFriend removes userID from the friend set.
func (c *Client) DeleteFriend(ctx context.Context, userID int64) error {
	path := "users/friends/" + strconv.FormatInt(userID, 10)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: c.sessionCookie, Value: c.session})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method: method,
			Path:   "/" + path,
			Status: resp.StatusCode,
			Detail: parseDetail(raw),
		}
	}
	if dest == nil {
		return nil
	}
	if raw, ok := dest.(*json.RawMessage); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		*raw = data
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrContract, err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_base %q: %w", raw, err)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
