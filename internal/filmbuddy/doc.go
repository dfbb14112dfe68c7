// Package filmbuddy provides an HTTP client for the FilmBuddy social API.
//
// # Overview
//
// The service exposes no push channel. Everything the sync engine knows about
// friends, pending requests, unread messages and chat history comes from the
// request/response endpoints wrapped here. The package is split into:
//
//   - client.go: HTTP client, request construction, error decoding
//   - types.go: payloads mirroring the API schema and their validation
//   - errors.go: APIError and the user-facing Reason helper
//
// # Client Usage
//
//	client, err := filmbuddy.NewClient(filmbuddy.Options{
//		BaseURL: "http://127.0.0.1:8000/api",
//		Session: os.Getenv("BUDDY_SESSION"),
//	})
//	if err != nil {
//		log.Fatalf("failed to create client: %v", err)
//	}
//
//	friends, err := client.FetchFriends(ctx)
//	if err != nil {
//		log.Printf("friends fetch failed: %v", err)
//	}
//
// # Authentication
//
// The session credential is opaque to the client. It is attached to every
// request as a cookie (named "session" unless configured otherwise). How the
// credential is obtained is outside this package.
//
// # Errors
//
// Non-2xx responses become *APIError. When the body carries a "detail"
// string it is kept verbatim and becomes the error text, so a rejected
// friend request reads exactly as the server phrased it:
//
//	_, err := client.SendFriendRequest(ctx, "bob")
//	// err.Error() == "already friends"
//
// Successful responses with missing or invalid required fields are reported
// as errors wrapping ErrContract; callers discard the whole result.
//
// Every request carries a fresh X-Request-ID so server logs can be matched
// with the client log.
package filmbuddy
