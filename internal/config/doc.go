// Package config loads buddy's TOML configuration.
//
// # Resolution
//
// Load reads the file passed to it or ~/.config/buddy/config.toml. A missing
// file is not an error: every field has a default, so buddy starts against a
// local service without any configuration. Empty or whitespace-only values
// also fall back to their defaults. The BUDDY_SESSION environment variable
// overrides the session stored in the file.
//
// # Format
//
//	api_base = "http://127.0.0.1:8000/api"
//	session = "opaque-session-token"
//	session_cookie = "session"
//	user_id = 1
//	archive_path = "~/.local/share/buddy/history.db"
//	log_file = "~/.local/share/buddy/buddy.log"
//
//	[poll]
//	unread_ms = 5000
//	friends_ms = 5000
//	chat_ms = 3000
//	toast_ttl_ms = 5000
//
// Poll values of zero or less leave the engine defaults in place. Paths
// support a leading "~" and are made absolute.
package config
