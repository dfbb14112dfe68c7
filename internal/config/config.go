package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds everything buddy needs to reach the service and run its
// pollers.
type Config struct {
	APIBase       string
	Session       string
	SessionCookie string
	UserID        int64
	ArchivePath   string
	LogFile       string
	Poll          Poll
}

// Poll is the polling cadence. Zero durations mean "use the engine default".
type Poll struct {
	Unread   time.Duration
	Friends  time.Duration
	Chat     time.Duration
	ToastTTL time.Duration
}

// SessionEnv overrides the session from the config file.
const SessionEnv = "BUDDY_SESSION"

const (
	defaultConfigPath    = "~/.config/buddy/config.toml"
	defaultAPIBase       = "http://127.0.0.1:8000/api"
	defaultSessionCookie = "session"
	defaultArchivePath   = "~/.local/share/buddy/history.db"
	defaultLogFile       = "~/.local/share/buddy/buddy.log"
)

type rawConfig struct {
	APIBase       string `toml:"api_base"`
	Session       string `toml:"session"`
	SessionCookie string `toml:"session_cookie"`
	UserID        int64  `toml:"user_id"`
	ArchivePath   string `toml:"archive_path"`
	LogFile       string `toml:"log_file"`
	Poll          struct {
		UnreadMS   int64 `toml:"unread_ms"`
		FriendsMS  int64 `toml:"friends_ms"`
		ChatMS     int64 `toml:"chat_ms"`
		ToastTTLMS int64 `toml:"toast_ttl_ms"`
	} `toml:"poll"`
}

// Load reads the buddy config at path (or the default location), falling
// back to defaults when the file is missing. BUDDY_SESSION, when set, wins
// over the file's session.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg := Config{
		APIBase:       orDefault(raw.APIBase, defaultAPIBase),
		Session:       strings.TrimSpace(raw.Session),
		SessionCookie: orDefault(raw.SessionCookie, defaultSessionCookie),
		UserID:        raw.UserID,
		ArchivePath:   mustExpand(orDefault(raw.ArchivePath, defaultArchivePath)),
		LogFile:       mustExpand(orDefault(raw.LogFile, defaultLogFile)),
		Poll: Poll{
			Unread:   millis(raw.Poll.UnreadMS),
			Friends:  millis(raw.Poll.FriendsMS),
			Chat:     millis(raw.Poll.ChatMS),
			ToastTTL: millis(raw.Poll.ToastTTLMS),
		},
	}
	if env := strings.TrimSpace(os.Getenv(SessionEnv)); env != "" {
		cfg.Session = env
	}
	if cfg.UserID < 0 {
		return Config{}, fmt.Errorf("user_id must not be negative")
	}
	return cfg, nil
}

// Validate reports configuration that would make every request fail.
func (c Config) Validate() error {
	if c.Session == "" {
		return fmt.Errorf("no session configured: set session in %s or %s", defaultConfigPath, SessionEnv)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func millis(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading "~" and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
