// Package prefs persists buddy's UI preferences in
// ~/.config/buddy/prefs.toml. Unlike config, a broken prefs file never stops
// buddy from starting; Load falls back to defaults instead.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/buddy/internal/config"
)

// Prefs holds user preferences.
type Prefs struct {
	Theme string `toml:"theme"`
	// ToastRows caps how many toasts are drawn at once.
	ToastRows int `toml:"toast_rows"`
}

const (
	defaultPrefsPath = "~/.config/buddy/prefs.toml"
	defaultTheme     = "Nightfox"
	defaultToastRows = 3
	maxToastRows     = 10
)

// Defaults returns the preferences used when nothing is stored.
func Defaults() Prefs {
	return Prefs{Theme: defaultTheme, ToastRows: defaultToastRows}
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from path (or the default location). Missing or
// unreadable files yield Defaults; the error is returned alongside so the
// caller can log it.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Defaults(), err
	}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Defaults(), fmt.Errorf("read prefs: %w", err)
	}

	p := Defaults()
	if err := toml.Unmarshal(bytes, &p); err != nil {
		return Defaults(), fmt.Errorf("parse prefs: %w", err)
	}
	return p.normalized(), nil
}

// Save writes preferences to path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}
	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

func (p Prefs) normalized() Prefs {
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = defaultTheme
	}
	switch {
	case p.ToastRows <= 0:
		p.ToastRows = defaultToastRows
	case p.ToastRows > maxToastRows:
		p.ToastRows = maxToastRows
	}
	return p
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return config.ExpandPath(defaultPrefsPath)
	}
	return config.ExpandPath(path)
}
