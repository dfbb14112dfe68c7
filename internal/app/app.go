package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/buddy/internal/archive"
	"github.com/five82/buddy/internal/config"
	"github.com/five82/buddy/internal/engine"
	"github.com/five82/buddy/internal/filmbuddy"
	"github.com/five82/buddy/internal/prefs"
	"github.com/five82/buddy/internal/ui"
)

// Options configure the buddy application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/buddy/prefs.toml
	// Non-zero values override the config file.
	Unread  time.Duration
	Friends time.Duration
	Chat    time.Duration
}

// Run boots the buddy TUI until the context is cancelled or the user quits.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logFile, err := openLog(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		log.Printf("prefs: %v (using defaults)", err)
	}

	client, err := filmbuddy.NewClient(filmbuddy.Options{
		BaseURL:       cfg.APIBase,
		Session:       cfg.Session,
		SessionCookie: cfg.SessionCookie,
	})
	if err != nil {
		return fmt.Errorf("init filmbuddy client: %w", err)
	}

	changes := make(chan struct{}, 1)
	poll := mergePoll(cfg.Poll, opts)
	engOpts := engine.Options{
		Intervals: engine.Intervals{
			Unread:  poll.Unread,
			Friends: poll.Friends,
			Chat:    poll.Chat,
		},
		ToastTTL: poll.ToastTTL,
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	}

	if store, err := archive.Open(cfg.ArchivePath); err != nil {
		log.Printf("history archive disabled: %v", err)
	} else {
		defer store.Close()
		engOpts.Archive = store
	}

	eng := engine.New(client, engOpts)
	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Close()
	log.Printf("buddy started against %s", cfg.APIBase)

	err = ui.Run(ui.Options{
		Context:   ctx,
		Engine:    eng,
		Changes:   changes,
		UserID:    cfg.UserID,
		LogFile:   cfg.LogFile,
		ThemeName: userPrefs.Theme,
		PrefsPath: opts.PrefsPath,
		ToastRows: userPrefs.ToastRows,
	})
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// mergePoll applies the command-line overrides on top of the config file.
func mergePoll(p config.Poll, opts Options) config.Poll {
	if opts.Unread > 0 {
		p.Unread = opts.Unread
	}
	if opts.Friends > 0 {
		p.Friends = opts.Friends
	}
	if opts.Chat > 0 {
		p.Chat = opts.Chat
	}
	return p
}

// openLog routes the standard logger to path. The terminal belongs to the
// TUI, so nothing may be logged to stderr while it runs.
func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return tea.LogToFile(path, "buddy")
}
