package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/buddy/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override config path (optional)")
	prefsPath := flag.String("prefs", "", "override prefs path (optional)")
	unread := flag.Duration("unread", 0, "unread poll interval (optional, defaults to 5s)")
	friends := flag.Duration("friends", 0, "friend graph poll interval (optional, defaults to 5s)")
	chat := flag.Duration("chat", 0, "open chat poll interval (optional, defaults to 3s)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		Unread:     *unread,
		Friends:    *friends,
		Chat:       *chat,
	}
	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "buddy: %v\n", err)
		return 1
	}
	return 0
}
