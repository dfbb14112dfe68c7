package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/five82/buddy/internal/stubserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", "127.0.0.1:8000", "listen address")
	users := flag.String("users", "amy,bob,sam", "comma-separated usernames to create")
	befriend := flag.Bool("befriend", false, "make every seeded user friends with the first one")
	flag.Parse()

	srv := stubserver.New()
	var ids []int64
	for _, name := range strings.Split(*users, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := srv.AddUser(name)
		ids = append(ids, id)
		fmt.Printf("%-12s user_id=%d session=%s\n", name, id, srv.Login(id))
	}
	if *befriend && len(ids) > 1 {
		for _, id := range ids[1:] {
			srv.Befriend(ids[0], id)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("stub service listening on http://%s/api", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "buddy-stub: %v\n", err)
		return 1
	}
	return 0
}
