package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanish-rishen/InterviewPartner/internal/config"
	"github.com/hanish-rishen/InterviewPartner/internal/httpserver"
)

func main() {
	// Timer-driven turn transitions are sub-second; log with microseconds.
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	srv := httpserver.New(cfg)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("interview server listening on %s", cfg.HTTPAddress)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
		return
	case sig := <-sigCh:
		log.Printf("received %v, draining connections", sig)
	}

	// Active audio sockets hold the server open; give them a bounded window
	// to wind down, then force the close.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown incomplete, closing: %v", err)
		_ = server.Close()
	}
	log.Printf("server stopped")
}
