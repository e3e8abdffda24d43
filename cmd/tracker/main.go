// Command tracker runs a local job tracker that accepts progress updates
// from ytdownloader and serves job status to pollers.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ytdownloader/internal/config"
	"ytdownloader/internal/logging"
	"ytdownloader/internal/tracker"
)

func main() {
	_ = config.LoadDotEnv("")

	addr := flag.String("addr", ":3000", "listen address")
	logLevel := flag.String("log-level", os.Getenv("LOG_LEVEL"), "log level")
	flag.Parse()

	logger := logging.New(os.Stdout, *logLevel, os.Getenv("LOG_FORMAT"))

	secret := os.Getenv("INTERNAL_SECRET")
	if secret == "" {
		logger.Fatal("INTERNAL_SECRET environment variable not set")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           tracker.New(secret, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("Tracker listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server stopped: %v", err)
	}
}
