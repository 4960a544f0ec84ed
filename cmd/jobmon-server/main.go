// Command jobmon-server runs the Server API (C3, spec.md §4.2): the State
// Store and Transition Service fronted by an HTTP/JSON surface. Grounded on
// cuemby-warren's cmd/warren "cluster init" startup sequence (construct
// dependencies, start the HTTP server in a goroutine, wait on a signal),
// with the gRPC+mTLS transport replaced by the plain HTTP/JSON api.Server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/api"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonconfig"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store/postgres"
)

var (
	Version = "dev"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (optional; env vars override)")
	addr := flag.String("addr", ":8070", "address to listen on")
	flag.Parse()

	cfg, err := jobmonconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	jobmonlog.Init(jobmonlog.Config{
		Level:      jobmonlog.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	log := jobmonlog.WithComponent("server")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := postgres.Open(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	srv := api.New(st, api.Config{
		ServerVersion:        Version,
		DistributorExpungeBy: cfg.Heartbeat.Interval * 3,
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", *addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
