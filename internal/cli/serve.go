package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/relay"
	"github.com/roach88/docsync/internal/store"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// ready, if set, receives the bound address once the listener is up.
	ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the configured store over WebSocket",
		Long: `Start a relay exposing the configured store to remote sessions.

Clients connect to ws://<addr>/ws and use the relay store driver.
GET /healthz reports liveness and the number of connected clients.

Examples:
  docsync serve --addr :8790
  DOCSYNC_STORE_DRIVER=sqlite docsync serve --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg := opts.settings()
	if cfg.Store.Driver == config.DriverRelay {
		return NewExitError(ExitCommandError, "serve needs a backing store, not the relay driver")
	}
	addr := opts.Addr
	if addr == "" {
		addr = cfg.Relay.Addr
	}

	ctx, cancel := context.WithCancel(cmdContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger := opts.logger()
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return withStore(ctx, opts.RootOptions, func(st store.Store) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}

		rs := relay.NewServer(st, logger)
		srv := &http.Server{
			Handler:           rs.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Serve(ln) }()

		bound := ln.Addr().String()
		logger.Info("relay listening", "addr", bound, "driver", cfg.Store.Driver)
		fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on %s (store: %s)\n", bound, cfg.Store.Driver)
		if opts.ready != nil {
			opts.ready(bound)
		}

		select {
		case <-ctx.Done():
		case err := <-serveErr:
			return WrapExitError(ExitFailure, "relay server error", err)
		}

		// Hijacked websocket connections are not tracked by http.Server.
		rs.Close()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "relay shutdown failed", err)
		}

		logger.Info("relay stopped gracefully")
		return nil
	})
}
