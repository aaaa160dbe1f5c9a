package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/relay"
	"github.com/roach88/docsync/internal/store"
)

// openStore opens the store selected by cfg.Store.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	logger.Info("opening store", "driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverSQLite:
		return store.OpenSQLite(cfg.Path)
	case config.DriverRedis:
		return store.NewRedis(ctx, cfg.URL)
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.URL)
	case config.DriverRelay:
		return relay.Dial(ctx, cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(ctx context.Context, opts *RootOptions, fn func(store.Store) error) error {
	logger := opts.logger()

	st, err := openStore(ctx, opts.settings().Store, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()
	return fn(st)
}
