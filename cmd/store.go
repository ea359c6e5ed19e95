package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"chathive/internal/config"
	"chathive/internal/store"
	"chathive/internal/store/badgerstore"
	"chathive/internal/store/sqlstore"
)

const driverBadger = "badger"

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case sqlstore.DriverSQLite, sqlstore.DriverMySQL:
		st, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return st, nil
	case driverBadger:
		st, err := badgerstore.Open(cfg.StoreDSN, log)
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
