// Package storage persists push history for operational visibility.
// Persistence is best-effort: callers treat a disabled or failing store as a
// logged degradation, never a push failure.
package storage

import (
	"context"
	"errors"
	"strings"

	logx "hotbot/pkg/logx"
)

// Store is the minimal persistence API used by plugins.
type Store interface {
	AppendPush(ctx context.Context, r PushRecord) error
	RecentPushes(ctx context.Context, limit int) ([]PushRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
