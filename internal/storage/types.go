package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// PushRecord records one completed plugin push.
// Keep it compact and schema-stable.
type PushRecord struct {
	At         time.Time
	Plugin     string
	Title      string
	ItemCount  int
	MovieCount int
	TVCount    int
	Error      string
	TookMS     int64
}
