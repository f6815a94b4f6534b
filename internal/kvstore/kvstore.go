// Package kvstore provides the persistent key-value capability used by the
// outbound queue.
//
// Four backends share one interface:
//
//   - badger: embedded LSM store, the default on field devices
//   - sqlite: single-table store for stations that already ship SQLite tooling
//   - file:   one file per key, written atomically
//   - memory: process-local, for tests and ephemeral runs
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("key not found")

// Store is a durable byte-value map.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Open builds the named backend rooted at dir.
func Open(backend, dir string, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = filepath.Join(dir, "queue.badger")
		cfg.Logger = logger
		return OpenBadger(cfg)
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "queue.db"))
	case BackendFile:
		return NewFile(filepath.Join(dir, "kv"))
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
