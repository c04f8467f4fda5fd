// Package kvstore provides the key-value backends the floor snapshot is persisted in.
package kvstore

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Store persists opaque values under string keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// ParseDriver normalizes a configured backend name.
func ParseDriver(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case DriverSQLite, "":
		return DriverSQLite, nil
	case DriverBadger:
		return DriverBadger, nil
	default:
		return "", fmt.Errorf("kvstore: unsupported driver %q", raw)
	}
}
