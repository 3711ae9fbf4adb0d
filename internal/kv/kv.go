// Package kv is the small key-value abstraction the cart persists
// through.  Three backends exist: Memory for tests, File for the
// command line client and Redis for the web API.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store reads and writes opaque values by key.  Implementations must
// be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
