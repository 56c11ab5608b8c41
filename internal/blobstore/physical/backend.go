// Package physical provides the physical storage backend interface for blob objects.
package physical

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested blob was not found.
	ErrNotFound = errors.New("blob not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("backend closed")
)

// Backend is the physical storage interface for blob objects.
// All implementations must be thread-safe.
//
// Metadata is an opaque string mapping stored alongside the object and
// returned verbatim on Get. A nil or empty map means the object carries no
// metadata, which is a valid state for objects written outside blobvault.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	Get(ctx context.Context, key string) ([]byte, map[string]string, error)
	Close() error
}
