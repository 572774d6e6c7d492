// Package store defines the snapshot persistence contract the hub writes
// through, and a registry of named drivers selected by configuration.
package store

import (
	"context"
	"io"

	"github.com/jensholdgaard/auctionroom/internal/domain"
)

// Persister saves and loads whole-state snapshots. Save is invoked after
// every mutating operation; a Load must observe either the pre-op or the
// post-op state, never a torn one.
type Persister interface {
	Save(ctx context.Context, snap *domain.Snapshot) error
	Load(ctx context.Context) (*domain.Snapshot, error)
}

// Backend groups a Persister with its lifecycle hooks.
type Backend struct {
	Persister
	// Closer releases underlying resources (e.g. a DB connection).
	Closer io.Closer
	// Ping checks the underlying storage health.
	Ping func(ctx context.Context) error
}

// CloserFunc adapts a func() error into an io.Closer.
type CloserFunc func() error

// Close implements io.Closer.
func (f CloserFunc) Close() error { return f() }

// NopCloser is a Closer for drivers with nothing to release.
var NopCloser = CloserFunc(func() error { return nil })
