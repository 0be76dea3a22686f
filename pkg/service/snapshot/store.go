package snapshot

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

// ErrNotFound is returned when no snapshot has been stored yet
var ErrNotFound = goerr.New("snapshot not found")

// Store persists index snapshots between restarts. Put must be atomic from
// a reader's point of view: Get never returns a half-written snapshot.
type Store interface {
	// Put durably stores the snapshot bytes, replacing any previous one
	Put(ctx context.Context, data []byte) error

	// Get returns the latest stored snapshot, or ErrNotFound
	Get(ctx context.Context) ([]byte, error)

	// Close releases underlying resources
	Close() error
}
