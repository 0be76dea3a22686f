package interfaces

import (
	"context"

	"github.com/esg-lab/pythia/pkg/domain/model"
)

// ChunkRepository defines the interface for document chunk persistence.
// The store is the durable source of truth; the in-memory vector index is
// a derived cache rebuilt from List.
type ChunkRepository interface {
	// Create creates a new chunk. A missing ID is assigned.
	Create(ctx context.Context, chunk *model.Chunk) (*model.Chunk, error)

	// CreateMany creates chunks in bulk during ingestion
	CreateMany(ctx context.Context, chunks []*model.Chunk) error

	// Get retrieves a chunk by ID
	Get(ctx context.Context, id model.ChunkID) (*model.Chunk, error)

	// List retrieves all chunks in creation order
	List(ctx context.Context) ([]*model.Chunk, error)

	// Count returns the number of stored chunks
	Count(ctx context.Context) (int, error)
}
