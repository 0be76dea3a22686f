package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/model"
)

type chunkRepository struct {
	mu     sync.RWMutex
	order  []model.ChunkID
	chunks map[model.ChunkID]*model.Chunk
}

func newChunkRepository() *chunkRepository {
	return &chunkRepository{
		chunks: make(map[model.ChunkID]*model.Chunk),
	}
}

// copyChunk creates a deep copy of a chunk
func copyChunk(c *model.Chunk) *model.Chunk {
	copied := *c
	return &copied
}

func (r *chunkRepository) Create(ctx context.Context, chunk *model.Chunk) (*model.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := copyChunk(chunk)
	if created.ID == "" {
		created.ID = model.NewChunkID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	if _, exists := r.chunks[created.ID]; !exists {
		r.order = append(r.order, created.ID)
	}
	r.chunks[created.ID] = created

	return copyChunk(created), nil
}

func (r *chunkRepository) CreateMany(ctx context.Context, chunks []*model.Chunk) error {
	for _, chunk := range chunks {
		if _, err := r.Create(ctx, chunk); err != nil {
			return goerr.Wrap(err, "failed to create chunk", goerr.V("id", chunk.ID))
		}
	}
	return nil
}

func (r *chunkRepository) Get(ctx context.Context, id model.ChunkID) (*model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunk, exists := r.chunks[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
	}

	return copyChunk(chunk), nil
}

func (r *chunkRepository) List(ctx context.Context) ([]*model.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Chunk, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, copyChunk(r.chunks[id]))
	}

	return result, nil
}

func (r *chunkRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.chunks), nil
}
