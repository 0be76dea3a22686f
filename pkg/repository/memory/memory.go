package memory

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/interfaces"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = goerr.New("not found")

// Memory is an in-memory repository for development and testing
type Memory struct {
	chunk *chunkRepository
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		chunk: newChunkRepository(),
	}
}

func (m *Memory) Chunk() interfaces.ChunkRepository {
	return m.chunk
}

func (m *Memory) Close() error {
	return nil
}
