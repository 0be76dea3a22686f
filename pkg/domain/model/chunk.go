package model

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimension is the dimension of the embedding vector.
// Gemini text-embedding-004 uses 768 dimensions.
const EmbeddingDimension = 768

// ChunkID is a UUID-based identifier for a document chunk
type ChunkID string

// NewChunkID generates a new UUID v4 ChunkID
func NewChunkID() ChunkID {
	return ChunkID(uuid.New().String())
}

// Chunk is a unit of source document text stored and indexed independently.
// Chunks are immutable once indexed; a refresh replaces the whole index
// rather than mutating entries in place.
type Chunk struct {
	ID         ChunkID
	SourceName string // Name of the document the chunk was extracted from
	Text       string
	Language   string
	CreatedAt  time.Time
}

// RetrievedChunk pairs a chunk with its similarity score for one query.
// Scores are cosine similarity, higher is more similar.
type RetrievedChunk struct {
	Chunk *Chunk
	Score float64
}
