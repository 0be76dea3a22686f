package interfaces

// Repository defines the interface for data persistence
type Repository interface {
	Chunk() ChunkRepository

	// Close releases the underlying client resources
	Close() error
}
