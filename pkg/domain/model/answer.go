package model

// NoKnowledgeAnswer is returned when the index has no entries to retrieve
// from. An empty index is a well-defined state, not an error: callers get
// this fixed answer with no sources instead of a failure.
const NoKnowledgeAnswer = "No knowledge is available yet. Please refresh the document index and try again."

// Answer is the result of a retrieval-augmented query: the generated text
// plus the chunks it was conditioned on, in retrieval rank order.
type Answer struct {
	Text    string
	Sources []*RetrievedChunk
}

// SourceIDs returns the chunk identifiers in rank order
func (a *Answer) SourceIDs() []ChunkID {
	ids := make([]ChunkID, len(a.Sources))
	for i, s := range a.Sources {
		ids[i] = s.Chunk.ID
	}
	return ids
}

// Scores returns the per-chunk similarity scores in rank order
func (a *Answer) Scores() []float64 {
	scores := make([]float64, len(a.Sources))
	for i, s := range a.Sources {
		scores[i] = s.Score
	}
	return scores
}
