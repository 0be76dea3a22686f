package index

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/model"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index's fixed dimension
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

	// ErrEmptyIndex is returned when a search runs against an index with no entries
	ErrEmptyIndex = goerr.New("vector index is empty")
)

// Entry is a (chunk, embedding) pair held by the index
type Entry struct {
	Chunk  *model.Chunk
	Vector []float32
}

// snapshot is an immutable generation of the index. Readers always operate
// on one snapshot end to end; writers publish a new snapshot and never touch
// a published one.
type snapshot struct {
	entries []Entry
}

// Index is an in-memory nearest-neighbor index over embedded chunks.
// Multiple readers run concurrently against the current snapshot; Insert
// and Rebuild serialize among themselves and publish via an atomic swap,
// so a reader never observes a partially rebuilt index.
type Index struct {
	dimension int

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[snapshot]
}

// New creates an empty index with the given fixed vector dimension
func New(dimension int) *Index {
	x := &Index{dimension: dimension}
	x.current.Store(&snapshot{})
	return x
}

// Dimension returns the fixed vector dimension
func (x *Index) Dimension() int {
	return x.dimension
}

// Size returns the number of entries in the current snapshot
func (x *Index) Size() int {
	return len(x.current.Load().entries)
}

func (x *Index) checkDimension(vec []float32) error {
	if len(vec) != x.dimension {
		return goerr.Wrap(ErrDimensionMismatch, "unexpected vector length",
			goerr.V("expected", x.dimension),
			goerr.V("actual", len(vec)))
	}
	return nil
}

// Insert appends one entry. Repeated inserts of the same chunk create
// distinct entries; there is no dedup by chunk ID. Rebuild is the only
// operation that removes entries.
func (x *Index) Insert(chunk *model.Chunk, vec []float32) error {
	if err := x.checkDimension(vec); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	old := x.current.Load().entries
	entries := make([]Entry, len(old), len(old)+1)
	copy(entries, old)
	entries = append(entries, Entry{Chunk: chunk, Vector: vec})

	x.current.Store(&snapshot{entries: entries})
	return nil
}

// Rebuild atomically replaces all entries. All vectors are validated before
// anything is published, so a failed rebuild leaves the previous snapshot
// fully intact.
func (x *Index) Rebuild(entries []Entry) error {
	for i, e := range entries {
		if err := x.checkDimension(e.Vector); err != nil {
			return goerr.Wrap(err, "rebuild rejected", goerr.V("entry", i))
		}
	}

	next := make([]Entry, len(entries))
	copy(next, entries)

	x.mu.Lock()
	defer x.mu.Unlock()
	x.current.Store(&snapshot{entries: next})
	return nil
}

// Search returns up to topK entries ranked by descending cosine similarity
// to the query vector. Equal scores keep insertion order. topK <= 0 yields
// an empty result, not an error; an empty index yields ErrEmptyIndex.
func (x *Index) Search(vec []float32, topK int) ([]*model.RetrievedChunk, error) {
	if topK <= 0 {
		return []*model.RetrievedChunk{}, nil
	}
	if err := x.checkDimension(vec); err != nil {
		return nil, err
	}

	snap := x.current.Load()
	if len(snap.entries) == 0 {
		return nil, goerr.Wrap(ErrEmptyIndex, "nothing to search")
	}

	scored := make([]*model.RetrievedChunk, len(snap.entries))
	for i, e := range snap.entries {
		scored[i] = &model.RetrievedChunk{
			Chunk: e.Chunk,
			Score: cosineSimilarity(vec, e.Vector),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
