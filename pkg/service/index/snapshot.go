package index

import (
	"encoding/gob"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/model"
)

// persistedEntry is the on-disk form of one index entry
type persistedEntry struct {
	ID         string
	SourceName string
	Text       string
	Language   string
	CreatedAt  time.Time
	Vector     []float32
}

// persistedIndex is the on-disk form of a whole snapshot
type persistedIndex struct {
	Dimension int
	Entries   []persistedEntry
}

// WriteSnapshot serializes the current snapshot. The encoding captures the
// full entries in insertion order, so restoring reproduces identical search
// results for any query vector.
func (x *Index) WriteSnapshot(w io.Writer) error {
	snap := x.current.Load()

	p := persistedIndex{
		Dimension: x.dimension,
		Entries:   make([]persistedEntry, len(snap.entries)),
	}
	for i, e := range snap.entries {
		p.Entries[i] = persistedEntry{
			ID:         string(e.Chunk.ID),
			SourceName: e.Chunk.SourceName,
			Text:       e.Chunk.Text,
			Language:   e.Chunk.Language,
			CreatedAt:  e.Chunk.CreatedAt,
			Vector:     e.Vector,
		}
	}

	if err := gob.NewEncoder(w).Encode(&p); err != nil {
		return goerr.Wrap(err, "failed to encode index snapshot")
	}
	return nil
}

// ReadSnapshot deserializes a snapshot and atomically replaces the current
// entries. A snapshot with a different dimension is rejected and the current
// entries stay live.
func (x *Index) ReadSnapshot(r io.Reader) error {
	var p persistedIndex
	if err := gob.NewDecoder(r).Decode(&p); err != nil {
		return goerr.Wrap(err, "failed to decode index snapshot")
	}

	if p.Dimension != x.dimension {
		return goerr.Wrap(ErrDimensionMismatch, "snapshot dimension differs",
			goerr.V("expected", x.dimension),
			goerr.V("actual", p.Dimension))
	}

	entries := make([]Entry, len(p.Entries))
	for i, e := range p.Entries {
		entries[i] = Entry{
			Chunk: &model.Chunk{
				ID:         model.ChunkID(e.ID),
				SourceName: e.SourceName,
				Text:       e.Text,
				Language:   e.Language,
				CreatedAt:  e.CreatedAt,
			},
			Vector: e.Vector,
		}
	}

	return x.Rebuild(entries)
}
