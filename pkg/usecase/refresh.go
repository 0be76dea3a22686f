package usecase

import (
	"bytes"
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/utils/async"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

// Refresh rebuilds the vector index from the document store: list all
// chunks, embed them in bounded-concurrency batches, and atomically swap
// the index. Any failure before the swap leaves the previous index live.
// Returns the number of chunks indexed.
func (uc *UseCases) Refresh(ctx context.Context) (int, error) {
	logger := logging.From(ctx)

	chunks, err := uc.repo.Chunk().List(ctx)
	if err != nil {
		return 0, goerr.Wrap(ErrStoreUnavailable, "failed to list chunks", goerr.V("cause", err.Error()))
	}

	logger.Info("rebuilding vector index", "chunks", len(chunks))

	vectors := make([][]float32, len(chunks))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(uc.embedConcurrency)

	for start := 0; start < len(chunks); start += uc.embedBatchSize {
		end := start + uc.embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end

		eg.Go(func() error {
			texts := make([]string, end-start)
			for i, c := range chunks[start:end] {
				texts[i] = c.Text
			}

			// Each batch carries its own deadline so one hung embedding
			// call cannot block the rebuild indefinitely.
			batchCtx, cancel := context.WithTimeout(egCtx, uc.embedTimeout)
			defer cancel()

			batch, err := uc.embed(batchCtx, texts)
			if err != nil {
				return goerr.Wrap(err, "failed to embed chunk batch",
					goerr.V("start", start),
					goerr.V("end", end))
			}

			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return 0, goerr.Wrap(ErrEmbedding, "failed to embed chunks", goerr.V("cause", err.Error()))
	}

	entries := make([]index.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = index.Entry{Chunk: c, Vector: vectors[i]}
	}

	if err := uc.index.Rebuild(entries); err != nil {
		return 0, err
	}

	logger.Info("vector index rebuilt", "entries", uc.index.Size())

	// Persist the new snapshot in the background; a persistence failure
	// does not undo the in-memory swap.
	if uc.snapshots != nil {
		async.Dispatch(ctx, func(ctx context.Context) error {
			return uc.PersistSnapshot(ctx)
		})
	}

	return len(chunks), nil
}

// PersistSnapshot writes the current index snapshot to the snapshot store
func (uc *UseCases) PersistSnapshot(ctx context.Context) error {
	if uc.snapshots == nil {
		return goerr.New("snapshot store is not configured")
	}

	var buf bytes.Buffer
	if err := uc.index.WriteSnapshot(&buf); err != nil {
		return err
	}
	if err := uc.snapshots.Put(ctx, buf.Bytes()); err != nil {
		return goerr.Wrap(err, "failed to store index snapshot")
	}

	logging.From(ctx).Info("index snapshot persisted", "bytes", buf.Len(), "entries", uc.index.Size())
	return nil
}

// RestoreSnapshot loads the latest persisted snapshot into the index.
// Returns snapshot.ErrNotFound (wrapped) when none has been stored.
func (uc *UseCases) RestoreSnapshot(ctx context.Context) error {
	if uc.snapshots == nil {
		return goerr.New("snapshot store is not configured")
	}

	data, err := uc.snapshots.Get(ctx)
	if err != nil {
		return err
	}

	if err := uc.index.ReadSnapshot(bytes.NewReader(data)); err != nil {
		return err
	}

	logging.From(ctx).Info("index snapshot restored", "entries", uc.index.Size())
	return nil
}

// IngestChunks stores new chunks and inserts them into the live index
// without a full rebuild
func (uc *UseCases) IngestChunks(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return goerr.Wrap(ErrValidation, "no chunks to ingest")
	}

	// Assign identity here so the store and the index entries agree
	now := time.Now().UTC()
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = model.NewChunkID()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}

	if err := uc.repo.Chunk().CreateMany(ctx, chunks); err != nil {
		return goerr.Wrap(ErrStoreUnavailable, "failed to store chunks", goerr.V("cause", err.Error()))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedCtx, cancel := context.WithTimeout(ctx, uc.embedTimeout)
	defer cancel()

	vectors, err := uc.embed(embedCtx, texts)
	if err != nil {
		return goerr.Wrap(ErrEmbedding, "failed to embed chunks", goerr.V("cause", err.Error()))
	}

	for i, c := range chunks {
		if err := uc.index.Insert(c, vectors[i]); err != nil {
			return err
		}
	}

	return nil
}
