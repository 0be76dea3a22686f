package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/esg-lab/pythia/pkg/domain/model"
)

const chunkCollection = "chunks"

// chunkDoc is the Firestore document representation of model.Chunk
type chunkDoc struct {
	ID         model.ChunkID `firestore:"ID"`
	SourceName string        `firestore:"SourceName"`
	Text       string        `firestore:"Text"`
	Language   string        `firestore:"Language"`
	CreatedAt  time.Time     `firestore:"CreatedAt"`
}

func toChunkDoc(c *model.Chunk) *chunkDoc {
	return &chunkDoc{
		ID:         c.ID,
		SourceName: c.SourceName,
		Text:       c.Text,
		Language:   c.Language,
		CreatedAt:  c.CreatedAt,
	}
}

func fromChunkDoc(d *chunkDoc) *model.Chunk {
	return &model.Chunk{
		ID:         d.ID,
		SourceName: d.SourceName,
		Text:       d.Text,
		Language:   d.Language,
		CreatedAt:  d.CreatedAt,
	}
}

type chunkRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newChunkRepository(client *firestore.Client) *chunkRepository {
	return &chunkRepository{
		client: client,
	}
}

func (r *chunkRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + chunkCollection)
}

func (r *chunkRepository) Create(ctx context.Context, chunk *model.Chunk) (*model.Chunk, error) {
	created := *chunk
	if created.ID == "" {
		created.ID = model.NewChunkID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	docRef := r.collection().Doc(string(created.ID))
	if _, err := docRef.Set(ctx, toChunkDoc(&created)); err != nil {
		return nil, goerr.Wrap(err, "failed to create chunk", goerr.V("id", created.ID))
	}

	return &created, nil
}

func (r *chunkRepository) CreateMany(ctx context.Context, chunks []*model.Chunk) error {
	writer := r.client.BulkWriter(ctx)

	now := time.Now().UTC()
	jobs := make([]*firestore.BulkWriterJob, 0, len(chunks))
	ids := make([]model.ChunkID, 0, len(chunks))
	for _, chunk := range chunks {
		created := *chunk
		if created.ID == "" {
			created.ID = model.NewChunkID()
		}
		if created.CreatedAt.IsZero() {
			created.CreatedAt = now
		}

		docRef := r.collection().Doc(string(created.ID))
		job, err := writer.Set(docRef, toChunkDoc(&created))
		if err != nil {
			return goerr.Wrap(err, "failed to enqueue chunk write", goerr.V("id", created.ID))
		}
		jobs = append(jobs, job)
		ids = append(ids, created.ID)
	}

	writer.End()

	// Set only reports enqueue errors; the write outcome of each document
	// surfaces through its job after End flushes.
	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "failed to write chunk", goerr.V("id", ids[i]))
		}
	}
	return nil
}

func (r *chunkRepository) Get(ctx context.Context, id model.ChunkID) (*model.Chunk, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get chunk", goerr.V("id", id))
	}

	var d chunkDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode chunk", goerr.V("id", id))
	}

	return fromChunkDoc(&d), nil
}

func (r *chunkRepository) List(ctx context.Context) ([]*model.Chunk, error) {
	iter := r.collection().OrderBy("CreatedAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var result []*model.Chunk
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate chunks")
		}

		var d chunkDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode chunk", goerr.V("doc", doc.Ref.ID))
		}
		result = append(result, fromChunkDoc(&d))
	}

	return result, nil
}

func (r *chunkRepository) Count(ctx context.Context) (int, error) {
	iter := r.collection().Select().Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count chunks")
		}
		count++
	}

	return count, nil
}
