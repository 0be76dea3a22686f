package snapshot

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/utils/safe"
)

// GCSStore persists snapshots as a single object in a Cloud Storage bucket.
// Object writes in GCS are atomic, so readers see either the old or the new
// snapshot.
type GCSStore struct {
	client *storage.Client
	bucket string
	object string
}

var _ Store = &GCSStore{}

func NewGCSStore(ctx context.Context, bucket, object string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	return &GCSStore{
		client: client,
		bucket: bucket,
		object: object,
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write snapshot object",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize snapshot object",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(ErrNotFound, "no snapshot object",
				goerr.V("bucket", s.bucket),
				goerr.V("object", s.object))
		}
		return nil, goerr.Wrap(err, "failed to open snapshot object",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	defer safe.Close(ctx, r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read snapshot object",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	return data, nil
}

func (s *GCSStore) Close() error {
	if err := s.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage client")
	}
	return nil
}
