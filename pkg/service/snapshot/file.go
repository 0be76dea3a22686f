package snapshot

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
)

// FileStore persists snapshots as a single local file. Writes go to a
// temporary file in the same directory and are renamed over the target, so
// a concurrent reader or a crash never exposes a partial snapshot.
type FileStore struct {
	path string
}

var _ Store = &FileStore{}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Put(ctx context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return goerr.Wrap(err, "failed to create snapshot directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary snapshot file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to write snapshot", goerr.V("path", tmpPath))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to sync snapshot", goerr.V("path", tmpPath))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to close snapshot", goerr.V("path", tmpPath))
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return goerr.Wrap(err, "failed to replace snapshot", goerr.V("path", s.path))
	}

	return nil
}

func (s *FileStore) Get(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrNotFound, "no snapshot file", goerr.V("path", s.path))
		}
		return nil, goerr.Wrap(err, "failed to read snapshot", goerr.V("path", s.path))
	}
	return data, nil
}

func (s *FileStore) Close() error {
	return nil
}
