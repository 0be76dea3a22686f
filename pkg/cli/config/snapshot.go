package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/esg-lab/pythia/pkg/service/snapshot"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

// Snapshot holds CLI flags for index snapshot persistence
type Snapshot struct {
	backend string
	path    string
	bucket  string
	object  string
}

// Flags returns CLI flags for snapshot configuration
func (s *Snapshot) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "snapshot-backend",
			Usage:       "Index snapshot backend (file, gcs or none)",
			Value:       "file",
			Sources:     cli.EnvVars("PYTHIA_SNAPSHOT_BACKEND"),
			Destination: &s.backend,
		},
		&cli.StringFlag{
			Name:        "snapshot-path",
			Usage:       "Snapshot file path (file backend)",
			Value:       "index.snapshot",
			Sources:     cli.EnvVars("PYTHIA_SNAPSHOT_PATH"),
			Destination: &s.path,
		},
		&cli.StringFlag{
			Name:        "snapshot-bucket",
			Usage:       "GCS bucket for snapshots (gcs backend)",
			Sources:     cli.EnvVars("PYTHIA_SNAPSHOT_BUCKET"),
			Destination: &s.bucket,
		},
		&cli.StringFlag{
			Name:        "snapshot-object",
			Usage:       "GCS object name for the snapshot",
			Value:       "pythia/index.snapshot",
			Sources:     cli.EnvVars("PYTHIA_SNAPSHOT_OBJECT"),
			Destination: &s.object,
		},
	}
}

// Configure builds the snapshot store. The none backend returns nil, which
// disables persistence.
func (s *Snapshot) Configure(ctx context.Context) (snapshot.Store, error) {
	switch s.backend {
	case "file":
		if s.path == "" {
			return nil, goerr.New("snapshot-path is required when using file backend")
		}
		logging.Default().Info("Using file snapshot store", "path", s.path)
		return snapshot.NewFileStore(s.path), nil

	case "gcs":
		if s.bucket == "" {
			return nil, goerr.New("snapshot-bucket is required when using gcs backend")
		}
		store, err := snapshot.NewGCSStore(ctx, s.bucket, s.object)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize GCS snapshot store")
		}
		logging.Default().Info("Using GCS snapshot store", "bucket", s.bucket, "object", s.object)
		return store, nil

	case "none":
		logging.Default().Info("Index snapshot persistence disabled")
		return nil, nil

	default:
		return nil, goerr.New("invalid snapshot backend", goerr.V("backend", s.backend))
	}
}
