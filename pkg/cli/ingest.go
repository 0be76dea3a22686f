package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/esg-lab/pythia/pkg/cli/config"
	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/service/snapshot"
	"github.com/esg-lab/pythia/pkg/usecase"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

// ingestChunk is the JSON shape of one chunk in an ingest input file
type ingestChunk struct {
	SourceName string `json:"source_name"`
	Text       string `json:"text"`
	Language   string `json:"language"`
}

func cmdIngest() *cli.Command {
	var inputPath string
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var snapshotCfg config.Snapshot

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Usage:       "JSON file with an array of {source_name, text, language} chunks",
			Required:    true,
			Sources:     cli.EnvVars("PYTHIA_INGEST_INPUT"),
			Destination: &inputPath,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, snapshotCfg.Flags()...)

	return &cli.Command{
		Name:    "ingest",
		Aliases: []string{"i"},
		Usage:   "Store document chunks and add them to the index without a full rebuild",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			chunks, err := loadIngestFile(inputPath)
			if err != nil {
				return err
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			llms, defaultModel, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini clients")
			}

			snapshots, err := snapshotCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure snapshot store")
			}
			if snapshots != nil {
				defer func() {
					if err := snapshots.Close(); err != nil {
						logging.Default().Error("failed to close snapshot store", "error", err.Error())
					}
				}()
			}

			ucOpts := []usecase.Option{
				usecase.WithModels(llms, defaultModel),
			}
			if snapshots != nil {
				ucOpts = append(ucOpts, usecase.WithSnapshotStore(snapshots))
			}
			uc := usecase.New(repo, index.New(model.EmbeddingDimension), ucOpts...)

			// Start from the persisted index so the new chunks extend it
			// instead of replacing it.
			if snapshots != nil {
				if err := uc.RestoreSnapshot(ctx); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
					return goerr.Wrap(err, "failed to restore index snapshot")
				}
			}

			if err := uc.IngestChunks(ctx, chunks); err != nil {
				return goerr.Wrap(err, "failed to ingest chunks")
			}

			if snapshots != nil {
				if err := uc.PersistSnapshot(ctx); err != nil {
					return goerr.Wrap(err, "failed to persist index snapshot")
				}
			}

			color.New(color.FgGreen, color.Bold).Printf("✔ Chunks ingested\n")
			color.New(color.FgWhite).Printf("  chunks added: %d\n  index size: %d\n", len(chunks), uc.Index().Size())
			return nil
		},
	}
}

func loadIngestFile(path string) ([]*model.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read ingest input", goerr.V("path", path))
	}

	var rows []ingestChunk
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, goerr.Wrap(err, "failed to parse ingest input", goerr.V("path", path))
	}
	if len(rows) == 0 {
		return nil, goerr.New("ingest input contains no chunks", goerr.V("path", path))
	}

	chunks := make([]*model.Chunk, len(rows))
	for i, row := range rows {
		if row.Text == "" {
			return nil, goerr.New("chunk text is required", goerr.V("index", i))
		}
		chunks[i] = &model.Chunk{
			SourceName: row.SourceName,
			Text:       row.Text,
			Language:   row.Language,
		}
	}
	return chunks, nil
}
