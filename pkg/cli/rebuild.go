package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/esg-lab/pythia/pkg/cli/config"
	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/usecase"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

func cmdRebuild() *cli.Command {
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var snapshotCfg config.Snapshot

	var flags []cli.Flag
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, snapshotCfg.Flags()...)

	return &cli.Command{
		Name:    "rebuild",
		Aliases: []string{"r"},
		Usage:   "Rebuild the vector index from the document store and persist a snapshot",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
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
			if snapshots == nil {
				return goerr.New("rebuild requires a snapshot backend")
			}
			defer func() {
				if err := snapshots.Close(); err != nil {
					logging.Default().Error("failed to close snapshot store", "error", err.Error())
				}
			}()

			uc := usecase.New(repo, index.New(model.EmbeddingDimension),
				usecase.WithModels(llms, defaultModel),
				usecase.WithSnapshotStore(snapshots),
			)

			count, err := uc.Refresh(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to rebuild index")
			}

			// Refresh persists asynchronously; write once more synchronously
			// so the snapshot is durable before the command exits.
			if err := uc.PersistSnapshot(ctx); err != nil {
				return goerr.Wrap(err, "failed to persist index snapshot")
			}

			color.New(color.FgGreen, color.Bold).Printf("✔ Index rebuilt\n")
			color.New(color.FgWhite).Printf("  chunks indexed: %d\n", count)
			return nil
		},
	}
}
