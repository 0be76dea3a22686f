package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/esg-lab/pythia/pkg/cli/config"
	httpctrl "github.com/esg-lab/pythia/pkg/controller/http"
	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/service/feedback"
	"github.com/esg-lab/pythia/pkg/service/index"
	"github.com/esg-lab/pythia/pkg/service/snapshot"
	"github.com/esg-lab/pythia/pkg/service/vision"
	"github.com/esg-lab/pythia/pkg/usecase"
	"github.com/esg-lab/pythia/pkg/utils/async"
	"github.com/esg-lab/pythia/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var llmTimeout time.Duration
	var feedbackPath string
	var visionModel string
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var snapshotCfg config.Snapshot
	var profileCfg config.Profile

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("PYTHIA_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "llm-timeout",
			Usage:       "Per-request timeout for model-facing endpoints",
			Value:       60 * time.Second,
			Sources:     cli.EnvVars("PYTHIA_LLM_TIMEOUT"),
			Destination: &llmTimeout,
		},
		&cli.StringFlag{
			Name:        "feedback-path",
			Usage:       "Append-only feedback log file",
			Value:       "feedback.csv",
			Sources:     cli.EnvVars("PYTHIA_FEEDBACK_PATH"),
			Destination: &feedbackPath,
		},
		&cli.StringFlag{
			Name:        "vision-model",
			Usage:       "Gemini model used for image analysis",
			Value:       "gemini-2.0-flash",
			Sources:     cli.EnvVars("PYTHIA_VISION_MODEL"),
			Destination: &visionModel,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, snapshotCfg.Flags()...)
	flags = append(flags, profileCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
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
			if snapshots != nil {
				defer func() {
					if err := snapshots.Close(); err != nil {
						logging.Default().Error("failed to close snapshot store", "error", err.Error())
					}
				}()
			}

			profile, err := profileCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load assistant profile")
			}

			feedbackLog, err := feedback.New(feedbackPath)
			if err != nil {
				return goerr.Wrap(err, "failed to open feedback log", goerr.V("path", feedbackPath))
			}

			visionSvc, err := vision.New(ctx, geminiCfg.ProjectID(), geminiCfg.Location(), vision.WithModel(visionModel))
			if err != nil {
				return goerr.Wrap(err, "failed to initialize vision service")
			}

			ucOpts := []usecase.Option{
				usecase.WithModels(llms, defaultModel),
				usecase.WithProfile(profile),
				usecase.WithFeedbackLog(feedbackLog),
				usecase.WithVision(visionSvc),
				usecase.WithEmbedTimeout(llmTimeout),
			}
			if snapshots != nil {
				ucOpts = append(ucOpts, usecase.WithSnapshotStore(snapshots))
			}

			uc := usecase.New(repo, index.New(model.EmbeddingDimension), ucOpts...)

			// Load the last persisted snapshot if one exists; otherwise
			// rebuild from the store in the background so startup does not
			// block on embedding every chunk.
			restored := false
			if snapshots != nil {
				if err := uc.RestoreSnapshot(ctx); err != nil {
					if !errors.Is(err, snapshot.ErrNotFound) {
						logging.Default().Warn("failed to restore index snapshot", "error", err.Error())
					}
				} else {
					restored = true
				}
			}
			if !restored {
				logging.Default().Info("No index snapshot restored, rebuilding in background")
				async.Dispatch(ctx, func(ctx context.Context) error {
					_, err := uc.Refresh(ctx)
					return err
				})
			}

			httpHandler := httpctrl.New(uc, httpctrl.WithLLMTimeout(llmTimeout))
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "index_size", uc.Index().Size())
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
