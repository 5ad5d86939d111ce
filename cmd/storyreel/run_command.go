package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storyreel/internal/censor"
	"storyreel/internal/config"
	"storyreel/internal/logging"
	"storyreel/internal/notifications"
	"storyreel/internal/pipeline"
	"storyreel/internal/publishqueue"
	"storyreel/internal/services/objstore"
	"storyreel/internal/services/publish"
	"storyreel/internal/services/render"
	"storyreel/internal/services/rewrite"
	"storyreel/internal/services/source"
	"storyreel/internal/services/speech"
	"storyreel/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipPublish bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline pass and drain the publish queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := ctx.buildLogger()
				if err != nil {
					return err
				}

				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				origins, err := source.LoadOrigins(cfg.Source.OriginsFile)
				if err != nil {
					return fmt.Errorf("load origins: %w", err)
				}

				chain, err := rewrite.NewChain(cfg.Rewrite, logger)
				if err != nil {
					return err
				}

				notifier := notifications.NewService(cfg)
				var storage *objstore.Client
				if cfg.Storage.BaseURL != "" {
					storage = objstore.NewClient(cfg.Storage, nil)
				}

				deps := pipeline.Deps{
					Store:    st,
					Logger:   logging.NewComponentLogger(logger, "pipeline"),
					Origins:  origins,
					Fetcher:  source.NewFetcher(cfg.Source, nil),
					Rewriter: chain,
					Vocab:    censor.NewVocabulary(st, chain, logger),
					Speech:   speech.NewClient(cfg.Speech, nil),
					Renderer: render.New(cfg.Render),
					Notifier: notifier,
				}
				if storage != nil {
					deps.Storage = storage
				}

				runner, err := pipeline.NewRunner(cfg, deps)
				if err != nil {
					return err
				}

				run, err := runner.Run(signalCtx)
				if err != nil {
					if errors.Is(err, pipeline.ErrRunActive) {
						return errors.New("another storyreel run is already active")
					}
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s finished: %d discovered, %d processed, %d failed\n",
					run.ID, run.ItemsDiscovered, run.ItemsProcessed, run.ItemsFailed)

				if skipPublish {
					return nil
				}
				if cfg.Publish.APIKey == "" {
					fmt.Fprintln(out, "Publish API key not configured, leaving queue untouched")
					return nil
				}

				result, err := drainQueue(signalCtx, cfg, st, logger, storage, notifier)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Publish queue: %d uploaded, %d failed, %d slots left today\n",
					result.Uploaded, result.Failed, result.Remaining)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipPublish, "skip-publish", false, "Run the pipeline without draining the publish queue")

	return cmd
}

func drainQueue(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger, storage *objstore.Client, notifier notifications.Service) (*publishqueue.Result, error) {
	deps := publishqueue.Deps{
		Store:     st,
		Logger:    logging.NewComponentLogger(logger, "publishqueue"),
		Publisher: publish.NewClient(cfg.Publish, nil),
		Notifier:  notifier,
	}
	if storage != nil {
		deps.Downloader = storage
	}
	controller, err := publishqueue.New(cfg, deps)
	if err != nil {
		return nil, err
	}
	return controller.Drain(ctx)
}
