package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/notifications"
	"storyreel/internal/services/objstore"
	"storyreel/internal/store"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Drain the publish queue against today's upload quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if cfg.Publish.APIKey == "" {
					return errors.New("publish api_key is not configured")
				}
				logger, err := ctx.buildLogger()
				if err != nil {
					return err
				}

				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				var storage *objstore.Client
				if cfg.Storage.BaseURL != "" {
					storage = objstore.NewClient(cfg.Storage, nil)
				}

				result, err := drainQueue(signalCtx, cfg, st, logger, storage, notifications.NewService(cfg))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Publish queue: %d uploaded, %d failed, %d slots left today\n",
					result.Uploaded, result.Failed, result.Remaining)
				return nil
			})
		},
	}
}
