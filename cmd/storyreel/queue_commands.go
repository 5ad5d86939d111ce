package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/item"
	"storyreel/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the publish queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List publish queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				statuses, err := parseQueueStatuses(statusFilters)
				if err != nil {
					return err
				}
				entries, err := st.ListQueue(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Publish queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						truncate(entry.Title, 50),
						strconv.Itoa(entry.Priority),
						string(entry.Status),
						entry.QueuedAt.Local().Format("2006-01-02 15:04"),
						truncate(entry.ErrorMessage, 40),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Priority", "Status", "Queued", "Error"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Only show entries with these statuses")

	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Requeue a failed entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid entry id %q", args[0])
				}
				entry, err := st.QueueEntryByID(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("entry %d: %w", id, err)
				}
				if err := st.RetryEntry(cmd.Context(), entry); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %d requeued\n", id)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <entry-id>",
		Short: "Remove an entry from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid entry id %q", args[0])
				}
				if err := st.RemoveEntry(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %d removed\n", id)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all entries with a given status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				parsed, err := parseQueueStatuses([]string{status})
				if err != nil {
					return err
				}
				removed, err := st.ClearQueue(cmd.Context(), parsed[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s entries\n", removed, parsed[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", string(item.QueueStatusFailed), "Status to clear")

	return cmd
}

func parseQueueStatuses(values []string) ([]item.QueueStatus, error) {
	statuses := make([]item.QueueStatus, 0, len(values))
	for _, value := range values {
		normalized := item.QueueStatus(strings.ToLower(strings.TrimSpace(value)))
		switch normalized {
		case item.QueueStatusQueued, item.QueueStatusUploaded, item.QueueStatusFailed:
			statuses = append(statuses, normalized)
		case "":
		default:
			return nil, errors.New("unknown queue status " + strconv.Quote(value))
		}
	}
	return statuses, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
