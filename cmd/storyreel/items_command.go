package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/item"
	"storyreel/internal/store"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Inspect and manage work items",
	}

	itemsCmd.AddCommand(newItemsListCommand(ctx))
	itemsCmd.AddCommand(newItemsReprocessCommand(ctx))

	return itemsCmd
}

func newItemsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				items, err := st.ListItems(cmd.Context())
				if err != nil {
					return err
				}
				if statusFilter != "" {
					wanted, ok := item.ParseStatus(statusFilter)
					if !ok {
						return fmt.Errorf("unknown item status %q", statusFilter)
					}
					filtered := items[:0]
					for _, it := range items {
						if it.Status == wanted {
							filtered = append(filtered, it)
						}
					}
					items = filtered
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No work items")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, it := range items {
					rows = append(rows, []string{
						strconv.FormatInt(it.ID, 10),
						truncate(it.Title, 50),
						it.Origin,
						string(it.Status),
						strconv.Itoa(it.PartCount),
						truncate(it.ErrorMessage, 40),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Origin", "Status", "Parts", "Error"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show items with this status")

	return cmd
}

func newItemsReprocessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <item-id>",
		Short: "Send a failed item back through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", args[0])
				}
				it, err := st.ItemByID(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("item %d: %w", id, err)
				}
				if err := st.ReprocessItem(cmd.Context(), it); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d queued for reprocessing\n", id)
				return nil
			})
		},
	}
}
