package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/store"
)

func newCountersCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Show the daily activity ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				counters, err := st.RecentCounters(cmd.Context(), days)
				if err != nil {
					return err
				}
				if len(counters) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded")
					return nil
				}

				rows := make([][]string, 0, len(counters))
				for _, day := range counters {
					rows = append(rows, []string{
						day.Date,
						strconv.Itoa(day.ItemsDiscovered),
						strconv.Itoa(day.ItemsCompleted),
						strconv.Itoa(day.ItemsFailed),
						strconv.Itoa(day.ArtifactsGenerated),
						strconv.Itoa(day.UploadsDone),
						strconv.Itoa(day.APIUnitsSpent),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Date", "Discovered", "Completed", "Failed", "Artifacts", "Uploads", "API units"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Number of days to show")

	return cmd
}
