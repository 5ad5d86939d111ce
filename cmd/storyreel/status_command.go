package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyreel/internal/config"
	"storyreel/internal/item"
	"storyreel/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show item, run and quota status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				cmdCtx := cmd.Context()

				counts, err := st.CountItemsByStatus(cmdCtx)
				if err != nil {
					return err
				}
				printSection(out, "Work items", colorize)
				if len(counts) == 0 {
					fmt.Fprintln(out, "No items yet")
				} else {
					rows := make([][]string, 0, len(counts))
					for _, status := range item.AllStatuses() {
						if count, ok := counts[status]; ok {
							rows = append(rows, []string{string(status), strconv.Itoa(count)})
						}
					}
					fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows,
						[]columnAlignment{alignLeft, alignRight}))
				}

				transient, err := st.TransientItems(cmdCtx)
				if err != nil {
					return err
				}
				if len(transient) > 0 {
					printSection(out, "In flight", colorize)
					rows := make([][]string, 0, len(transient))
					for _, it := range transient {
						rows = append(rows, []string{
							strconv.FormatInt(it.ID, 10),
							string(it.Status),
							truncate(it.Title, 48),
						})
					}
					fmt.Fprintln(out, renderTable([]string{"Item", "Status", "Title"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft}))
				}

				runs, err := st.LatestRuns(cmdCtx, 5)
				if err != nil {
					return err
				}
				printSection(out, "Recent runs", colorize)
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
				} else {
					rows := make([][]string, 0, len(runs))
					for _, run := range runs {
						rows = append(rows, []string{
							shortRunID(run.ID),
							string(run.Status),
							strconv.Itoa(run.ItemsProcessed),
							strconv.Itoa(run.ItemsFailed),
							run.StartedAt.Local().Format("2006-01-02 15:04"),
						})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Run", "Status", "Processed", "Failed", "Started"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
				}

				counters, err := st.CountersFor(cmdCtx, store.CounterDate(time.Now()))
				if err != nil {
					return err
				}
				printSection(out, "Today", colorize)
				remaining := cfg.Publish.DailyUploadLimit - counters.UploadsDone
				if remaining < 0 {
					remaining = 0
				}
				fmt.Fprintf(out, "Uploads: %d of %d (%d left), API units spent: %d\n",
					counters.UploadsDone, cfg.Publish.DailyUploadLimit, remaining, counters.APIUnitsSpent)
				return nil
			})
		},
	}
}

func printSection(out io.Writer, title string, colorize bool) {
	line := fmt.Sprintf("== %s ==", title)
	if colorize {
		line = "\x1b[34m" + line + "\x1b[0m"
	}
	fmt.Fprintln(out, line)
}

func shortRunID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}
