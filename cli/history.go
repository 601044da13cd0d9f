package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished jobs from the job archive",
	Long: `Show recently finished jobs from the job archive.

Requires DATABASE_URL.

Examples:
  plotq history
  plotq history --limit 50`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of jobs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; the job archive is disabled")
	}
	ctx := context.Background()

	a := &app{}
	if err := a.openArchive(ctx); err != nil {
		return err
	}
	defer a.archive.Close()

	entries, err := a.archive.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs archived yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tX\tY\tTYPE\tSTATUS\tWORKER\tFINISHED\tDURATION")
	for _, e := range entries {
		plotType := string(e.PlotType)
		if plotType == "" {
			plotType = "auto"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%dms\n",
			e.JobID, e.XField, e.YField, plotType, e.Status, e.Worker,
			e.FinishedAt.Local().Format("2006-01-02 15:04:05"), e.DurationMS)
	}
	return tw.Flush()
}
