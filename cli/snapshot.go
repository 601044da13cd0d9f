package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jupark12/go-plot-queue/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Ask the store to save a snapshot in the background",
	Long: `Ask the store to save a snapshot in the background (BGSAVE on Redis).

Exits non-zero when a snapshot is already running.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	if err := requireSharedStore("plotq snapshot"); err != nil {
		return err
	}
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.analytics.TriggerSnapshot(ctx)
	if errors.Is(err, store.ErrSnapshotInProgress) {
		return errors.New("a snapshot is already in progress")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Snapshot started.")
	return nil
}
