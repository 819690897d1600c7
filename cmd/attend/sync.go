package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/gist"
	"github.com/attendsync/attendsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push to or pull from the remote document",
	Long: `Synchronize the local store with the configured GitHub Gist.

The remote document always holds the full dataset. A push overwrites it
with local data, a pull replaces local data with it. Every command already
pulls on start and pushes after a change; use these to force either side.

A pull discards local changes that were never pushed. Run "attend sync push"
first if this device recorded evidence while offline.`,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload local data to the remote document",
	Long: `Overwrite the remote document with local data.

Unlike other commands, push does not pull first, so records made while
offline are uploaded instead of being replaced by the remote copy.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		// No Load here: a pull would replace the local records this push
		// is meant to upload.
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		res, err := a.driver.Push(ctx)
		if err != nil {
			a.close()
			fatal("push failed after %d attempt(s): %v", res.Attempts, err)
		}
		switch res.Status {
		case gist.StatusSkipped:
			fmt.Printf("%s Sync is not configured. Run: attend configure\n", ui.RenderWarn("○"))
		default:
			fmt.Printf("%s Pushed (%d attempt(s))\n", ui.RenderPass("✓"), res.Attempts)
		}
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace local data with the remote document",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()
		a.driver.Start()

		if err := a.driver.Load(ctx); err != nil {
			a.close()
			fatal("pull failed: %v", err)
		}
		st := a.driver.Status()
		if st.LastPull != nil && st.LastPull.Error != "" {
			a.close()
			fatal("pull failed: %s", st.LastPull.Error)
		}
		stats, err := a.store.Stats(ctx)
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		fmt.Printf("%s %d worker(s), %d evidence record(s)\n", ui.RenderPass("✓"), stats.Workers, stats.Evidence)
		a.finish(ctx)
	},
}

func init() {
	syncCmd.AddCommand(syncPushCmd, syncPullCmd)
	rootCmd.AddCommand(syncCmd)
}
