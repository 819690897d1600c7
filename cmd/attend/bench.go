package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/loadtest"
	"github.com/attendsync/attendsync/internal/store"
	"github.com/attendsync/attendsync/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Load test concurrent recording against a scratch database",
	Long: `Record evidence from many concurrent devices into a temporary
database, then check that every worker's attendance count matches the
recorded evidence.

Nothing is pushed and your database is not touched.

Example usage:
  attend bench
  attend bench --devices 50 --records 20 --workers 10`,
	Run: func(cmd *cobra.Command, args []string) {
		devices, _ := cmd.Flags().GetInt("devices")
		records, _ := cmd.Flags().GetInt("records")
		workers, _ := cmd.Flags().GetInt("workers")
		days, _ := cmd.Flags().GetInt("days")

		dir, err := os.MkdirTemp("", "attend-bench-")
		if err != nil {
			fatal("%v", err)
		}
		defer os.RemoveAll(dir)

		ctx := context.Background()
		st, err := store.OpenContext(ctx, filepath.Join(dir, "bench.db"))
		if err != nil {
			fatal("%v", err)
		}
		defer st.Close()

		sess := &evidence.Session{
			Store:  st,
			Images: evidence.ImageOptions{MaxEdge: cfg.Image.MaxEdge, Quality: cfg.Image.Quality},
			Logger: evidence.DiscardLogger(),
		}
		f, err := loadtest.NewFixture(ctx, sess, workers, days, time.Now())
		if err != nil {
			fatal("%v", err)
		}
		baseline, err := loadtest.Baseline(ctx, st)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("Recording %d events from %d devices over %d workers x %d days...\n",
			devices*records, devices, workers, days)
		stats, runErr := f.RunConcurrentRecords(ctx, devices, records)
		if stats != nil {
			_, _ = stats.WriteTo(os.Stdout)
		}
		if runErr != nil {
			fatal("%v", runErr)
		}

		if err := loadtest.VerifyCounters(ctx, st, baseline); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Attendance counters match recorded evidence\n", ui.RenderPass("✓"))
	},
}

func init() {
	benchCmd.Flags().Int("devices", 20, "Concurrent recording devices")
	benchCmd.Flags().Int("records", 10, "Records per device")
	benchCmd.Flags().Int("workers", 10, "Synthetic workers")
	benchCmd.Flags().Int("days", 5, "Distinct days")

	rootCmd.AddCommand(benchCmd)
}
