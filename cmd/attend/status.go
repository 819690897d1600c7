package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show store counts and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		jsonOut, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		stats, err := a.store.Stats(ctx)
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		sc, err := a.store.SyncConfig(ctx)
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		st := a.driver.Status()

		if jsonOut {
			printJSON(map[string]any{
				"store":  stats,
				"sync":   st,
				"config": sc.Redacted(),
				"db":     a.store.Path(),
			})
			return
		}

		fmt.Printf("Database:  %s\n", a.store.Path())
		fmt.Printf("Workers:   %d\n", stats.Workers)
		fmt.Printf("Evidence:  %d\n", stats.Evidence)
		if sc.DocumentID != "" {
			fmt.Printf("Gist:      %s\n", ui.RenderAccent(sc.DocumentID))
		}
		fmt.Printf("Sync:      %s\n", ui.SyncIndicator(st))
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output JSON")
	rootCmd.AddCommand(statusCmd)
}
