package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/snapshot"
	"github.com/attendsync/attendsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "advanced",
	Short:   "Write all workers and evidence to a JSON or YAML file",
	Long: `Export the full dataset. The format follows the extension: .yaml or
.yml writes YAML, anything else writes JSON in the same shape as the remote
document.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		res, err := snapshot.Export(ctx, a.store, args[0])
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		fmt.Printf("%s Exported %d worker(s) and %d evidence record(s) to %s\n",
			ui.RenderPass("✓"), res.Workers, res.Evidence, res.Path)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Replace all local data with a snapshot file",
	Long: `Import a snapshot written by "attend export" (or a copy of the remote
document). Local data is replaced, then pushed when sync is configured.

Example usage:
  attend import backup.json --dry-run
  attend import backup.yaml --backup`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		ctx := context.Background()
		a := mustOpen(ctx)
		defer a.close()

		res, err := snapshot.Import(ctx, a.store, snapshot.ImportOptions{
			Path:   args[0],
			DryRun: dryRun,
			Backup: backup,
		})
		if err != nil {
			a.close()
			fatal("%v", err)
		}
		if dryRun {
			fmt.Printf("%s %s is valid: %d worker(s), %d evidence record(s)\n",
				ui.RenderPass("✓"), res.Path, res.Workers, res.Evidence)
			return
		}
		if res.BackupCreated != "" {
			fmt.Printf("%s Previous data saved to %s\n", ui.RenderMuted("•"), res.BackupCreated)
		}
		fmt.Printf("%s Imported %d worker(s) and %d evidence record(s)\n",
			ui.RenderPass("✓"), res.Workers, res.Evidence)

		a.driver.NotifyMutation()
		a.finish(ctx)
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Validate the file without importing")
	importCmd.Flags().Bool("backup", false, "Export current data next to the file first")

	rootCmd.AddCommand(exportCmd, importCmd)
}
