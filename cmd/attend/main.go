// Command attend records worker attendance evidence and keeps it in sync
// with a shared GitHub Gist.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/attendsync/attendsync/internal/config"
	"github.com/attendsync/attendsync/internal/logging"
	"github.com/attendsync/attendsync/internal/ui"
)

var (
	cfgFile string
	dbPath  string
	noColor bool
	quiet   bool

	cfg  *config.Config
	sink *logging.Sink
)

var rootCmd = &cobra.Command{
	Use:   "attend",
	Short: "Record attendance evidence and sync it across devices",
	Long: `attend records daily check-in and check-out evidence (a photo per
event) for a roster of workers, stores it locally in SQLite and mirrors the
whole dataset to a GitHub Gist so every device sees the same records.

Configure sync once with "attend configure", then record from the command
line, from the HTTP API started by "attend serve", or by dropping images
into the inbox directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(os.Stdout, noColor)

		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if dbPath != "" {
			c.DB.Path = dbPath
		}
		cfg = c

		sink = logging.Open(logging.Options{
			File:      cfg.Log.File,
			MaxSizeMB: cfg.Log.MaxSizeMB,
			Quiet:     quiet,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sink != nil {
			_ = sink.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "record", Title: "Recording:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: attend.yaml in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides db.path)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress log output on stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// fatal prints an error and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	if sink != nil {
		_ = sink.Close()
	}
	os.Exit(1)
}
