package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/attendsync/attendsync/internal/dashboard"
	"github.com/attendsync/attendsync/internal/inbox"
	"github.com/attendsync/attendsync/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Run the HTTP API, live status feed and inbox watcher",
	Long: `Start the attendance server.

The server loads data from the remote document (when sync is configured),
then serves:
  /api/...   workers, evidence, sync config and status (JSON)
  /ws        live sync status and record updates (WebSocket)
  /health    liveness check

With --inbox, images dropped into the inbox directory are recorded as
evidence. Files must be named <worker>_<date>_<kind>.<ext>, for example
W1_2024-01-10_checkIn.jpg. Processed files move to inbox/processed, files
that fail move to inbox/failed.

Example usage:
  attend serve                  # Listen on server.port (default 8080)
  attend serve --port 9000
  attend serve --inbox          # Also watch inbox.dir`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")
		watchInbox, _ := cmd.Flags().GetBool("inbox")
		if !cmd.Flags().Changed("port") {
			port = cfg.Server.Port
		}
		if !cmd.Flags().Changed("host") {
			host = cfg.Server.Host
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustOpen(ctx)
		defer a.close()

		api := &dashboard.API{Session: a.session, Sync: a.driver, Logger: sink.Logger("dashboard")}
		server := dashboard.NewServer(api, &dashboard.Config{
			Host:   host,
			Port:   port,
			Logger: sink.Logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, a.driver, sink.Logger("dashboard"))

		var in *inbox.Inbox
		if watchInbox {
			var err error
			in, err = inbox.New(a.session, inbox.Config{Dir: cfg.Inbox.Dir, Logger: sink.Logger("inbox")})
			if err != nil {
				fatal("failed to open inbox: %v", err)
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return server.Run(gctx) })
		g.Go(func() error { return handler.Run(gctx) })
		if in != nil {
			g.Go(func() error { return in.Run(gctx) })
		}

		fmt.Printf("%s Server listening on http://localhost:%d\n", ui.RenderPass("✓"), port)
		fmt.Printf("  API:       http://localhost:%d/api/status\n", port)
		fmt.Printf("  WebSocket: ws://localhost:%d/ws\n", port)
		if in != nil {
			fmt.Printf("  Inbox:     %s\n", cfg.Inbox.Dir)
		}
		fmt.Println(ui.SyncIndicator(a.driver.Status()))
		fmt.Println("\nPress Ctrl+C to stop...")

		err := g.Wait()

		fmt.Println("\nShutting down...")
		a.finish(context.Background())
		if err != nil && !errors.Is(err, context.Canceled) {
			fatal("%v", err)
		}
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default: server.port)")
	serveCmd.Flags().String("host", "", "Host to bind (default: server.host)")
	serveCmd.Flags().Bool("inbox", false, "Watch the inbox directory for evidence images")

	rootCmd.AddCommand(serveCmd)
}
