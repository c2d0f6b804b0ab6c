package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duetrack/duetrack/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the real-time sync dashboard",
	Long: `Start a WebSocket dashboard server broadcasting sync activity.

Connected clients receive every sync state transition and migration
progress report as it happens; the welcome message carries the current
state so late joiners start consistent. While the dashboard runs, the
realtime listener folds in changes made by other devices.

WebSocket messages:
- sync_state: sync state machine transition
- migration_progress: migration phase and counters

Example usage:
  duetrack dashboard                   # Start on default port 8080
  duetrack dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")

		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()
		user := requireUser(e)

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: newLogger("[dashboard] "),
		})
		server.Attach(e.syncer)

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		stop, err := e.syncer.Realtime(ctx, user, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start realtime listener: %v\n", err)
			os.Exit(1)
		}
		defer stop()

		// Kick off one cycle so the dashboard opens with fresh state.
		if err := e.syncer.Sync(ctx, user); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: initial sync failed: %v\n", err)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().Int("port", 8080, "port to listen on")
}
