package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duetrack/duetrack/internal/sync"
	"github.com/duetrack/duetrack/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload pre-sync local data to the cloud (one-time)",
	Long: `Run the one-time migration of local-only data into the account's
remote collections.

Migration deduplicates against bills other devices already uploaded
(matching normalized name, amount, and due date), merges back remote
bills this device has never seen, and uploads local payments. It is
idempotent: a completed migration is skipped, and a failed one reruns
from the top.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()
		user := requireUser(e)

		unsub := e.syncer.Progress().Subscribe(func(p sync.Progress) {
			if p.Message != "" {
				fmt.Printf("   [%s] %d/%d %s\n", p.Phase, p.Current, p.Total, p.Message)
				return
			}
			fmt.Printf("   [%s] %d/%d\n", p.Phase, p.Current, p.Total)
		})
		defer unsub()

		fmt.Printf("%s Migrating account %s...\n", ui.RenderAccent("🔄"), user)

		res, err := e.syncer.Migrate(context.Background(), user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during migration: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Migration complete\n", ui.RenderPass("✓"))
		fmt.Printf("   Bills uploaded: %d\n", res.BillsUploaded)
		fmt.Printf("   Bills merged from cloud: %d\n", res.BillsMerged)
		fmt.Printf("   Duplicates skipped: %d\n", res.BillsDuplicated)
		fmt.Printf("   Payments uploaded: %d\n", res.PaymentsUploaded)
	},
}
