package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/duetrack/duetrack/internal/sync"
	"github.com/duetrack/duetrack/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync cycle",
	Long: `Run a full sync cycle against the remote document store.

The cycle is:
  1. Pull remote bill changes since the watermark (last write wins)
  2. Pull remote payments (append-only)
  3. Drain the offline mutation queue
  4. Push local bill edits
  5. Push local payments
  6. Advance the watermark

If the device is offline the cycle is skipped and queued work waits for
the next run.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()
		user := requireUser(e)

		ctx := context.Background()
		fmt.Printf("%s Syncing account %s...\n", ui.RenderAccent("🔄"), user)
		start := time.Now()

		if err := e.syncer.Sync(ctx, user); err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		elapsed := time.Since(start)
		st := e.syncer.State().Current()

		switch {
		case st.Status == sync.StatusOffline:
			fmt.Printf("%s Offline, cycle skipped\n", ui.RenderWarn("⚠"))
			if n, err := e.syncer.Queue().Len(); err == nil && n > 0 {
				fmt.Printf("   Queued mutations waiting: %d\n", n)
			}
			return
		default:
			fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		}

		billCount, _ := e.db.BillCount(ctx)
		paymentCount, _ := e.db.PaymentCount(ctx)
		fmt.Printf("   Bills: %d\n", billCount)
		fmt.Printf("   Payments: %d\n", paymentCount)
	},
}
