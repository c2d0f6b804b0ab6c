package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/duetrack/duetrack/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync status",
	Long: `Display the state of the local store and the sync subsystem.

Shows:
  - Database file location and size
  - Number of bills and payments
  - Device id, sync watermark, and offline queue depth`,
	Run: func(cmd *cobra.Command, args []string) {
		dbPath := filepath.Join(dataDir(), "duetrack.db")

		info, err := os.Stat(dbPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Local store not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'duetrack sync' to create it\n\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking store: %v\n", err)
			os.Exit(1)
		}

		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		ctx := context.Background()
		billCount, err := e.db.BillCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting bills: %v\n", err)
			os.Exit(1)
		}
		paymentCount, err := e.db.PaymentCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting payments: %v\n", err)
			os.Exit(1)
		}
		queueDepth, err := e.syncer.Queue().Len()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading offline queue: %v\n", err)
			os.Exit(1)
		}
		watermark, err := e.syncer.Watermark()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading watermark: %v\n", err)
			os.Exit(1)
		}

		size := info.Size()
		sizeStr := fmt.Sprintf("%d bytes", size)
		if size > 1024*1024 {
			sizeStr = fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
		} else if size > 1024 {
			sizeStr = fmt.Sprintf("%.1f KB", float64(size)/1024)
		}

		lastSync := "never"
		if watermark > 0 {
			lastSync = time.UnixMilli(watermark).Format("2006-01-02 15:04:05")
		}

		fmt.Printf("\n%s duetrack Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Location: %s\n", dbPath)
		fmt.Printf("Size: %s\n", sizeStr)
		fmt.Printf("Bills: %d\n", billCount)
		fmt.Printf("Payments: %d\n", paymentCount)
		fmt.Printf("Device: %s\n", e.syncer.DeviceID())
		fmt.Printf("Last sync: %s\n", lastSync)
		fmt.Printf("Queued mutations: %d\n", queueDepth)
		fmt.Println()
	},
}
