package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duetrack/duetrack/internal/ui"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase all local data",
	Long: `Erase every local bill, payment, and sync bookkeeping value.

Remote data is untouched; the next sync with a zero watermark pulls the
account's full collections back down. Requires --yes.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			fmt.Fprintf(os.Stderr, "Error: refusing to erase local data without --yes\n")
			os.Exit(1)
		}

		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		if err := e.db.ClearAll(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing database: %v\n", err)
			os.Exit(1)
		}
		// Drop the sync bookkeeping but keep the device id: the install is
		// still the same device.
		if err := e.syncer.ResetBookkeeping(); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing sync bookkeeping: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Local data erased\n", ui.RenderPass("✓"))
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "confirm erasing all local data")
}
