package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/duetrack/duetrack/internal/schema"
	"github.com/duetrack/duetrack/internal/sync"
	"github.com/duetrack/duetrack/internal/ui"
)

var billCmd = &cobra.Command{
	Use:   "bill",
	Short: "Manage bills",
	Long: `Create, pay, complete, and delete bills.

Every mutation is applied locally first and then propagated: written
through to the remote store when online, captured in the offline queue
otherwise.`,
}

var billAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a bill",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		amount, _ := cmd.Flags().GetFloat64("amount")
		dueIn, _ := cmd.Flags().GetInt("due-in")
		frequency, _ := cmd.Flags().GetString("frequency")
		icon, _ := cmd.Flags().GetString("icon")
		autopay, _ := cmd.Flags().GetBool("autopay")
		notes, _ := cmd.Flags().GetString("notes")

		now := schema.Now()
		tz := time.Local.String()
		bill := &schema.Bill{
			ID:        schema.NewID(),
			Name:      args[0],
			DueDate:   now + int64(dueIn)*24*60*60*1000,
			Frequency: frequency,
			Autopay:   autopay,
			IconKey:   icon,
			Status:    schema.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
			Timezone:  &tz,
		}
		if cmd.Flags().Changed("amount") {
			bill.Amount = &amount
		}
		if notes != "" {
			bill.Notes = &notes
		}

		if err := bill.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		if err := e.db.InsertBill(ctx, bill); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Schedule reminders after the record exists, then persist the
		// handles. The handle write is bookkeeping and must not move the
		// record's conflict clock.
		handles, err := e.scheduler.Schedule(ctx, bill.ID, bill.Name, bill.DueDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to schedule reminders: %v\n", err)
		} else {
			raw, _ := json.Marshal(handles)
			ids := string(raw)
			bill.NotificationIDs = &ids
			if err := e.db.SetBillNotificationIDs(ctx, bill.ID, bill.NotificationIDs); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to persist reminder handles: %v\n", err)
			}
		}

		propagate(e, sync.Entry{Kind: sync.KindBill, Op: sync.OpCreate, Bill: bill})
		fmt.Printf("%s Added bill %s (%s)\n", ui.RenderPass("✓"), bill.Name, bill.ID)
	},
}

var billPayCmd = &cobra.Command{
	Use:   "pay BILL_ID",
	Short: "Record a payment against a bill",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		ctx := context.Background()
		bill, err := e.db.GetBill(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "Error: no bill with id %s\n", args[0])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		now := schema.Now()
		payment := &schema.Payment{
			ID:        schema.NewID(),
			BillID:    bill.ID,
			PaidDate:  now,
			CreatedAt: now,
		}
		if cmd.Flags().Changed("amount") {
			amount, _ := cmd.Flags().GetFloat64("amount")
			payment.AmountPaid = &amount
		} else if bill.Amount != nil {
			payment.AmountPaid = bill.Amount
		}

		if err := e.db.InsertPayment(ctx, payment); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		propagate(e, sync.Entry{Kind: sync.KindPayment, Op: sync.OpCreate, Payment: payment})
		fmt.Printf("%s Recorded payment for %s\n", ui.RenderPass("✓"), bill.Name)
	},
}

var billCompleteCmd = &cobra.Command{
	Use:   "complete BILL_ID",
	Short: "Mark a bill completed and cancel its reminders",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		ctx := context.Background()
		bill, err := e.db.GetBill(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "Error: no bill with id %s\n", args[0])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Cancel before persisting: a completed bill holds no reminders.
		if bill.NotificationIDs != nil {
			var handles []string
			if err := json.Unmarshal([]byte(*bill.NotificationIDs), &handles); err == nil {
				_ = e.scheduler.Cancel(ctx, handles)
			}
		}

		bill.Status = schema.StatusCompleted
		bill.NotificationIDs = nil
		bill.Touch()
		if err := e.db.UpdateBill(ctx, bill); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		propagate(e, sync.Entry{Kind: sync.KindBill, Op: sync.OpUpdate, Bill: bill})
		fmt.Printf("%s Completed %s\n", ui.RenderPass("✓"), bill.Name)
	},
}

var billDeleteCmd = &cobra.Command{
	Use:   "delete BILL_ID",
	Short: "Delete a bill and its payments",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		ctx := context.Background()
		bill, err := e.db.GetBill(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Fprintf(os.Stderr, "Error: no bill with id %s\n", args[0])
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if bill.NotificationIDs != nil {
			var handles []string
			if err := json.Unmarshal([]byte(*bill.NotificationIDs), &handles); err == nil {
				_ = e.scheduler.Cancel(ctx, handles)
			}
		}
		if err := e.db.DeleteBill(ctx, bill.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		propagate(e, sync.Entry{Kind: sync.KindBill, Op: sync.OpDelete, Bill: &schema.Bill{ID: bill.ID}})
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), bill.Name)
	},
}

var billListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bills",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		bills, err := e.db.ListBills(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(bills) == 0 {
			fmt.Println("No bills yet. Add one with 'duetrack bill add'.")
			return
		}

		for _, bill := range bills {
			amount := "-"
			if bill.Amount != nil {
				amount = fmt.Sprintf("%.2f", *bill.Amount)
			}
			due := time.UnixMilli(bill.DueDate).Format("2006-01-02")
			fmt.Printf("%s  %-24s %10s  due %s  %s\n",
				ui.RenderFaint(bill.ID[:8]), bill.Name, amount, due,
				ui.RenderStatus(bill.Status))
		}
	},
}

// propagate hands a locally-applied mutation to the sync layer. With no
// user configured the change stays local; sync failures are already
// demoted to the offline queue, so only queue persistence errors surface.
func propagate(e *env, entry sync.Entry) {
	if err := e.syncer.LocalChange(context.Background(), e.user, entry); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to record change for sync: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	billAddCmd.Flags().Float64("amount", 0, "amount due")
	billAddCmd.Flags().Int("due-in", 30, "days until due")
	billAddCmd.Flags().String("frequency", schema.FrequencyMonthly, "one-time or monthly")
	billAddCmd.Flags().String("icon", "receipt", "icon key")
	billAddCmd.Flags().Bool("autopay", false, "bill is on autopay")
	billAddCmd.Flags().String("notes", "", "free-form notes")
	billPayCmd.Flags().Float64("amount", 0, "amount paid (default: the bill's amount)")

	billCmd.AddCommand(billAddCmd)
	billCmd.AddCommand(billPayCmd)
	billCmd.AddCommand(billCompleteCmd)
	billCmd.AddCommand(billDeleteCmd)
	billCmd.AddCommand(billListCmd)
}
