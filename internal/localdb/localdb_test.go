package localdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/duetrack/duetrack/internal/schema"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db
}

func testBill(t *testing.T, name string) *schema.Bill {
	t.Helper()

	now := time.Now().UnixMilli()
	amount := 100.0
	tz := "America/New_York"
	return &schema.Bill{
		ID:        schema.NewID(),
		Name:      name,
		DueDate:   now + 7*24*3600*1000,
		Frequency: schema.FrequencyMonthly,
		IconKey:   "home",
		Status:    schema.StatusActive,
		Amount:    &amount,
		Timezone:  &tz,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestInsertAndGetBill(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	bill := testBill(t, "Rent")
	notes := "due on the 1st"
	bill.Notes = &notes

	if err := db.InsertBill(ctx, bill); err != nil {
		t.Fatalf("InsertBill failed: %v", err)
	}

	got, err := db.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}

	if got.Name != bill.Name || got.DueDate != bill.DueDate || got.Status != bill.Status {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, bill)
	}
	if got.Amount == nil || *got.Amount != *bill.Amount {
		t.Errorf("amount not preserved: %v", got.Amount)
	}
	if got.Notes == nil || *got.Notes != notes {
		t.Errorf("notes not preserved: %v", got.Notes)
	}
	if got.NotificationIDs != nil {
		t.Errorf("expected nil notificationIds, got %q", *got.NotificationIDs)
	}
}

func TestGetBillNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetBill(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestUpdateBillKeepsCreatedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	bill := testBill(t, "Internet")
	if err := db.InsertBill(ctx, bill); err != nil {
		t.Fatalf("InsertBill failed: %v", err)
	}

	bill.Name = "Fiber Internet"
	bill.UpdatedAt = bill.UpdatedAt + 1000
	if err := db.UpdateBill(ctx, bill); err != nil {
		t.Fatalf("UpdateBill failed: %v", err)
	}

	got, err := db.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if got.Name != "Fiber Internet" {
		t.Errorf("name not updated: %q", got.Name)
	}
	if got.CreatedAt != bill.CreatedAt {
		t.Errorf("createdAt changed on update: %d != %d", got.CreatedAt, bill.CreatedAt)
	}
	if got.UpdatedAt != bill.UpdatedAt {
		t.Errorf("updatedAt not persisted: %d != %d", got.UpdatedAt, bill.UpdatedAt)
	}
}

func TestSetBillNotificationIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	bill := testBill(t, "Water")
	if err := db.InsertBill(ctx, bill); err != nil {
		t.Fatalf("InsertBill failed: %v", err)
	}

	ids := `["h1","h2"]`
	if err := db.SetBillNotificationIDs(ctx, bill.ID, &ids); err != nil {
		t.Fatalf("SetBillNotificationIDs failed: %v", err)
	}

	got, err := db.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if got.NotificationIDs == nil || *got.NotificationIDs != ids {
		t.Errorf("notificationIds = %v, want %q", got.NotificationIDs, ids)
	}
	if got.UpdatedAt != bill.UpdatedAt {
		t.Errorf("updatedAt bumped by notification bookkeeping: %d != %d", got.UpdatedAt, bill.UpdatedAt)
	}

	if err := db.SetBillNotificationIDs(ctx, bill.ID, nil); err != nil {
		t.Fatalf("clearing notification ids failed: %v", err)
	}
	got, err = db.GetBill(ctx, bill.ID)
	if err != nil {
		t.Fatalf("GetBill failed: %v", err)
	}
	if got.NotificationIDs != nil {
		t.Errorf("notificationIds not cleared: %v", *got.NotificationIDs)
	}
}

func TestBillsUpdatedSince(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := testBill(t, "Old")
	old.CreatedAt = 1000
	old.UpdatedAt = 1000
	old.DueDate = 2000
	recent := testBill(t, "Recent")
	recent.CreatedAt = 5000
	recent.UpdatedAt = 5000
	recent.DueDate = 6000

	for _, b := range []*schema.Bill{old, recent} {
		if err := db.InsertBill(ctx, b); err != nil {
			t.Fatalf("InsertBill failed: %v", err)
		}
	}

	got, err := db.BillsUpdatedSince(ctx, 1000)
	if err != nil {
		t.Fatalf("BillsUpdatedSince failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != recent.ID {
		t.Errorf("expected only the recent bill (strict >), got %d bills", len(got))
	}

	all, err := db.BillsUpdatedSince(ctx, 0)
	if err != nil {
		t.Fatalf("BillsUpdatedSince(0) failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 bills at watermark 0, got %d", len(all))
	}
}

func TestDeleteBillCascadesPayments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	bill := testBill(t, "Gym")
	if err := db.InsertBill(ctx, bill); err != nil {
		t.Fatalf("InsertBill failed: %v", err)
	}

	payment := &schema.Payment{
		ID:        schema.NewID(),
		BillID:    bill.ID,
		PaidDate:  time.Now().UnixMilli(),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := db.InsertPayment(ctx, payment); err != nil {
		t.Fatalf("InsertPayment failed: %v", err)
	}

	if err := db.DeleteBill(ctx, bill.ID); err != nil {
		t.Fatalf("DeleteBill failed: %v", err)
	}

	count, err := db.PaymentCount(ctx)
	if err != nil {
		t.Fatalf("PaymentCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("payments did not cascade: %d remaining", count)
	}

	// Deleting again is a no-op.
	if err := db.DeleteBill(ctx, bill.ID); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}

func TestPaymentsCreatedSince(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	bill := testBill(t, "Phone")
	if err := db.InsertBill(ctx, bill); err != nil {
		t.Fatalf("InsertBill failed: %v", err)
	}

	for _, createdAt := range []int64{1000, 2000, 3000} {
		p := &schema.Payment{
			ID:        schema.NewID(),
			BillID:    bill.ID,
			PaidDate:  createdAt,
			CreatedAt: createdAt,
		}
		if err := db.InsertPayment(ctx, p); err != nil {
			t.Fatalf("InsertPayment failed: %v", err)
		}
	}

	got, err := db.PaymentsCreatedSince(ctx, 1000)
	if err != nil {
		t.Fatalf("PaymentsCreatedSince failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 payments (strict >), got %d", len(got))
	}
}

func TestAppMeta(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	v, err := db.GetMeta(ctx, "schema_version")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value for unset key, got %q", v)
	}

	if err := db.SetMeta(ctx, "schema_version", "1"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	v, err = db.GetMeta(ctx, "schema_version")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if v != "1" {
		t.Errorf("GetMeta = %q, want 1", v)
	}
}

func TestClearAll(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.InsertBill(ctx, testBill(t, "Trash")); err != nil {
		t.Fatalf("InsertBill failed: %v", err)
	}
	if err := db.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	count, err := db.BillCount(ctx)
	if err != nil {
		t.Fatalf("BillCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty bills table, got %d rows", count)
	}
}
