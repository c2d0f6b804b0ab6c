package sync

import (
	"context"
	"testing"

	"github.com/duetrack/duetrack/internal/schema"
)

func TestMigrateUploadsAndFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rent := testBill(t, "Rent", 1000)
	electric := testBill(t, "Electric", 2000)
	mustInsertBill(t, f, rent)
	mustInsertBill(t, f, electric)

	amount := 1200.0
	payment := &schema.Payment{
		ID: schema.NewID(), BillID: rent.ID, PaidDate: 1500,
		AmountPaid: &amount, CreatedAt: 1500,
	}
	if err := f.db.InsertPayment(ctx, payment); err != nil {
		t.Fatalf("InsertPayment failed: %v", err)
	}

	var phases []string
	f.syncer.Progress().Subscribe(func(p Progress) { phases = append(phases, p.Phase) })

	res, err := f.syncer.Migrate(ctx, testUser)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if res.BillsUploaded != 2 || res.PaymentsUploaded != 1 || res.BillsMerged != 0 || res.BillsDuplicated != 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	if docs := remoteBills(t, f); len(docs) != 2 {
		t.Errorf("expected 2 remote bills, got %d", len(docs))
	}
	payments, err := f.store.PaymentsCreatedSince(ctx, testUser, 0)
	if err != nil {
		t.Fatalf("PaymentsCreatedSince failed: %v", err)
	}
	if len(payments) != 1 {
		t.Errorf("expected 1 remote payment, got %d", len(payments))
	}

	done, err := f.store.MigrationComplete(ctx, testUser)
	if err != nil || !done {
		t.Errorf("migration flag not set: %v, %v", done, err)
	}
	if wm, _ := f.syncer.Watermark(); wm == 0 {
		t.Error("watermark not advanced after migration")
	}
	if st := f.syncer.State().Current(); st.Status != StatusSynced {
		t.Errorf("state = %+v, want synced", st)
	}

	if len(phases) == 0 || phases[0] != PhaseChecking || phases[len(phases)-1] != PhaseComplete {
		t.Errorf("unexpected phase sequence: %v", phases)
	}
}

func TestMigrateIdempotentAcrossRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustInsertBill(t, f, testBill(t, "Rent", 1000))

	if _, err := f.syncer.Migrate(ctx, testUser); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}

	res, err := f.syncer.Migrate(ctx, testUser)
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if res.BillsUploaded != 0 {
		t.Errorf("completed migration re-uploaded %d bills", res.BillsUploaded)
	}
	if docs := remoteBills(t, f); len(docs) != 1 {
		t.Errorf("expected 1 remote bill after re-run, got %d", len(docs))
	}
}

func TestMigrateEmptyDataMarksComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.syncer.Migrate(ctx, testUser)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if res.BillsUploaded != 0 || res.PaymentsUploaded != 0 {
		t.Errorf("unexpected result for empty data: %+v", res)
	}

	done, err := f.store.MigrationComplete(ctx, testUser)
	if err != nil || !done {
		t.Errorf("empty migration should still set the flag: %v, %v", done, err)
	}
}

func TestMigrateFreshDeviceMergesRemoteBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Another device migrated first; this install has an empty local store.
	cloud := testBill(t, "Rent", 1000)
	doc, err := billToRemote(cloud, "device-other")
	if err != nil {
		t.Fatalf("billToRemote failed: %v", err)
	}
	if err := f.store.SetBill(ctx, testUser, doc); err != nil {
		t.Fatalf("SetBill failed: %v", err)
	}

	res, err := f.syncer.Migrate(ctx, testUser)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if res.BillsMerged != 1 || res.BillsUploaded != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if _, err := f.db.GetBill(ctx, cloud.ID); err != nil {
		t.Errorf("cloud bill missing locally after migration: %v", err)
	}

	done, err := f.store.MigrationComplete(ctx, testUser)
	if err != nil || !done {
		t.Errorf("migration flag not set: %v, %v", done, err)
	}
}

func TestMigrateDuplicateDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The same rent bill entered on two devices before sync existed: same
	// bill, different ids, name differing only in case and padding.
	local := testBill(t, "  rent  ", 1000)
	amount := 1200.0
	local.Amount = &amount
	local.DueDate = 1700000000000
	mustInsertBill(t, f, local)

	twin := testBill(t, "Rent", 900)
	twin.Amount = &amount
	twin.DueDate = 1700000000000
	doc, err := billToRemote(twin, "device-other")
	if err != nil {
		t.Fatalf("billToRemote failed: %v", err)
	}
	if err := f.store.SetBill(ctx, testUser, doc); err != nil {
		t.Fatalf("SetBill failed: %v", err)
	}

	res, err := f.syncer.Migrate(ctx, testUser)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if res.BillsDuplicated != 1 || res.BillsUploaded != 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	// No second remote document was created.
	if docs := remoteBills(t, f); len(docs) != 1 {
		t.Errorf("duplicate upload created %d remote documents, want 1", len(docs))
	}

	// The remote twin is unknown locally by id, so it merges in verbatim.
	if res.BillsMerged != 1 {
		t.Errorf("remote twin not merged: %+v", res)
	}
	if _, err := f.db.GetBill(ctx, twin.ID); err != nil {
		t.Errorf("merged bill missing locally: %v", err)
	}
	// Merge does not invent reminders for records this device never owned.
	if got := len(f.scheduler.ForBill(twin.ID)); got != 0 {
		t.Errorf("merge scheduled %d reminders", got)
	}
}

func TestMigrateAmountDiffersNotDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	local := testBill(t, "Rent", 1000)
	a1 := 1200.0
	local.Amount = &a1
	local.DueDate = 1700000000000
	mustInsertBill(t, f, local)

	other := testBill(t, "Rent", 900)
	a2 := 1250.0
	other.Amount = &a2
	other.DueDate = 1700000000000
	doc, err := billToRemote(other, "device-other")
	if err != nil {
		t.Fatalf("billToRemote failed: %v", err)
	}
	if err := f.store.SetBill(ctx, testUser, doc); err != nil {
		t.Fatalf("SetBill failed: %v", err)
	}

	res, err := f.syncer.Migrate(ctx, testUser)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if res.BillsDuplicated != 0 || res.BillsUploaded != 1 {
		t.Errorf("bills with different amounts treated as duplicates: %+v", res)
	}
	if docs := remoteBills(t, f); len(docs) != 2 {
		t.Errorf("expected 2 distinct remote bills, got %d", len(docs))
	}
}

func TestMigrateFailureWithholdsFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustInsertBill(t, f, testBill(t, "Rent", 1000))
	f.syncer.remote = &failingStore{Store: f.store}

	if _, err := f.syncer.Migrate(ctx, testUser); err == nil {
		t.Fatal("Migrate should fail when the remote rejects writes")
	}

	done, err := f.store.MigrationComplete(ctx, testUser)
	if err != nil {
		t.Fatalf("MigrationComplete failed: %v", err)
	}
	if done {
		t.Error("failed migration must not set the completion flag")
	}
	if st := f.syncer.State().Current(); st.Status != StatusError {
		t.Errorf("state = %+v, want error", st)
	}

	// Retry from the top succeeds once the remote recovers.
	f.syncer.remote = f.store
	res, err := f.syncer.Migrate(ctx, testUser)
	if err != nil {
		t.Fatalf("retry Migrate failed: %v", err)
	}
	if res.BillsUploaded != 1 {
		t.Errorf("retry result: %+v", res)
	}
}
