package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/schema"
)

// Migration phases, in order.
const (
	PhaseChecking          = "checking"
	PhaseUploadingBills    = "uploading_bills"
	PhaseMerging           = "merging"
	PhaseUploadingPayments = "uploading_payments"
	PhaseComplete          = "complete"
)

// Progress is one migration progress report.
type Progress struct {
	Phase   string `json:"phase"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

type progressListener struct {
	id int
	fn func(Progress)
}

// ProgressBroadcaster fans migration progress out to subscribers in
// registration order. Unlike the sync state, progress is a stream of
// moments, not a held value, so subscribing delivers nothing until the
// next report.
type ProgressBroadcaster struct {
	mu        gosync.Mutex
	listeners []progressListener
	nextID    int
}

// NewProgressBroadcaster returns an empty broadcaster.
func NewProgressBroadcaster() *ProgressBroadcaster {
	return &ProgressBroadcaster{}
}

// Subscribe registers a listener. The returned function unsubscribes.
func (b *ProgressBroadcaster) Subscribe(fn func(Progress)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners = append(b.listeners, progressListener{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.listeners {
			if l.id == id {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers a progress report to every subscriber.
func (b *ProgressBroadcaster) Publish(p Progress) {
	b.mu.Lock()
	listeners := make([]progressListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l.fn(p)
	}
}

// MigrationResult summarizes a completed migration.
type MigrationResult struct {
	BillsUploaded    int
	BillsMerged      int
	BillsDuplicated  int
	PaymentsUploaded int
}

// dupKey normalizes a bill for duplicate detection during migration: two
// bills are the same bill if their trimmed, case-folded names, amounts,
// and due dates all match. Ids are useless here because the same bill
// entered on two devices pre-sync got two ids.
func dupKey(name string, amount *float64, dueDate int64) string {
	a := "nil"
	if amount != nil {
		a = fmt.Sprintf("%v", *amount)
	}
	return strings.ToLower(strings.TrimSpace(name)) + "|" + a + "|" + fmt.Sprintf("%d", dueDate)
}

// Migrate performs the one-time upload of pre-sync local data into the
// user's remote collections and merges back whatever other devices
// uploaded first. It is idempotent across devices and retries: the remote
// migration flag short-circuits re-runs, and every write is an upsert.
//
// Local bills that match a remote bill by dupKey are skipped rather than
// uploaded, so the same bill entered on two devices before sync existed
// does not become two remote documents. Payments carry no dedup; their
// ids are unique per device and upserts absorb retries.
//
// The flag, the watermark, and the completion report are withheld unless
// every step succeeded, so a failed migration reruns in full.
func (s *Syncer) Migrate(ctx context.Context, userID string) (*MigrationResult, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.publish(StatusSyncing, 0, "")
	res, err := s.migrate(ctx, userID)
	if err != nil {
		s.logger.Printf("migration failed: %v", err)
		s.publish(StatusError, 0, err.Error())
		return nil, err
	}
	return res, nil
}

func (s *Syncer) migrate(ctx context.Context, userID string) (*MigrationResult, error) {
	s.progress.Publish(Progress{Phase: PhaseChecking, Current: 0, Total: 1})

	done, err := s.remote.MigrationComplete(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration flag: %w", err)
	}
	if done {
		s.logger.Printf("migration already completed for this account")
		s.publish(StatusSynced, 0, "")
		s.progress.Publish(Progress{Phase: PhaseComplete, Current: 1, Total: 1,
			Message: "Migration already completed"})
		return &MigrationResult{}, nil
	}

	bills, err := s.db.ListBills(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := s.db.ListPayments(ctx)
	if err != nil {
		return nil, err
	}

	// Remote bills uploaded by devices that migrated first. The zero
	// watermark fetches the whole collection.
	remoteBills, err := s.remote.BillsUpdatedSince(ctx, userID, 0)
	if err != nil {
		return nil, err
	}

	// Empty on both sides: nothing to upload and nothing to merge back. A
	// fresh install joining an account with cloud data must not take this
	// path, or the merge-back below would be skipped for good.
	if len(bills) == 0 && len(payments) == 0 && len(remoteBills) == 0 {
		if err := s.remote.MarkMigrationComplete(ctx, userID); err != nil {
			return nil, err
		}
		s.publish(StatusSynced, 0, "")
		s.progress.Publish(Progress{Phase: PhaseComplete, Current: 1, Total: 1,
			Message: "No data to migrate"})
		return &MigrationResult{}, nil
	}
	remoteKeys := make(map[string]bool, len(remoteBills))
	localIDs := make(map[string]bool, len(bills))
	for _, doc := range remoteBills {
		remoteKeys[dupKey(doc.Name, doc.Amount, doc.DueDate)] = true
	}
	for _, bill := range bills {
		localIDs[bill.ID] = true
	}

	var res MigrationResult

	// Phase: upload local bills, skipping remote duplicates.
	var uploads []*schema.Bill
	for _, bill := range bills {
		if remoteKeys[dupKey(bill.Name, bill.Amount, bill.DueDate)] {
			res.BillsDuplicated++
			continue
		}
		uploads = append(uploads, bill)
	}
	s.progress.Publish(Progress{Phase: PhaseUploadingBills, Current: 0, Total: len(uploads)})

	batch := s.remote.NewBatch()
	for _, bill := range uploads {
		doc, err := billToRemote(bill, s.deviceID)
		if err != nil {
			return nil, err
		}
		batch.SetBill(userID, doc)
		if batch.Len() >= remote.MaxBatchOps {
			if err := batch.Commit(ctx); err != nil {
				return nil, err
			}
			res.BillsUploaded += remote.MaxBatchOps
			s.progress.Publish(Progress{Phase: PhaseUploadingBills,
				Current: res.BillsUploaded, Total: len(uploads)})
			batch = s.remote.NewBatch()
		}
	}
	pending := batch.Len()
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	res.BillsUploaded += pending
	s.progress.Publish(Progress{Phase: PhaseUploadingBills,
		Current: res.BillsUploaded, Total: len(uploads)})

	// Phase: merge back remote bills this device has never seen. They are
	// inserted verbatim; reminders belong to the device that owns them and
	// are not regenerated here.
	var merges []remote.Bill
	for _, doc := range remoteBills {
		if !localIDs[doc.ID] {
			merges = append(merges, doc)
		}
	}
	s.progress.Publish(Progress{Phase: PhaseMerging, Current: 0, Total: len(merges)})
	for _, doc := range merges {
		if err := s.db.InsertBill(ctx, billFromRemote(doc)); err != nil {
			return nil, err
		}
		res.BillsMerged++
		s.progress.Publish(Progress{Phase: PhaseMerging,
			Current: res.BillsMerged, Total: len(merges)})
	}

	// Phase: upload every local payment.
	s.progress.Publish(Progress{Phase: PhaseUploadingPayments, Current: 0, Total: len(payments)})
	batch = s.remote.NewBatch()
	for _, payment := range payments {
		batch.SetPayment(userID, paymentToRemote(payment, s.deviceID))
		if batch.Len() >= remote.MaxBatchOps {
			if err := batch.Commit(ctx); err != nil {
				return nil, err
			}
			res.PaymentsUploaded += remote.MaxBatchOps
			s.progress.Publish(Progress{Phase: PhaseUploadingPayments,
				Current: res.PaymentsUploaded, Total: len(payments)})
			batch = s.remote.NewBatch()
		}
	}
	pending = batch.Len()
	if err := batch.Commit(ctx); err != nil {
		return nil, err
	}
	res.PaymentsUploaded += pending
	s.progress.Publish(Progress{Phase: PhaseUploadingPayments,
		Current: res.PaymentsUploaded, Total: len(payments)})

	if err := s.remote.MarkMigrationComplete(ctx, userID); err != nil {
		return nil, err
	}
	now := schema.Now()
	if err := s.setWatermark(now); err != nil {
		return nil, err
	}
	s.publish(StatusSynced, now, "")
	s.progress.Publish(Progress{Phase: PhaseComplete, Current: 1, Total: 1,
		Message: "All bills synced to the cloud"})

	s.logger.Printf("migration complete: %d bills uploaded, %d merged, %d duplicates skipped, %d payments uploaded",
		res.BillsUploaded, res.BillsMerged, res.BillsDuplicated, res.PaymentsUploaded)
	return &res, nil
}
