package sync

import (
	"context"

	"github.com/duetrack/duetrack/internal/remote"
)

// pushBills uploads every local bill touched since the watermark as a
// merge upsert, batching writes and flushing at the batch ceiling. Each
// upload carries the next advisory version past whatever the remote
// document holds.
//
// Bills in skip were just written by this cycle's pull; their local
// content already equals the remote document, so echoing them back would
// only churn versions.
func (s *Syncer) pushBills(ctx context.Context, userID string, since int64, skip map[string]bool) error {
	bills, err := s.db.BillsUpdatedSince(ctx, since)
	if err != nil {
		return err
	}
	if len(bills) == 0 {
		return nil
	}

	batch := s.remote.NewBatch()
	pushed := 0
	for _, bill := range bills {
		if skip[bill.ID] {
			continue
		}
		pushed++
		doc, err := billToRemote(bill, s.deviceID)
		if err != nil {
			return err
		}
		doc.Version, err = s.nextBillVersion(ctx, userID, bill.ID)
		if err != nil {
			return err
		}
		batch.SetBill(userID, doc)

		if batch.Len() >= remote.MaxBatchOps {
			if err := batch.Commit(ctx); err != nil {
				return err
			}
			batch = s.remote.NewBatch()
		}
	}
	if pushed > 0 {
		s.logger.Printf("pushing %d bills", pushed)
	}
	return batch.Commit(ctx)
}

// pushPayments uploads local payments created since the watermark.
// Payments are immutable, so their version never advances past 1.
func (s *Syncer) pushPayments(ctx context.Context, userID string, since int64) error {
	payments, err := s.db.PaymentsCreatedSince(ctx, since)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}
	s.logger.Printf("pushing %d payments", len(payments))

	batch := s.remote.NewBatch()
	for _, payment := range payments {
		batch.SetPayment(userID, paymentToRemote(payment, s.deviceID))

		if batch.Len() >= remote.MaxBatchOps {
			if err := batch.Commit(ctx); err != nil {
				return err
			}
			batch = s.remote.NewBatch()
		}
	}
	return batch.Commit(ctx)
}
