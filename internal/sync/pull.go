package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/duetrack/duetrack/internal/schema"
)

// pullBills folds remote bill changes since the watermark into the local
// database. Unknown bills are inserted; known bills are overwritten only
// when the remote updatedAt is strictly newer (last write wins, ties keep
// the local record). Pull never deletes local rows.
//
// It returns the ids of bills it wrote, so the push half of the cycle can
// skip records whose only change this window was the pull itself.
//
// Reminder handles are device-local, so any change that lands a bill
// locally re-derives them here: stale handles are canceled first, and new
// ones are scheduled only for active bills.
func (s *Syncer) pullBills(ctx context.Context, userID string, since int64) (map[string]bool, error) {
	docs, err := s.remote.BillsUpdatedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	pulled := make(map[string]bool)
	for _, doc := range docs {
		incoming := billFromRemote(doc)

		existing, err := s.db.GetBill(ctx, incoming.ID)
		if errors.Is(err, sql.ErrNoRows) {
			if err := s.insertPulledBill(ctx, incoming); err != nil {
				return nil, err
			}
			pulled[incoming.ID] = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load local bill %s: %w", incoming.ID, err)
		}

		if incoming.UpdatedAt <= existing.UpdatedAt {
			continue // local is as new or newer; push will reconcile
		}
		if err := s.overwritePulledBill(ctx, existing.NotificationIDs, incoming); err != nil {
			return nil, err
		}
		pulled[incoming.ID] = true
	}
	return pulled, nil
}

func (s *Syncer) insertPulledBill(ctx context.Context, incoming *schema.Bill) error {
	if err := s.rescheduleReminders(ctx, nil, incoming); err != nil {
		return err
	}
	if err := s.db.InsertBill(ctx, incoming); err != nil {
		return err
	}
	s.logger.Printf("pulled new bill %s", incoming.ID)
	return nil
}

func (s *Syncer) overwritePulledBill(ctx context.Context, oldHandles *string, incoming *schema.Bill) error {
	if err := s.rescheduleReminders(ctx, oldHandles, incoming); err != nil {
		return err
	}
	if err := s.db.UpdateBill(ctx, incoming); err != nil {
		return err
	}
	s.logger.Printf("pulled newer bill %s (remote wins)", incoming.ID)
	return nil
}

// rescheduleReminders cancels whatever handles the local record held and
// schedules fresh reminders for the incoming bill, rewriting its
// NotificationIDs in place. Completed bills end up with none.
//
// Cancel happens before the new handles are persisted, so a failure can
// strand a bill without reminders but never with stale ones.
func (s *Syncer) rescheduleReminders(ctx context.Context, oldHandles *string, incoming *schema.Bill) error {
	old, err := decodeHandles(oldHandles)
	if err != nil {
		return err
	}
	if len(old) > 0 {
		if err := s.scheduler.Cancel(ctx, old); err != nil {
			return fmt.Errorf("failed to cancel reminders for bill %s: %w", incoming.ID, err)
		}
	}

	if !incoming.Active() {
		incoming.NotificationIDs = nil
		return nil
	}

	handles, err := s.scheduler.Schedule(ctx, incoming.ID, incoming.Name, incoming.DueDate)
	if err != nil {
		return fmt.Errorf("failed to schedule reminders for bill %s: %w", incoming.ID, err)
	}
	incoming.NotificationIDs = encodeHandles(handles)
	return nil
}

// pullPayments inserts remote payments missing locally. Payments are
// immutable, so a payment that already exists is left alone and nothing is
// ever deleted.
func (s *Syncer) pullPayments(ctx context.Context, userID string, since int64) error {
	docs, err := s.remote.PaymentsCreatedSince(ctx, userID, since)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		incoming := paymentFromRemote(doc)

		_, err := s.db.GetPayment(ctx, incoming.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to load local payment %s: %w", incoming.ID, err)
		}

		if err := s.db.InsertPayment(ctx, incoming); err != nil {
			return err
		}
		s.logger.Printf("pulled payment %s for bill %s", incoming.ID, incoming.BillID)
	}
	return nil
}
