package sync

import (
	"context"

	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/schema"
)

// Realtime subscribes to the remote change stream and folds changes made
// by other devices into the local database as they arrive. Events carrying
// this device's own pending writes are skipped, so the device never
// re-ingests what it just pushed.
//
// After each successful incremental pull the watermark advances; a pull
// failure is logged and the watermark stays put, leaving the change for
// the next full cycle. The callbacks, when non-nil, fire after a
// collection's pull so the UI can refresh.
//
// The returned stop function closes the subscription.
func (s *Syncer) Realtime(ctx context.Context, userID string, onBillsChanged, onPaymentsChanged func()) (func(), error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	return s.remote.Subscribe(ctx, userID, func(ev remote.Event) {
		if ev.Pending {
			return
		}

		if err := s.pullOnEvent(ctx, userID, ev.Collection); err != nil {
			s.logger.Printf("realtime pull failed for %s: %v", ev.Collection, err)
			return
		}

		switch ev.Collection {
		case remote.CollectionBills:
			if onBillsChanged != nil {
				onBillsChanged()
			}
		case remote.CollectionPayments:
			if onPaymentsChanged != nil {
				onPaymentsChanged()
			}
		}
	})
}

// pullOnEvent runs one incremental pull of the changed collection under the
// sync mutex.
func (s *Syncer) pullOnEvent(ctx context.Context, userID, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	since, err := s.Watermark()
	if err != nil {
		return err
	}

	switch collection {
	case remote.CollectionBills:
		if _, err := s.pullBills(ctx, userID, since); err != nil {
			return err
		}
	case remote.CollectionPayments:
		if err := s.pullPayments(ctx, userID, since); err != nil {
			return err
		}
	default:
		s.logger.Printf("ignoring event for unknown collection %q", collection)
		return nil
	}

	return s.setWatermark(schema.Now())
}
