package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	gosync "sync"

	"github.com/duetrack/duetrack/internal/device"
	"github.com/duetrack/duetrack/internal/kvstore"
	"github.com/duetrack/duetrack/internal/localdb"
	"github.com/duetrack/duetrack/internal/netcheck"
	"github.com/duetrack/duetrack/internal/reminder"
	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/schema"
)

// ErrNoUser is returned when a sync operation is attempted without a
// signed-in user.
var ErrNoUser = errors.New("sync: no user signed in")

const lastSyncKey = "lastSync"

// Config carries the Syncer's dependencies. DB, Remote, KV, Oracle, and
// Scheduler are required; a nil Logger defaults to stderr.
type Config struct {
	DB        *localdb.DB
	Remote    remote.Store
	KV        *kvstore.Store
	Oracle    netcheck.Oracle
	Scheduler reminder.Scheduler
	Logger    *log.Logger
}

// Syncer coordinates the full sync cycle between the local database and the
// remote document store, routes local mutations directly or through the
// offline queue, and runs the one-time migration.
type Syncer struct {
	db        *localdb.DB
	remote    remote.Store
	kv        *kvstore.Store
	oracle    netcheck.Oracle
	scheduler reminder.Scheduler
	logger    *log.Logger

	deviceID string
	state    *StateHolder
	progress *ProgressBroadcaster
	queue    *Queue

	// Serializes sync cycles, queue drains, realtime pulls, and migration.
	mu gosync.Mutex
}

// New builds a Syncer, loading (or minting) the device identifier from the
// key-value store.
func New(cfg Config) (*Syncer, error) {
	if cfg.DB == nil || cfg.Remote == nil || cfg.KV == nil {
		return nil, fmt.Errorf("sync: DB, Remote, and KV are required")
	}
	if cfg.Oracle == nil || cfg.Scheduler == nil {
		return nil, fmt.Errorf("sync: Oracle and Scheduler are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	deviceID, err := device.ID(cfg.KV)
	if err != nil {
		return nil, err
	}

	return &Syncer{
		db:        cfg.DB,
		remote:    cfg.Remote,
		kv:        cfg.KV,
		oracle:    cfg.Oracle,
		scheduler: cfg.Scheduler,
		logger:    logger,
		deviceID:  deviceID,
		state:     NewStateHolder(),
		progress:  NewProgressBroadcaster(),
		queue:     NewQueue(cfg.KV),
	}, nil
}

// State exposes the sync state machine for subscription.
func (s *Syncer) State() *StateHolder {
	return s.state
}

// Progress exposes the migration progress broadcaster.
func (s *Syncer) Progress() *ProgressBroadcaster {
	return s.progress
}

// Queue exposes the offline mutation queue.
func (s *Syncer) Queue() *Queue {
	return s.queue
}

// DeviceID returns this install's device identifier.
func (s *Syncer) DeviceID() string {
	return s.deviceID
}

// Watermark returns the persisted reconciliation watermark, 0 if the
// device has never completed a sync cycle.
func (s *Syncer) Watermark() (int64, error) {
	raw, ok := s.kv.Get(lastSyncKey)
	if !ok || raw == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt sync watermark %q: %w", raw, err)
	}
	return ms, nil
}

// ResetBookkeeping clears the watermark and the offline queue, as part of
// an explicit local data reset. The device id is kept.
func (s *Syncer) ResetBookkeeping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(lastSyncKey); err != nil {
		return fmt.Errorf("failed to clear sync watermark: %w", err)
	}
	if err := s.queue.Clear(); err != nil {
		return err
	}
	s.state.Set(State{Status: StatusIdle})
	return nil
}

func (s *Syncer) setWatermark(ms int64) error {
	if err := s.kv.Set(lastSyncKey, strconv.FormatInt(ms, 10)); err != nil {
		return fmt.Errorf("failed to persist sync watermark: %w", err)
	}
	return nil
}

// publish replaces the sync state, carrying the last-sync instant forward
// unless a new one is supplied.
func (s *Syncer) publish(status Status, lastSync int64, errMsg string) {
	if lastSync == 0 {
		lastSync = s.state.Current().LastSyncTime
	}
	s.state.Set(State{Status: status, LastSyncTime: lastSync, Err: errMsg})
}

// Sync runs one full cycle: pull bills, pull payments, drain the offline
// queue, push bills, push payments, then advance the watermark. The
// watermark moves only when every step succeeded, so a partial failure
// leads to a full retry of the same window (every remote write is an
// idempotent upsert or delete).
//
// An unreachable network is not an error: the cycle is skipped and the
// state moves to offline.
func (s *Syncer) Sync(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrNoUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.publish(StatusSyncing, 0, "")

	if !s.oracle.Online(ctx) {
		s.logger.Printf("sync skipped: offline")
		s.publish(StatusOffline, 0, "no internet connection")
		return nil
	}

	since, err := s.Watermark()
	if err != nil {
		s.publish(StatusError, 0, err.Error())
		return err
	}

	if err := s.cycle(ctx, userID, since); err != nil {
		s.logger.Printf("sync failed: %v", err)
		s.publish(StatusError, 0, err.Error())
		return err
	}

	now := schema.Now()
	if err := s.setWatermark(now); err != nil {
		s.publish(StatusError, 0, err.Error())
		return err
	}

	s.publish(StatusSynced, now, "")
	return nil
}

func (s *Syncer) cycle(ctx context.Context, userID string, since int64) error {
	pulled, err := s.pullBills(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("pull bills: %w", err)
	}
	if err := s.pullPayments(ctx, userID, since); err != nil {
		return fmt.Errorf("pull payments: %w", err)
	}
	if err := s.drainQueue(ctx, userID); err != nil {
		return fmt.Errorf("drain offline queue: %w", err)
	}
	if err := s.pushBills(ctx, userID, since, pulled); err != nil {
		return fmt.Errorf("push bills: %w", err)
	}
	if err := s.pushPayments(ctx, userID, since); err != nil {
		return fmt.Errorf("push payments: %w", err)
	}
	return nil
}

// LocalChange propagates a mutation that was already applied to the local
// database. Online, it writes through to the remote store immediately;
// offline (or when the direct write fails) the mutation is captured in the
// durable queue for the next cycle. The local mutation is never rolled
// back, so a remote failure is demoted to queue-and-continue: only a queue
// persistence failure is returned.
//
// With no signed-in user the change stays local only.
func (s *Syncer) LocalChange(ctx context.Context, userID string, e Entry) error {
	if userID == "" {
		return nil
	}
	if e.EnqueuedAt == 0 {
		e.EnqueuedAt = schema.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.oracle.Online(ctx) {
		if err := s.queue.Enqueue(e); err != nil {
			return err
		}
		s.logger.Printf("offline: queued %s %s %s", e.Kind, e.Op, e.recordID())
		s.publish(StatusOffline, 0, "no internet connection")
		return nil
	}

	if err := s.applyDirect(ctx, userID, e); err != nil {
		s.logger.Printf("direct write failed, queuing %s %s %s: %v", e.Kind, e.Op, e.recordID(), err)
		if qerr := s.queue.Enqueue(e); qerr != nil {
			return qerr
		}
		s.publish(StatusError, 0, err.Error())
		return nil
	}

	s.publish(StatusSynced, schema.Now(), "")
	return nil
}

// applyDirect writes one mutation straight to the remote store.
func (s *Syncer) applyDirect(ctx context.Context, userID string, e Entry) error {
	if err := e.check(); err != nil {
		return err
	}
	switch {
	case e.Kind == KindBill && e.Op == OpDelete:
		return s.remote.DeleteBill(ctx, userID, e.Bill.ID)
	case e.Kind == KindBill:
		doc, err := billToRemote(e.Bill, s.deviceID)
		if err != nil {
			return err
		}
		doc.Version, err = s.nextBillVersion(ctx, userID, e.Bill.ID)
		if err != nil {
			return err
		}
		return s.remote.SetBill(ctx, userID, doc)
	case e.Kind == KindPayment && e.Op == OpDelete:
		return s.remote.DeletePayment(ctx, userID, e.Payment.ID)
	case e.Kind == KindPayment:
		return s.remote.SetPayment(ctx, userID, paymentToRemote(e.Payment, s.deviceID))
	}
	return fmt.Errorf("unknown queue entry kind %q", e.Kind)
}

// drainQueue replays queued mutations in arrival order through batched
// writes, flushing at the batch ceiling. The queue is cleared only after
// every batch committed; a failure leaves it intact for the next cycle
// (replay is idempotent).
func (s *Syncer) drainQueue(ctx context.Context, userID string) error {
	entries, err := s.queue.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	s.logger.Printf("draining %d queued mutations", len(entries))

	batch := s.remote.NewBatch()
	for _, e := range entries {
		if err := e.check(); err != nil {
			return err
		}
		switch {
		case e.Kind == KindBill && e.Op == OpDelete:
			batch.DeleteBill(userID, e.Bill.ID)
		case e.Kind == KindBill:
			doc, err := billToRemote(e.Bill, s.deviceID)
			if err != nil {
				return err
			}
			doc.Version, err = s.nextBillVersion(ctx, userID, e.Bill.ID)
			if err != nil {
				return err
			}
			batch.SetBill(userID, doc)
		case e.Kind == KindPayment && e.Op == OpDelete:
			batch.DeletePayment(userID, e.Payment.ID)
		case e.Kind == KindPayment:
			batch.SetPayment(userID, paymentToRemote(e.Payment, s.deviceID))
		default:
			return fmt.Errorf("unknown queue entry kind %q", e.Kind)
		}

		if batch.Len() >= remote.MaxBatchOps {
			if err := batch.Commit(ctx); err != nil {
				return err
			}
			batch = s.remote.NewBatch()
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return err
	}

	return s.queue.Clear()
}

// nextBillVersion computes the advisory optimistic version for an upload:
// one past the remote document's current version, or 1 for a new document.
// The counter signals concurrent writers; it is not a compare-and-swap.
func (s *Syncer) nextBillVersion(ctx context.Context, userID, billID string) (int64, error) {
	existing, err := s.remote.GetBill(ctx, userID, billID)
	if errors.Is(err, remote.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read remote version for bill %s: %w", billID, err)
	}
	return existing.Version + 1, nil
}
