package remote

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process document store shared by one or more
// MemoryStore clients. Each client models one device: subscribers see
// writes from their own client flagged Pending, and writes from every
// other client as remote-origin changes. This is the multi-device
// topology the sync layer is designed against, in a single process.
type MemoryBackend struct {
	mu      sync.Mutex
	users   map[string]*userDocs
	subs    map[int]*memorySub
	nextSub int
}

type userDocs struct {
	bills             map[string]Bill
	payments          map[string]Payment
	migrationComplete bool
}

type memorySub struct {
	userID string
	client *MemoryStore
	fn     func(Event)
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		users: make(map[string]*userDocs),
		subs:  make(map[int]*memorySub),
	}
}

// Client returns a Store handle representing one device against this
// backend.
func (b *MemoryBackend) Client(deviceID string) *MemoryStore {
	return &MemoryStore{backend: b, deviceID: deviceID}
}

func (b *MemoryBackend) user(userID string) *userDocs {
	u, ok := b.users[userID]
	if !ok {
		u = &userDocs{
			bills:    make(map[string]Bill),
			payments: make(map[string]Payment),
		}
		b.users[userID] = u
	}
	return u
}

// notify dispatches an event to every subscriber of userID. Called after
// the write completed and b.mu was released, so listeners may issue store
// calls from the callback.
//
// Delivery is synchronous on the writer's goroutine. A subscriber that
// takes its own lock in the callback therefore orders that lock after
// whatever the writer holds; two clients writing concurrently from inside
// lock-holding subscribers can deadlock. Drive each backend's clients
// from one goroutine, or push from outside any subscriber-held lock.
func (b *MemoryBackend) notify(userID string, origin *MemoryStore, collection string) {
	b.mu.Lock()
	var targets []*memorySub
	for _, sub := range b.subs {
		if sub.userID == userID {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.fn(Event{
			Collection: collection,
			DeviceID:   origin.deviceID,
			Pending:    sub.client == origin,
		})
	}
}

// MemoryStore implements Store for one device over a MemoryBackend.
type MemoryStore struct {
	backend  *MemoryBackend
	deviceID string
}

var _ Store = (*MemoryStore)(nil)

// GetBill implements Store.
func (s *MemoryStore) GetBill(ctx context.Context, userID, billID string) (*Bill, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	bill, ok := s.backend.user(userID).bills[billID]
	if !ok {
		return nil, ErrNotFound
	}
	return &bill, nil
}

// BillsUpdatedSince implements Store.
func (s *MemoryStore) BillsUpdatedSince(ctx context.Context, userID string, since int64) ([]Bill, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	var out []Bill
	for _, bill := range s.backend.user(userID).bills {
		if since == 0 || bill.UpdatedAt.Millis > since {
			out = append(out, bill)
		}
	}
	return out, nil
}

// PaymentsCreatedSince implements Store.
func (s *MemoryStore) PaymentsCreatedSince(ctx context.Context, userID string, since int64) ([]Payment, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	var out []Payment
	for _, payment := range s.backend.user(userID).payments {
		if since == 0 || payment.CreatedAt.Millis > since {
			out = append(out, payment)
		}
	}
	return out, nil
}

// SetBill implements Store. The server-observed write instant is assigned
// here if the client left it pending.
func (s *MemoryStore) SetBill(ctx context.Context, userID string, bill Bill) error {
	if bill.LastSynced.IsZero() {
		bill.LastSynced = TimestampNow()
	}

	s.backend.mu.Lock()
	s.backend.user(userID).bills[bill.ID] = bill
	s.backend.mu.Unlock()

	s.backend.notify(userID, s, CollectionBills)
	return nil
}

// DeleteBill implements Store.
func (s *MemoryStore) DeleteBill(ctx context.Context, userID, billID string) error {
	s.backend.mu.Lock()
	delete(s.backend.user(userID).bills, billID)
	s.backend.mu.Unlock()

	s.backend.notify(userID, s, CollectionBills)
	return nil
}

// SetPayment implements Store.
func (s *MemoryStore) SetPayment(ctx context.Context, userID string, payment Payment) error {
	if payment.LastSynced.IsZero() {
		payment.LastSynced = TimestampNow()
	}

	s.backend.mu.Lock()
	s.backend.user(userID).payments[payment.ID] = payment
	s.backend.mu.Unlock()

	s.backend.notify(userID, s, CollectionPayments)
	return nil
}

// DeletePayment implements Store.
func (s *MemoryStore) DeletePayment(ctx context.Context, userID, paymentID string) error {
	s.backend.mu.Lock()
	delete(s.backend.user(userID).payments, paymentID)
	s.backend.mu.Unlock()

	s.backend.notify(userID, s, CollectionPayments)
	return nil
}

// MigrationComplete implements Store.
func (s *MemoryStore) MigrationComplete(ctx context.Context, userID string) (bool, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.backend.user(userID).migrationComplete, nil
}

// MarkMigrationComplete implements Store.
func (s *MemoryStore) MarkMigrationComplete(ctx context.Context, userID string) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.user(userID).migrationComplete = true
	return nil
}

// Subscribe implements Store. Events are delivered synchronously from the
// writer's goroutine.
func (s *MemoryStore) Subscribe(ctx context.Context, userID string, fn func(Event)) (func(), error) {
	s.backend.mu.Lock()
	id := s.backend.nextSub
	s.backend.nextSub++
	s.backend.subs[id] = &memorySub{userID: userID, client: s, fn: fn}
	s.backend.mu.Unlock()

	stop := func() {
		s.backend.mu.Lock()
		delete(s.backend.subs, id)
		s.backend.mu.Unlock()
	}
	return stop, nil
}

// NewBatch implements Store.
func (s *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: s}
}

type batchOp struct {
	collection string
	del        bool
	userID     string
	docID      string
	bill       Bill
	payment    Payment
}

type memoryBatch struct {
	store *MemoryStore
	ops   []batchOp
}

func (b *memoryBatch) SetBill(userID string, bill Bill) {
	b.ops = append(b.ops, batchOp{collection: CollectionBills, userID: userID, docID: bill.ID, bill: bill})
}

func (b *memoryBatch) DeleteBill(userID, billID string) {
	b.ops = append(b.ops, batchOp{collection: CollectionBills, del: true, userID: userID, docID: billID})
}

func (b *memoryBatch) SetPayment(userID string, payment Payment) {
	b.ops = append(b.ops, batchOp{collection: CollectionPayments, userID: userID, docID: payment.ID, payment: payment})
}

func (b *memoryBatch) DeletePayment(userID, paymentID string) {
	b.ops = append(b.ops, batchOp{collection: CollectionPayments, del: true, userID: userID, docID: paymentID})
}

func (b *memoryBatch) Len() int {
	return len(b.ops)
}

func (b *memoryBatch) Commit(ctx context.Context) error {
	for _, op := range b.ops {
		var err error
		switch {
		case op.collection == CollectionBills && op.del:
			err = b.store.DeleteBill(ctx, op.userID, op.docID)
		case op.collection == CollectionBills:
			err = b.store.SetBill(ctx, op.userID, op.bill)
		case op.del:
			err = b.store.DeletePayment(ctx, op.userID, op.docID)
		default:
			err = b.store.SetPayment(ctx, op.userID, op.payment)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}
