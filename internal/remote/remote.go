// Package remote is the capability surface over the per-user cloud document
// store. Documents live in hierarchical collections:
//
//	users/{userId}/bills/{billId}
//	users/{userId}/payments/{paymentId}
//	users/{userId}/meta/migration
//
// The package defines the document shapes (local records plus sync
// metadata), the Store interface consumed by the sync engines, an in-memory
// implementation, and an HTTP+WebSocket client.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("remote: document not found")

// MaxBatchOps is the remote store's per-request operation ceiling. Batches
// must be flushed and restarted when they reach this size.
const MaxBatchOps = 500

// Collections addressable under a user.
const (
	CollectionBills    = "bills"
	CollectionPayments = "payments"
)

// Timestamp is the remote store's server timestamp, carried as epoch
// milliseconds. A zero value means the server has not yet assigned one
// (a locally pending write); consumers must tolerate it and convert
// whatever instant is present.
type Timestamp struct {
	Millis int64 `json:"millis"`
}

// TimestampFromMillis wraps an epoch-millisecond instant.
func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp{Millis: ms}
}

// TimestampNow returns the current instant.
func TimestampNow() Timestamp {
	return Timestamp{Millis: time.Now().UnixMilli()}
}

// IsZero reports whether the server has not assigned this timestamp yet.
func (t Timestamp) IsZero() bool {
	return t.Millis == 0
}

// Bill is the remote document mirror of a local bill. Optional fields are
// explicit nulls (never omitted), and notificationIds is a native list
// rather than the serialized string stored locally.
type Bill struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DueDate         int64    `json:"dueDate"`
	Amount          *float64 `json:"amount"`
	Frequency       string   `json:"frequency"`
	Autopay         bool     `json:"autopay"`
	Notes           *string  `json:"notes"`
	IconKey         string   `json:"iconKey"`
	Status          string   `json:"status"`
	Timezone        *string  `json:"timezone"`
	NotificationIDs []string `json:"notificationIds"`

	CreatedAt Timestamp `json:"createdAt"`
	UpdatedAt Timestamp `json:"updatedAt"`

	// Sync metadata, absent on the local side.
	LastSynced Timestamp `json:"lastSynced"`
	DeviceID   string    `json:"deviceId"`
	Version    int64     `json:"_version"`
}

// Payment is the remote document mirror of a local payment.
type Payment struct {
	ID         string   `json:"id"`
	BillID     string   `json:"billId"`
	PaidDate   int64    `json:"paidDate"`
	AmountPaid *float64 `json:"amountPaid"`

	CreatedAt Timestamp `json:"createdAt"`

	LastSynced Timestamp `json:"lastSynced"`
	DeviceID   string    `json:"deviceId"`
	Version    int64     `json:"_version"`
}

// Event is one notification from the change stream.
type Event struct {
	// Collection is CollectionBills or CollectionPayments.
	Collection string `json:"collection"`

	// DeviceID is the device that originated the change, when known.
	DeviceID string `json:"deviceId,omitempty"`

	// Pending reports whether the change is this client's own
	// not-yet-acknowledged write. Listeners use it to skip self-pulls.
	Pending bool `json:"-"`
}

// Batch accumulates document writes for a single bounded commit.
// Callers must flush (Commit and start a new batch) whenever Len reaches
// MaxBatchOps.
type Batch interface {
	SetBill(userID string, bill Bill)
	DeleteBill(userID, billID string)
	SetPayment(userID string, payment Payment)
	DeletePayment(userID, paymentID string)

	// Len returns the number of queued operations.
	Len() int

	// Commit applies the queued operations. Deletes of absent documents
	// succeed as no-ops; sets are idempotent upserts keyed by document id.
	// Commit is at-least-once, not transactional: a failure may leave a
	// prefix of the batch applied.
	Commit(ctx context.Context) error
}

// Store is the remote document store capability consumed by the sync
// engines. All writes are idempotent upserts or deletes keyed by document
// id, safe to repeat after partial failures.
type Store interface {
	// GetBill returns the bill document, or ErrNotFound.
	GetBill(ctx context.Context, userID, billID string) (*Bill, error)

	// BillsUpdatedSince returns bill documents whose updatedAt exceeds the
	// watermark. A zero watermark returns every document.
	BillsUpdatedSince(ctx context.Context, userID string, since int64) ([]Bill, error)

	// PaymentsCreatedSince returns payment documents whose createdAt
	// exceeds the watermark. A zero watermark returns every document.
	PaymentsCreatedSince(ctx context.Context, userID string, since int64) ([]Payment, error)

	// SetBill merge-upserts a bill document: every field present in the
	// document is overwritten, fields the codec does not produce are left
	// untouched.
	SetBill(ctx context.Context, userID string, bill Bill) error

	// DeleteBill removes a bill document. Absent documents are a no-op
	// success.
	DeleteBill(ctx context.Context, userID, billID string) error

	// SetPayment upserts a payment document.
	SetPayment(ctx context.Context, userID string, payment Payment) error

	// DeletePayment removes a payment document. Absent documents are a
	// no-op success.
	DeletePayment(ctx context.Context, userID, paymentID string) error

	// NewBatch returns an empty write batch.
	NewBatch() Batch

	// MigrationComplete reads the users/{uid}/meta/migration flag.
	MigrationComplete(ctx context.Context, userID string) (bool, error)

	// MarkMigrationComplete sets the users/{uid}/meta/migration flag.
	MarkMigrationComplete(ctx context.Context, userID string) error

	// Subscribe opens a standing subscription to the user's bill and
	// payment collections. Stream failures are logged and retried by the
	// implementation; they never tear down the subscription. The returned
	// stop function closes it.
	Subscribe(ctx context.Context, userID string, fn func(Event)) (stop func(), err error)
}
