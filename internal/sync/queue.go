package sync

import (
	"encoding/json"
	"fmt"

	"github.com/duetrack/duetrack/internal/kvstore"
	"github.com/duetrack/duetrack/internal/schema"
)

// Mutation kinds and operations carried by queue entries.
const (
	KindBill    = "bill"
	KindPayment = "payment"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

const queueKey = "offlineQueue"

// Entry is one deferred local mutation. Create and update entries carry the
// full record; delete entries carry only the record with its id set.
type Entry struct {
	Kind       string          `json:"kind"`
	Op         string          `json:"op"`
	Bill       *schema.Bill    `json:"bill,omitempty"`
	Payment    *schema.Payment `json:"payment,omitempty"`
	EnqueuedAt int64           `json:"enqueuedAt"`
}

// check rejects entries missing their record. The queue round-trips
// through JSON on disk, so a hand-edited or corrupt file can produce a
// bill entry with no bill; such entries must fail the drain, not panic it.
func (e Entry) check() error {
	switch e.Kind {
	case KindBill:
		if e.Bill == nil {
			return fmt.Errorf("queue entry %s %s carries no bill", e.Kind, e.Op)
		}
	case KindPayment:
		if e.Payment == nil {
			return fmt.Errorf("queue entry %s %s carries no payment", e.Kind, e.Op)
		}
	}
	return nil
}

func (e Entry) recordID() string {
	switch {
	case e.Bill != nil:
		return e.Bill.ID
	case e.Payment != nil:
		return e.Payment.ID
	}
	return ""
}

// Queue is the durable FIFO of mutations made while the remote store was
// unreachable. Entries persist across restarts in the key-value store and
// are cleared all-or-nothing after a fully successful drain.
type Queue struct {
	kv *kvstore.Store
}

// NewQueue wraps the key-value store's offline queue slot.
func NewQueue(kv *kvstore.Store) *Queue {
	return &Queue{kv: kv}
}

// Entries returns the queued mutations in arrival order.
func (q *Queue) Entries() ([]Entry, error) {
	raw, ok := q.kv.Get(queueKey)
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("corrupt offline queue: %w", err)
	}
	return entries, nil
}

// Len returns the number of queued mutations.
func (q *Queue) Len() (int, error) {
	entries, err := q.Entries()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Enqueue appends a mutation. A persistence failure here means the
// mutation would be silently lost, so it is fatal to the caller.
func (q *Queue) Enqueue(e Entry) error {
	if e.EnqueuedAt == 0 {
		e.EnqueuedAt = schema.Now()
	}
	entries, err := q.Entries()
	if err != nil {
		return err
	}
	entries = append(entries, e)
	return q.save(entries)
}

// Clear drops every queued mutation.
func (q *Queue) Clear() error {
	return q.kv.Delete(queueKey)
}

func (q *Queue) save(entries []Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode offline queue: %w", err)
	}
	if err := q.kv.Set(queueKey, string(raw)); err != nil {
		return fmt.Errorf("failed to persist offline queue: %w", err)
	}
	return nil
}
