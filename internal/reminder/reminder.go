// Package reminder is the capability surface over the platform's local
// notification scheduler. The sync layer only ever schedules or cancels
// reminders through the Scheduler interface and treats the returned handles
// as opaque.
package reminder

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Scheduler schedules and cancels bill reminders.
type Scheduler interface {
	// Schedule creates the reminders for a bill (one the day before the due
	// date and one on it) and returns their opaque handles.
	Schedule(ctx context.Context, billID, name string, dueDate int64) ([]string, error)

	// Cancel removes previously scheduled reminders. Canceling an unknown
	// handle is a no-op.
	Cancel(ctx context.Context, handles []string) error
}

// Scheduled describes one pending reminder held by the in-memory scheduler.
type Scheduled struct {
	BillID  string
	Name    string
	DueDate int64
}

// Memory is an in-process Scheduler. It stands in for the platform
// notification service in tests and in the CLI, recording what is currently
// scheduled so the reminder-consistency invariant can be asserted.
type Memory struct {
	mu      sync.Mutex
	pending map[string]Scheduled // handle -> reminder
}

// NewMemory returns an empty in-memory scheduler.
func NewMemory() *Memory {
	return &Memory{pending: make(map[string]Scheduled)}
}

// Schedule implements Scheduler. Two handles are issued per bill.
func (m *Memory) Schedule(ctx context.Context, billID, name string, dueDate int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handles := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		h := uuid.NewString()
		m.pending[h] = Scheduled{BillID: billID, Name: name, DueDate: dueDate}
		handles = append(handles, h)
	}
	return handles, nil
}

// Cancel implements Scheduler.
func (m *Memory) Cancel(ctx context.Context, handles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range handles {
		delete(m.pending, h)
	}
	return nil
}

// Lookup returns the reminder behind a handle, if it is still pending.
func (m *Memory) Lookup(handle string) (Scheduled, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.pending[handle]
	return s, ok
}

// ForBill returns the reminders currently pending for a bill.
func (m *Memory) ForBill(billID string) []Scheduled {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Scheduled
	for _, s := range m.pending {
		if s.BillID == billID {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the total number of pending reminders.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
