// Package schema defines the local record types for duetrack: bills and
// the payments recorded against them.
//
// All timestamps are epoch milliseconds. UpdatedAt is the authoritative
// conflict-resolution clock: any field mutation must bump it to the
// mutation instant, and the sync layer resolves concurrent edits by
// comparing it (last write wins).
package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bill frequencies.
const (
	FrequencyOneTime = "one-time"
	FrequencyMonthly = "monthly"
)

// Bill statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Bill is the canonical local bill record.
//
// Optional fields are pointers so that absence survives the round trip to
// the remote document shape, where they become explicit nulls.
// NotificationIDs is a JSON-encoded array of reminder handles tied to the
// current Name/DueDate; stale handles must be canceled before new ones are
// persisted.
type Bill struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DueDate   int64  `json:"dueDate"` // next occurrence, epoch ms
	Frequency string `json:"frequency"`
	Autopay   bool   `json:"autopay"`
	IconKey   string `json:"iconKey"`
	Status    string `json:"status"`

	Amount *float64 `json:"amount,omitempty"`
	Notes  *string  `json:"notes,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`

	NotificationIDs *string `json:"notificationIds,omitempty"`
	Timezone        *string `json:"timezone,omitempty"` // IANA zone at creation, audit only
}

// NewID returns a fresh opaque record identifier.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current instant in the representation used by all
// schema timestamps.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Validate checks the Bill's invariants.
func (b *Bill) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("id is required")
	}
	if b.Name == "" {
		return fmt.Errorf("name is required")
	}
	if b.IconKey == "" {
		return fmt.Errorf("iconKey is required")
	}
	if b.Frequency != FrequencyOneTime && b.Frequency != FrequencyMonthly {
		return fmt.Errorf("invalid frequency %q", b.Frequency)
	}
	if b.Status != StatusActive && b.Status != StatusCompleted {
		return fmt.Errorf("invalid status %q", b.Status)
	}
	if b.Amount != nil && *b.Amount < 0 {
		return fmt.Errorf("amount must be non-negative (got %v)", *b.Amount)
	}
	if b.CreatedAt == 0 {
		return fmt.Errorf("createdAt is required")
	}
	if b.UpdatedAt < b.CreatedAt {
		return fmt.Errorf("updatedAt %d precedes createdAt %d", b.UpdatedAt, b.CreatedAt)
	}
	return nil
}

// Touch bumps UpdatedAt to now. Call after any field mutation.
func (b *Bill) Touch() {
	b.UpdatedAt = Now()
}

// Active reports whether the bill should carry scheduled reminders.
func (b *Bill) Active() bool {
	return b.Status == StatusActive
}
