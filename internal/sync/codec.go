package sync

import (
	"encoding/json"
	"fmt"

	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/schema"
)

// The codec maps local records to remote documents and back. Locally,
// reminder handles live in a JSON-encoded string column; remotely they are
// a native list. Optional fields stay explicit nulls on the wire so a merge
// upsert clears them rather than leaving stale values behind.
//
// billFromRemote(billToRemote(b)) preserves every local field. Sync
// metadata (lastSynced, deviceId, _version) exists only on the remote side
// and is dropped on the way in.

// billToRemote converts a local bill for upload. Version is set to 1; the
// push path overwrites it with the next optimistic version. It fails if the
// stored notificationIds column is not valid JSON.
func billToRemote(bill *schema.Bill, deviceID string) (remote.Bill, error) {
	handles, err := decodeHandles(bill.NotificationIDs)
	if err != nil {
		return remote.Bill{}, fmt.Errorf("bill %s: %w", bill.ID, err)
	}
	return remote.Bill{
		ID:              bill.ID,
		Name:            bill.Name,
		DueDate:         bill.DueDate,
		Amount:          bill.Amount,
		Frequency:       bill.Frequency,
		Autopay:         bill.Autopay,
		Notes:           bill.Notes,
		IconKey:         bill.IconKey,
		Status:          bill.Status,
		Timezone:        bill.Timezone,
		NotificationIDs: handles,
		CreatedAt:       remote.TimestampFromMillis(bill.CreatedAt),
		UpdatedAt:       remote.TimestampFromMillis(bill.UpdatedAt),
		DeviceID:        deviceID,
		Version:         1,
	}, nil
}

// billFromRemote converts a remote bill document to the local record shape.
// It is total: every well-typed document converts.
func billFromRemote(doc remote.Bill) *schema.Bill {
	return &schema.Bill{
		ID:              doc.ID,
		Name:            doc.Name,
		DueDate:         doc.DueDate,
		Amount:          doc.Amount,
		Frequency:       doc.Frequency,
		Autopay:         doc.Autopay,
		Notes:           doc.Notes,
		IconKey:         doc.IconKey,
		Status:          doc.Status,
		Timezone:        doc.Timezone,
		NotificationIDs: encodeHandles(doc.NotificationIDs),
		CreatedAt:       doc.CreatedAt.Millis,
		UpdatedAt:       doc.UpdatedAt.Millis,
	}
}

func paymentToRemote(payment *schema.Payment, deviceID string) remote.Payment {
	return remote.Payment{
		ID:         payment.ID,
		BillID:     payment.BillID,
		PaidDate:   payment.PaidDate,
		AmountPaid: payment.AmountPaid,
		CreatedAt:  remote.TimestampFromMillis(payment.CreatedAt),
		DeviceID:   deviceID,
		Version:    1,
	}
}

func paymentFromRemote(doc remote.Payment) *schema.Payment {
	return &schema.Payment{
		ID:         doc.ID,
		BillID:     doc.BillID,
		PaidDate:   doc.PaidDate,
		AmountPaid: doc.AmountPaid,
		CreatedAt:  doc.CreatedAt.Millis,
	}
}

// decodeHandles parses the local notificationIds column. Absent and empty
// both decode to no handles.
func decodeHandles(raw *string) ([]string, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var handles []string
	if err := json.Unmarshal([]byte(*raw), &handles); err != nil {
		return nil, fmt.Errorf("malformed notificationIds %q: %w", *raw, err)
	}
	if len(handles) == 0 {
		return nil, nil
	}
	return handles, nil
}

// encodeHandles serializes reminder handles for the local column. No
// handles encodes to an absent column, so the empty list and absence
// collapse to the same local state.
func encodeHandles(handles []string) *string {
	if len(handles) == 0 {
		return nil
	}
	raw, err := json.Marshal(handles)
	if err != nil {
		// []string cannot fail to marshal.
		panic(err)
	}
	s := string(raw)
	return &s
}
