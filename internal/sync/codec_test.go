package sync

import (
	"reflect"
	"testing"

	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/schema"
)

func strp(s string) *string { return &s }

func float64p(f float64) *float64 { return &f }

func TestBillCodecRoundTrip(t *testing.T) {
	bill := &schema.Bill{
		ID:              "b1",
		Name:            "Electric",
		DueDate:         1700000000000,
		Frequency:       schema.FrequencyMonthly,
		Autopay:         true,
		IconKey:         "bolt",
		Status:          schema.StatusActive,
		Amount:          float64p(84.20),
		Notes:           strp("budget billing"),
		CreatedAt:       1690000000000,
		UpdatedAt:       1695000000000,
		NotificationIDs: strp(`["h1","h2"]`),
		Timezone:        strp("America/Chicago"),
	}

	doc, err := billToRemote(bill, "device-a")
	if err != nil {
		t.Fatalf("billToRemote failed: %v", err)
	}
	if doc.DeviceID != "device-a" || doc.Version != 1 {
		t.Errorf("unexpected sync metadata: deviceId=%q version=%d", doc.DeviceID, doc.Version)
	}
	if len(doc.NotificationIDs) != 2 || doc.NotificationIDs[0] != "h1" {
		t.Errorf("handles not decoded to a native list: %v", doc.NotificationIDs)
	}

	back := billFromRemote(doc)
	if !reflect.DeepEqual(back, bill) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, bill)
	}
}

func TestBillCodecAbsentOptionals(t *testing.T) {
	bill := &schema.Bill{
		ID:        "b2",
		Name:      "Rent",
		DueDate:   1700000000000,
		Frequency: schema.FrequencyOneTime,
		IconKey:   "home",
		Status:    schema.StatusCompleted,
		CreatedAt: 1690000000000,
		UpdatedAt: 1690000000000,
	}

	doc, err := billToRemote(bill, "device-a")
	if err != nil {
		t.Fatalf("billToRemote failed: %v", err)
	}
	if doc.Amount != nil || doc.Notes != nil || doc.Timezone != nil || doc.NotificationIDs != nil {
		t.Errorf("absent fields should stay absent: %+v", doc)
	}

	back := billFromRemote(doc)
	if !reflect.DeepEqual(back, bill) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, bill)
	}
}

func TestBillCodecEmptyHandleListCollapses(t *testing.T) {
	bill := &schema.Bill{
		ID: "b3", Name: "Water", DueDate: 1, Frequency: schema.FrequencyMonthly,
		IconKey: "drop", Status: schema.StatusActive, CreatedAt: 1, UpdatedAt: 1,
		NotificationIDs: strp("[]"),
	}

	doc, err := billToRemote(bill, "device-a")
	if err != nil {
		t.Fatalf("billToRemote failed: %v", err)
	}
	if doc.NotificationIDs != nil {
		t.Errorf("empty list should decode to no handles, got %v", doc.NotificationIDs)
	}
	if back := billFromRemote(doc); back.NotificationIDs != nil {
		t.Errorf("empty list should collapse to absence, got %q", *back.NotificationIDs)
	}
}

func TestBillCodecMalformedHandles(t *testing.T) {
	bill := &schema.Bill{
		ID: "b4", Name: "Gas", DueDate: 1, Frequency: schema.FrequencyMonthly,
		IconKey: "flame", Status: schema.StatusActive, CreatedAt: 1, UpdatedAt: 1,
		NotificationIDs: strp("not json"),
	}
	if _, err := billToRemote(bill, "device-a"); err == nil {
		t.Error("malformed notificationIds should fail conversion")
	}
}

func TestBillFromRemoteDropsMetadata(t *testing.T) {
	doc := remote.Bill{
		ID: "b5", Name: "Internet", DueDate: 1, Frequency: "monthly",
		IconKey: "wifi", Status: "active",
		CreatedAt: remote.TimestampFromMillis(1), UpdatedAt: remote.TimestampFromMillis(2),
		LastSynced: remote.TimestampFromMillis(3), DeviceID: "device-z", Version: 7,
	}
	back := billFromRemote(doc)
	if back.CreatedAt != 1 || back.UpdatedAt != 2 {
		t.Errorf("timestamps not converted: %+v", back)
	}

	// A pending server timestamp converts as zero rather than failing.
	doc.UpdatedAt = remote.Timestamp{}
	if back := billFromRemote(doc); back.UpdatedAt != 0 {
		t.Errorf("pending timestamp should convert to 0, got %d", back.UpdatedAt)
	}
}

func TestPaymentCodecRoundTrip(t *testing.T) {
	payment := &schema.Payment{
		ID:         "p1",
		BillID:     "b1",
		PaidDate:   1700000000000,
		AmountPaid: float64p(120),
		CreatedAt:  1700000000001,
	}

	doc := paymentToRemote(payment, "device-a")
	if doc.DeviceID != "device-a" || doc.Version != 1 {
		t.Errorf("unexpected sync metadata: %+v", doc)
	}

	if back := paymentFromRemote(doc); !reflect.DeepEqual(back, payment) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, payment)
	}
}
