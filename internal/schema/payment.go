package schema

import "fmt"

// Payment records that a bill was paid. Payments are immutable once
// created and are owned by their bill: deleting a bill cascades to its
// payments.
type Payment struct {
	ID         string   `json:"id"`
	BillID     string   `json:"billId"`
	PaidDate   int64    `json:"paidDate"` // epoch ms
	AmountPaid *float64 `json:"amountPaid,omitempty"`
	CreatedAt  int64    `json:"createdAt"`
}

// Validate checks the Payment's invariants.
func (p *Payment) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.BillID == "" {
		return fmt.Errorf("billId is required")
	}
	if p.PaidDate == 0 {
		return fmt.Errorf("paidDate is required")
	}
	if p.AmountPaid != nil && *p.AmountPaid < 0 {
		return fmt.Errorf("amountPaid must be non-negative (got %v)", *p.AmountPaid)
	}
	if p.CreatedAt == 0 {
		return fmt.Errorf("createdAt is required")
	}
	return nil
}
