package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/duetrack/duetrack/internal/schema"
)

const paymentColumns = `id, billId, paidDate, amountPaid, createdAt`

// InsertPayment inserts a new payment row. Payments are immutable; there is
// no update path.
func (db *DB) InsertPayment(ctx context.Context, payment *schema.Payment) error {
	if err := payment.Validate(); err != nil {
		return fmt.Errorf("invalid payment: %w", err)
	}

	query := `
	INSERT INTO payments (` + paymentColumns + `)
	VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		payment.ID,
		payment.BillID,
		payment.PaidDate,
		nullFloat(payment.AmountPaid),
		payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment %s: %w", payment.ID, err)
	}
	return nil
}

// GetPayment retrieves a single payment by ID.
// Returns sql.ErrNoRows if the payment is not found.
func (db *DB) GetPayment(ctx context.Context, paymentID string) (*schema.Payment, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", paymentID)
	return scanPaymentFrom(row)
}

// ListPayments returns every payment, oldest first.
func (db *DB) ListPayments(ctx context.Context) ([]*schema.Payment, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments ORDER BY createdAt ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

// PaymentsCreatedSince returns payments created strictly after the
// watermark. This is the push engine's incremental query.
func (db *DB) PaymentsCreatedSince(ctx context.Context, since int64) ([]*schema.Payment, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE createdAt > ? ORDER BY createdAt ASC", since)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments created since %d: %w", since, err)
	}
	defer rows.Close()

	return scanPayments(rows)
}

// PaymentCount returns the total number of payments.
func (db *DB) PaymentCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM payments").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}

func scanPaymentFrom(s scanner) (*schema.Payment, error) {
	var payment schema.Payment
	var amountPaid sql.NullFloat64

	err := s.Scan(
		&payment.ID,
		&payment.BillID,
		&payment.PaidDate,
		&amountPaid,
		&payment.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	payment.AmountPaid = floatPtr(amountPaid)
	return &payment, nil
}

func scanPayments(rows *sql.Rows) ([]*schema.Payment, error) {
	var payments []*schema.Payment
	for rows.Next() {
		payment, err := scanPaymentFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}
