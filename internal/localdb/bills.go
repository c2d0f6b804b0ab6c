package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/duetrack/duetrack/internal/schema"
)

const billColumns = `id, name, dueDate, amount, frequency, autopay, notes,
	iconKey, status, createdAt, updatedAt, notificationIds, timezone`

// InsertBill inserts a new bill row.
func (db *DB) InsertBill(ctx context.Context, bill *schema.Bill) error {
	if err := bill.Validate(); err != nil {
		return fmt.Errorf("invalid bill: %w", err)
	}

	query := `
	INSERT INTO bills (` + billColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.conn.ExecContext(ctx, query,
		bill.ID,
		bill.Name,
		bill.DueDate,
		nullFloat(bill.Amount),
		bill.Frequency,
		boolToInt(bill.Autopay),
		nullString(bill.Notes),
		bill.IconKey,
		bill.Status,
		bill.CreatedAt,
		bill.UpdatedAt,
		nullString(bill.NotificationIDs),
		nullString(bill.Timezone),
	)
	if err != nil {
		return fmt.Errorf("failed to insert bill %s: %w", bill.ID, err)
	}
	return nil
}

// UpdateBill overwrites the mutable fields of an existing bill row.
// createdAt is immutable and left untouched.
func (db *DB) UpdateBill(ctx context.Context, bill *schema.Bill) error {
	if err := bill.Validate(); err != nil {
		return fmt.Errorf("invalid bill: %w", err)
	}

	query := `
	UPDATE bills SET
		name = ?, dueDate = ?, amount = ?, frequency = ?, autopay = ?,
		notes = ?, iconKey = ?, status = ?, updatedAt = ?,
		notificationIds = ?, timezone = ?
	WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query,
		bill.Name,
		bill.DueDate,
		nullFloat(bill.Amount),
		bill.Frequency,
		boolToInt(bill.Autopay),
		nullString(bill.Notes),
		bill.IconKey,
		bill.Status,
		bill.UpdatedAt,
		nullString(bill.NotificationIDs),
		nullString(bill.Timezone),
		bill.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill %s: %w", bill.ID, err)
	}
	return nil
}

// SetBillNotificationIDs persists just the reminder handles for a bill,
// without bumping updatedAt. Reminder handles are device-local bookkeeping,
// not a user edit.
func (db *DB) SetBillNotificationIDs(ctx context.Context, billID string, notificationIDs *string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE bills SET notificationIds = ? WHERE id = ?",
		nullString(notificationIDs), billID)
	if err != nil {
		return fmt.Errorf("failed to update notification ids for bill %s: %w", billID, err)
	}
	return nil
}

// DeleteBill removes a bill; its payments cascade.
// Returns nil if the bill doesn't exist (idempotent).
func (db *DB) DeleteBill(ctx context.Context, billID string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM bills WHERE id = ?", billID)
	if err != nil {
		return fmt.Errorf("failed to delete bill %s: %w", billID, err)
	}
	return nil
}

// GetBill retrieves a single bill by ID.
// Returns sql.ErrNoRows if the bill is not found.
func (db *DB) GetBill(ctx context.Context, billID string) (*schema.Bill, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+billColumns+" FROM bills WHERE id = ?", billID)
	return scanBill(row)
}

// ListBills returns every bill, oldest first.
func (db *DB) ListBills(ctx context.Context) ([]*schema.Bill, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+billColumns+" FROM bills ORDER BY createdAt ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	return scanBills(rows)
}

// BillsUpdatedSince returns bills with updatedAt strictly after the
// watermark. This is the push engine's incremental query.
func (db *DB) BillsUpdatedSince(ctx context.Context, since int64) ([]*schema.Bill, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+billColumns+" FROM bills WHERE updatedAt > ? ORDER BY updatedAt ASC", since)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills updated since %d: %w", since, err)
	}
	defer rows.Close()

	return scanBills(rows)
}

// BillCount returns the total number of bills.
func (db *DB) BillCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM bills").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bills: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBillFrom(s scanner) (*schema.Bill, error) {
	var bill schema.Bill
	var amount sql.NullFloat64
	var notes, notificationIDs, timezone sql.NullString
	var autopay int

	err := s.Scan(
		&bill.ID,
		&bill.Name,
		&bill.DueDate,
		&amount,
		&bill.Frequency,
		&autopay,
		&notes,
		&bill.IconKey,
		&bill.Status,
		&bill.CreatedAt,
		&bill.UpdatedAt,
		&notificationIDs,
		&timezone,
	)
	if err != nil {
		return nil, err
	}

	bill.Autopay = autopay != 0
	bill.Amount = floatPtr(amount)
	bill.Notes = stringPtr(notes)
	bill.NotificationIDs = stringPtr(notificationIDs)
	bill.Timezone = stringPtr(timezone)

	return &bill, nil
}

func scanBill(row *sql.Row) (*schema.Bill, error) {
	return scanBillFrom(row)
}

func scanBills(rows *sql.Rows) ([]*schema.Bill, error) {
	var bills []*schema.Bill
	for rows.Next() {
		bill, err := scanBillFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bills: %w", err)
	}
	return bills, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
