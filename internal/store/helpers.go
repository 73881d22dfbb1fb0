package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/ReliefPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanTurns reads every row of a turns query.
func scanTurns(rows *sql.Rows) ([]models.TurnRecord, error) {
	turns := []models.TurnRecord{}
	for rows.Next() {
		var t models.TurnRecord
		var phone sql.NullString
		if err := rows.Scan(&t.ID, &t.InputType, &phone, &t.Text, &t.Intent, &t.ResponseText, &t.AudioBytes, &t.SMSSent, &t.Time); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.PhoneNumber = phone.String
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	return turns, nil
}

// scanReceipts reads every row of a receipts query.
func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	receipts := []models.Receipt{}
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

// turnLimit maps a non-positive limit to -1, which SQLite reads as no limit.
func turnLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
