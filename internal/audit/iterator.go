package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fengqlin/GrandR/internal/fingerprint"
)

// Iterator walks ledger rows lazily, in ascending sequence order.
// Usage mirrors sql.Rows: Next, Record, Err, Close.
type Iterator struct {
	rows    *sql.Rows
	current Record
	err     error
}

// Next advances to the next record. Returns false at the end or on error;
// check Err after the loop.
func (it *Iterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		if it.err == nil {
			it.err = it.rows.Err()
		}
		return false
	}

	var r Record
	var fp, outcome, createdAt string
	var missing int
	if err := it.rows.Scan(&r.Seq, &fp, &outcome, &r.Note, &r.ReportRef, &missing, &createdAt); err != nil {
		it.err = fmt.Errorf("scan audit record: %w", err)
		return false
	}
	r.Fingerprint = fingerprint.Fingerprint(fp)
	r.Outcome = Outcome(outcome)
	r.ArtifactMissing = missing != 0

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		it.err = fmt.Errorf("parse audit created_at: %w", err)
		return false
	}
	r.CreatedAt = ts

	it.current = r
	return true
}

// Record returns the record produced by the last successful Next.
func (it *Iterator) Record() Record {
	return it.current
}

// Err returns the first error encountered during iteration.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the underlying rows. Safe to call multiple times.
func (it *Iterator) Close() error {
	return it.rows.Close()
}
