// Package audit implements the append-only, time-ordered ledger of recorded
// executions. The ledger holds fingerprints referencing cache entries, never
// payload copies; sequence numbers are dense and strictly increasing across
// all concurrent callers.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fengqlin/GrandR/internal/fingerprint"
	"github.com/fengqlin/GrandR/internal/store"
)

// Outcome records whether a call hit the cache or recomputed.
type Outcome string

const (
	OutcomeHit  Outcome = "hit"
	OutcomeMiss Outcome = "miss-recomputed"
)

// Record is one ledger row.
type Record struct {
	Seq             int64
	Fingerprint     fingerprint.Fingerprint
	Outcome         Outcome
	Note            string
	ReportRef       string
	ArtifactMissing bool
	CreatedAt       time.Time
}

// Log is the audit ledger over the shared database.
type Log struct {
	db *store.DB
}

// New creates a ledger over an open database.
func New(db *store.DB) *Log {
	return &Log{db: db}
}

// Append assigns the next sequence number and writes the record durably.
// Sequence assignment happens inside the transaction on a single-writer
// connection, so concurrent appends are linearizable: no duplicates, no
// gaps. Storage failure is fatal to the call - an audit entry is never
// dropped silently.
func (l *Log) Append(ctx context.Context, fp fingerprint.Fingerprint, outcome Outcome, note string) (Record, error) {
	if outcome != OutcomeHit && outcome != OutcomeMiss {
		return Record{}, fmt.Errorf("append audit record: invalid outcome %q", outcome)
	}

	createdAt := time.Now().UTC()

	tx, err := l.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("append audit record: begin tx: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_records
	`).Scan(&seq); err != nil {
		return Record{}, fmt.Errorf("append audit record: next seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_records (seq, fingerprint, cache_outcome, note, report_ref, artifact_missing, created_at)
		VALUES (?, ?, ?, ?, '', 0, ?)
	`, seq, string(fp), string(outcome), note, createdAt.Format(time.RFC3339Nano)); err != nil {
		return Record{}, fmt.Errorf("append audit record: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("append audit record: commit: %w", err)
	}

	return Record{
		Seq:         seq,
		Fingerprint: fp,
		Outcome:     outcome,
		Note:        note,
		CreatedAt:   createdAt,
	}, nil
}

// SetReportRef patches the report reference into a just-appended record.
// The reference is write-once: patching a record that already has one is a
// contract breach in orchestration code.
func (l *Log) SetReportRef(ctx context.Context, seq int64, ref string) error {
	if ref == "" {
		return fmt.Errorf("set report ref for seq %d: empty reference", seq)
	}

	res, err := l.db.SQL().ExecContext(ctx, `
		UPDATE audit_records SET report_ref = ?
		WHERE seq = ? AND report_ref = ''
	`, ref, seq)
	if err != nil {
		return fmt.Errorf("set report ref for seq %d: %w", seq, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set report ref for seq %d: %w", seq, err)
	}
	if rows == 0 {
		return fmt.Errorf("set report ref for seq %d: record missing or reference already set", seq)
	}
	return nil
}

// MarkArtifactMissing tombstones every record referencing a purged cache
// entry. The rows themselves stay: the ledger is append-only, so eviction
// marks rather than deletes. Returns how many records were marked.
func (l *Log) MarkArtifactMissing(ctx context.Context, fp fingerprint.Fingerprint) (int64, error) {
	res, err := l.db.SQL().ExecContext(ctx, `
		UPDATE audit_records SET artifact_missing = 1
		WHERE fingerprint = ? AND artifact_missing = 0
	`, string(fp))
	if err != nil {
		return 0, fmt.Errorf("mark artifact missing for %s: %w", fp.Short(), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark artifact missing for %s: %w", fp.Short(), err)
	}
	return rows, nil
}

// Filter narrows a List call. Zero values mean "no constraint".
type Filter struct {
	Fingerprint fingerprint.Fingerprint
	SinceSeq    int64     // inclusive
	UntilSeq    int64     // inclusive
	Since       time.Time // inclusive
	Until       time.Time // exclusive
}

// List returns a lazy iterator over matching records in ascending sequence
// order. Each List call re-reads from storage: records appended after the
// call are visible to new iterations, never to ones already in progress.
func (l *Log) List(ctx context.Context, f Filter) (*Iterator, error) {
	var conds []string
	var args []any

	if f.Fingerprint != "" {
		conds = append(conds, "fingerprint = ?")
		args = append(args, string(f.Fingerprint))
	}
	if f.SinceSeq > 0 {
		conds = append(conds, "seq >= ?")
		args = append(args, f.SinceSeq)
	}
	if f.UntilSeq > 0 {
		conds = append(conds, "seq <= ?")
		args = append(args, f.UntilSeq)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}

	query := "SELECT seq, fingerprint, cache_outcome, note, report_ref, artifact_missing, created_at FROM audit_records"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := l.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return &Iterator{rows: rows}, nil
}

// Collect drains an iterator into a slice. Convenience for tests and small
// result sets; large scans should iterate.
func Collect(it *Iterator) ([]Record, error) {
	defer it.Close()

	records := []Record{}
	for it.Next() {
		records = append(records, it.Record())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
