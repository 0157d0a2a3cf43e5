// Package cache maps fingerprints to persisted execution results.
// At most one entry exists per fingerprint; entries are immutable once
// written and removed only by explicit purge.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fengqlin/GrandR/internal/fingerprint"
	"github.com/fengqlin/GrandR/internal/record"
	"github.com/fengqlin/GrandR/internal/store"
)

// Metadata describes the execution that produced an entry.
type Metadata struct {
	FuncName    string
	ArgsSummary string
	Note        string
	Duration    time.Duration
	CreatedAt   time.Time
}

// Entry is one persisted execution result.
type Entry struct {
	Fingerprint fingerprint.Fingerprint
	Payload     *record.Payload
	Meta        Metadata
}

// DuplicateFingerprintError reports a Store call without a preceding lookup
// miss. This is a programming-contract breach in orchestration code, not a
// recoverable condition: the orchestrator serializes per fingerprint, so a
// correct caller can never observe it.
type DuplicateFingerprintError struct {
	Fingerprint fingerprint.Fingerprint
}

// Error implements the error interface.
func (e *DuplicateFingerprintError) Error() string {
	return fmt.Sprintf("cache entry already exists for fingerprint %s", e.Fingerprint.Short())
}

// IsDuplicateFingerprint returns true if err is (or wraps) a
// DuplicateFingerprintError.
func IsDuplicateFingerprint(err error) bool {
	var de *DuplicateFingerprintError
	return errors.As(err, &de)
}

// Store is the cache store over the shared database.
type Store struct {
	db *store.DB
}

// New creates a cache store over an open database.
func New(db *store.DB) *Store {
	return &Store{db: db}
}

// Lookup retrieves the entry for a fingerprint, with its payload fully
// reassembled. ok is false when no entry exists.
func (s *Store) Lookup(ctx context.Context, fp fingerprint.Fingerprint) (entry *Entry, ok bool, err error) {
	meta, found, err := s.Describe(ctx, fp)
	if err != nil || !found {
		return nil, false, err
	}

	var docJSON string
	err = s.db.SQL().QueryRowContext(ctx, `
		SELECT payload FROM cache_entries WHERE fingerprint = ?
	`, string(fp)).Scan(&docJSON)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", fp.Short(), err)
	}

	blobs, err := s.readBlobs(ctx, fp)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", fp.Short(), err)
	}

	payload, err := record.Decode([]byte(docJSON), blobs)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", fp.Short(), err)
	}

	return &Entry{Fingerprint: fp, Payload: payload, Meta: meta}, true, nil
}

// Describe retrieves an entry's metadata without touching payload blobs.
func (s *Store) Describe(ctx context.Context, fp fingerprint.Fingerprint) (Metadata, bool, error) {
	var m Metadata
	var durationMS int64
	var createdAt string

	err := s.db.SQL().QueryRowContext(ctx, `
		SELECT func_name, args_summary, note, duration_ms, created_at
		FROM cache_entries
		WHERE fingerprint = ?
	`, string(fp)).Scan(&m.FuncName, &m.ArgsSummary, &m.Note, &durationMS, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, fmt.Errorf("describe %s: %w", fp.Short(), err)
	}

	m.Duration = time.Duration(durationMS) * time.Millisecond
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Metadata{}, false, fmt.Errorf("describe %s: parse created_at: %w", fp.Short(), err)
	}
	m.CreatedAt = ts
	return m, true, nil
}

// Put persists a new entry: payload document and artifact blobs in one
// transaction. Fails with DuplicateFingerprintError if an entry already
// exists - the orchestrator must always look up first.
func (s *Store) Put(ctx context.Context, fp fingerprint.Fingerprint, payload *record.Payload, meta Metadata) (*Entry, error) {
	docJSON, blobs, err := record.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", fp.Short(), err)
	}

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	meta.CreatedAt = createdAt

	tx, err := s.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store %s: begin tx: %w", fp.Short(), err)
	}
	defer tx.Rollback() // no-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO cache_entries (fingerprint, payload, func_name, args_summary, note, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, string(fp), string(docJSON), meta.FuncName, meta.ArgsSummary, meta.Note,
		meta.Duration.Milliseconds(), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("store %s: insert entry: %w", fp.Short(), err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store %s: rows affected: %w", fp.Short(), err)
	}
	if rows == 0 {
		return nil, &DuplicateFingerprintError{Fingerprint: fp}
	}

	for _, b := range blobs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artifact_blobs (fingerprint, slot, media_type, data)
			VALUES (?, ?, ?, ?)
		`, string(fp), b.Slot, b.MediaType, b.Data); err != nil {
			return nil, fmt.Errorf("store %s: insert blob %q: %w", fp.Short(), b.Slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store %s: commit: %w", fp.Short(), err)
	}

	return &Entry{Fingerprint: fp, Payload: payload, Meta: meta}, nil
}

// Purge removes an entry and its blobs. Returns whether removal occurred;
// absent entries are not an error.
func (s *Store) Purge(ctx context.Context, fp fingerprint.Fingerprint) (bool, error) {
	res, err := s.db.SQL().ExecContext(ctx, `
		DELETE FROM cache_entries WHERE fingerprint = ?
	`, string(fp))
	if err != nil {
		return false, fmt.Errorf("purge %s: %w", fp.Short(), err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("purge %s: %w", fp.Short(), err)
	}
	return rows > 0, nil
}

func (s *Store) readBlobs(ctx context.Context, fp fingerprint.Fingerprint) ([]record.Blob, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `
		SELECT slot, media_type, data
		FROM artifact_blobs
		WHERE fingerprint = ?
		ORDER BY slot ASC
	`, string(fp))
	if err != nil {
		return nil, fmt.Errorf("read blobs: %w", err)
	}
	defer rows.Close()

	var blobs []record.Blob
	for rows.Next() {
		var b record.Blob
		if err := rows.Scan(&b.Slot, &b.MediaType, &b.Data); err != nil {
			return nil, fmt.Errorf("scan blob: %w", err)
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blobs: %w", err)
	}
	return blobs, nil
}
