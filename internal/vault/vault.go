// Package vault implements the columnar asset store: named, versioned,
// immutable datasets with lazy read handles.
//
// Asset data lives in self-describing container files (see format.go);
// version bookkeeping lives in a SQLite catalog. Writes under an existing
// name always create a new version - prior versions are never touched, which
// is what makes fingerprinting and cache reuse safe.
package vault

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fengqlin/GrandR/internal/fingerprint"
)

//go:embed catalog.sql
var catalogSQL string

// Asset describes one stored version of a named dataset.
type Asset struct {
	Name      string
	Version   int64
	Schema    Schema
	RowCount  int64
	Digest    fingerprint.Fingerprint
	Location  string // path relative to the vault root
	CreatedAt time.Time
}

// Ref returns the fingerprint-side representation: name and version only.
func (a Asset) Ref() fingerprint.AssetRef {
	return fingerprint.AssetRef{Name: a.Name, Version: a.Version}
}

// Vault is a content-addressed columnar asset store rooted at a directory.
type Vault struct {
	root string
	db   *sql.DB
}

// Open creates or opens a vault rooted at dir.
// Idempotent - safe to call multiple times on the same directory.
func Open(dir string) (*Vault, error) {
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("open vault catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect vault catalog: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY and serializes version assignment.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(catalogSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply vault catalog schema: %w", err)
	}

	return &Vault{root: dir, db: db}, nil
}

// Close closes the catalog connection.
func (v *Vault) Close() error {
	if v.db == nil {
		return nil
	}
	return v.db.Close()
}

// WriteOption configures a Write call.
type WriteOption func(*writeOptions)

type writeOptions struct {
	strictSchema bool
}

// WithStrictSchema makes the write fail with SchemaConflictError when the
// table's schema differs from the latest stored version. Without it, schema
// drift across versions is permitted (additive versioning).
func WithStrictSchema() WriteOption {
	return func(o *writeOptions) { o.strictSchema = true }
}

// Write serializes a table under a new version of name and returns the new
// Asset descriptor. Version assignment is serialized through the catalog
// transaction: concurrent writers to the same name never collide or skip.
func (v *Vault) Write(ctx context.Context, name string, t *Table, opts ...WriteOption) (Asset, error) {
	if name == "" {
		return Asset{}, fmt.Errorf("write asset: empty name")
	}
	if t == nil {
		return Asset{}, fmt.Errorf("write asset %q: nil table", name)
	}

	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	container, err := EncodeContainer(t)
	if err != nil {
		return Asset{}, fmt.Errorf("write asset %q: %w", name, err)
	}
	digest := fingerprint.AssetDigest(container)

	schemaJSON, err := json.Marshal(t.Schema)
	if err != nil {
		return Asset{}, fmt.Errorf("write asset %q: marshal schema: %w", name, err)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("write asset %q: begin tx: %w", name, err)
	}
	defer tx.Rollback() // no-op if committed

	// Claim the next version inside the transaction.
	var prevVersion sql.NullInt64
	var prevSchemaJSON sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT version, schema FROM assets
		WHERE name = ?
		ORDER BY version DESC
		LIMIT 1
	`, name).Scan(&prevVersion, &prevSchemaJSON)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Asset{}, fmt.Errorf("write asset %q: read latest version: %w", name, err)
	}

	version := prevVersion.Int64 + 1

	if o.strictSchema && prevSchemaJSON.Valid {
		var prevSchema Schema
		if err := json.Unmarshal([]byte(prevSchemaJSON.String), &prevSchema); err != nil {
			return Asset{}, fmt.Errorf("write asset %q: decode stored schema: %w", name, err)
		}
		if !t.Schema.Equal(prevSchema) {
			return Asset{}, &SchemaConflictError{Name: name, Want: prevSchema, Got: t.Schema}
		}
	}

	location := filepath.Join("assets", name, fmt.Sprintf("v%d.grcol", version))
	createdAt := time.Now().UTC()

	// Durable write before the catalog row exists: temp file + rename so a
	// crash never leaves a catalog row pointing at a partial container.
	absPath := filepath.Join(v.root, location)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return Asset{}, fmt.Errorf("write asset %q: %w", name, err)
	}
	tmpPath := absPath + ".tmp"
	if err := os.WriteFile(tmpPath, container, 0o644); err != nil {
		return Asset{}, fmt.Errorf("write asset %q: %w", name, err)
	}
	if err := os.Rename(tmpPath, absPath); err != nil {
		os.Remove(tmpPath)
		return Asset{}, fmt.Errorf("write asset %q: %w", name, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assets (name, version, schema, row_count, digest, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, name, version, string(schemaJSON), t.NumRows(), string(digest), location,
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		os.Remove(absPath)
		return Asset{}, fmt.Errorf("write asset %q: insert catalog row: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		os.Remove(absPath)
		return Asset{}, fmt.Errorf("write asset %q: commit: %w", name, err)
	}

	return Asset{
		Name:      name,
		Version:   version,
		Schema:    t.Schema,
		RowCount:  int64(t.NumRows()),
		Digest:    digest,
		Location:  location,
		CreatedAt: createdAt,
	}, nil
}

// Read returns a lazy handle bound to the latest version of name.
// No column data is touched until the handle is materialized.
func (v *Vault) Read(ctx context.Context, name string) (*Handle, error) {
	return v.ReadVersion(ctx, name, 0)
}

// ReadVersion returns a lazy handle bound to a specific version.
// version 0 means latest. The handle stays pinned to the resolved version:
// later writes to the same name never affect it.
func (v *Vault) ReadVersion(ctx context.Context, name string, version int64) (*Handle, error) {
	asset, err := v.Describe(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return newHandle(v, asset), nil
}

// Describe returns the Asset descriptor for (name, version) without reading
// any column data. version 0 means latest.
func (v *Vault) Describe(ctx context.Context, name string, version int64) (Asset, error) {
	query := `
		SELECT name, version, schema, row_count, digest, location, created_at
		FROM assets
		WHERE name = ?
	`
	args := []any{name}
	if version > 0 {
		query += " AND version = ?"
		args = append(args, version)
	}
	query += " ORDER BY version DESC LIMIT 1"

	row := v.db.QueryRowContext(ctx, query, args...)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Asset{}, &NotFoundError{Name: name, Version: version}
	}
	if err != nil {
		return Asset{}, fmt.Errorf("describe asset %q: %w", name, err)
	}
	return asset, nil
}

// Versions returns all stored versions of name in ascending version order.
func (v *Vault) Versions(ctx context.Context, name string) ([]Asset, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT name, version, schema, row_count, digest, location, created_at
		FROM assets
		WHERE name = ?
		ORDER BY version ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("list versions of %q: %w", name, err)
	}
	defer rows.Close()

	assets, err := collectAssets(rows)
	if err != nil {
		return nil, fmt.Errorf("list versions of %q: %w", name, err)
	}
	if len(assets) == 0 {
		return nil, &NotFoundError{Name: name}
	}
	return assets, nil
}

// Assets returns the latest version of every stored asset, ordered by name.
func (v *Vault) Assets(ctx context.Context) ([]Asset, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT a.name, a.version, a.schema, a.row_count, a.digest, a.location, a.created_at
		FROM assets a
		JOIN (SELECT name, MAX(version) AS version FROM assets GROUP BY name) latest
		  ON a.name = latest.name AND a.version = latest.version
		ORDER BY a.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	assets, err := collectAssets(rows)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	return assets, nil
}

// Delete removes one version of an asset: catalog row first, container file
// after. Returns whether a version was removed. Not part of the normal flow;
// exposed for explicit cleanup only.
func (v *Vault) Delete(ctx context.Context, name string, version int64) (bool, error) {
	asset, err := v.Describe(ctx, name, version)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	res, err := v.db.ExecContext(ctx, `
		DELETE FROM assets WHERE name = ? AND version = ?
	`, asset.Name, asset.Version)
	if err != nil {
		return false, fmt.Errorf("delete asset %q v%d: %w", name, asset.Version, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete asset %q v%d: %w", name, asset.Version, err)
	}
	if n == 0 {
		return false, nil
	}

	if err := os.Remove(filepath.Join(v.root, asset.Location)); err != nil && !os.IsNotExist(err) {
		return true, fmt.Errorf("delete asset %q v%d: remove container: %w", name, asset.Version, err)
	}
	return true, nil
}

// loadContainer reads an asset's container bytes and verifies the digest
// recorded at write time.
func (v *Vault) loadContainer(asset Asset) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(v.root, asset.Location))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Name: asset.Name, Version: asset.Version}
		}
		return nil, fmt.Errorf("load asset %q v%d: %w", asset.Name, asset.Version, err)
	}
	if got := fingerprint.AssetDigest(data); got != asset.Digest {
		return nil, fmt.Errorf("load asset %q v%d: digest mismatch (container corrupted)", asset.Name, asset.Version)
	}
	return data, nil
}

// rowScanner abstracts sql.Row and sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (Asset, error) {
	var a Asset
	var schemaJSON, digest, createdAt string
	if err := row.Scan(&a.Name, &a.Version, &schemaJSON, &a.RowCount, &digest, &a.Location, &createdAt); err != nil {
		return Asset{}, err
	}
	if err := json.Unmarshal([]byte(schemaJSON), &a.Schema); err != nil {
		return Asset{}, fmt.Errorf("decode schema: %w", err)
	}
	a.Digest = fingerprint.Fingerprint(digest)
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Asset{}, fmt.Errorf("parse created_at: %w", err)
	}
	a.CreatedAt = ts
	return a, nil
}

func collectAssets(rows *sql.Rows) ([]Asset, error) {
	var assets []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if assets == nil {
		assets = []Asset{}
	}
	return assets, nil
}
