// Package recorder orchestrates recorded executions: fingerprint the
// invocation, reuse the cached result when one exists, otherwise execute,
// persist, audit, and render a report. It is the only writer to the cache
// and the ledger.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fengqlin/GrandR/internal/audit"
	"github.com/fengqlin/GrandR/internal/cache"
	"github.com/fengqlin/GrandR/internal/canon"
	"github.com/fengqlin/GrandR/internal/fingerprint"
	"github.com/fengqlin/GrandR/internal/record"
	"github.com/fengqlin/GrandR/internal/report"
	"github.com/fengqlin/GrandR/internal/store"
	"github.com/fengqlin/GrandR/internal/vault"
)

// Recorder is the public entry point. Safe for concurrent use by multiple
// callers within one process; cross-process writers to the same backing
// storage are out of contract.
type Recorder struct {
	cache    *cache.Store
	audit    *audit.Log
	vault    *vault.Vault
	renderer report.Renderer
	logger   *slog.Logger
	locks    *lockTable
	now      func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRenderer sets the report renderer. Without one, runs complete but
// audit records carry no report reference.
func WithRenderer(r report.Renderer) Option {
	return func(rec *Recorder) { rec.renderer = r }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(rec *Recorder) { rec.logger = l }
}

// New creates a Recorder over an open database and vault.
func New(db *store.DB, v *vault.Vault, opts ...Option) *Recorder {
	rec := &Recorder{
		cache:  cache.New(db),
		audit:  audit.New(db),
		vault:  v,
		logger: slog.Default(),
		locks:  newLockTable(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// Result is what a completed run hands back to the caller.
type Result struct {
	Fingerprint fingerprint.Fingerprint
	Payload     *record.Payload
	Outcome     audit.Outcome
	Audit       audit.Record
	ReportRef   string
}

// Run executes one recorded invocation.
//
// The fingerprint is computed from the function token and the canonicalized
// arguments; a cache hit skips execution entirely. Concurrent calls with the
// same fingerprint serialize: the second caller blocks until the first has
// stored its result, then observes a hit. A failed execution leaves no cache
// entry and no audit record; the original error is wrapped, never replaced.
func (r *Recorder) Run(ctx context.Context, fn Func, args Args, note string) (*Result, error) {
	if err := fn.validate(); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	argsObj, err := args.canonicalize()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", fn.Token(), err)
	}
	fp, err := fingerprint.Compute(fn.Token(), argsObj)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", fn.Token(), err)
	}

	summary, err := canon.MarshalValue(argsObj)
	if err != nil {
		return nil, fmt.Errorf("run %s: summarize args: %w", fn.Token(), err)
	}

	log := r.logger.With("func", fn.Token(), "fingerprint", fp.Short())

	payload, meta, outcome, err := r.lookupOrExecute(ctx, fn, args, fp, string(summary), note, log)
	if err != nil {
		return nil, err
	}
	// On a hit, meta describes the original execution; the note is per-call
	// and must match the audit record the report is attached to.
	meta.Note = note

	rec, err := r.audit.Append(ctx, fp, outcome, note)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", fn.Token(), err)
	}
	log.Debug("audit appended", "seq", rec.Seq, "outcome", outcome)

	ref, err := r.renderReport(ctx, payload, meta, outcome, fp, rec.Seq)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", fn.Token(), err)
	}
	rec.ReportRef = ref

	return &Result{
		Fingerprint: fp,
		Payload:     payload,
		Outcome:     outcome,
		Audit:       rec,
		ReportRef:   ref,
	}, nil
}

// lookupOrExecute is the per-fingerprint critical section: at most one
// execution per fingerprint, no matter how many callers race on it.
func (r *Recorder) lookupOrExecute(
	ctx context.Context,
	fn Func,
	args Args,
	fp fingerprint.Fingerprint,
	summary, note string,
	log *slog.Logger,
) (*record.Payload, cache.Metadata, audit.Outcome, error) {
	r.locks.acquire(fp)
	defer r.locks.release(fp)

	entry, ok, err := r.cache.Lookup(ctx, fp)
	if err != nil {
		return nil, cache.Metadata{}, "", fmt.Errorf("run %s: %w", fn.Token(), err)
	}
	if ok {
		log.Debug("cache hit")
		return entry.Payload, entry.Meta, audit.OutcomeHit, nil
	}

	log.Debug("cache miss, executing")
	start := r.now()
	payload, err := fn.Run(ctx, r.vault, args)
	if err != nil {
		return nil, cache.Metadata{}, "", fmt.Errorf("run %s: execution failed: %w", fn.Token(), err)
	}
	duration := r.now().Sub(start)

	if payload == nil {
		return nil, cache.Metadata{}, "", fmt.Errorf("run %s: execution returned nil payload", fn.Token())
	}
	if err := payload.Validate(); err != nil {
		return nil, cache.Metadata{}, "", fmt.Errorf("run %s: %w", fn.Token(), err)
	}

	meta := cache.Metadata{
		FuncName:    fn.Token(),
		ArgsSummary: summary,
		Note:        note,
		Duration:    duration,
		CreatedAt:   r.now(),
	}
	if _, err := r.cache.Put(ctx, fp, payload, meta); err != nil {
		return nil, cache.Metadata{}, "", fmt.Errorf("run %s: %w", fn.Token(), err)
	}
	log.Debug("result stored", "duration", duration)

	return payload, meta, audit.OutcomeMiss, nil
}

// renderReport renders the payload and patches the reference into the
// just-written audit record. Rendering happens outside the fingerprint
// critical section.
func (r *Recorder) renderReport(
	ctx context.Context,
	payload *record.Payload,
	meta cache.Metadata,
	outcome audit.Outcome,
	fp fingerprint.Fingerprint,
	seq int64,
) (string, error) {
	if r.renderer == nil {
		return "", nil
	}

	ref, err := r.renderer.Render(ctx, payload, report.Metadata{
		FuncName:    meta.FuncName,
		ArgsSummary: meta.ArgsSummary,
		Note:        meta.Note,
		Outcome:     string(outcome),
		Fingerprint: string(fp),
		Duration:    meta.Duration,
		CreatedAt:   meta.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	if err := r.audit.SetReportRef(ctx, seq, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// WriteAsset stores a new version of the named asset.
func (r *Recorder) WriteAsset(ctx context.Context, name string, t *vault.Table, opts ...vault.WriteOption) (vault.Asset, error) {
	return r.vault.Write(ctx, name, t, opts...)
}

// ReadAsset returns a lazy handle on the latest version of the named asset.
func (r *Recorder) ReadAsset(ctx context.Context, name string) (*vault.Handle, error) {
	return r.vault.Read(ctx, name)
}

// ReadAssetVersion returns a lazy handle pinned to a specific version.
func (r *Recorder) ReadAssetVersion(ctx context.Context, name string, version int64) (*vault.Handle, error) {
	return r.vault.ReadVersion(ctx, name, version)
}

// ListAudit returns ledger records matching the filter in sequence order.
func (r *Recorder) ListAudit(ctx context.Context, f audit.Filter) ([]audit.Record, error) {
	it, err := r.audit.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return audit.Collect(it)
}

// GetCacheEntry fetches the cached result for a fingerprint.
func (r *Recorder) GetCacheEntry(ctx context.Context, fp fingerprint.Fingerprint) (*cache.Entry, bool, error) {
	return r.cache.Lookup(ctx, fp)
}

// PurgeCacheEntry removes a cached result. Audit records referencing it are
// kept, marked artifact-missing; the ledger stays append-only.
func (r *Recorder) PurgeCacheEntry(ctx context.Context, fp fingerprint.Fingerprint) (bool, error) {
	r.locks.acquire(fp)
	defer r.locks.release(fp)

	purged, err := r.cache.Purge(ctx, fp)
	if err != nil {
		return false, err
	}
	if !purged {
		return false, nil
	}
	if _, err := r.audit.MarkArtifactMissing(ctx, fp); err != nil {
		return true, err
	}
	r.logger.Debug("cache entry purged", "fingerprint", fp.Short())
	return true, nil
}
