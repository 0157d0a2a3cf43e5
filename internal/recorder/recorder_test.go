package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fengqlin/GrandR/internal/audit"
	"github.com/fengqlin/GrandR/internal/canon"
	"github.com/fengqlin/GrandR/internal/fingerprint"
	"github.com/fengqlin/GrandR/internal/record"
	"github.com/fengqlin/GrandR/internal/report"
	"github.com/fengqlin/GrandR/internal/store"
	"github.com/fengqlin/GrandR/internal/vault"
)

func newTestRecorder(t *testing.T, opts ...Option) *Recorder {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "grandr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	v, err := vault.Open(filepath.Join(dir, "vault"))
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })

	return New(db, v, opts...)
}

func scalarFunc(name string, calls *atomic.Int64) Func {
	return Func{
		Name:     name,
		Revision: 1,
		Run: func(ctx context.Context, v *vault.Vault, args Args) (*record.Payload, error) {
			if calls != nil {
				calls.Add(1)
			}
			p := record.NewPayload()
			if err := p.SetScalar("answer", canon.Int(42)); err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

func TestRunCacheCorrectness(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	var calls atomic.Int64
	fn := scalarFunc("demo/answer", &calls)
	args := Args{"n": 7}

	first, err := rec.Run(ctx, fn, args, "first")
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeMiss, first.Outcome)
	assert.EqualValues(t, 1, first.Audit.Seq)

	second, err := rec.Run(ctx, fn, args, "second")
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeHit, second.Outcome)
	assert.EqualValues(t, 2, second.Audit.Seq)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.True(t, first.Payload.Equal(second.Payload))
	assert.EqualValues(t, 1, calls.Load(), "function must run exactly once across both calls")
}

func TestRunAtMostOnceUnderConcurrency(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	var calls atomic.Int64
	fn := scalarFunc("demo/concurrent", &calls)
	args := Args{"n": 3}

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rec.Run(ctx, fn, args, fmt.Sprintf("caller %d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.EqualValues(t, 1, calls.Load())

	records, err := rec.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, n)
	for i, r := range records {
		assert.EqualValues(t, i+1, r.Seq)
		assert.Equal(t, records[0].Fingerprint, r.Fingerprint)
	}
}

func TestRunFailureIsolation(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	boom := errors.New("bad statistics")
	fn := Func{
		Name:     "demo/fails",
		Revision: 1,
		Run: func(ctx context.Context, v *vault.Vault, args Args) (*record.Payload, error) {
			return nil, boom
		},
	}

	_, err := rec.Run(ctx, fn, Args{"n": 1}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom, "original error must stay observable")

	records, err := rec.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records, "failed runs leave no audit record")

	fp := mustFingerprint(t, fn, Args{"n": 1})
	_, ok, err := rec.GetCacheEntry(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok, "failed runs leave no cache entry")
}

func mustFingerprint(t *testing.T, fn Func, args Args) fingerprint.Fingerprint {
	t.Helper()
	obj, err := args.canonicalize()
	require.NoError(t, err)
	fp, err := fingerprint.Compute(fn.Token(), obj)
	require.NoError(t, err)
	return fp
}

func TestRunRejectsInvalidPayload(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	fn := Func{
		Name:     "demo/empty",
		Revision: 1,
		Run: func(ctx context.Context, v *vault.Vault, args Args) (*record.Payload, error) {
			return record.NewPayload(), nil
		},
	}

	_, err := rec.Run(ctx, fn, Args{}, "")
	require.Error(t, err)

	records, err := rec.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunRejectsNonDeterministicArgs(t *testing.T) {
	rec := newTestRecorder(t)

	fn := scalarFunc("demo/ndargs", nil)
	_, err := rec.Run(context.Background(), fn, Args{"ch": make(chan int)}, "")
	require.Error(t, err)
	assert.True(t, canon.IsNonDeterministic(err))
}

func TestRunRevisionChangesFingerprint(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	var calls atomic.Int64
	fn := scalarFunc("demo/rev", &calls)

	first, err := rec.Run(ctx, fn, Args{"n": 1}, "")
	require.NoError(t, err)

	fn.Revision = 2
	second, err := rec.Run(ctx, fn, Args{"n": 1}, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, audit.OutcomeMiss, second.Outcome)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRunGroupMeanOverAsset(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	table, err := vault.NewTable(vault.Schema{
		{Name: "group", Type: vault.TypeString},
		{Name: "value", Type: vault.TypeFloat},
	})
	require.NoError(t, err)
	table.Columns[0] = vault.ColumnData{
		canon.String("a"), canon.String("a"), canon.String("b"), canon.String("b"),
	}
	table.Columns[1] = vault.ColumnData{
		canon.Float(1), canon.Float(3), canon.Float(10), canon.Float(20),
	}

	asset, err := rec.WriteAsset(ctx, "Cohort", table)
	require.NoError(t, err)

	var calls atomic.Int64
	fn := Func{
		Name:     "demo/group-mean",
		Revision: 1,
		Run: func(ctx context.Context, v *vault.Vault, args Args) (*record.Payload, error) {
			calls.Add(1)
			ref := args["cohort"].(vault.Asset)
			h, err := v.ReadVersion(ctx, ref.Name, ref.Version)
			if err != nil {
				return nil, err
			}
			h, err = h.Filter(vault.Eq("group", canon.String("a")))
			if err != nil {
				return nil, err
			}
			mean, err := h.Mean(ctx, "value")
			if err != nil {
				return nil, err
			}
			p := record.NewPayload()
			if err := p.SetScalar("mean_a", canon.Float(mean)); err != nil {
				return nil, err
			}
			return p, nil
		},
	}

	first, err := rec.Run(ctx, fn, Args{"cohort": asset}, "baseline")
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeMiss, first.Outcome)

	slot, ok := first.Payload.Get("mean_a")
	require.True(t, ok)
	assert.Equal(t, canon.Float(2), slot.Scalar)

	second, err := rec.Run(ctx, fn, Args{"cohort": asset}, "rerun")
	require.NoError(t, err)
	assert.Equal(t, audit.OutcomeHit, second.Outcome)
	assert.True(t, first.Payload.Equal(second.Payload))
	assert.EqualValues(t, 1, calls.Load())
}

func TestRunNewAssetVersionChangesFingerprint(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	table, err := vault.NewTable(vault.Schema{{Name: "x", Type: vault.TypeInt}})
	require.NoError(t, err)
	table.Columns[0] = vault.ColumnData{canon.Int(1)}

	v1, err := rec.WriteAsset(ctx, "X", table)
	require.NoError(t, err)
	v2, err := rec.WriteAsset(ctx, "X", table)
	require.NoError(t, err)
	require.NotEqual(t, v1.Version, v2.Version)

	var calls atomic.Int64
	fn := scalarFuncWithAsset("demo/versions", &calls)

	first, err := rec.Run(ctx, fn, Args{"x": v1.Ref()}, "")
	require.NoError(t, err)
	second, err := rec.Run(ctx, fn, Args{"x": v2.Ref()}, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.EqualValues(t, 2, calls.Load())
}

func scalarFuncWithAsset(name string, calls *atomic.Int64) Func {
	return Func{
		Name:     name,
		Revision: 1,
		Run: func(ctx context.Context, v *vault.Vault, args Args) (*record.Payload, error) {
			calls.Add(1)
			p := record.NewPayload()
			if err := p.SetScalar("ok", canon.Bool(true)); err != nil {
				return nil, err
			}
			return p, nil
		},
	}
}

func TestRunWithRenderer(t *testing.T) {
	reportsDir := t.TempDir()
	renderer, err := report.NewHTMLRenderer(reportsDir)
	require.NoError(t, err)

	rec := newTestRecorder(t, WithRenderer(renderer))
	ctx := context.Background()

	res, err := rec.Run(ctx, scalarFunc("demo/report", nil), Args{"n": 1}, "with report")
	require.NoError(t, err)
	require.NotEmpty(t, res.ReportRef)

	records, err := rec.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, res.ReportRef, records[0].ReportRef)
}

func TestRunRejectsReservedAssetKeyInMap(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	table, err := vault.NewTable(vault.Schema{{Name: "x", Type: vault.TypeInt}})
	require.NoError(t, err)
	require.NoError(t, table.AppendRow(canon.Int(1)))
	asset, err := rec.WriteAsset(ctx, "Cohort", table)
	require.NoError(t, err)

	var calls atomic.Int64
	fn := scalarFuncWithAsset("demo/reserved", &calls)

	_, err = rec.Run(ctx, fn, Args{"x": asset.Ref()}, "")
	require.NoError(t, err)

	// A plain map shaped like an asset reference must not share the
	// reference's fingerprint; it is rejected outright.
	forged := map[string]any{"$asset": "Cohort", "version": int64(1)}
	_, err = rec.Run(ctx, fn, Args{"x": forged}, "")
	require.Error(t, err)
	assert.True(t, canon.IsNonDeterministic(err))
	assert.EqualValues(t, 1, calls.Load(), "forged reference must not execute or hit the cache")

	records, err := rec.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRunRejectsRaggedTablePayload(t *testing.T) {
	reportsDir := t.TempDir()
	renderer, err := report.NewHTMLRenderer(reportsDir)
	require.NoError(t, err)
	rec := newTestRecorder(t, WithRenderer(renderer))
	ctx := context.Background()

	fn := Func{
		Name:     "demo/ragged",
		Revision: 1,
		Run: func(ctx context.Context, v *vault.Vault, args Args) (*record.Payload, error) {
			table, err := vault.NewTable(vault.Schema{
				{Name: "group", Type: vault.TypeString},
				{Name: "mean", Type: vault.TypeFloat},
			})
			if err != nil {
				return nil, err
			}
			if err := table.AppendRow(canon.String("a"), canon.Float(1)); err != nil {
				return nil, err
			}
			p := record.NewPayload()
			if err := p.SetTable("means", table); err != nil {
				return nil, err
			}
			// mutate the shared table after the slot is set
			table.Columns[1] = table.Columns[1][:0]
			return p, nil
		},
	}

	_, err = rec.Run(ctx, fn, Args{}, "")
	require.Error(t, err)
	assert.True(t, record.IsUnsupportedResultType(err))

	records, err := rec.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Empty(t, records, "rejected payloads leave no audit record")
}

type captureRenderer struct {
	mu    sync.Mutex
	metas []report.Metadata
}

func (c *captureRenderer) Render(ctx context.Context, payload *record.Payload, meta report.Metadata) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metas = append(c.metas, meta)
	return fmt.Sprintf("ref-%d", len(c.metas)), nil
}

func TestRunHitReportCarriesCurrentNote(t *testing.T) {
	renderer := &captureRenderer{}
	rec := newTestRecorder(t, WithRenderer(renderer))
	ctx := context.Background()

	fn := scalarFunc("demo/notes", nil)
	_, err := rec.Run(ctx, fn, Args{"n": 1}, "baseline")
	require.NoError(t, err)
	_, err = rec.Run(ctx, fn, Args{"n": 1}, "rerun")
	require.NoError(t, err)

	require.Len(t, renderer.metas, 2)
	assert.Equal(t, "baseline", renderer.metas[0].Note)
	assert.Equal(t, "rerun", renderer.metas[1].Note)
	assert.Equal(t, string(audit.OutcomeHit), renderer.metas[1].Outcome)

	records, err := rec.ListAudit(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rerun", records[1].Note)
	assert.Equal(t, records[1].ReportRef, "ref-2")
}

func TestPurgeCacheEntry(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	res, err := rec.Run(ctx, scalarFunc("demo/purge", nil), Args{"n": 1}, "")
	require.NoError(t, err)

	purged, err := rec.PurgeCacheEntry(ctx, res.Fingerprint)
	require.NoError(t, err)
	assert.True(t, purged)

	_, ok, err := rec.GetCacheEntry(ctx, res.Fingerprint)
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := rec.ListAudit(ctx, audit.Filter{Fingerprint: res.Fingerprint})
	require.NoError(t, err)
	require.Len(t, records, 1, "purge keeps the ledger append-only")
	assert.True(t, records[0].ArtifactMissing)

	purged, err = rec.PurgeCacheEntry(ctx, res.Fingerprint)
	require.NoError(t, err)
	assert.False(t, purged)
}

func TestListAuditFilterByFingerprint(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	a, err := rec.Run(ctx, scalarFunc("demo/filter-a", nil), Args{}, "")
	require.NoError(t, err)
	_, err = rec.Run(ctx, scalarFunc("demo/filter-b", nil), Args{}, "")
	require.NoError(t, err)

	records, err := rec.ListAudit(ctx, audit.Filter{Fingerprint: a.Fingerprint})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, a.Fingerprint, records[0].Fingerprint)
}
