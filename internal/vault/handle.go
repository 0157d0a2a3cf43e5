package vault

import (
	"context"
	"fmt"

	"github.com/fengqlin/GrandR/internal/canon"
)

// Handle is a lazy reference to one asset version. Projection and filtering
// return further handles without touching storage; only Materialize and the
// aggregation terminals perform I/O, and they decode only the column blocks
// the pipeline needs.
//
// Handles are immutable and bound to a specific version at creation, so a
// concurrent write to the same asset name can never change what an in-flight
// handle reads.
type Handle struct {
	vault      *Vault
	asset      Asset
	projection []string // nil means all columns
	filters    []Predicate
}

func newHandle(v *Vault, asset Asset) *Handle {
	return &Handle{vault: v, asset: asset}
}

// Asset returns the descriptor the handle is bound to.
func (h *Handle) Asset() Asset {
	return h.asset
}

// Schema returns the schema the handle will materialize: the projection if
// one is set, otherwise the full asset schema.
func (h *Handle) Schema() Schema {
	if h.projection == nil {
		return h.asset.Schema
	}
	out := make(Schema, 0, len(h.projection))
	for _, name := range h.projection {
		out = append(out, h.asset.Schema[h.asset.Schema.Index(name)])
	}
	return out
}

// Select returns a handle projecting only the named columns, in the given
// order. Fails immediately if a column does not exist - projection errors
// should surface at pipeline construction, not at materialization.
func (h *Handle) Select(columns ...string) (*Handle, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("select on %q: no columns given", h.asset.Name)
	}
	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		if h.asset.Schema.Index(name) < 0 {
			return nil, fmt.Errorf("select on %q: no column %q", h.asset.Name, name)
		}
		if h.projection != nil && !contains(h.projection, name) {
			return nil, fmt.Errorf("select on %q: column %q already projected away", h.asset.Name, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("select on %q: duplicate column %q", h.asset.Name, name)
		}
		seen[name] = true
	}

	next := *h
	next.projection = append([]string(nil), columns...)
	return &next, nil
}

// Filter returns a handle that keeps only rows matching the predicate.
// Multiple filters compose conjunctively.
func (h *Handle) Filter(p Predicate) (*Handle, error) {
	if h.asset.Schema.Index(p.Column) < 0 {
		return nil, fmt.Errorf("filter on %q: no column %q", h.asset.Name, p.Column)
	}
	if !validOps[p.Op] {
		return nil, fmt.Errorf("filter on %q: unknown op %q", h.asset.Name, p.Op)
	}

	next := *h
	next.filters = append(append([]Predicate(nil), h.filters...), p)
	return &next, nil
}

// Materialize performs the deferred I/O and returns an in-memory table with
// the handle's projection and filters applied. All-or-nothing: on error or
// context cancellation no partial table is returned and no state is retained
// on the handle.
func (h *Handle) Materialize(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("materialize %q v%d: %w", h.asset.Name, h.asset.Version, err)
	}

	outSchema := h.Schema()

	// Decode the union of projected and filtered columns; filter-only
	// columns are dropped after row selection.
	needed := make(map[string]bool, len(outSchema)+len(h.filters))
	for _, c := range outSchema {
		needed[c.Name] = true
	}
	for _, p := range h.filters {
		needed[p.Column] = true
	}

	cols, err := h.readColumns(ctx, needed)
	if err != nil {
		return nil, fmt.Errorf("materialize %q v%d: %w", h.asset.Name, h.asset.Version, err)
	}

	keep, err := h.selectRows(ctx, cols)
	if err != nil {
		return nil, fmt.Errorf("materialize %q v%d: %w", h.asset.Name, h.asset.Version, err)
	}

	out := &Table{Schema: outSchema, Columns: make([]ColumnData, len(outSchema))}
	for i, c := range outSchema {
		src := cols[c.Name]
		dst := make(ColumnData, 0, len(keep))
		for _, row := range keep {
			dst = append(dst, src[row])
		}
		out.Columns[i] = dst
	}
	return out, nil
}

// Count returns the number of rows the handle would materialize.
// With no filters this is answered from the catalog alone - zero I/O.
func (h *Handle) Count(ctx context.Context) (int64, error) {
	if len(h.filters) == 0 {
		return h.asset.RowCount, nil
	}

	needed := make(map[string]bool, len(h.filters))
	for _, p := range h.filters {
		needed[p.Column] = true
	}
	cols, err := h.readColumns(ctx, needed)
	if err != nil {
		return 0, fmt.Errorf("count %q v%d: %w", h.asset.Name, h.asset.Version, err)
	}
	keep, err := h.selectRows(ctx, cols)
	if err != nil {
		return 0, fmt.Errorf("count %q v%d: %w", h.asset.Name, h.asset.Version, err)
	}
	return int64(len(keep)), nil
}

// Sum totals a numeric column, decoding only that column plus any filter
// columns. Null cells are skipped.
func (h *Handle) Sum(ctx context.Context, column string) (float64, error) {
	sum, _, err := h.sumCount(ctx, column)
	return sum, err
}

// Mean averages a numeric column, decoding only that column plus any filter
// columns. Null cells are skipped; a column with no non-null cells errors.
func (h *Handle) Mean(ctx context.Context, column string) (float64, error) {
	sum, n, err := h.sumCount(ctx, column)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("mean of %q on %q v%d: no non-null cells", column, h.asset.Name, h.asset.Version)
	}
	return sum / float64(n), nil
}

func (h *Handle) sumCount(ctx context.Context, column string) (float64, int64, error) {
	idx := h.asset.Schema.Index(column)
	if idx < 0 {
		return 0, 0, fmt.Errorf("aggregate on %q: no column %q", h.asset.Name, column)
	}
	if ct := h.asset.Schema[idx].Type; ct != TypeInt && ct != TypeFloat {
		return 0, 0, fmt.Errorf("aggregate on %q: column %q has non-numeric type %s", h.asset.Name, column, ct)
	}

	needed := map[string]bool{column: true}
	for _, p := range h.filters {
		needed[p.Column] = true
	}
	cols, err := h.readColumns(ctx, needed)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate %q on %q v%d: %w", column, h.asset.Name, h.asset.Version, err)
	}
	keep, err := h.selectRows(ctx, cols)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate %q on %q v%d: %w", column, h.asset.Name, h.asset.Version, err)
	}

	var sum float64
	var n int64
	src := cols[column]
	for _, row := range keep {
		switch cell := src[row].(type) {
		case canon.Null:
			continue
		case canon.Int:
			sum += float64(cell)
			n++
		case canon.Float:
			sum += float64(cell)
			n++
		default:
			return 0, 0, fmt.Errorf("aggregate %q on %q v%d: non-numeric cell %T", column, h.asset.Name, h.asset.Version, cell)
		}
	}
	return sum, n, nil
}

// readColumns loads the container and decodes only the needed blocks.
func (h *Handle) readColumns(ctx context.Context, needed map[string]bool) (map[string]ColumnData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := h.vault.loadContainer(h.asset)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := openContainer(data)
	if err != nil {
		return nil, err
	}
	return r.readColumns(needed)
}

// selectRows applies the handle's filters and returns the surviving row
// indices in order.
func (h *Handle) selectRows(ctx context.Context, cols map[string]ColumnData) ([]int, error) {
	rowCount := int(h.asset.RowCount)
	keep := make([]int, 0, rowCount)

rows:
	for i := 0; i < rowCount; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, p := range h.filters {
			ok, err := p.match(cols[p.Column][i])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			if !ok {
				continue rows
			}
		}
		keep = append(keep, i)
	}
	return keep, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
