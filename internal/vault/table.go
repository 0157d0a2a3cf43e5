package vault

import (
	"fmt"

	"github.com/fengqlin/GrandR/internal/canon"
)

// ColumnType is the semantic type of a column's cells.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeBool   ColumnType = "bool"
)

// ValidColumnTypes defines the allowed column types.
var ValidColumnTypes = map[ColumnType]bool{
	TypeString: true,
	TypeInt:    true,
	TypeFloat:  true,
	TypeBool:   true,
}

// Column describes one column: name plus semantic type.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is the ordered list of columns of an asset version.
// Order is part of identity: the same columns in a different order are a
// different schema.
type Schema []Column

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas match exactly, including column order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate checks column names are unique and non-empty and types are known.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema has no columns")
	}
	seen := make(map[string]bool, len(s))
	for i, c := range s {
		if c.Name == "" {
			return fmt.Errorf("column %d has empty name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		if !ValidColumnTypes[c.Type] {
			return fmt.Errorf("column %q has unknown type %q", c.Name, c.Type)
		}
	}
	return nil
}

// Table is an in-memory columnar table. Cells are stored column-major;
// Null cells are permitted in any column.
type Table struct {
	Schema  Schema
	Columns []ColumnData
}

// ColumnData holds one column's cells.
type ColumnData []canon.Value

// NewTable creates an empty table with the given schema.
func NewTable(schema Schema) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("new table: %w", err)
	}
	cols := make([]ColumnData, len(schema))
	for i := range cols {
		cols[i] = ColumnData{}
	}
	return &Table{Schema: schema, Columns: cols}, nil
}

// Validate checks structural integrity: one column slice per schema column,
// all of equal length. Tables built through NewTable and AppendRow hold
// this by construction; tables assembled by hand through the exported
// fields may not.
func (t *Table) Validate() error {
	if err := t.Schema.Validate(); err != nil {
		return err
	}
	if len(t.Columns) != len(t.Schema) {
		return fmt.Errorf("table has %d column slices, schema has %d columns", len(t.Columns), len(t.Schema))
	}
	rows := len(t.Columns[0])
	for i, col := range t.Columns {
		if len(col) != rows {
			return fmt.Errorf("ragged table: column %q has %d cells, column %q has %d",
				t.Schema[i].Name, len(col), t.Schema[0].Name, rows)
		}
	}
	return nil
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0])
}

// Column returns the cells of the named column.
func (t *Table) Column(name string) (ColumnData, error) {
	idx := t.Schema.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("no column %q", name)
	}
	return t.Columns[idx], nil
}

// Cell returns the value at (row, column name).
func (t *Table) Cell(row int, name string) (canon.Value, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if row < 0 || row >= len(col) {
		return nil, fmt.Errorf("row %d out of range (%d rows)", row, len(col))
	}
	return col[row], nil
}

// AppendRow appends one row given cells in schema order.
// Cell types are checked against the schema; Null passes any check.
func (t *Table) AppendRow(cells ...canon.Value) error {
	if len(cells) != len(t.Schema) {
		return fmt.Errorf("append row: got %d cells, schema has %d columns", len(cells), len(t.Schema))
	}
	for i, cell := range cells {
		if err := checkCellType(cell, t.Schema[i].Type); err != nil {
			return fmt.Errorf("append row: column %q: %w", t.Schema[i].Name, err)
		}
	}
	for i, cell := range cells {
		t.Columns[i] = append(t.Columns[i], cell)
	}
	return nil
}

// checkCellType verifies a cell matches the column's semantic type.
func checkCellType(v canon.Value, ct ColumnType) error {
	switch v.(type) {
	case canon.Null:
		return nil
	case canon.String:
		if ct == TypeString {
			return nil
		}
	case canon.Int:
		if ct == TypeInt {
			return nil
		}
		// Ints widen into float columns without loss of intent.
		if ct == TypeFloat {
			return nil
		}
	case canon.Float:
		if ct == TypeFloat {
			return nil
		}
	case canon.Bool:
		if ct == TypeBool {
			return nil
		}
	default:
		return fmt.Errorf("cell type %T not storable", v)
	}
	return fmt.Errorf("cell %v does not match column type %s", v, ct)
}

// Equal reports whether two tables have identical schema and cells.
func (t *Table) Equal(other *Table) bool {
	if other == nil || !t.Schema.Equal(other.Schema) || t.NumRows() != other.NumRows() {
		return false
	}
	for i := range t.Columns {
		for j := range t.Columns[i] {
			if t.Columns[i][j] != other.Columns[i][j] {
				return false
			}
		}
	}
	return true
}
