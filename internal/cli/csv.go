package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/fengqlin/GrandR/internal/canon"
	"github.com/fengqlin/GrandR/internal/vault"
)

// tableFromCSV parses CSV into a table. The first record is the header; each
// column's type is sniffed from its non-empty cells: int if every cell parses
// as an integer, float if every cell parses as a number, bool if every cell
// is true/false, otherwise string. Empty cells become nulls.
func tableFromCSV(r io.Reader) (*vault.Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: no header row")
	}

	header := records[0]
	rows := records[1:]

	schema := make(vault.Schema, len(header))
	for i, name := range header {
		schema[i] = vault.Column{Name: name, Type: sniffColumnType(rows, i)}
	}

	table, err := vault.NewTable(schema)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	for rowIdx, rec := range rows {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("read csv: row %d has %d cells, header has %d", rowIdx+1, len(rec), len(header))
		}
		for col, cell := range rec {
			v, err := parseCell(cell, schema[col].Type)
			if err != nil {
				return nil, fmt.Errorf("read csv: row %d column %q: %w", rowIdx+1, header[col], err)
			}
			table.Columns[col] = append(table.Columns[col], v)
		}
	}
	return table, nil
}

func sniffColumnType(rows [][]string, col int) vault.ColumnType {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, rec := range rows {
		if col >= len(rec) || rec[col] == "" {
			continue
		}
		seen = true
		cell := rec[col]
		if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			isFloat = false
		}
		if cell != "true" && cell != "false" {
			isBool = false
		}
	}
	switch {
	case !seen:
		return vault.TypeString
	case isInt:
		return vault.TypeInt
	case isFloat:
		return vault.TypeFloat
	case isBool:
		return vault.TypeBool
	default:
		return vault.TypeString
	}
}

func parseCell(cell string, t vault.ColumnType) (canon.Value, error) {
	if cell == "" {
		return canon.Null{}, nil
	}
	switch t {
	case vault.TypeInt:
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil, err
		}
		return canon.Int(n), nil
	case vault.TypeFloat:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, err
		}
		return canon.Float(f), nil
	case vault.TypeBool:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, err
		}
		return canon.Bool(b), nil
	default:
		return canon.String(cell), nil
	}
}

// tableToCSV writes a table as CSV with a header row. Nulls become empty
// cells, which round-trips with tableFromCSV.
func tableToCSV(w io.Writer, t *vault.Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(t.Schema))
	for i, c := range t.Schema {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	for row := 0; row < t.NumRows(); row++ {
		rec := make([]string, len(t.Schema))
		for col := range t.Schema {
			rec[col] = formatCell(t.Columns[col][row])
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func formatCell(v canon.Value) string {
	switch val := v.(type) {
	case canon.Null:
		return ""
	case canon.String:
		return string(val)
	case canon.Int:
		return strconv.FormatInt(int64(val), 10)
	case canon.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case canon.Bool:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}
