package vault

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fengqlin/GrandR/internal/canon"
)

// Container format: a self-describing columnar file. A reader can recover
// the schema from the file alone, and can decode any single column without
// touching the others.
//
// Layout:
//
//	magic   8 bytes  "GRCOL\x00v1"
//	header  uvarint length + JSON {schema, row_count}
//	blocks  per column, in schema order:
//	        uvarint length + storage-JSON array of cells
//
// Storage JSON (canon.MarshalValue) is deterministic, so identical tables
// always produce byte-identical containers and stable digests.

var containerMagic = []byte("GRCOL\x00v1")

// containerHeader is the embedded, self-describing schema block.
type containerHeader struct {
	Schema   Schema `json:"schema"`
	RowCount int    `json:"row_count"`
}

// EncodeContainer serializes a table to container bytes.
func EncodeContainer(t *Table) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("encode container: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(containerMagic)

	headerJSON, err := json.Marshal(containerHeader{
		Schema:   t.Schema,
		RowCount: t.NumRows(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode container: marshal header: %w", err)
	}
	writeBlock(&buf, headerJSON)

	for i, col := range t.Columns {
		block, err := canon.MarshalValue(canon.Array(col))
		if err != nil {
			return nil, fmt.Errorf("encode container: column %q: %w", t.Schema[i].Name, err)
		}
		writeBlock(&buf, block)
	}

	return buf.Bytes(), nil
}

func writeBlock(buf *bytes.Buffer, block []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(block)))
	buf.Write(lenBuf[:n])
	buf.Write(block)
}

// containerReader decodes a container incrementally, skipping column blocks
// that were not requested. This is what makes column projection a pushdown
// rather than a post-materialization filter.
type containerReader struct {
	data     []byte
	offset   int
	header   containerHeader
	blockIdx int // next column block to be read
}

// openContainer validates the magic and decodes the header.
func openContainer(data []byte) (*containerReader, error) {
	if len(data) < len(containerMagic) || !bytes.Equal(data[:len(containerMagic)], containerMagic) {
		return nil, fmt.Errorf("open container: bad magic")
	}

	r := &containerReader{data: data, offset: len(containerMagic)}
	headerBytes, err := r.nextBlock()
	if err != nil {
		return nil, fmt.Errorf("open container: header: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return nil, fmt.Errorf("open container: decode header: %w", err)
	}
	if err := r.header.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("open container: embedded schema: %w", err)
	}
	return r, nil
}

// nextBlock reads the next length-prefixed block.
func (r *containerReader) nextBlock() ([]byte, error) {
	length, n := binary.Uvarint(r.data[r.offset:])
	if n <= 0 {
		return nil, fmt.Errorf("truncated block length at offset %d", r.offset)
	}
	r.offset += n
	end := r.offset + int(length)
	if end > len(r.data) {
		return nil, fmt.Errorf("block overruns container (%d > %d)", end, len(r.data))
	}
	block := r.data[r.offset:end]
	r.offset = end
	return block, nil
}

// skipBlock advances past the next block without decoding it.
func (r *containerReader) skipBlock() error {
	length, n := binary.Uvarint(r.data[r.offset:])
	if n <= 0 {
		return fmt.Errorf("truncated block length at offset %d", r.offset)
	}
	r.offset += n + int(length)
	if r.offset > len(r.data) {
		return fmt.Errorf("block overruns container")
	}
	return nil
}

// readColumns decodes only the named columns, returned keyed by name.
// Unrequested blocks are length-skipped.
func (r *containerReader) readColumns(names map[string]bool) (map[string]ColumnData, error) {
	out := make(map[string]ColumnData, len(names))

	for i := r.blockIdx; i < len(r.header.Schema); i++ {
		colName := r.header.Schema[i].Name
		if !names[colName] {
			if err := r.skipBlock(); err != nil {
				return nil, fmt.Errorf("skip column %q: %w", colName, err)
			}
			continue
		}

		block, err := r.nextBlock()
		if err != nil {
			return nil, fmt.Errorf("read column %q: %w", colName, err)
		}
		v, err := canon.UnmarshalValue(block)
		if err != nil {
			return nil, fmt.Errorf("decode column %q: %w", colName, err)
		}
		arr, ok := v.(canon.Array)
		if !ok {
			return nil, fmt.Errorf("column %q: block is not an array", colName)
		}
		if len(arr) != r.header.RowCount {
			return nil, fmt.Errorf("column %q: %d cells, header says %d rows", colName, len(arr), r.header.RowCount)
		}
		out[colName] = ColumnData(arr)
	}
	r.blockIdx = len(r.header.Schema)

	for name := range names {
		if _, ok := out[name]; !ok {
			return nil, fmt.Errorf("no column %q in container", name)
		}
	}
	return out, nil
}

// DecodeContainer decodes a full container into a table.
func DecodeContainer(data []byte) (*Table, error) {
	r, err := openContainer(data)
	if err != nil {
		return nil, err
	}

	names := make(map[string]bool, len(r.header.Schema))
	for _, c := range r.header.Schema {
		names[c.Name] = true
	}
	cols, err := r.readColumns(names)
	if err != nil {
		return nil, fmt.Errorf("decode container: %w", err)
	}

	t := &Table{Schema: r.header.Schema, Columns: make([]ColumnData, len(r.header.Schema))}
	for i, c := range r.header.Schema {
		t.Columns[i] = cols[c.Name]
	}
	return t, nil
}

// ContainerSchema reads only the embedded schema and row count - no column
// block is decoded. Lets callers introspect an asset without a catalog.
func ContainerSchema(data []byte) (Schema, int, error) {
	r, err := openContainer(data)
	if err != nil {
		return nil, 0, err
	}
	return r.header.Schema, r.header.RowCount, nil
}
