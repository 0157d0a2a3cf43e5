package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fengqlin/GrandR/internal/canon"
)

func cohortSchema() Schema {
	return Schema{
		{Name: "subject", Type: TypeString},
		{Name: "age", Type: TypeInt},
		{Name: "score", Type: TypeFloat},
		{Name: "treated", Type: TypeBool},
	}
}

func cohortTable(t *testing.T, rows int) *Table {
	t.Helper()
	tbl, err := NewTable(cohortSchema())
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		err := tbl.AppendRow(
			canon.String(string(rune('A'+i%26))),
			canon.Int(int64(20+i)),
			canon.Float(float64(i)*0.5),
			canon.Bool(i%2 == 0),
		)
		require.NoError(t, err)
	}
	return tbl
}

func TestContainerRoundTrip(t *testing.T) {
	orig := cohortTable(t, 10)

	data, err := EncodeContainer(orig)
	require.NoError(t, err)

	back, err := DecodeContainer(data)
	require.NoError(t, err)
	assert.True(t, orig.Equal(back), "decoded table differs from original")
}

func TestContainerRoundTrip_Nulls(t *testing.T) {
	tbl, err := NewTable(Schema{{Name: "x", Type: TypeFloat}})
	require.NoError(t, err)
	require.NoError(t, tbl.AppendRow(canon.Float(1.5)))
	require.NoError(t, tbl.AppendRow(canon.Null{}))
	require.NoError(t, tbl.AppendRow(canon.Float(2.5)))

	data, err := EncodeContainer(tbl)
	require.NoError(t, err)

	back, err := DecodeContainer(data)
	require.NoError(t, err)
	assert.Equal(t, canon.Null{}, back.Columns[0][1])
}

func TestEncodeContainer_RejectsRaggedTable(t *testing.T) {
	tbl := &Table{
		Schema: Schema{
			{Name: "a", Type: TypeInt},
			{Name: "b", Type: TypeInt},
		},
		Columns: []ColumnData{
			{canon.Int(1), canon.Int(2)},
			{canon.Int(3)},
		},
	}

	_, err := EncodeContainer(tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ragged")
}

func TestTableValidate(t *testing.T) {
	tbl := cohortTable(t, 3)
	require.NoError(t, tbl.Validate())

	tbl.Columns[2] = tbl.Columns[2][:1]
	require.Error(t, tbl.Validate())

	missing := &Table{Schema: cohortSchema(), Columns: make([]ColumnData, 2)}
	require.Error(t, missing.Validate())
}

func TestEncodeContainer_Deterministic(t *testing.T) {
	tbl := cohortTable(t, 5)

	a, err := EncodeContainer(tbl)
	require.NoError(t, err)
	b, err := EncodeContainer(tbl)
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical tables must produce byte-identical containers")
}

func TestContainerSchema_NoColumnDecode(t *testing.T) {
	data, err := EncodeContainer(cohortTable(t, 50))
	require.NoError(t, err)

	schema, rows, err := ContainerSchema(data)
	require.NoError(t, err)
	assert.Equal(t, cohortSchema(), schema)
	assert.Equal(t, 50, rows)

	// Schema introspection must work even when column blocks are garbage:
	// corrupt everything past the header and confirm introspection survives.
	r, err := openContainer(data)
	require.NoError(t, err)
	corrupted := append([]byte(nil), data...)
	for i := r.offset; i < len(corrupted); i++ {
		corrupted[i] = 0xFF
	}
	schema2, rows2, err := ContainerSchema(corrupted)
	require.NoError(t, err)
	assert.Equal(t, schema, schema2)
	assert.Equal(t, rows, rows2)
}

func TestOpenContainer_BadMagic(t *testing.T) {
	_, err := openContainer([]byte("not a container"))
	require.Error(t, err)
}

func TestReadColumns_Projection(t *testing.T) {
	data, err := EncodeContainer(cohortTable(t, 8))
	require.NoError(t, err)

	r, err := openContainer(data)
	require.NoError(t, err)

	cols, err := r.readColumns(map[string]bool{"age": true})
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Len(t, cols["age"], 8)
	assert.Equal(t, canon.Int(20), cols["age"][0])
}

func TestReadColumns_MissingColumn(t *testing.T) {
	data, err := EncodeContainer(cohortTable(t, 2))
	require.NoError(t, err)

	r, err := openContainer(data)
	require.NoError(t, err)

	_, err = r.readColumns(map[string]bool{"nope": true})
	require.Error(t, err)
}

func TestContainer_Truncated(t *testing.T) {
	data, err := EncodeContainer(cohortTable(t, 4))
	require.NoError(t, err)

	_, err = DecodeContainer(data[:len(data)-3])
	require.Error(t, err)
}
