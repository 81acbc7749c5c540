package llamadb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testColumns() []Column {
	return []Column{
		{Name: "id", DbType: DbTypeInt(8, false)},
		{Name: "name", DbType: DbTypeString},
		{Name: "score", DbType: DbTypeF64, Nullable: true},
	}
}

func TestTable_InsertAndScan(t *testing.T) {
	table := NewTable("people", testColumns())

	rowID, err := table.InsertRow([]Value{UnsignedIntValue(1), StringValue("ada"), FloatValue(9.5)})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rowID)

	rowID, err = table.InsertRow([]Value{UnsignedIntValue(2), StringValue("bob"), NullValue})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rowID)

	rows := ScanTable(table)
	require.Len(t, rows, 2)
	assert.Equal(t, "ada", rows[0][1].AsString())
	assert.True(t, rows[1][2].IsNull())
	assert.Equal(t, 2, table.RowCount())
}

func TestTable_InsertRejectsBadRows(t *testing.T) {
	table := NewTable("people", testColumns())

	// Wrong arity.
	_, err := table.InsertRow([]Value{UnsignedIntValue(1)})
	require.Error(t, err)

	// NULL into a non-nullable column.
	_, err = table.InsertRow([]Value{NullValue, StringValue("x"), NullValue})
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))

	// Uncastable value.
	_, err = table.InsertRow([]Value{StringValue("nan"), StringValue("x"), NullValue})
	require.Error(t, err)
}

func TestTable_InsertCastsToColumnType(t *testing.T) {
	table := NewTable("people", testColumns())
	_, err := table.InsertRow([]Value{UnsignedIntValue(1), StringValue("ada"), SignedIntValue(3)})
	require.NoError(t, err)

	rows := ScanTable(table)
	require.Len(t, rows, 1)
	assert.Equal(t, ValueKindFloat, rows[0][2].Kind())
	assert.Equal(t, 3.0, rows[0][2].AsFloat())
}

func TestRowKey_RoundTrip(t *testing.T) {
	columns := []Column{
		{Offset: 0, Name: "id", DbType: DbTypeInt(4, true)},
		{Offset: 1, Name: "tag", DbType: DbTypeString, Nullable: true},
		{Offset: 2, Name: "blob", DbType: DbTypeByteDynamic},
		{Offset: 3, Name: "score", DbType: DbTypeF64},
	}
	values := []Value{
		SignedIntValue(-5),
		NullValue,
		BytesValue([]byte{0xde, 0xad}),
		FloatValue(1.25),
	}

	key, err := EncodeRowKey(columns, 7, values)
	require.NoError(t, err)

	rowID, decoded, err := DecodeRowKey(columns, key)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rowID)
	require.Len(t, decoded, len(values))
	assert.Equal(t, int64(-5), decoded[0].AsSignedInt())
	assert.True(t, decoded[1].IsNull())
	assert.Equal(t, []byte{0xde, 0xad}, decoded[2].AsBytes())
	assert.Equal(t, 1.25, decoded[3].AsFloat())
}

func TestRowKey_LexicographicOrderFollowsRowID(t *testing.T) {
	columns := []Column{{Offset: 0, Name: "v", DbType: DbTypeInt(8, false)}}

	keyA, err := EncodeRowKey(columns, 1, []Value{UnsignedIntValue(900)})
	require.NoError(t, err)
	keyB, err := EncodeRowKey(columns, 2, []Value{UnsignedIntValue(1)})
	require.NoError(t, err)
	assert.Less(t, string(keyA), string(keyB))
}

func TestTempDb_CreateAndFind(t *testing.T) {
	db := NewTempDb()

	_, err := db.CreateTable("t", testColumns())
	require.NoError(t, err)

	_, err = db.CreateTable("t", testColumns())
	require.Error(t, err)
	assert.True(t, IsCompileError(err))

	table, ok := db.FindTableByName("t")
	require.True(t, ok)
	assert.Equal(t, Identifier("t"), table.GetName())

	_, ok = db.FindTableByName("missing")
	assert.False(t, ok)

	_, err = db.CreateTable("u", testColumns())
	require.NoError(t, err)
	assert.Equal(t, []Identifier{"t", "u"}, db.TableNames())
}
