package llamadb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableJSONSchema(t *testing.T) {
	table := NewTable("people", []Column{
		{Name: "id", DbType: DbTypeInt(8, false)},
		{Name: "name", DbType: DbTypeString},
		{Name: "score", DbType: DbTypeF64, Nullable: true},
		{Name: "raw", DbType: DbTypeByteDynamic},
	})

	schema := TableJSONSchema(table)
	assert.Equal(t, "object", schema.Type)
	require.Len(t, schema.Properties, 4)
	assert.Equal(t, "integer", schema.Properties["id"].Type)
	assert.Equal(t, "string", schema.Properties["name"].Type)
	assert.Equal(t, "number", schema.Properties["score"].Type)
	assert.Equal(t, "string", schema.Properties["raw"].Type)
	// Nullable columns are not required.
	assert.ElementsMatch(t, []string{"id", "name", "raw"}, schema.Required)
	assert.Equal(t, "f64", schema.Properties["score"].Description)
}
