package llamadb

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// TableJSONSchema renders a table's column metadata as a JSON Schema
// document, giving external tooling (editors, docs generators) a
// standard description of the table shape. It describes one row as an
// object keyed by column name, and backs the DESCRIBE statement.
func TableJSONSchema(t *Table) *jsonschema.Schema {
	properties := make(map[string]*jsonschema.Schema, t.GetColumnCount())
	var required []string

	for _, column := range t.Columns() {
		properties[column.Name.String()] = &jsonschema.Schema{
			Type:        jsonType(column.DbType),
			Description: column.DbType.String(),
		}
		if !column.Nullable {
			required = append(required, column.Name.String())
		}
	}

	return &jsonschema.Schema{
		Type:        "object",
		Description: "row of table " + t.GetName().String(),
		Properties:  properties,
		Required:    required,
	}
}

func jsonType(t DbType) string {
	switch t.Kind {
	case DbTypeKindInteger:
		return "integer"
	case DbTypeKindF64:
		return "number"
	case DbTypeKindNull:
		return "null"
	default:
		// Strings and byte arrays both surface as JSON strings.
		return "string"
	}
}
