package schema

import "strings"

// scalarTypes maps native column types (across all supported families) to
// datamodel scalar names. Lookups are prefix-insensitive to length suffixes
// like varchar(255).
var scalarTypes = map[string]string{
	// strings
	"text": "String", "varchar": "String", "character varying": "String",
	"char": "String", "character": "String", "uuid": "String",
	"tinytext": "String", "mediumtext": "String", "longtext": "String",
	"objectid": "String", "string": "String", "clob": "String",

	// integers
	"int": "Int", "integer": "Int", "int4": "Int", "smallint": "Int",
	"int2": "Int", "mediumint": "Int", "serial": "Int",

	// big integers
	"bigint": "BigInt", "int8": "BigInt", "bigserial": "BigInt", "long": "BigInt",

	// floats
	"real": "Float", "float": "Float", "float4": "Float", "float8": "Float",
	"double": "Float", "double precision": "Float",

	// decimals
	"numeric": "Decimal", "decimal": "Decimal", "decimal128": "Decimal",

	// booleans
	"bool": "Boolean", "boolean": "Boolean", "tinyint(1)": "Boolean",

	// temporal
	"date": "DateTime", "time": "DateTime", "datetime": "DateTime",
	"timestamp": "DateTime", "timestamptz": "DateTime",
	"timestamp without time zone": "DateTime",
	"timestamp with time zone":    "DateTime",

	// binary
	"bytea": "Bytes", "blob": "Bytes", "binary": "Bytes", "varbinary": "Bytes",
	"bindata": "Bytes", "tinyblob": "Bytes", "mediumblob": "Bytes", "longblob": "Bytes",

	// json
	"json": "Json", "jsonb": "Json", "object": "Json", "array": "Json",
}

// ScalarTypeFor maps a native column type to a datamodel scalar. Types the
// datamodel cannot express come back as "Unsupported" rather than failing
// the whole conversion.
func ScalarTypeFor(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if s, ok := scalarTypes[t]; ok {
		return s
	}
	// Strip a length/precision suffix: varchar(255), numeric(10,2).
	if i := strings.IndexByte(t, '('); i > 0 {
		if s, ok := scalarTypes[strings.TrimSpace(t[:i])]; ok {
			return s
		}
	}
	return "Unsupported"
}

// ConvertDescription converts a raw database description into the abstract
// datamodel document. Table and column order are preserved. The conversion
// itself is total; emptiness is the caller's concern (the orchestrator
// surfaces it as a distinguished condition).
func ConvertDescription(desc *DatabaseDescription) *Datamodel {
	dm := &Datamodel{}
	if desc == nil {
		return dm
	}

	for _, table := range desc.Tables {
		model := Model{Name: table.Name}

		uniqueColumns := make(map[string]bool)
		for _, idx := range table.Indexes {
			if idx.Unique && len(idx.Columns) == 1 {
				uniqueColumns[idx.Columns[0]] = true
			}
		}

		idColumn := ""
		if len(table.PrimaryKey) == 1 {
			idColumn = table.PrimaryKey[0]
		}

		for _, col := range table.Columns {
			model.Fields = append(model.Fields, Field{
				Name:     col.Name,
				Type:     ScalarTypeFor(col.DataType),
				Optional: col.Nullable,
				Unique:   uniqueColumns[col.Name],
				ID:       col.Name == idColumn,
				Default:  col.Default,
			})
		}

		dm.Models = append(dm.Models, model)
	}

	for _, e := range desc.Enums {
		dm.Enums = append(dm.Enums, Enum{Name: e.Name, Values: e.Values})
	}

	return dm
}
