package schema

// DatabaseDescription is the raw structural description returned by an
// introspection backend, before conversion into a Datamodel. Table order
// matches catalog order as reported by the database.
type DatabaseDescription struct {
	Name   string
	Tables []TableDescription
	Enums  []EnumDescription
}

// TableDescription describes one table or collection.
type TableDescription struct {
	Name       string
	Columns    []ColumnDescription
	Indexes    []IndexDescription
	PrimaryKey []string
}

// ColumnDescription describes one column, in native type terms.
type ColumnDescription struct {
	Name     string
	DataType string
	Nullable bool
	Default  *string
}

// IndexDescription describes a secondary index.
type IndexDescription struct {
	Name    string
	Columns []string
	Unique  bool
}

// EnumDescription describes a native enum type.
type EnumDescription struct {
	Name   string
	Values []string
}

// IsEmpty reports whether the description contains no tables.
func (d *DatabaseDescription) IsEmpty() bool {
	return d == nil || len(d.Tables) == 0
}
