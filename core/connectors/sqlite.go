package connectors

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilnworks/kiln/core/datasource"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// SQLiteConnector is the schema-introspection backend for SQLite files.
type SQLiteConnector struct {
	db   *sql.DB
	path string
}

// NewSQLite opens a lazy handle on the database file.
func NewSQLite(desc *datasource.Descriptor) (*SQLiteConnector, error) {
	db, err := sql.Open("sqlite", desc.FilePath)
	if err != nil {
		return nil, normalizeSQLiteError(err)
	}
	// The file is a single writer; keep the pool at one connection.
	db.SetMaxOpenConns(1)

	return &SQLiteConnector{db: db, path: desc.FilePath}, nil
}

func newSQLiteWithDB(db *sql.DB, path string) *SQLiteConnector {
	return &SQLiteConnector{db: db, path: path}
}

func (s *SQLiteConnector) Family() datasource.Family { return datasource.FamilySQLite }

func (s *SQLiteConnector) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return normalizeSQLiteError(err)
	}
	return nil
}

const sqliteTablesQuery = `
	SELECT name FROM sqlite_master
	WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	ORDER BY rowid`

// Describe reads the schema via sqlite_master and table pragmas.
func (s *SQLiteConnector) Describe(ctx context.Context) (*schema.DatabaseDescription, error) {
	log := logging.New("connector:sqlite")
	log.Debug().Str("path", s.path).Msg("describing schema")

	desc := &schema.DatabaseDescription{Name: s.path}

	rows, err := s.db.QueryContext(ctx, sqliteTablesQuery)
	if err != nil {
		return nil, normalizeSQLiteError(err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, normalizeSQLiteError(err)
		}
		tables = append(tables, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, normalizeSQLiteError(err)
	}

	for _, name := range tables {
		table, err := s.describeTable(ctx, name)
		if err != nil {
			return nil, err
		}
		desc.Tables = append(desc.Tables, *table)
	}

	log.Debug().Int("tables", len(desc.Tables)).Msg("schema described")
	return desc, nil
}

func (s *SQLiteConnector) describeTable(ctx context.Context, name string) (*schema.TableDescription, error) {
	table := &schema.TableDescription{Name: name}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return nil, normalizeSQLiteError(err)
	}
	for rows.Next() {
		var cid, notNull, pk int
		var colName, colType string
		var colDefault sql.NullString
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &colDefault, &pk); err != nil {
			rows.Close()
			return nil, normalizeSQLiteError(err)
		}
		col := schema.ColumnDescription{Name: colName, DataType: colType, Nullable: notNull == 0}
		if colDefault.Valid {
			col.Default = &colDefault.String
		}
		table.Columns = append(table.Columns, col)
		if pk > 0 {
			table.PrimaryKey = append(table.PrimaryKey, colName)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, normalizeSQLiteError(err)
	}

	return table, s.describeTableIndexes(ctx, table)
}

func (s *SQLiteConnector) describeTableIndexes(ctx context.Context, table *schema.TableDescription) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%q)", table.Name))
	if err != nil {
		return normalizeSQLiteError(err)
	}
	type indexRow struct {
		name   string
		unique bool
	}
	var indexes []indexRow
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return normalizeSQLiteError(err)
		}
		if origin == "pk" {
			continue
		}
		indexes = append(indexes, indexRow{name: name, unique: unique == 1})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return normalizeSQLiteError(err)
	}

	for _, idx := range indexes {
		cols, err := s.indexColumns(ctx, idx.name)
		if err != nil {
			return err
		}
		table.Indexes = append(table.Indexes, schema.IndexDescription{
			Name: idx.name, Unique: idx.unique, Columns: cols,
		})
	}
	return nil
}

func (s *SQLiteConnector) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%q)", index))
	if err != nil {
		return nil, normalizeSQLiteError(err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, normalizeSQLiteError(err)
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, normalizeSQLiteError(rows.Err())
}

// Execute runs a SQL statement and returns the result rows.
func (s *SQLiteConnector) Execute(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, normalizeSQLiteError(err)
	}
	defer rows.Close()

	results, err := collectRows(rows)
	if err != nil {
		return nil, normalizeSQLiteError(err)
	}
	return results, nil
}

// Close releases the handle.
func (s *SQLiteConnector) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
