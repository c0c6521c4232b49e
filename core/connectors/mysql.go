package connectors

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kilnworks/kiln/core/datasource"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// MySQLConnector is the schema-introspection backend for MySQL.
type MySQLConnector struct {
	db       *sql.DB
	database string
}

// NewMySQL opens a lazy connection pool for the descriptor.
func NewMySQL(desc *datasource.Descriptor) (*MySQLConnector, error) {
	db, err := sql.Open("mysql", mysqlDSN(desc))
	if err != nil {
		return nil, normalizeMySQLError(err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &MySQLConnector{db: db, database: desc.Database}, nil
}

func newMySQLWithDB(db *sql.DB, database string) *MySQLConnector {
	return &MySQLConnector{db: db, database: database}
}

// mysqlDSN rewrites a mysql:// URL into the DSN form the driver expects:
// user:password@tcp(host:port)/database.
func mysqlDSN(desc *datasource.Descriptor) string {
	host := desc.Host
	port := desc.Port
	if port == "" {
		port = "3306"
	}

	auth := ""
	if desc.User != "" {
		auth = desc.User
		if desc.Password != "" {
			auth += ":" + desc.Password
		}
		auth += "@"
	}

	dsn := fmt.Sprintf("%stcp(%s:%s)/%s", auth, host, port, desc.Database)
	if params := desc.Params.Encode(); params != "" {
		dsn += "?" + params
	}
	return dsn
}

func (m *MySQLConnector) Family() datasource.Family { return datasource.FamilyMySQL }

func (m *MySQLConnector) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return normalizeMySQLError(err)
	}
	return nil
}

const mysqlColumnsQuery = `
	SELECT c.table_name, c.column_name, c.column_type, c.is_nullable = 'YES', c.column_default, c.column_key = 'PRI'
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = ? AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_name, c.ordinal_position`

const mysqlIndexesQuery = `
	SELECT table_name, index_name, non_unique = 0, column_name
	FROM information_schema.statistics
	WHERE table_schema = ? AND index_name <> 'PRIMARY'
	ORDER BY table_name, index_name, seq_in_index`

// Describe reads the catalog of the connected database.
func (m *MySQLConnector) Describe(ctx context.Context) (*schema.DatabaseDescription, error) {
	log := logging.New("connector:mysql")
	log.Debug().Str("database", m.database).Msg("describing schema")

	desc := &schema.DatabaseDescription{Name: m.database}
	tableIdx := make(map[string]int)

	rows, err := m.db.QueryContext(ctx, mysqlColumnsQuery, m.database)
	if err != nil {
		return nil, normalizeMySQLError(err)
	}
	for rows.Next() {
		var table, column, dataType string
		var nullable, primary bool
		var colDefault sql.NullString
		if err := rows.Scan(&table, &column, &dataType, &nullable, &colDefault, &primary); err != nil {
			rows.Close()
			return nil, normalizeMySQLError(err)
		}
		i, ok := tableIdx[table]
		if !ok {
			i = len(desc.Tables)
			tableIdx[table] = i
			desc.Tables = append(desc.Tables, schema.TableDescription{Name: table})
		}
		col := schema.ColumnDescription{Name: column, DataType: dataType, Nullable: nullable}
		if colDefault.Valid {
			col.Default = &colDefault.String
		}
		desc.Tables[i].Columns = append(desc.Tables[i].Columns, col)
		if primary {
			desc.Tables[i].PrimaryKey = append(desc.Tables[i].PrimaryKey, column)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, normalizeMySQLError(err)
	}

	rows, err = m.db.QueryContext(ctx, mysqlIndexesQuery, m.database)
	if err != nil {
		return nil, normalizeMySQLError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, index, column string
		var unique bool
		if err := rows.Scan(&table, &index, &unique, &column); err != nil {
			return nil, normalizeMySQLError(err)
		}
		i, ok := tableIdx[table]
		if !ok {
			continue
		}
		indexes := desc.Tables[i].Indexes
		if n := len(indexes); n > 0 && indexes[n-1].Name == index {
			indexes[n-1].Columns = append(indexes[n-1].Columns, column)
		} else {
			desc.Tables[i].Indexes = append(indexes, schema.IndexDescription{
				Name: index, Unique: unique, Columns: []string{column},
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, normalizeMySQLError(err)
	}

	log.Debug().Int("tables", len(desc.Tables)).Msg("schema described")
	return desc, nil
}

// Execute runs a SQL statement and returns the result rows.
func (m *MySQLConnector) Execute(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	rows, err := m.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, normalizeMySQLError(err)
	}
	defer rows.Close()

	results, err := collectRows(rows)
	if err != nil {
		return nil, normalizeMySQLError(err)
	}
	return results, nil
}

// Close releases the pooled connections.
func (m *MySQLConnector) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
