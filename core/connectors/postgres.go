package connectors

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kilnworks/kiln/core/datasource"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// PostgresConnector is the schema-introspection backend for PostgreSQL.
type PostgresConnector struct {
	db         *sql.DB
	database   string
	schemaName string
}

// NewPostgres opens a lazy connection pool for the descriptor. No round trip
// happens until Ping or Describe.
func NewPostgres(desc *datasource.Descriptor) (*PostgresConnector, error) {
	db, err := sql.Open("pgx", desc.URL)
	if err != nil {
		return nil, normalizePostgresError(err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	schemaName := desc.Params.Get("schema")
	if schemaName == "" {
		schemaName = "public"
	}

	return &PostgresConnector{db: db, database: desc.Database, schemaName: schemaName}, nil
}

// newPostgresWithDB wires an existing handle, used by tests.
func newPostgresWithDB(db *sql.DB, database, schemaName string) *PostgresConnector {
	return &PostgresConnector{db: db, database: database, schemaName: schemaName}
}

func (p *PostgresConnector) Family() datasource.Family { return datasource.FamilyPostgres }

func (p *PostgresConnector) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return normalizePostgresError(err)
	}
	return nil
}

const pgColumnsQuery = `
	SELECT c.table_name, c.column_name, c.data_type, c.is_nullable = 'YES', c.column_default
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
	ORDER BY c.table_name, c.ordinal_position`

const pgPrimaryKeysQuery = `
	SELECT tc.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1
	ORDER BY tc.table_name, kcu.ordinal_position`

const pgIndexesQuery = `
	SELECT t.relname, i.relname, ix.indisunique, a.attname
	FROM pg_index ix
	JOIN pg_class i ON i.oid = ix.indexrelid
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
	WHERE n.nspname = $1 AND NOT ix.indisprimary
	ORDER BY t.relname, i.relname, array_position(ix.indkey, a.attnum)`

const pgEnumsQuery = `
	SELECT t.typname, e.enumlabel
	FROM pg_type t
	JOIN pg_enum e ON e.enumtypid = t.oid
	JOIN pg_namespace n ON n.oid = t.typnamespace
	WHERE n.nspname = $1
	ORDER BY t.typname, e.enumsortorder`

// Describe reads the catalog of the connected schema.
func (p *PostgresConnector) Describe(ctx context.Context) (*schema.DatabaseDescription, error) {
	log := logging.New("connector:postgres")
	log.Debug().Str("schema", p.schemaName).Msg("describing schema")

	desc := &schema.DatabaseDescription{Name: p.database}
	tableIdx := make(map[string]int)

	rows, err := p.db.QueryContext(ctx, pgColumnsQuery, p.schemaName)
	if err != nil {
		return nil, normalizePostgresError(err)
	}
	for rows.Next() {
		var table, column, dataType string
		var nullable bool
		var colDefault sql.NullString
		if err := rows.Scan(&table, &column, &dataType, &nullable, &colDefault); err != nil {
			rows.Close()
			return nil, normalizePostgresError(err)
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
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, normalizePostgresError(err)
	}

	if err := p.describePrimaryKeys(ctx, desc, tableIdx); err != nil {
		return nil, err
	}
	if err := p.describeIndexes(ctx, desc, tableIdx); err != nil {
		return nil, err
	}
	if err := p.describeEnums(ctx, desc); err != nil {
		return nil, err
	}

	log.Debug().Int("tables", len(desc.Tables)).Msg("schema described")
	return desc, nil
}

func (p *PostgresConnector) describePrimaryKeys(ctx context.Context, desc *schema.DatabaseDescription, tableIdx map[string]int) error {
	rows, err := p.db.QueryContext(ctx, pgPrimaryKeysQuery, p.schemaName)
	if err != nil {
		return normalizePostgresError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return normalizePostgresError(err)
		}
		if i, ok := tableIdx[table]; ok {
			desc.Tables[i].PrimaryKey = append(desc.Tables[i].PrimaryKey, column)
		}
	}
	return normalizePostgresError(rows.Err())
}

func (p *PostgresConnector) describeIndexes(ctx context.Context, desc *schema.DatabaseDescription, tableIdx map[string]int) error {
	rows, err := p.db.QueryContext(ctx, pgIndexesQuery, p.schemaName)
	if err != nil {
		return normalizePostgresError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, index, column string
		var unique bool
		if err := rows.Scan(&table, &index, &unique, &column); err != nil {
			return normalizePostgresError(err)
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
	return normalizePostgresError(rows.Err())
}

func (p *PostgresConnector) describeEnums(ctx context.Context, desc *schema.DatabaseDescription) error {
	rows, err := p.db.QueryContext(ctx, pgEnumsQuery, p.schemaName)
	if err != nil {
		return normalizePostgresError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, label string
		if err := rows.Scan(&name, &label); err != nil {
			return normalizePostgresError(err)
		}
		if n := len(desc.Enums); n > 0 && desc.Enums[n-1].Name == name {
			desc.Enums[n-1].Values = append(desc.Enums[n-1].Values, label)
		} else {
			desc.Enums = append(desc.Enums, schema.EnumDescription{Name: name, Values: []string{label}})
		}
	}
	return normalizePostgresError(rows.Err())
}

// Execute runs a SQL statement and returns the result rows.
func (p *PostgresConnector) Execute(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error) {
	rows, err := p.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, normalizePostgresError(err)
	}
	defer rows.Close()

	results, err := collectRows(rows)
	if err != nil {
		return nil, normalizePostgresError(err)
	}
	return results, nil
}

// Close releases the pooled connections.
func (p *PostgresConnector) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
