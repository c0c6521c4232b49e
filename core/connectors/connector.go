// Package connectors holds the schema-introspection backends, one per
// database family, and the per-family error normalizers. It is the single
// boundary where driver-native errors are translated into the shared
// taxonomy; no native driver type leaves this package.
package connectors

import (
	"context"
	"fmt"

	"github.com/kilnworks/kiln/core/datasource"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/errors"
)

// Connector is the capability interface every backend satisfies: probe the
// connection, describe the live schema, execute a native statement, release
// pooled resources. Errors returned by any method are already normalized.
type Connector interface {
	// Family reports which database family the connector serves.
	Family() datasource.Family

	// Ping performs one trivial round trip against the live database.
	Ping(ctx context.Context) error

	// Describe queries the database catalog and returns its structure.
	Describe(ctx context.Context) (*schema.DatabaseDescription, error)

	// Execute runs a native statement (SQL text, or a JSON command document
	// for the document store) and returns rows as column-keyed maps.
	Execute(ctx context.Context, statement string, params map[string]any) ([]map[string]any, error)

	// Close releases the connector's pooled connections.
	Close() error
}

// Load parses a connection URL and constructs the backend for its family,
// returning the normalized descriptor alongside so callers can report the
// resolved family without re-parsing. The family→constructor table is static
// and exhaustive; there is no fallback backend. Construction performs no
// I/O — the first round trip happens on Ping or Describe.
func Load(rawURL string) (Connector, *datasource.Descriptor, error) {
	desc, err := datasource.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}

	var conn Connector
	switch desc.Family {
	case datasource.FamilyPostgres:
		conn, err = NewPostgres(desc)
	case datasource.FamilyMySQL:
		conn, err = NewMySQL(desc)
	case datasource.FamilySQLite:
		conn, err = NewSQLite(desc)
	case datasource.FamilyMongoDB:
		conn, err = NewMongoDB(desc)
	default:
		// Unreachable given the parser's closed enumeration, kept as a hard
		// boundary check.
		return nil, nil, errors.New(errors.ErrCodeUnsupportedDatabaseFamily,
			fmt.Sprintf("no backend registered for database family %q", desc.Family))
	}
	if err != nil {
		return nil, nil, err
	}

	return conn, desc, nil
}
