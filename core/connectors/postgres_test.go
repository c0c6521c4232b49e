package connectors

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnworks/kiln/core/shared/errors"
)

func newMockedPostgres(t *testing.T) (*PostgresConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newPostgresWithDB(db, "app", "public"), mock
}

func TestPostgresDescribe(t *testing.T) {
	conn, mock := newMockedPostgres(t)

	mock.ExpectQuery(pgColumnsQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "nullable", "column_default"}).
			AddRow("users", "id", "integer", false, "nextval('users_id_seq')").
			AddRow("users", "email", "text", false, nil).
			AddRow("users", "bio", "text", true, nil).
			AddRow("posts", "id", "integer", false, nil).
			AddRow("posts", "title", "character varying", false, nil))

	mock.ExpectQuery(pgPrimaryKeysQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name"}).
			AddRow("users", "id").
			AddRow("posts", "id"))

	mock.ExpectQuery(pgIndexesQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "index_name", "unique", "column_name"}).
			AddRow("users", "users_email_key", true, "email"))

	mock.ExpectQuery(pgEnumsQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"typname", "enumlabel"}).
			AddRow("role", "admin").
			AddRow("role", "member"))

	desc, err := conn.Describe(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "app", desc.Name)
	require.Len(t, desc.Tables, 2)

	users := desc.Tables[0]
	assert.Equal(t, "users", users.Name)
	require.Len(t, users.Columns, 3)
	assert.Equal(t, "id", users.Columns[0].Name)
	require.NotNil(t, users.Columns[0].Default)
	assert.Equal(t, "nextval('users_id_seq')", *users.Columns[0].Default)
	assert.True(t, users.Columns[2].Nullable)
	assert.Equal(t, []string{"id"}, users.PrimaryKey)
	require.Len(t, users.Indexes, 1)
	assert.Equal(t, "users_email_key", users.Indexes[0].Name)
	assert.True(t, users.Indexes[0].Unique)
	assert.Equal(t, []string{"email"}, users.Indexes[0].Columns)

	require.Len(t, desc.Enums, 1)
	assert.Equal(t, "role", desc.Enums[0].Name)
	assert.Equal(t, []string{"admin", "member"}, desc.Enums[0].Values)
}

func TestPostgresDescribeGroupsCompositeIndexes(t *testing.T) {
	conn, mock := newMockedPostgres(t)

	mock.ExpectQuery(pgColumnsQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "nullable", "column_default"}).
			AddRow("memberships", "user_id", "integer", false, nil).
			AddRow("memberships", "team_id", "integer", false, nil))

	mock.ExpectQuery(pgPrimaryKeysQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name"}))

	mock.ExpectQuery(pgIndexesQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "index_name", "unique", "column_name"}).
			AddRow("memberships", "memberships_pair", true, "user_id").
			AddRow("memberships", "memberships_pair", true, "team_id"))

	mock.ExpectQuery(pgEnumsQuery).WithArgs("public").WillReturnRows(
		sqlmock.NewRows([]string{"typname", "enumlabel"}))

	desc, err := conn.Describe(context.Background())
	require.NoError(t, err)

	require.Len(t, desc.Tables, 1)
	require.Len(t, desc.Tables[0].Indexes, 1)
	assert.Equal(t, []string{"user_id", "team_id"}, desc.Tables[0].Indexes[0].Columns)
}

func TestPostgresDescribeNormalizesErrors(t *testing.T) {
	conn, mock := newMockedPostgres(t)

	mock.ExpectQuery(pgColumnsQuery).WithArgs("public").
		WillReturnError(&pgconn.PgError{Code: "28P01", Message: `password authentication failed for user "alice"`})

	_, err := conn.Describe(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeAuthenticationFailed),
		"expected AUTHENTICATION_FAILED, got %v", err)
}

func TestPostgresExecute(t *testing.T) {
	conn, mock := newMockedPostgres(t)

	mock.ExpectQuery("SELECT id, email FROM users").WillReturnRows(
		sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(1), []byte("a@b.com")).
			AddRow(int64(2), []byte("c@d.com")))

	rows, err := conn.Execute(context.Background(), "SELECT id, email FROM users", nil)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "a@b.com", rows[0]["email"])
	assert.Equal(t, "c@d.com", rows[1]["email"])
}

func TestPostgresExecuteNormalizesErrors(t *testing.T) {
	conn, mock := newMockedPostgres(t)

	mock.ExpectQuery("SELEC 1").
		WillReturnError(&pgconn.PgError{Code: "42601", Message: `syntax error at or near "SELEC"`})

	_, err := conn.Execute(context.Background(), "SELEC 1", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeQueryError),
		"expected QUERY_ERROR, got %v", err)
}
