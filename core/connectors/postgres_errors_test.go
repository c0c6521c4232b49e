package connectors

import (
	"context"
	stderrors "errors"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnworks/kiln/core/shared/errors"
)

func TestNormalizePostgresError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected errors.Code
	}{
		{
			name:     "unique violation",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key", Message: `duplicate key value violates unique constraint "users_email_key"`},
			expected: errors.ErrCodeUniqueConstraintViolation,
		},
		{
			name:     "invalid password",
			err:      &pgconn.PgError{Code: "28P01", Message: `password authentication failed for user "alice"`},
			expected: errors.ErrCodeAuthenticationFailed,
		},
		{
			name:     "invalid authorization",
			err:      &pgconn.PgError{Code: "28000", Message: `role "alice" does not exist`},
			expected: errors.ErrCodeAuthenticationFailed,
		},
		{
			name:     "connection exception class",
			err:      &pgconn.PgError{Code: "08006", Message: "connection failure"},
			expected: errors.ErrCodeConnectionError,
		},
		{
			name:     "unknown database",
			err:      &pgconn.PgError{Code: "3D000", Message: `database "nope" does not exist`},
			expected: errors.ErrCodeConnectionError,
		},
		{
			name:     "admin shutdown",
			err:      &pgconn.PgError{Code: "57P01", Message: "terminating connection"},
			expected: errors.ErrCodeConnectionError,
		},
		{
			name:     "syntax error",
			err:      &pgconn.PgError{Code: "42601", Message: `syntax error at or near "SELEC"`},
			expected: errors.ErrCodeQueryError,
		},
		{
			name:     "undefined table",
			err:      &pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`},
			expected: errors.ErrCodeQueryError,
		},
		{
			name:     "data exception",
			err:      &pgconn.PgError{Code: "22001", Message: "value too long"},
			expected: errors.ErrCodeQueryError,
		},
		{
			name:     "unmapped sqlstate",
			err:      &pgconn.PgError{Code: "40001", Message: "serialization failure"},
			expected: errors.ErrCodeRawError,
		},
		{
			name:     "dns failure",
			err:      &net.DNSError{Err: "no such host", Name: "db.internal"},
			expected: errors.ErrCodeConnectionError,
		},
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			expected: errors.ErrCodeConnectionError,
		},
		{
			name:     "foreign error",
			err:      stderrors.New("driver: bad connection"),
			expected: errors.ErrCodeRawError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errors.KindOf(normalizePostgresError(tt.err)))
		})
	}
}

func TestNormalizePostgresErrorNil(t *testing.T) {
	assert.Nil(t, normalizePostgresError(nil))
}

func TestNormalizePostgresUniqueConstraintName(t *testing.T) {
	err := normalizePostgresError(&pgconn.PgError{
		Code:           "23505",
		ConstraintName: "users_email_key",
	})

	engineErr := errors.AsEngineError(err)
	require.NotNil(t, engineErr)
	require.NotNil(t, engineErr.Constraint)
	assert.Equal(t, "users_email_key", engineErr.Constraint.Index)
}

func TestNormalizePostgresUniqueConstraintMissingName(t *testing.T) {
	err := normalizePostgresError(&pgconn.PgError{Code: "23505"})

	engineErr := errors.AsEngineError(err)
	require.NotNil(t, engineErr)
	require.NotNil(t, engineErr.Constraint)
	assert.True(t, engineErr.Constraint.CannotParse)
}

func TestNormalizePostgresAuthIdentity(t *testing.T) {
	err := normalizePostgresError(&pgconn.PgError{
		Code:    "28P01",
		Message: `password authentication failed for user "alice"`,
	})

	engineErr := errors.AsEngineError(err)
	require.NotNil(t, engineErr)
	assert.Equal(t, "alice", engineErr.Identity)
}

func TestNormalizePostgresRawCode(t *testing.T) {
	err := normalizePostgresError(&pgconn.PgError{Code: "40001", Message: "serialization failure"})

	engineErr := errors.AsEngineError(err)
	require.NotNil(t, engineErr)
	assert.Equal(t, "40001", engineErr.RawCode)
}
