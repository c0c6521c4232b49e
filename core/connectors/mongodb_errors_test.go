package connectors

import (
	stderrors "errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/kilnworks/kiln/core/shared/errors"
)

const dupKeyMessage = `E11000 duplicate key error collection: db.users index: email_1 dup key: { email: "a@b.com" }`

func TestParseUniqueIndexViolation(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected string
		ok       bool
	}{
		{
			name:     "standard shape",
			message:  dupKeyMessage,
			expected: "email_1",
			ok:       true,
		},
		{
			name:     "compound index",
			message:  `duplicate key error collection: shop.orders index: user_id_1_sku_1 dup key: { user_id: 7, sku: "x" }`,
			expected: "user_id_1_sku_1",
			ok:       true,
		},
		{
			name:    "unrecognized shape",
			message: "E11000 something entirely different",
			ok:      false,
		},
		{
			name:    "empty",
			message: "",
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, ok := parseUniqueIndexViolation(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, index)
		})
	}
}

func TestNormalizeMongoWriteErrorDuplicateKey(t *testing.T) {
	err := normalizeMongoError(mongo.WriteException{
		WriteErrors: mongo.WriteErrors{
			{Code: 11000, Message: dupKeyMessage},
		},
	})

	engineErr := errors.AsEngineError(err)
	require.NotNil(t, engineErr)
	assert.Equal(t, errors.ErrCodeUniqueConstraintViolation, engineErr.Code)
	require.NotNil(t, engineErr.Constraint)
	assert.Equal(t, "email_1", engineErr.Constraint.Index)
	assert.False(t, engineErr.Constraint.CannotParse)
}

func TestNormalizeMongoWriteErrorUnparsableMessage(t *testing.T) {
	err := normalizeMongoError(mongo.WriteException{
		WriteErrors: mongo.WriteErrors{
			{Code: 11000, Message: "E11000 reworded diagnostic without the known shape"},
		},
	})

	engineErr := errors.AsEngineError(err)
	require.NotNil(t, engineErr)
	assert.Equal(t, errors.ErrCodeUniqueConstraintViolation, engineErr.Code)
	require.NotNil(t, engineErr.Constraint)
	assert.True(t, engineErr.Constraint.CannotParse)
	assert.Empty(t, engineErr.Constraint.Index)
}

func TestNormalizeBulkWriteExceptionOrderAndConcern(t *testing.T) {
	err := normalizeMongoError(mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Index: 0, Code: 11000, Message: dupKeyMessage}},
			{WriteError: mongo.WriteError{Index: 3, Code: 121, Message: "Document failed validation"}},
		},
		WriteConcernError: &mongo.WriteConcernError{Code: 64, Message: "waiting for replication timed out"},
	})

	multi := errors.AsEngineError(err)
	require.NotNil(t, multi)
	assert.Equal(t, errors.ErrCodeMultiError, multi.Code)
	require.Len(t, multi.Errors, 3)

	assert.Equal(t, errors.ErrCodeUniqueConstraintViolation, multi.Errors[0].Code)
	assert.Equal(t, "email_1", multi.Errors[0].Constraint.Index)

	assert.Equal(t, errors.ErrCodeRawError, multi.Errors[1].Code)
	assert.Equal(t, "121", multi.Errors[1].RawCode)

	assert.Equal(t, errors.ErrCodeRawError, multi.Errors[2].Code)
	assert.Equal(t, "64", multi.Errors[2].RawCode)
	assert.Contains(t, multi.Errors[2].Message, "replication timed out")
}

func TestNormalizeBulkWriteExceptionAlwaysAggregates(t *testing.T) {
	err := normalizeMongoError(mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Code: 11000, Message: dupKeyMessage}},
		},
	})

	multi := errors.AsEngineError(err)
	require.NotNil(t, multi)
	assert.Equal(t, errors.ErrCodeMultiError, multi.Code)
	require.Len(t, multi.Errors, 1)
	assert.Equal(t, errors.ErrCodeUniqueConstraintViolation, multi.Errors[0].Code)
}

func TestNormalizeSingleWriteErrorKeepsOwnKind(t *testing.T) {
	err := normalizeMongoError(mongo.WriteException{
		WriteErrors: mongo.WriteErrors{
			{Code: 121, Message: "Document failed validation"},
		},
	})

	engineErr := errors.AsEngineError(err)
	require.NotNil(t, engineErr)
	assert.Equal(t, errors.ErrCodeRawError, engineErr.Code)
	assert.Equal(t, "121", engineErr.RawCode)
}

func TestNormalizeWriteExceptionMultipleFailures(t *testing.T) {
	err := normalizeMongoError(mongo.WriteException{
		WriteErrors: mongo.WriteErrors{
			{Code: 11000, Message: dupKeyMessage},
			{Code: 2, Message: "BadValue"},
		},
		WriteConcernError: &mongo.WriteConcernError{Code: 64, Message: "timed out"},
	})

	multi := errors.AsEngineError(err)
	require.NotNil(t, multi)
	assert.Equal(t, errors.ErrCodeMultiError, multi.Code)
	require.Len(t, multi.Errors, 3)
	assert.Equal(t, "64", multi.Errors[2].RawCode)
}

func TestNormalizeMongoCommandError(t *testing.T) {
	tests := []struct {
		name     string
		err      mongo.CommandError
		expected errors.Code
	}{
		{
			name:     "duplicate key",
			err:      mongo.CommandError{Code: 11000, Message: dupKeyMessage},
			expected: errors.ErrCodeUniqueConstraintViolation,
		},
		{
			name:     "authentication failed by name",
			err:      mongo.CommandError{Code: 8000, Name: "AuthenticationFailed", Message: "bad auth"},
			expected: errors.ErrCodeAuthenticationFailed,
		},
		{
			name:     "authorization failed by code",
			err:      mongo.CommandError{Code: 18, Message: "Authentication failed."},
			expected: errors.ErrCodeAuthenticationFailed,
		},
		{
			name:     "anything else",
			err:      mongo.CommandError{Code: 59, Name: "CommandNotFound", Message: "no such command"},
			expected: errors.ErrCodeRawError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized := normalizeMongoError(tt.err)
			assert.Equal(t, tt.expected, errors.KindOf(normalized))
		})
	}
}

func TestNormalizeMongoConnectionFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"dns failure", &net.DNSError{Err: "no such host", Name: "cluster0.example.net"}},
		{"op timeout", &net.OpError{Op: "dial", Err: stderrors.New("connection refused")}},
		{"server selection", stderrors.New("server selection error: context deadline exceeded")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, errors.ErrCodeConnectionError, errors.KindOf(normalizeMongoError(tt.err)))
		})
	}
}

func TestNormalizeMongoFallbacks(t *testing.T) {
	assert.Nil(t, normalizeMongoError(nil))

	unknown := normalizeMongoError(stderrors.New("some driver condition"))
	engineErr := errors.AsEngineError(unknown)
	require.NotNil(t, engineErr)
	assert.Equal(t, errors.ErrCodeRawError, engineErr.Code)
	assert.Equal(t, "unknown", engineErr.RawCode)
}

func TestExtractMongoIdentity(t *testing.T) {
	assert.Equal(t, "alice", extractMongoIdentity(`Authentication failed for user "alice"`))
	assert.Equal(t, "bob@admin", extractMongoIdentity("auth error: user bob@admin not authorized"))
	assert.Equal(t, "connection reset by peer", extractMongoIdentity("connection reset by peer"))
}
