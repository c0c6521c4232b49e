package connectors

import (
	"context"
	stderrors "errors"
	"regexp"
	"strconv"

	sqlite "modernc.org/sqlite"

	"github.com/kilnworks/kiln/core/shared/errors"
)

// Extracts the constraint from messages like:
//
//	UNIQUE constraint failed: users.email
var sqliteConstraintPattern = regexp.MustCompile(`(?:UNIQUE|PRIMARY KEY) constraint failed: (.+)$`)

// sqliteCoded is the slice of the driver error surface the normalizer needs.
// Kept as an interface so tests can feed synthetic codes.
type sqliteCoded interface {
	error
	Code() int
}

// SQLite primary and extended result codes.
const (
	sqliteErrGeneric        = 1
	sqliteErrBusy           = 5
	sqliteErrCantOpen       = 14
	sqliteErrAuth           = 23
	sqliteErrNotADB         = 26
	sqliteErrConstraintPK   = 1555
	sqliteErrConstraintUniq = 2067
)

// normalizeSQLiteError translates a modernc.org/sqlite error into the shared
// taxonomy. Total: unmapped result codes land in the RAW_ERROR catch-all.
func normalizeSQLiteError(err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrCodeConnectionError, "sqlite operation timed out", err)
	}

	var coded sqliteCoded
	var driverErr *sqlite.Error
	if stderrors.As(err, &driverErr) {
		coded = driverErr
	} else if !stderrors.As(err, &coded) {
		return errors.NewRawError("unknown", err.Error())
	}

	return normalizeSQLiteCode(coded.Code(), coded)
}

func normalizeSQLiteCode(code int, err error) error {
	switch code {
	case sqliteErrConstraintUniq, sqliteErrConstraintPK:
		constraint := errors.UnparsedConstraint()
		if m := sqliteConstraintPattern.FindStringSubmatch(err.Error()); m != nil {
			constraint = errors.IndexConstraint(m[1])
		}
		return errors.NewUniqueConstraintViolation(constraint, err)

	case sqliteErrAuth:
		return errors.NewAuthenticationFailed("", err)

	case sqliteErrCantOpen, sqliteErrNotADB, sqliteErrBusy:
		return errors.Wrap(errors.ErrCodeConnectionError, err.Error(), err)

	case sqliteErrGeneric:
		return errors.Wrap(errors.ErrCodeQueryError, err.Error(), err)

	default:
		return errors.NewRawError(strconv.Itoa(code), err.Error())
	}
}
