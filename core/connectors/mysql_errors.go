package connectors

import (
	"context"
	stderrors "errors"
	"net"
	"regexp"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/kilnworks/kiln/core/shared/errors"
)

var (
	// Duplicate entry 'a@b.com' for key 'users.email_key'
	mysqlDupKeyPattern = regexp.MustCompile(`for key '([^']+)'`)
	// Access denied for user 'alice'@'localhost'
	mysqlUserPattern = regexp.MustCompile(`for user '([^']+)'`)
)

// normalizeMySQLError translates a go-sql-driver error into the shared
// taxonomy. Total: unmapped error numbers land in the RAW_ERROR catch-all.
func normalizeMySQLError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case stderrors.As(err, &dnsErr), stderrors.As(err, &netErr),
		stderrors.Is(err, mysql.ErrInvalidConn),
		stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(errors.ErrCodeConnectionError, "could not reach mysql server", err)
	}

	var myErr *mysql.MySQLError
	if !stderrors.As(err, &myErr) {
		return errors.NewRawError("unknown", err.Error())
	}

	switch myErr.Number {
	case 1062, 1586: // ER_DUP_ENTRY, ER_DUP_ENTRY_WITH_KEY_NAME
		constraint := errors.UnparsedConstraint()
		if m := mysqlDupKeyPattern.FindStringSubmatch(myErr.Message); m != nil {
			constraint = errors.IndexConstraint(m[1])
		}
		return errors.NewUniqueConstraintViolation(constraint, err)

	case 1044, 1045: // ER_DBACCESS_DENIED, ER_ACCESS_DENIED
		identity := ""
		if m := mysqlUserPattern.FindStringSubmatch(myErr.Message); m != nil {
			identity = m[1]
		}
		return errors.NewAuthenticationFailed(identity, err)

	case 1049, 1040, 1129, 1130: // unknown database, too many connections, host blocked/denied
		return errors.Wrap(errors.ErrCodeConnectionError, myErr.Message, err)

	case 1054, 1064, 1146, 1406: // bad column, syntax error, no such table, data too long
		return errors.Wrap(errors.ErrCodeQueryError, myErr.Message, err)

	default:
		return errors.NewRawError(strconv.Itoa(int(myErr.Number)), myErr.Message)
	}
}
