package connectors

import (
	"context"
	stderrors "errors"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kilnworks/kiln/core/shared/errors"
)

// Extracts the identity from messages like:
//
//	password authentication failed for user "alice"
var pgUserPattern = regexp.MustCompile(`user "([^"]+)"`)

// normalizePostgresError translates a pgx/driver error into the shared
// taxonomy. The mapping is total: anything without an explicit SQLSTATE
// mapping lands in the RAW_ERROR catch-all and is never dropped.
func normalizePostgresError(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case stderrors.As(err, &dnsErr), stderrors.As(err, &netErr),
		stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(errors.ErrCodeConnectionError, "could not reach postgres server", err)
	}

	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) {
		return errors.NewRawError("unknown", err.Error())
	}

	switch {
	case pgErr.Code == "23505": // unique_violation
		constraint := errors.UnparsedConstraint()
		if pgErr.ConstraintName != "" {
			constraint = errors.IndexConstraint(pgErr.ConstraintName)
		}
		return errors.NewUniqueConstraintViolation(constraint, err)

	case pgErr.Code == "28P01", pgErr.Code == "28000": // invalid_password, invalid_authorization
		identity := ""
		if m := pgUserPattern.FindStringSubmatch(pgErr.Message); m != nil {
			identity = m[1]
		}
		return errors.NewAuthenticationFailed(identity, err)

	case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "3D000", pgErr.Code == "57P01":
		// connection exceptions, invalid_catalog_name, admin_shutdown
		return errors.Wrap(errors.ErrCodeConnectionError, pgErr.Message, err)

	case strings.HasPrefix(pgErr.Code, "42"), strings.HasPrefix(pgErr.Code, "22"):
		// syntax / access rule violations, data exceptions
		return errors.Wrap(errors.ErrCodeQueryError, pgErr.Message, err)

	default:
		return errors.NewRawError(pgErr.Code, pgErr.Message)
	}
}
