package connectors

import (
	"context"
	stderrors "errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/kilnworks/kiln/core/shared/errors"
)

// parseUniqueIndexViolation recovers the violated index name from the
// driver's free-text diagnostic:
//
//	duplicate key error collection: db.users index: email_1 dup key: { ... }
//
// This is a deliberately brittle, best-effort heuristic over a message shape
// the server does not guarantee. When it does not match, the violation is
// still reported, with the constraint marked as unparsable.
var uniqueIndexPattern = regexp.MustCompile(`duplicate\skey\serror\scollection:\s.*\sindex:\s(.*)\sdup\skey`)

func parseUniqueIndexViolation(message string) (string, bool) {
	m := uniqueIndexPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func uniqueViolation(message string, cause error) *errors.EngineError {
	constraint := errors.UnparsedConstraint()
	if index, ok := parseUniqueIndexViolation(message); ok {
		constraint = errors.IndexConstraint(index)
	}
	return errors.NewUniqueConstraintViolation(constraint, cause)
}

// mongoDuplicateKeyCodes are the server status codes that signal a
// duplicate-key write conflict.
func isMongoDuplicateKey(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

// classifyWriteFailure maps one write failure to a taxonomy kind: recognized
// duplicate-key codes become unique violations, everything else passes
// through verbatim as a raw error.
func classifyWriteFailure(code int, message string) *errors.EngineError {
	if isMongoDuplicateKey(code) {
		return uniqueViolation(message, nil)
	}
	return errors.NewRawError(strconv.Itoa(code), message)
}

// normalizeMongoError translates a mongo driver error into the shared
// taxonomy. The mapping is total; anything unrecognized lands in the
// RAW_ERROR catch-all with code "unknown" and is never silently dropped.
func normalizeMongoError(err error) error {
	if err == nil {
		return nil
	}

	var bulkExc mongo.BulkWriteException
	if stderrors.As(err, &bulkExc) {
		return normalizeBulkWriteException(bulkExc)
	}

	var writeExc mongo.WriteException
	if stderrors.As(err, &writeExc) {
		return normalizeWriteException(writeExc)
	}

	var cmdErr mongo.CommandError
	if stderrors.As(err, &cmdErr) {
		switch {
		case isMongoDuplicateKey(int(cmdErr.Code)):
			return uniqueViolation(cmdErr.Message, err)
		case cmdErr.Name == "AuthenticationFailed" || cmdErr.Name == "Unauthorized" || cmdErr.Code == 18:
			return errors.NewAuthenticationFailed(extractMongoIdentity(cmdErr.Message), err)
		default:
			return errors.NewRawError(strconv.Itoa(int(cmdErr.Code)), cmdErr.Message)
		}
	}

	var marshalErr mongo.MarshalError
	if stderrors.As(err, &marshalErr) {
		return errors.Wrap(errors.ErrCodeInternalConversionError, "BSON encode error", err)
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case stderrors.As(err, &dnsErr), stderrors.As(err, &netErr),
		stderrors.Is(err, context.DeadlineExceeded),
		mongo.IsTimeout(err),
		strings.Contains(err.Error(), "server selection error"):
		return errors.Wrap(errors.ErrCodeConnectionError, "could not reach mongodb server", err)
	}

	if strings.Contains(err.Error(), "auth error") {
		return errors.NewAuthenticationFailed(extractMongoIdentity(err.Error()), err)
	}

	// Duplicate key reported through a shape not matched above.
	if mongo.IsDuplicateKeyError(err) {
		return uniqueViolation(err.Error(), err)
	}

	return errors.NewRawError("unknown", err.Error())
}

// normalizeWriteException flattens a single-statement write failure. One
// failure keeps its own kind; several independent ones aggregate in driver
// order, with the write-concern error appended as an additional entry.
func normalizeWriteException(exc mongo.WriteException) error {
	var kinds []*errors.EngineError
	for _, we := range exc.WriteErrors {
		kinds = append(kinds, classifyWriteFailure(we.Code, we.Message))
	}
	if wce := exc.WriteConcernError; wce != nil {
		kinds = append(kinds, classifyWriteFailure(wce.Code, wce.Message))
	}

	switch len(kinds) {
	case 0:
		return errors.NewRawError("unknown", exc.Error())
	case 1:
		return kinds[0]
	default:
		return errors.NewMultiError(kinds)
	}
}

// normalizeBulkWriteException aggregates the per-item failures of a batched
// write into one MULTI_ERROR, preserving the order the driver reported. A
// batch-level write-concern error is appended last, never merged.
func normalizeBulkWriteException(exc mongo.BulkWriteException) error {
	kinds := make([]*errors.EngineError, 0, len(exc.WriteErrors)+1)
	for _, we := range exc.WriteErrors {
		kinds = append(kinds, classifyWriteFailure(we.Code, we.Message))
	}
	if wce := exc.WriteConcernError; wce != nil {
		kinds = append(kinds, classifyWriteFailure(wce.Code, wce.Message))
	}
	return errors.NewMultiError(kinds)
}

// extractMongoIdentity pulls the user out of auth failure messages when the
// server includes it. Best-effort.
var mongoUserPattern = regexp.MustCompile(`[Uu]ser(?:name)?\s+"?([\w.@-]+)"?`)

func extractMongoIdentity(message string) string {
	if m := mongoUserPattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return message
}
