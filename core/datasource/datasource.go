// Package datasource parses connection URLs into structured descriptors.
// Parsing is pure: no I/O, no driver types.
package datasource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kilnworks/kiln/core/shared/errors"
)

// Family is the closed enumeration of supported database families. The
// connector table, the error normalizers and this enum extend in lockstep.
type Family string

const (
	FamilyPostgres Family = "postgres"
	FamilyMySQL    Family = "mysql"
	FamilySQLite   Family = "sqlite"
	FamilyMongoDB  Family = "mongodb"
)

// Known reports whether f is a member of the closed family set.
func (f Family) Known() bool {
	switch f {
	case FamilyPostgres, FamilyMySQL, FamilySQLite, FamilyMongoDB:
		return true
	}
	return false
}

// Descriptor is the parsed, normalized form of a connection URL. It is
// immutable once parsed; consumers read it, nothing mutates it.
type Descriptor struct {
	Family   Family
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Params   url.Values

	// FilePath is the on-disk database location for the sqlite family.
	FilePath string
	// SRV marks a mongodb+srv URL (DNS seedlist discovery).
	SRV bool
}

// Parse derives a Descriptor from a connection URL. The URL scheme selects
// the family; an unrecognized scheme is a hard failure rather than a
// fall-through to a default backend, because silently routing to the wrong
// dialect is worse than rejection.
func Parse(raw string) (*Descriptor, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New(errors.ErrCodeMalformedConnectionString, "connection string is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedConnectionString,
			fmt.Sprintf("invalid connection string %q", raw), err)
	}

	desc := &Descriptor{URL: raw, Params: u.Query()}

	switch u.Scheme {
	case "postgres", "postgresql":
		desc.Family = FamilyPostgres
	case "mysql":
		desc.Family = FamilyMySQL
	case "sqlite", "file":
		desc.Family = FamilySQLite
	case "mongodb", "mongodb+srv":
		desc.Family = FamilyMongoDB
		desc.SRV = u.Scheme == "mongodb+srv"
	default:
		return nil, errors.New(errors.ErrCodeMalformedConnectionString,
			fmt.Sprintf("unrecognized scheme %q in connection string", u.Scheme))
	}

	if desc.Family == FamilySQLite {
		// sqlite URLs carry a path, not an authority.
		path := u.Opaque
		if path == "" {
			path = u.Path
			if u.Host != "" {
				// sqlite://dev.db puts the filename in the host part.
				path = u.Host + u.Path
			}
		}
		if path == "" {
			return nil, errors.New(errors.ErrCodeMalformedConnectionString,
				fmt.Sprintf("sqlite connection string %q has no file path", raw))
		}
		desc.FilePath = path
		desc.Database = path
		return desc, nil
	}

	desc.Host = u.Hostname()
	desc.Port = u.Port()
	desc.Database = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		desc.User = u.User.Username()
		desc.Password, _ = u.User.Password()
	}

	return desc, nil
}
