// Package introspect drives one introspection attempt: parse configuration,
// resolve the first datasource's URL, select the backend for its family,
// describe the live database, and convert the description into the abstract
// data-model document.
package introspect

import (
	"context"

	"github.com/kilnworks/kiln/core/config"
	"github.com/kilnworks/kiln/core/connectors"
	"github.com/kilnworks/kiln/core/datasource"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/errors"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// Context carries the caller-supplied surroundings of one introspection run:
// the active preview features and the environment resolver used for URL
// indirection.
type Context struct {
	PreviewFeatures []string
	LookupEnv       config.LookupEnv
}

// Loader obtains a backend for a connection URL. Swapped by tests.
type Loader func(url string) (connectors.Connector, *datasource.Descriptor, error)

// Introspector runs introspection attempts.
type Introspector struct {
	load Loader
}

// New returns an Introspector using the real backend table.
func New() *Introspector {
	return &Introspector{load: connectors.Load}
}

// NewWithLoader returns an Introspector with a custom backend loader.
func NewWithLoader(load Loader) *Introspector {
	return &Introspector{load: load}
}

// Result is a successful introspection: the derived datamodel and the
// schema document rendering both halves.
type Result struct {
	Datamodel  *schema.Datamodel
	SchemaText string
}

// Introspect runs one attempt against the first datasource declared in
// schemaText. Only the first datasource is considered: multi-source
// configurations are unsupported. A live database with no models is the
// distinguished INTROSPECTION_RESULT_EMPTY condition, not a success with an
// empty document.
func (in *Introspector) Introspect(ctx context.Context, schemaText string, ictx *Context) (*Result, error) {
	if ictx == nil {
		ictx = &Context{}
	}

	cfg, err := config.Parse(schemaText)
	if err != nil {
		return nil, err
	}
	if len(ictx.PreviewFeatures) > 0 {
		cfg.PreviewFeatures = ictx.PreviewFeatures
	}

	ds, err := cfg.First()
	if err != nil {
		return nil, err
	}

	url, err := ds.ResolveURL(ictx.LookupEnv)
	if err != nil {
		return nil, err
	}

	conn, desc, err := in.load(url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	log := logging.New("introspect")
	log.Debug().Str("family", string(desc.Family)).Str("datasource", ds.Name).Msg("describing live database")

	description, err := conn.Describe(ctx)
	if err != nil {
		return nil, err
	}

	dm := schema.ConvertDescription(description)
	if dm.IsEmpty() {
		return nil, errors.NewIntrospectionResultEmpty(url)
	}

	rendered, err := schema.Render(dm, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().Int("models", len(dm.Models)).Msg("introspection complete")
	return &Result{Datamodel: dm, SchemaText: rendered}, nil
}
