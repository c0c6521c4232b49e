// Package engine owns the connection lifecycle of one engine instance: a
// two-state machine (builder, connected) behind a single reader/writer lock.
// State transitions replace the state value wholesale, so concurrent readers
// only ever observe a fully built builder or a fully built connected state.
package engine

import (
	"context"
	"sync"

	"github.com/kilnworks/kiln/core/config"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/errors"
	"github.com/kilnworks/kiln/core/shared/logging"
)

// engineDatamodel carries everything needed to reconnect: the parsed
// datamodel, the raw schema text it came from, and per-datasource URL
// overrides picked up during the session.
type engineDatamodel struct {
	ast                 *schema.Datamodel
	raw                 string
	datasourceOverrides map[string]string
}

// state is the closed union of lifecycle states. Exactly two
// implementations exist; every type switch over it handles both.
type state interface {
	isEngineState()
}

// builderState holds the data to form a connection: schema document plus a
// validated configuration snapshot. No live resources.
type builderState struct {
	dm  engineDatamodel
	cfg *config.Config
}

// connectedState holds the resolved runtime configuration, the compiled
// query schema and the owned executor. It exclusively owns the executor's
// pooled connections for its entire tenure.
type connectedState struct {
	dm          engineDatamodel
	cfg         map[string]any
	querySchema *schema.QuerySchema
	executor    Executor
}

func (*builderState) isEngineState()   {}
func (*connectedState) isEngineState() {}

// Engine is shared across concurrent callers. Reads (queries, config,
// server info) take the shared side of the lock; connect and disconnect take
// the exclusive side and block until all readers release.
type Engine struct {
	mu    sync.RWMutex
	state state

	loader    ExecutorLoader
	lookupEnv config.LookupEnv
	version   string
	commit    string
}

// ServerInfo describes the running engine instance.
type ServerInfo struct {
	Commit           string `json:"commit"`
	Version          string `json:"version"`
	PrimaryConnector string `json:"primaryConnector,omitempty"`
}

// New parses a schema document into an unconnected engine. The document
// must carry a valid configuration; the datamodel half may be empty until
// introspection fills it in.
func New(schemaText string, opts ...Option) (*Engine, error) {
	cfg, err := config.Parse(schemaText)
	if err != nil {
		return nil, err
	}
	dm, err := schema.ParseDocument(schemaText)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		state: &builderState{
			dm: engineDatamodel{
				ast:                 dm,
				raw:                 schemaText,
				datasourceOverrides: map[string]string{},
			},
			cfg: cfg,
		},
		loader:    LoadExecutor,
		lookupEnv: config.OSLookupEnv,
		version:   "dev",
		commit:    "unknown",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Connect derives a live executor from the configured datasource, probes it
// with one round trip, compiles the query schema, and only then installs the
// connected state. Connecting a connected engine fails with
// ALREADY_CONNECTED and has no side effect.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch st := e.state.(type) {
	case *builderState:
		ds, err := st.cfg.First()
		if err != nil {
			return err
		}

		url, err := e.resolveURL(ds, st.dm.datasourceOverrides)
		if err != nil {
			return err
		}

		dbName, executor, err := e.loader(ctx, ds, st.cfg.PreviewFeatures, url)
		if err != nil {
			return err
		}

		// The new state is computed in full before it replaces the old one.
		e.state = &connectedState{
			dm:          st.dm,
			cfg:         st.cfg.AsJSON(),
			querySchema: schema.BuildQuerySchema(st.dm.ast, dbName),
			executor:    executor,
		}

		logger := logging.New("engine")
		logger.Info().Str("datasource", ds.Name).Msg("engine connected")
		return nil

	case *connectedState:
		return errors.NewAlreadyConnected()

	default:
		return errors.New(errors.ErrCodeConnectionError, "engine state is corrupt")
	}
}

// Disconnect releases the executor and re-derives a builder from the
// retained schema text plus the session's datasource overrides.
// Disconnecting an unconnected engine fails with NOT_CONNECTED.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch st := e.state.(type) {
	case *connectedState:
		// Pooled resources are released before the builder becomes visible.
		if err := st.executor.Close(ctx); err != nil {
			logger := logging.New("engine")
			logger.Warn().Err(err).Msg("executor close reported an error")
		}

		cfg, err := config.Parse(st.dm.raw)
		if err != nil {
			return err
		}

		e.state = &builderState{dm: st.dm, cfg: cfg}

		logger := logging.New("engine")
		logger.Info().Msg("engine disconnected")
		return nil

	case *builderState:
		return errors.NewNotConnected()

	default:
		return errors.New(errors.ErrCodeConnectionError, "engine state is corrupt")
	}
}

// Query delegates a request to the executor. Valid only while connected.
func (e *Engine) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch st := e.state.(type) {
	case *connectedState:
		return st.executor.Query(ctx, st.querySchema, req)
	default:
		return nil, errors.NewNotConnected()
	}
}

// SDLSchema renders the compiled query schema. Valid only while connected.
func (e *Engine) SDLSchema() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch st := e.state.(type) {
	case *connectedState:
		return st.querySchema.SDL(), nil
	default:
		return "", errors.NewNotConnected()
	}
}

// SchemaText returns the schema document text. Readable in both states; it
// survives disconnect/reconnect cycles unchanged.
func (e *Engine) SchemaText() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch st := e.state.(type) {
	case *connectedState:
		return st.dm.raw
	case *builderState:
		return st.dm.raw
	default:
		return ""
	}
}

// Config returns the JSON-shaped configuration. Connected engines return
// the resolved snapshot installed at connect time; builders derive an
// equivalent view. Never fails.
func (e *Engine) Config() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch st := e.state.(type) {
	case *connectedState:
		return st.cfg
	case *builderState:
		return st.cfg.AsJSON()
	default:
		return nil
	}
}

// Datamodel returns the current abstract datamodel. Readable in both states.
func (e *Engine) Datamodel() *schema.Datamodel {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch st := e.state.(type) {
	case *connectedState:
		return st.dm.ast
	case *builderState:
		return st.dm.ast
	default:
		return nil
	}
}

// ServerInfo reports build and connection metadata. Readable in both
// states; the primary connector is only known while connected.
func (e *Engine) ServerInfo() ServerInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	info := ServerInfo{Commit: e.commit, Version: e.version}
	if st, ok := e.state.(*connectedState); ok {
		info.PrimaryConnector = st.executor.PrimaryConnector()
	}
	return info
}

// Connected reports whether the engine currently holds a connected state.
func (e *Engine) Connected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.state.(*connectedState)
	return ok
}

func (e *Engine) resolveURL(ds *config.Datasource, overrides map[string]string) (string, error) {
	if override, ok := overrides[ds.Name]; ok {
		return override, nil
	}
	return ds.ResolveURL(e.lookupEnv)
}
