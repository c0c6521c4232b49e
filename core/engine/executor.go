package engine

import (
	"context"

	"github.com/kilnworks/kiln/core/config"
	"github.com/kilnworks/kiln/core/connectors"
	"github.com/kilnworks/kiln/core/schema"
	"github.com/kilnworks/kiln/core/shared/errors"
)

// QueryRequest is the GraphQL-shaped request body the engine accepts while
// connected. Query planning is an external collaborator; the built-in
// executor supports raw native statements addressed at an operation.
type QueryRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// QueryResponse is the GraphQL-shaped response body.
type QueryResponse struct {
	Data   any             `json:"data,omitempty"`
	Errors []ResponseError `json:"errors,omitempty"`
}

// ResponseError is one error entry of a response.
type ResponseError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Executor runs queries against a live database. The connected engine state
// owns exactly one; its Close releases all pooled driver connections.
type Executor interface {
	Query(ctx context.Context, qs *schema.QuerySchema, req *QueryRequest) (*QueryResponse, error)
	PrimaryConnector() string
	Close(ctx context.Context) error
}

// ExecutorLoader derives an executor from the configured datasource. The
// returned string is the resolved database name used to compile the query
// schema. Loaders must probe the connection before returning: a successful
// load means the database answered one round trip.
type ExecutorLoader func(ctx context.Context, ds *config.Datasource, previewFeatures []string, url string) (string, Executor, error)

// LoadExecutor is the default loader: select the backend for the URL's
// family, probe it, and wrap it in a connector-backed executor.
func LoadExecutor(ctx context.Context, ds *config.Datasource, previewFeatures []string, url string) (string, Executor, error) {
	conn, desc, err := connectors.Load(url)
	if err != nil {
		return "", nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return "", nil, err
	}

	return desc.Database, &connectorExecutor{conn: conn, family: string(desc.Family)}, nil
}

// connectorExecutor executes raw statements through a single connector.
type connectorExecutor struct {
	conn   connectors.Connector
	family string
}

func (c *connectorExecutor) Query(ctx context.Context, qs *schema.QuerySchema, req *QueryRequest) (*QueryResponse, error) {
	if req == nil || req.Query == "" {
		return nil, errors.New(errors.ErrCodeQueryError, "request has no query")
	}

	rows, err := c.conn.Execute(ctx, req.Query, req.Variables)
	if err != nil {
		// Normalized connector errors become response errors; the engine
		// stays usable after a failed query.
		if e := errors.AsEngineError(err); e != nil {
			return &QueryResponse{Errors: []ResponseError{{Message: e.Message, Code: string(e.Code)}}}, nil
		}
		return nil, err
	}

	return &QueryResponse{Data: rows}, nil
}

func (c *connectorExecutor) PrimaryConnector() string {
	return c.family
}

func (c *connectorExecutor) Close(ctx context.Context) error {
	return c.conn.Close()
}
