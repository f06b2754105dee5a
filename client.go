package bigquery

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"
)

// ParameterPrefix is prepended to a remote column name to form the name of
// the query parameter bound to it.
const ParameterPrefix = "__"

// ParameterName returns the parameter name bound to column.
func ParameterName(column string) string {
	return ParameterPrefix + column
}

// Placeholder returns the @-placeholder referencing column's parameter.
func Placeholder(column string) string {
	return "@" + ParameterName(column)
}

// QueryParameter is a named, typed value bound into a query. An invalid Value
// is sent as NULL.
type QueryParameter struct {
	Name  string
	Type  string
	Value null.String
}

func (p QueryParameter) String() string {
	v := NullLiteral
	if p.Value.Valid {
		v = p.Value.String
	}
	return fmt.Sprintf("%s %s = %s", p.Name, p.Type, v)
}

// Row is one row of a query result, cells in schema order. Absent cells are
// invalid null.Strings.
type Row []null.String

// NameIndexMapping translates a remote column name to its cell position.
type NameIndexMapping map[string]int

// NewNameIndexMapping builds the mapping for a result schema.
func NewNameIndexMapping(schema []string) NameIndexMapping {
	m := make(NameIndexMapping, len(schema))
	for i, name := range schema {
		m[name] = i
	}
	return m
}

// QueryResult is the answer to one executed query. Schema and Rows are nil
// when the statement produced no result set.
type QueryResult struct {
	Schema []string
	Rows   []Row
}

// QueryRequest is a single parameterized statement to run within a project.
type QueryRequest struct {
	Query      string
	Parameters []QueryParameter
	ProjectID  string
	// MaxResults bounds the rows fetched; zero means no bound.
	MaxResults int
}

// Executor runs queries against the remote tabular service. Implementations
// own transport, authentication and cancellation; they must not retry on
// behalf of the caller.
type Executor interface {
	ExecuteQuery(ctx context.Context, req QueryRequest) (*QueryResult, error)
}

// Client binds an Executor to the project and dataset records live in.
// Records keep a pointer to the Client they were loaded with.
type Client struct {
	executor  Executor
	projectID string
	datasetID string
	logger    *zap.Logger
}

func NewClient(executor Executor, projectID, datasetID string, options ...ClientOption) *Client {
	c := &Client{
		executor:  executor,
		projectID: projectID,
		datasetID: datasetID,
		logger:    zap.NewNop(),
	}
	for _, op := range options {
		op(c)
	}
	return c
}

func (c *Client) ProjectID() string {
	return c.projectID
}

func (c *Client) DatasetID() string {
	return c.datasetID
}

func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// Query runs query with params in the client's project. Executor errors are
// returned unchanged.
func (c *Client) Query(ctx context.Context, query string, params []QueryParameter, maxResults int) (*QueryResult, error) {
	c.logger.Debug("executing query",
		zap.String("query", query),
		zap.String("project", c.projectID),
		zap.Stringers("parameters", params),
	)

	res, err := c.executor.ExecuteQuery(ctx, QueryRequest{
		Query:      query,
		Parameters: params,
		ProjectID:  c.projectID,
		MaxResults: maxResults,
	})
	if err != nil {
		c.logger.Debug("query failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}

	if res == nil {
		res = &QueryResult{}
	}
	c.logger.Debug("query done", zap.Int("rows", len(res.Rows)))
	return res, nil
}

// Close releases the executor when it holds resources.
func (c *Client) Close() error {
	if cl, ok := c.executor.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("Client{project: %s, dataset: %s}", c.projectID, c.datasetID)
}
