package bigquery

import (
	"github.com/iancoleman/strcase"
	"go.uber.org/zap"
)

type RepositoryOption func(o *repositoryOption)

type repositoryOption struct {
	tableName string
	dataset   string
	naming    func(string) string
}

// WithName overrides the table name of the record type.
func WithName(name string) RepositoryOption {
	return func(o *repositoryOption) {
		o.tableName = name
	}
}

// WithDataset pins the record type to a dataset other than the client's.
func WithDataset(dataset string) RepositoryOption {
	return func(o *repositoryOption) {
		o.dataset = dataset
	}
}

// WithColumnNaming derives remote names of fields without an explicit one.
func WithColumnNaming(fn func(localName string) string) RepositoryOption {
	return func(o *repositoryOption) {
		o.naming = fn
	}
}

func WithSnakeCaseColumns() RepositoryOption {
	return WithColumnNaming(strcase.ToSnake)
}

type QueryOption func(o *queryOption)

type queryOption struct {
	Offset int64
	Sorter []string
}

// WithSorter orders results by local field names; a leading "-" sorts
// descending, "+" or nothing ascending.
func WithSorter(fields ...string) QueryOption {
	return func(o *queryOption) {
		o.Sorter = append(o.Sorter, fields...)
	}
}

func WithOffset(offset int64) QueryOption {
	return func(o *queryOption) {
		o.Offset = offset
	}
}

type ClientOption func(c *Client)

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}
