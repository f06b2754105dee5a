package bigquery

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// SQLExecutor runs queries against a Postgres compatible database, standing
// in for the remote service in development and tests.
type SQLExecutor struct {
	db *sqlx.DB
}

func NewSQLExecutor(db *sqlx.DB) *SQLExecutor {
	return &SQLExecutor{db: db}
}

// ExecuteQuery ignores req.ProjectID; the database is the project.
func (e *SQLExecutor) ExecuteQuery(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	query, args, err := bindNamedParameters(e.db, req.Query, req.Parameters)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPostgresError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapPostgresError(err)
	}

	res := &QueryResult{}
	if len(columns) > 0 {
		res.Schema = columns
	}

	for rows.Next() {
		if req.MaxResults > 0 && len(res.Rows) >= req.MaxResults {
			break
		}

		cells, err := rows.SliceScan()
		if err != nil {
			return nil, wrapPostgresError(err)
		}
		res.Rows = append(res.Rows, Map(cells, formatCell))
	}

	if err := rows.Err(); err != nil {
		return nil, wrapPostgresError(err)
	}

	return res, nil
}

func (e *SQLExecutor) Close() error {
	return e.db.Close()
}
