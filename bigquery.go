package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	bqapi "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"gopkg.in/guregu/null.v4"
)

// BigQueryExecutor runs queries through the BigQuery REST API (jobs.query).
type BigQueryExecutor struct {
	service  *bqapi.Service
	location string
	timeout  time.Duration
}

// NewBigQueryExecutor creates the REST service from opts. Credentials default
// to Application Default Credentials.
func NewBigQueryExecutor(ctx context.Context, location string, timeout time.Duration, opts ...option.ClientOption) (*BigQueryExecutor, error) {
	svc, err := bqapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery service: %w", err)
	}

	return &BigQueryExecutor{
		service:  svc,
		location: location,
		timeout:  timeout,
	}, nil
}

func (e *BigQueryExecutor) ExecuteQuery(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	qr := &bqapi.QueryRequest{
		Query:           req.Query,
		UseLegacySql:    googleapi.Bool(false),
		ParameterMode:   "NAMED",
		QueryParameters: Map(req.Parameters, toAPIParameter),
		Location:        e.location,
	}
	if req.MaxResults > 0 {
		qr.MaxResults = int64(req.MaxResults)
	}
	if e.timeout > 0 {
		qr.TimeoutMs = e.timeout.Milliseconds()
	}

	resp, err := e.service.Jobs.Query(req.ProjectID, qr).Context(ctx).Do()
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if resp.HTTPStatusCode != http.StatusOK {
		return nil, &TransportError{Status: resp.HTTPStatusCode}
	}

	res := &QueryResult{}
	if resp.Schema != nil {
		res.Schema = schemaNames(resp.Schema)
	}
	res.Rows = appendRows(res.Rows, resp.Rows)

	complete := resp.JobComplete
	pageToken := resp.PageToken
	for !complete || (pageToken != "" && !enough(res, req.MaxResults)) {
		if resp.JobReference == nil {
			return nil, &TransportError{Err: errors.New("incomplete query without job reference")}
		}

		call := e.service.Jobs.GetQueryResults(req.ProjectID, resp.JobReference.JobId).Context(ctx)
		if loc := resp.JobReference.Location; loc != "" {
			call = call.Location(loc)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		if e.timeout > 0 {
			call = call.TimeoutMs(e.timeout.Milliseconds())
		}

		page, err := call.Do()
		if err != nil {
			return nil, wrapAPIError(err)
		}
		if page.HTTPStatusCode != http.StatusOK {
			return nil, &TransportError{Status: page.HTTPStatusCode}
		}

		if page.Schema != nil && res.Schema == nil {
			res.Schema = schemaNames(page.Schema)
		}
		res.Rows = appendRows(res.Rows, page.Rows)
		complete = page.JobComplete
		pageToken = page.PageToken
	}

	if req.MaxResults > 0 && len(res.Rows) > req.MaxResults {
		res.Rows = res.Rows[:req.MaxResults]
	}
	return res, nil
}

func enough(res *QueryResult, limit int) bool {
	return limit > 0 && len(res.Rows) >= limit
}

func toAPIParameter(p QueryParameter) *bqapi.QueryParameter {
	value := &bqapi.QueryParameterValue{}
	if p.Value.Valid {
		value.Value = p.Value.String
		// an empty string must still be sent
		value.ForceSendFields = []string{"Value"}
	}

	return &bqapi.QueryParameter{
		Name:           p.Name,
		ParameterType:  &bqapi.QueryParameterType{Type: p.Type},
		ParameterValue: value,
	}
}

func schemaNames(schema *bqapi.TableSchema) []string {
	return Map(schema.Fields, func(f *bqapi.TableFieldSchema) string {
		return f.Name
	})
}

func appendRows(rows []Row, apiRows []*bqapi.TableRow) []Row {
	for _, r := range apiRows {
		row := make(Row, len(r.F))
		for i, cell := range r.F {
			switch v := cell.V.(type) {
			case nil:
			case string:
				row[i] = null.StringFrom(v)
			default:
				row[i] = null.StringFrom(fmt.Sprint(v))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func wrapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		te := &TransportError{Status: apiErr.Code, Err: err}
		if len(apiErr.Errors) > 0 {
			te.Code = apiErr.Errors[0].Reason
		}
		return te
	}
	return &TransportError{Err: err}
}
