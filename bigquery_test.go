package bigquery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bqapi "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"
	"gopkg.in/guregu/null.v4"
)

func newTestBigQueryExecutor(t *testing.T, handler http.HandlerFunc) *BigQueryExecutor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	exec, err := NewBigQueryExecutor(context.Background(), "EU", 5*time.Second,
		option.WithEndpoint(srv.URL+"/bigquery/v2/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return exec
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestBigQueryExecutorQuery(t *testing.T) {
	var got bqapi.QueryRequest
	exec := newTestBigQueryExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bigquery/v2/projects/project-1/queries", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeJSON(t, w, map[string]any{
			"jobComplete": true,
			"schema": map[string]any{"fields": []map[string]any{
				{"name": "Id", "type": "INTEGER"},
				{"name": "info", "type": "STRING"},
			}},
			"rows": []map[string]any{
				{"f": []map[string]any{{"v": "1"}, {"v": "a"}}},
				{"f": []map[string]any{{"v": "2"}, {"v": nil}}},
			},
		})
	})

	res, err := exec.ExecuteQuery(context.Background(), QueryRequest{
		Query: "SELECT Id, info FROM test1.Infos WHERE yes = @__yes AND info = @__info AND info3 = @__info3",
		Parameters: []QueryParameter{
			{Name: "__yes", Type: TypeBool, Value: null.StringFrom("TRUE")},
			{Name: "__info", Type: TypeString},
			{Name: "__info3", Type: TypeString, Value: null.StringFrom("")},
		},
		ProjectID:  "project-1",
		MaxResults: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Id", "info"}, res.Schema)
	assert.Equal(t, []Row{
		{null.StringFrom("1"), null.StringFrom("a")},
		{null.StringFrom("2"), null.String{}},
	}, res.Rows)

	assert.Equal(t, "NAMED", got.ParameterMode)
	require.NotNil(t, got.UseLegacySql)
	assert.False(t, *got.UseLegacySql)
	assert.Equal(t, "EU", got.Location)
	assert.Equal(t, int64(10), got.MaxResults)
	assert.Equal(t, int64(5000), got.TimeoutMs)
	require.Len(t, got.QueryParameters, 3)
	assert.Equal(t, "__yes", got.QueryParameters[0].Name)
	assert.Equal(t, "BOOL", got.QueryParameters[0].ParameterType.Type)
	assert.Equal(t, "TRUE", got.QueryParameters[0].ParameterValue.Value)
	assert.Empty(t, got.QueryParameters[1].ParameterValue.Value)
	assert.Equal(t, "STRING", got.QueryParameters[2].ParameterType.Type)
}

func TestBigQueryExecutorPollsIncompleteJob(t *testing.T) {
	var pages []string
	exec := newTestBigQueryExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			writeJSON(t, w, map[string]any{
				"jobComplete":  false,
				"jobReference": map[string]any{"projectId": "p", "jobId": "job-1", "location": "EU"},
			})
		case strings.HasSuffix(r.URL.Path, "/queries/job-1"):
			assert.Equal(t, "EU", r.URL.Query().Get("location"))
			token := r.URL.Query().Get("pageToken")
			pages = append(pages, token)
			resp := map[string]any{
				"jobComplete":  true,
				"jobReference": map[string]any{"projectId": "p", "jobId": "job-1", "location": "EU"},
				"schema":       map[string]any{"fields": []map[string]any{{"name": "n"}}},
				"rows":         []map[string]any{{"f": []map[string]any{{"v": "row-" + token}}}},
			}
			if token == "" {
				resp["pageToken"] = "next"
			}
			writeJSON(t, w, resp)
		default:
			http.NotFound(w, r)
		}
	})

	res, err := exec.ExecuteQuery(context.Background(), QueryRequest{Query: "SELECT n FROM t", ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "next"}, pages)
	assert.Equal(t, []string{"n"}, res.Schema)
	assert.Equal(t, []Row{{null.StringFrom("row-")}, {null.StringFrom("row-next")}}, res.Rows)
}

func TestBigQueryExecutorAPIError(t *testing.T) {
	exec := newTestBigQueryExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Access Denied","errors":[{"reason":"accessDenied","message":"Access Denied"}]}}`))
	})

	_, err := exec.ExecuteQuery(context.Background(), QueryRequest{Query: "SELECT 1", ProjectID: "p"})
	require.ErrorIs(t, err, ErrTransport)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusForbidden, te.Status)
	assert.Equal(t, "accessDenied", te.Code)
}

func TestBigQueryExecutorThroughRepository(t *testing.T) {
	var queries []string
	exec := newTestBigQueryExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		var req bqapi.QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		queries = append(queries, req.Query)

		writeJSON(t, w, map[string]any{
			"jobComplete": true,
			"schema": map[string]any{"fields": []map[string]any{
				{"name": "Id"}, {"name": "info1"}, {"name": "info"}, {"name": "info3"}, {"name": "info4i"}, {"name": "yes"},
			}},
			"rows": []map[string]any{
				{"f": []map[string]any{{"v": "3"}, {"v": "a"}, {"v": nil}, {"v": "c"}, {"v": nil}, {"v": nil}}},
			},
		})
	})

	repo, err := NewRepository[int64, infos]()
	require.NoError(t, err)

	client := NewClient(exec, "project-1", "test1")
	rec, err := repo.Get(context.Background(), client, 3)
	require.NoError(t, err)
	assert.Equal(t, "a", *rec.Info1)
	assert.Nil(t, rec.Info2)
	assert.Equal(t, "c", rec.Info3.String)
	assert.Equal(t, []string{"SELECT Id, info, info1, info3, info4i, yes FROM test1.Infos WHERE Id = @__Id LIMIT 1"}, queries)
}
