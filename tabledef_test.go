package bigquery

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v4"
)

type infos struct {
	DBTable  `name:"Infos"`
	RowID    int64       `bq:"Id,primary_key"`
	Client   *Client     `bq:",client"`
	Info1    *string     `bq:"info1"`
	Info2    *string     `bq:"info"`
	Info3    null.String `bq:"info3"`
	IntInfo4 *int64      `bq:"info4i"`
	Yes      *bool       `bq:"yes"`
	Note     string      `bq:"-"`
}

type event struct {
	ID        string    `bq:",pk"`
	Client    *Client   `bq:",client"`
	CreatedAt time.Time `bq:",required"`
	Score     null.Float
	UserName  *string
	cache     map[string]string
}

type namedEvent struct {
	ID     int64   `bq:"id,key"`
	Client *Client `bq:",client"`
}

func (namedEvent) TableName() string {
	return "events_v2"
}

func TestNewRecordType(t *testing.T) {
	rt, err := NewRecordType(infos{})
	require.NoError(t, err)

	assert.Equal(t, "Infos", rt.Name)
	assert.Equal(t, []string{"RowID", "Info1", "Info2", "Info3", "IntInfo4", "Yes"}, rt.LocalNames())
	assert.Equal(t, "RowID", rt.PrimaryKey.LocalName)
	assert.Equal(t, "Id", rt.PrimaryKey.RemoteName)
	assert.True(t, rt.PrimaryKey.Required)
	assert.Equal(t, "Client", rt.Client.LocalName)
	assert.True(t, rt.Client.IsClientHandle)
	assert.Equal(t, reflect.TypeOf(infos{}), rt.GoType())

	_, ok := rt.Field("Note")
	assert.False(t, ok, "ignored field must not be mapped")
	_, ok = rt.Field("Client")
	assert.False(t, ok, "client field must not be a data field")

	info2, ok := rt.Field("Info2")
	require.True(t, ok)
	assert.Equal(t, "info", info2.RemoteName)
	assert.Equal(t, TypeString, info2.TypeTag)
	assert.True(t, info2.Nullable)
	assert.False(t, info2.Required)
}

func TestNewRecordTypeDefaults(t *testing.T) {
	rt, err := NewRecordType(&event{})
	require.NoError(t, err)

	assert.Equal(t, "event", rt.Name)
	assert.Equal(t, []string{"ID", "CreatedAt", "Score", "UserName"}, rt.LocalNames())

	created, _ := rt.Field("CreatedAt")
	assert.Equal(t, "CreatedAt", created.RemoteName)
	assert.Equal(t, TypeDateTime, created.TypeTag)
	assert.True(t, created.Required)

	score, _ := rt.Field("Score")
	assert.Equal(t, TypeFloat64, score.TypeTag)
}

func TestNewRecordTypeSnakeCase(t *testing.T) {
	rt, err := NewRecordType(event{}, WithSnakeCaseColumns(), WithName("events"), WithDataset("analytics"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"ID":        "id",
		"CreatedAt": "created_at",
		"Score":     "score",
		"UserName":  "user_name",
	}, rt.QueryableColumns())
	assert.Equal(t, "analytics.events", rt.TableIdentifier("other"))
}

func TestNewRecordTypeTableName(t *testing.T) {
	rt, err := NewRecordType(reflect.TypeOf(namedEvent{}))
	require.NoError(t, err)
	assert.Equal(t, "events_v2", rt.Name)
	assert.Equal(t, "ds.events_v2", rt.TableIdentifier("ds"))
	assert.Equal(t, "events_v2", rt.TableIdentifier(""))

	rt, err = NewRecordType(namedEvent{}, WithName("override"))
	require.NoError(t, err)
	assert.Equal(t, "override", rt.Name)
}

func TestNewRecordTypeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		model any
	}{
		{"not a struct", 5},
		{"nil", nil},
		{"no primary key", struct {
			A      int64   `bq:",required"`
			Client *Client `bq:",client"`
		}{}},
		{"two primary keys", struct {
			A      int64   `bq:",pk"`
			B      int64   `bq:",pk"`
			Client *Client `bq:",client"`
		}{}},
		{"no client", struct {
			A int64 `bq:",pk"`
		}{}},
		{"two clients", struct {
			A  int64   `bq:",pk"`
			C1 *Client `bq:",client"`
			C2 *Client `bq:",client"`
		}{}},
		{"client of wrong type", struct {
			A      int64  `bq:",pk"`
			Client string `bq:",client"`
		}{}},
		{"optional field not nullable", struct {
			A      int64   `bq:",pk"`
			Client *Client `bq:",client"`
			B      string
		}{}},
		{"nullable primary key", struct {
			A      *int64  `bq:",pk"`
			Client *Client `bq:",client"`
		}{}},
		{"unsupported type", struct {
			A      int64    `bq:",pk"`
			Client *Client  `bq:",client"`
			B      []string `bq:",required"`
		}{}},
		{"duplicate remote name", struct {
			A      int64   `bq:"x,pk"`
			Client *Client `bq:",client"`
			B      *string `bq:"x"`
		}{}},
		{"unknown marker", struct {
			A      int64   `bq:",pk unique"`
			Client *Client `bq:",client"`
		}{}},
		{"tagged unexported field", struct {
			A      int64   `bq:",pk"`
			Client *Client `bq:",client"`
			b      *string `bq:"b"`
		}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecordType(tt.model)
			assert.ErrorIs(t, err, ErrSchemaDefinition)
		})
	}
}

func TestParseFieldTag(t *testing.T) {
	tag, err := parseFieldTag("Id,primary_key")
	require.NoError(t, err)
	assert.Equal(t, fieldTag{name: "Id", primaryKey: true}, tag)

	tag, err = parseFieldTag(" name , required client=false ")
	require.NoError(t, err)
	assert.Equal(t, fieldTag{name: "name", required: true}, tag)

	tag, err = parseFieldTag(",ignore")
	require.NoError(t, err)
	assert.True(t, tag.ignore)

	tag, err = parseFieldTag("-")
	require.NoError(t, err)
	assert.True(t, tag.ignore)

	_, err = parseFieldTag(",required=maybe")
	assert.Error(t, err)
}
