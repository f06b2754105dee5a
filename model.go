package bigquery

// Model is implemented by record types that name their own table.
type Model interface {
	TableName() string
}

// DBTable marks the table a record type lives in. Embed it (or declare a
// field of this type) with `name:"..."` and optionally `dataset:"..."` tags:
//
//	type Infos struct {
//		bigquery.DBTable `name:"Infos" dataset:"test1"`
//		RowID  int64            `bq:"Id,primary_key"`
//		Client *bigquery.Client `bq:",client"`
//		Info1  *string          `bq:"info1"`
//	}
type DBTable struct{}
