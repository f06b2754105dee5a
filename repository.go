package bigquery

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"go.uber.org/zap"
)

// Repository loads and persists records of type T keyed by K.
//
// A record is not safe for concurrent mutation. Save probes for the key
// before writing, so two concurrent saves of the same key may both insert.
type Repository[K comparable, T any] interface {
	// New returns a record holding only client and id.
	New(client *Client, id K) *T
	// Get loads the row with primary key id.
	Get(ctx context.Context, client *Client, id K) (*T, error)
	// Reload refreshes rec from the row matching its primary key.
	Reload(ctx context.Context, rec *T) error
	// SelectByField loads at most limit records whose field equals value. A nil
	// or absent value selects rows where the field is NULL.
	SelectByField(ctx context.Context, client *Client, field string, value any, limit int, options ...QueryOption) ([]*T, error)
	// Select loads at most limit records matching every predicate in filter.
	Select(ctx context.Context, client *Client, filter map[string]any, limit int, options ...QueryOption) ([]*T, error)
	// SQLQuery runs query with params and decodes at most limit records.
	SQLQuery(ctx context.Context, client *Client, query string, params []QueryParameter, limit int) ([]*T, error)
	// Save inserts rec, or updates it when its primary key already exists.
	Save(ctx context.Context, rec *T) error
	RecordType() *RecordType
	TableIdentifier(client *Client) string
}

type repository[K comparable, T any] struct {
	recordType *RecordType
}

// NewRepository maps T once. The primary key field of T must be of type K.
func NewRepository[K comparable, T any](options ...RepositoryOption) (Repository[K, T], error) {
	var model T
	rt, err := NewRecordType(reflect.TypeOf(model), options...)
	if err != nil {
		return nil, err
	}

	var key K
	if keyType := reflect.TypeOf(key); rt.PrimaryKey.typ != keyType {
		return nil, schemaError("%s: primary key %s is %s, repository key is %s", rt.goType, rt.PrimaryKey.LocalName, rt.PrimaryKey.typ, keyType)
	}

	return &repository[K, T]{recordType: rt}, nil
}

// MustRepository is like NewRepository but panics on an invalid definition.
func MustRepository[K comparable, T any](options ...RepositoryOption) Repository[K, T] {
	repo, err := NewRepository[K, T](options...)
	if err != nil {
		panic(err)
	}
	return repo
}

func (r *repository[K, T]) RecordType() *RecordType {
	return r.recordType
}

func (r *repository[K, T]) TableIdentifier(client *Client) string {
	if client == nil {
		return r.recordType.TableIdentifier("")
	}
	return r.recordType.TableIdentifier(client.DatasetID())
}

func (r *repository[K, T]) New(client *Client, id K) *T {
	return r.recordType.newWithPK(client, reflect.ValueOf(id)).Interface().(*T)
}

func (r *repository[K, T]) Get(ctx context.Context, client *Client, id K) (*T, error) {
	rec := r.New(client, id)
	if err := r.Reload(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repository[K, T]) Reload(ctx context.Context, rec *T) error {
	rt := r.recordType
	rv, client, err := r.bind(rec)
	if err != nil {
		return err
	}

	query, err := rt.selectStatement(r.TableIdentifier(client), rt.WherePrimaryKey(), 1, nil)
	if err != nil {
		return err
	}

	res, err := client.Query(ctx, query, []QueryParameter{rt.primaryKeyParameter(rv)}, 0)
	if err != nil {
		return err
	}

	switch n := len(res.Rows); {
	case n == 0:
		return fmt.Errorf("%w: %w: %s with %s", ErrDataIntegrity, ErrNoRow, rt.Name, rt.primaryKeyParameter(rv))
	case n > 1:
		return integrityError("%d rows of %s share primary key %s", n, rt.Name, rt.primaryKeyParameter(rv))
	}

	return rt.decodeRow(res.Rows[0], NewNameIndexMapping(res.Schema), rv)
}

func (r *repository[K, T]) SelectByField(ctx context.Context, client *Client, field string, value any, limit int, options ...QueryOption) ([]*T, error) {
	return r.Select(ctx, client, map[string]any{field: value}, limit, options...)
}

func (r *repository[K, T]) Select(ctx context.Context, client *Client, filter map[string]any, limit int, options ...QueryOption) ([]*T, error) {
	if client == nil {
		return nil, ErrNoClient
	}

	qopt := &queryOption{}
	for _, op := range options {
		op(qopt)
	}

	rt := r.recordType
	where, params, err := rt.whereClause(filter)
	if err != nil {
		return nil, err
	}

	query, err := rt.selectStatement(r.TableIdentifier(client), where, limit, qopt)
	if err != nil {
		return nil, err
	}

	return r.SQLQuery(ctx, client, query, params, limit)
}

func (r *repository[K, T]) SQLQuery(ctx context.Context, client *Client, query string, params []QueryParameter, limit int) ([]*T, error) {
	if client == nil {
		return nil, ErrNoClient
	}

	res, err := client.Query(ctx, query, params, limit)
	if err != nil {
		return nil, err
	}

	records := make([]*T, 0, len(res.Rows))
	if len(res.Rows) == 0 {
		return records, nil
	}

	if res.Schema == nil {
		return nil, integrityError("result of %s has rows but no schema", r.recordType.Name)
	}

	rt := r.recordType
	mapping := NewNameIndexMapping(res.Schema)
	pkIndex, ok := mapping[rt.PrimaryKeyRemoteName()]
	if !ok {
		return nil, integrityError("primary key column %s of %s is missing from the result schema", rt.PrimaryKeyRemoteName(), rt.Name)
	}

	for i, row := range res.Rows {
		if limit > 0 && i >= limit {
			break
		}

		if pkIndex >= len(row) || !row[pkIndex].Valid {
			return nil, integrityError("row %d of %s has no primary key", i, rt.Name)
		}

		pk := reflect.New(rt.PrimaryKey.typ).Elem()
		if err := rt.PrimaryKey.codec.decode(row[pkIndex].String, pk); err != nil {
			return nil, fmt.Errorf("column %s: %w", rt.PrimaryKeyRemoteName(), err)
		}

		ptr := rt.newWithPK(client, pk)
		if err := rt.decodeRow(row, mapping, ptr.Elem()); err != nil {
			return nil, err
		}
		records = append(records, ptr.Interface().(*T))
	}

	return records, nil
}

func (r *repository[K, T]) Save(ctx context.Context, rec *T) error {
	rt := r.recordType
	rv, client, err := r.bind(rec)
	if err != nil {
		return err
	}

	table := r.TableIdentifier(client)
	exists, err := r.exists(ctx, client, table, rv)
	if err != nil {
		return err
	}

	query := rt.insertStatement(table)
	if exists {
		query = rt.updateStatement(table)
		if query == "" {
			client.Logger().Debug("nothing to update", zap.String("table", table))
			return nil
		}
	}

	client.Logger().Debug("saving record",
		zap.String("table", table),
		zap.Bool("exists", exists),
	)

	_, err = client.Query(ctx, query, rt.parameters(rv), 0)
	return err
}

// exists runs the primary key probe of Save.
func (r *repository[K, T]) exists(ctx context.Context, client *Client, table string, rv reflect.Value) (bool, error) {
	rt := r.recordType
	res, err := client.Query(ctx, rt.countStatement(table), []QueryParameter{rt.primaryKeyParameter(rv)}, 0)
	if err != nil {
		return false, err
	}

	if len(res.Rows) != 1 || len(res.Rows[0]) < 1 {
		return false, integrityError("key probe of %s returned %d rows, expected 1", rt.Name, len(res.Rows))
	}

	cell := res.Rows[0][0]
	if !cell.Valid {
		return false, integrityError("key probe of %s returned no count", rt.Name)
	}

	count, err := strconv.ParseInt(cell.String, 10, 64)
	if err != nil {
		return false, &ValueFormatError{Type: TypeInt64, Value: cell.String, Err: err}
	}

	switch count {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, integrityError("%d rows of %s share primary key %s", count, rt.Name, rt.primaryKeyParameter(rv))
	}
}

func (r *repository[K, T]) bind(rec *T) (reflect.Value, *Client, error) {
	if rec == nil {
		return reflect.Value{}, nil, errors.New("nil record")
	}

	rv := reflect.ValueOf(rec).Elem()
	client := r.recordType.clientOf(rv)
	if client == nil {
		return reflect.Value{}, nil, ErrNoClient
	}
	return rv, client, nil
}
