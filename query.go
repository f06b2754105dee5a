package bigquery

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// FilterNull selects rows by whether a column holds NULL.
type FilterNull interface {
	IsNull() bool
}

type filterNull bool

func (fn filterNull) IsNull() bool {
	return bool(fn)
}

// FilterNullFrom returns a filter value for IS NULL (true) or IS NOT NULL
// (false).
func FilterNullFrom(isNull bool) FilterNull {
	return filterNull(isNull)
}

// ResolveRemoteName returns the remote column of the field named localName.
func (rt *RecordType) ResolveRemoteName(localName string) (string, error) {
	fd, ok := rt.byLocal[localName]
	if !ok {
		return "", &FieldResolutionError{Field: localName, Valid: rt.LocalNames()}
	}
	return fd.RemoteName, nil
}

func (rt *RecordType) PrimaryKeyRemoteName() string {
	name, _ := rt.ResolveRemoteName(rt.PrimaryKey.LocalName)
	return name
}

// QueryableColumns maps every data field's local name to its remote name.
func (rt *RecordType) QueryableColumns() map[string]string {
	cols := make(map[string]string, len(rt.Fields))
	for _, fd := range rt.Fields {
		cols[fd.LocalName] = fd.RemoteName
	}
	return cols
}

// Columns returns the remote names in lexical order.
func (rt *RecordType) Columns() []string {
	return append([]string(nil), rt.columns...)
}

func (rt *RecordType) SelectColumnList() string {
	return strings.Join(rt.columns, ", ")
}

// InsertPlaceholderList is positionally aligned with SelectColumnList.
func (rt *RecordType) InsertPlaceholderList() string {
	return strings.Join(Map(rt.columns, Placeholder), ", ")
}

// UpdateAssignmentList returns the sorted SET pairs of every non-key column.
func (rt *RecordType) UpdateAssignmentList() string {
	pk := rt.PrimaryKeyRemoteName()
	cols := Filter(rt.columns, func(c string) bool {
		return c != pk
	})
	return strings.Join(Map(cols, func(c string) string {
		return fmt.Sprintf("%s = %s", c, Placeholder(c))
	}), ", ")
}

// WherePart returns the predicate on column, either its NULL test or an
// equality against its parameter.
func WherePart(column string, isNull bool) string {
	if isNull {
		return column + " IS NULL"
	}
	return fmt.Sprintf("%s = %s", column, Placeholder(column))
}

func (rt *RecordType) WherePrimaryKey() string {
	return WherePart(rt.PrimaryKeyRemoteName(), false)
}

// fieldPredicate builds the predicate and its parameters for filtering field
// localName by value.
func (rt *RecordType) fieldPredicate(localName string, value any) (string, []QueryParameter, error) {
	column, err := rt.ResolveRemoteName(localName)
	if err != nil {
		return "", nil, err
	}

	if fnull, ok := value.(FilterNull); ok {
		if fnull.IsNull() {
			return WherePart(column, true), nil, nil
		}
		return column + " IS NOT NULL", nil, nil
	}

	absent, err := isAbsent(value)
	if err != nil {
		return "", nil, err
	}
	if absent {
		return WherePart(column, true), nil, nil
	}

	param, err := NewParameter(column, value)
	if err != nil {
		return "", nil, err
	}

	fd := rt.byLocal[localName]
	if param.Type != fd.TypeTag {
		return "", nil, fmt.Errorf("%w: cannot compare %s field %s with %T", ErrUnsupportedType, fd.TypeTag, localName, value)
	}

	return WherePart(column, false), []QueryParameter{param}, nil
}

// whereClause joins the predicates of filter with AND, ordered by field name.
func (rt *RecordType) whereClause(filter map[string]any) (string, []QueryParameter, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		preds  []string
		params []QueryParameter
	)
	for _, k := range keys {
		pred, p, err := rt.fieldPredicate(k, filter[k])
		if err != nil {
			return "", nil, err
		}
		preds = append(preds, pred)
		params = append(params, p...)
	}

	return strings.Join(preds, " AND "), params, nil
}

// makeSortClause resolves "-Field"/"+Field" sorters into an ORDER BY list.
func (rt *RecordType) makeSortClause(sorter []string) (string, error) {
	var srt []string
	for _, s := range sorter {
		if s == "" {
			continue
		}

		op := "ASC"
		field := s
		if s[:1] == "-" || s[:1] == "+" {
			if s[:1] == "-" {
				op = "DESC"
			}
			field = s[1:]
		}

		column, err := rt.ResolveRemoteName(field)
		if err != nil {
			return "", err
		}
		srt = append(srt, fmt.Sprintf("%s %s", column, op))
	}

	return strings.Join(srt, ", "), nil
}

// limitOffsetClause renders the paging suffix; limit <= 0 means unbounded.
func limitOffsetClause(limit int, offset int64) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func (rt *RecordType) selectStatement(table, where string, limit int, qopt *queryOption) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", rt.SelectColumnList(), table)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if qopt != nil {
		orderBy, err := rt.makeSortClause(qopt.Sorter)
		if err != nil {
			return "", err
		}
		if orderBy != "" {
			b.WriteString(" ORDER BY ")
			b.WriteString(orderBy)
		}
		b.WriteString(limitOffsetClause(limit, qopt.Offset))
	} else {
		b.WriteString(limitOffsetClause(limit, 0))
	}

	return b.String(), nil
}

func (rt *RecordType) countStatement(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s LIMIT 1", table, rt.WherePrimaryKey())
}

func (rt *RecordType) insertStatement(table string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, rt.SelectColumnList(), rt.InsertPlaceholderList())
}

// updateStatement returns "" when the record type has no non-key column.
func (rt *RecordType) updateStatement(table string) string {
	set := rt.UpdateAssignmentList()
	if set == "" {
		return ""
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, set, rt.WherePrimaryKey())
}

// Parameters builds one parameter per data field of rec, in declaration order.
func (rt *RecordType) Parameters(rec any) ([]QueryParameter, error) {
	rv, err := rt.structValue(rec)
	if err != nil {
		return nil, err
	}
	return rt.parameters(rv), nil
}

func (rt *RecordType) parameters(rv reflect.Value) []QueryParameter {
	params := make([]QueryParameter, 0, len(rt.Fields))
	for _, fd := range rt.Fields {
		p := QueryParameter{Name: ParameterName(fd.RemoteName), Type: fd.TypeTag}
		if s, ok := fd.codec.encode(rv.FieldByIndex(fd.index)); ok {
			p.Value.SetValid(s)
		}
		params = append(params, p)
	}
	return params
}

func (rt *RecordType) primaryKeyParameter(rv reflect.Value) QueryParameter {
	pk := rt.PrimaryKey
	p := QueryParameter{Name: ParameterName(pk.RemoteName), Type: pk.TypeTag}
	if s, ok := pk.codec.encode(rv.FieldByIndex(pk.index)); ok {
		p.Value.SetValid(s)
	}
	return p
}

// DecodeRow fills the data fields of dst from row. dst must point to a value
// of the record type.
func (rt *RecordType) DecodeRow(row Row, mapping NameIndexMapping, dst any) error {
	if reflect.ValueOf(dst).Kind() != reflect.Ptr {
		return fmt.Errorf("destination must be a pointer to %s, got %T", rt.goType, dst)
	}

	rv, err := rt.structValue(dst)
	if err != nil {
		return err
	}
	return rt.decodeRow(row, mapping, rv)
}

func (rt *RecordType) decodeRow(row Row, mapping NameIndexMapping, rv reflect.Value) error {
	for _, fd := range rt.Fields {
		idx, ok := mapping[fd.RemoteName]
		if !ok {
			return integrityError("column %s of %s is missing from the result schema", fd.RemoteName, rt.Name)
		}
		if idx < 0 || idx >= len(row) {
			return integrityError("column %s of %s is at index %d, row has %d cells", fd.RemoteName, rt.Name, idx, len(row))
		}

		cell := row[idx]
		dst := rv.FieldByIndex(fd.index)
		if !cell.Valid {
			if fd.Required {
				return integrityError("required column %s of %s has no value", fd.RemoteName, rt.Name)
			}
			dst.Set(reflect.Zero(dst.Type()))
			continue
		}

		if err := fd.codec.decode(cell.String, dst); err != nil {
			return fmt.Errorf("column %s: %w", fd.RemoteName, err)
		}
	}
	return nil
}

// newWithPK returns a pointer to a zero record holding only client and pk.
func (rt *RecordType) newWithPK(client *Client, pk reflect.Value) reflect.Value {
	ptr := reflect.New(rt.goType)
	rec := ptr.Elem()
	rec.FieldByIndex(rt.PrimaryKey.index).Set(pk)
	rec.FieldByIndex(rt.Client.index).Set(reflect.ValueOf(client))
	return ptr
}

func (rt *RecordType) clientOf(rv reflect.Value) *Client {
	return rv.FieldByIndex(rt.Client.index).Interface().(*Client)
}

func (rt *RecordType) structValue(rec any) (reflect.Value, error) {
	rv := reflect.ValueOf(rec)
	if !rv.IsValid() {
		return reflect.Value{}, fmt.Errorf("nil %s record", rt.goType)
	}
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil %s record", rt.goType)
		}
		rv = rv.Elem()
	}
	if rv.Type() != rt.goType {
		return reflect.Value{}, fmt.Errorf("expected %s record, got %T", rt.goType, rec)
	}
	return rv, nil
}
