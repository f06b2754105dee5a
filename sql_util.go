package bigquery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"gopkg.in/guregu/null.v4"
)

// bindNamedParameters turns the @name placeholders of query into positional
// bind variables of db's driver and returns the matching arguments. Only names
// of params are rewritten, and never inside quoted text or comments.
func bindNamedParameters(db *sqlx.DB, query string, params []QueryParameter) (string, []any, error) {
	if len(params) == 0 {
		return query, nil, nil
	}

	values := make(map[string]any, len(params))
	for _, p := range params {
		v, err := typedParameterValue(p)
		if err != nil {
			return "", nil, err
		}
		values[p.Name] = v
	}

	bindType := sqlx.BindType(db.DriverName())
	var (
		b    strings.Builder
		args []any
	)
	b.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			end := skipQuoted(query, i, c)
			b.WriteString(query[i:end])
			i = end
		case strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query)
			} else {
				end += i + 1
			}
			b.WriteString(query[i:end])
			i = end
		case strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				end = len(query)
			} else {
				end += i + 4
			}
			b.WriteString(query[i:end])
			i = end
		case c == '@':
			end := i + 1
			for end < len(query) && isIdentByte(query[end]) {
				end++
			}
			v, ok := values[query[i+1:end]]
			if !ok {
				b.WriteString(query[i:end])
				i = end
				continue
			}
			args = append(args, v)
			b.WriteString(bindVar(bindType, len(args)))
			i = end
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), args, nil
}

// skipQuoted returns the index just past the literal opened by quote at
// start. Doubled quotes stay inside the literal.
func skipQuoted(query string, start int, quote byte) int {
	for i := start + 1; i < len(query); i++ {
		if query[i] != quote {
			continue
		}
		if i+1 < len(query) && query[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(query)
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func bindVar(bindType int, n int) string {
	switch bindType {
	case sqlx.DOLLAR:
		return "$" + strconv.Itoa(n)
	case sqlx.AT:
		return "@p" + strconv.Itoa(n)
	case sqlx.NAMED:
		return ":arg" + strconv.Itoa(n)
	default:
		return "?"
	}
}

func typedParameterValue(p QueryParameter) (any, error) {
	if !p.Value.Valid {
		return nil, nil
	}

	s := p.Value.String
	switch p.Type {
	case TypeBool:
		return parseBool(s)
	case TypeInt64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &ValueFormatError{Type: TypeInt64, Value: s, Err: err}
		}
		return i, nil
	case TypeFloat64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &ValueFormatError{Type: TypeFloat64, Value: s, Err: err}
		}
		return f, nil
	case TypeDateTime:
		return parseDateTime(s)
	case TypeString:
		return s, nil
	default:
		return nil, fmt.Errorf("%w: parameter %s has type %q", ErrUnsupportedType, p.Name, p.Type)
	}
}

// formatCell renders a scanned driver value in its wire form.
func formatCell(v any) null.String {
	switch c := v.(type) {
	case nil:
		return null.String{}
	case bool:
		return null.StringFrom(formatBool(c))
	case int64:
		return null.StringFrom(strconv.FormatInt(c, 10))
	case int32:
		return null.StringFrom(strconv.FormatInt(int64(c), 10))
	case float64:
		return null.StringFrom(strconv.FormatFloat(c, 'g', -1, 64))
	case float32:
		return null.StringFrom(strconv.FormatFloat(float64(c), 'g', -1, 32))
	case []byte:
		return null.StringFrom(string(c))
	case string:
		return null.StringFrom(c)
	case time.Time:
		return null.StringFrom(formatDateTime(c))
	default:
		return null.StringFrom(fmt.Sprint(c))
	}
}

func wrapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var code string
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	}

	switch code {
	case pgerrcode.UniqueViolation:
		err = fmt.Errorf("%w. %w", ErrKeyAlreadyExists, err)
	case pgerrcode.UndefinedTable, pgerrcode.UndefinedColumn:
		err = fmt.Errorf("%w. %w", ErrDataIntegrity, err)
	}

	return &TransportError{Code: code, Err: err}
}
