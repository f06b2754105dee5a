package bigquery

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"
)

// NullLiteral is the wire form of an absent optional value.
const NullLiteral = "NULL"

// DateTimeLayout is the DATETIME form the remote service accepts and returns
// once the "T" separator and "Z" suffix are removed.
const DateTimeLayout = "2006-01-02 15:04:05"

var dateTimeCleaner = strings.NewReplacer("T", " ", "Z", "")

// valueCodec converts one Go type from and to its wire string.
type valueCodec interface {
	typeTag() string
	nullable() bool
	// encode returns the wire form of v. ok is false when v holds no value.
	encode(v reflect.Value) (s string, ok bool)
	// decode parses s into dst, which must be settable.
	decode(s string, dst reflect.Value) error
}

// FormatValue returns the wire representation of v. nil and absent optional
// values format as NullLiteral.
func FormatValue(v any) (string, error) {
	if v == nil {
		return NullLiteral, nil
	}

	c, err := codecFor(reflect.TypeOf(v))
	if err != nil {
		return "", err
	}

	s, ok := c.encode(reflect.ValueOf(v))
	if !ok {
		return NullLiteral, nil
	}
	return s, nil
}

// ParseValue parses the wire string s into the value dst points to.
//
// For optional wrappers NullLiteral yields "no value", and so does any string
// the wrapped type fails to parse.
func ParseValue(s string, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dst)
	}

	c, err := codecFor(rv.Elem().Type())
	if err != nil {
		return err
	}
	return c.decode(s, rv.Elem())
}

// NewParameter builds the query parameter bound to @__<column>. nil and
// absent optional values produce a NULL parameter.
func NewParameter(column string, value any) (QueryParameter, error) {
	p := QueryParameter{Name: ParameterName(column)}
	if value == nil {
		return p, fmt.Errorf("%w: cannot derive a type tag for a nil value of %s", ErrUnsupportedType, column)
	}

	c, err := codecFor(reflect.TypeOf(value))
	if err != nil {
		return p, err
	}

	p.Type = c.typeTag()
	if s, ok := c.encode(reflect.ValueOf(value)); ok {
		p.Value = null.StringFrom(s)
	}
	return p, nil
}

// isAbsent reports whether value stands for "no value": nil, a nil pointer or
// an invalid null wrapper.
func isAbsent(value any) (bool, error) {
	if value == nil {
		return true, nil
	}

	c, err := codecFor(reflect.TypeOf(value))
	if err != nil {
		return false, err
	}

	_, ok := c.encode(reflect.ValueOf(value))
	return !ok, nil
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func parseBool(s string) (bool, error) {
	switch s {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	default:
		return false, &ValueFormatError{Type: TypeBool, Value: s}
	}
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

func parseDateTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, dateTimeCleaner.Replace(s), time.UTC)
	if err != nil {
		return time.Time{}, &ValueFormatError{Type: TypeDateTime, Value: s, Err: err}
	}
	return t, nil
}

type boolCodec struct{}

func (boolCodec) typeTag() string { return TypeBool }
func (boolCodec) nullable() bool  { return false }

func (boolCodec) encode(v reflect.Value) (string, bool) {
	return formatBool(v.Bool()), true
}

func (boolCodec) decode(s string, dst reflect.Value) error {
	b, err := parseBool(s)
	if err != nil {
		return err
	}
	dst.SetBool(b)
	return nil
}

type intCodec struct {
	bits int
}

func (intCodec) typeTag() string { return TypeInt64 }
func (intCodec) nullable() bool  { return false }

func (intCodec) encode(v reflect.Value) (string, bool) {
	return strconv.FormatInt(v.Int(), 10), true
}

func (c intCodec) decode(s string, dst reflect.Value) error {
	i, err := strconv.ParseInt(s, 10, c.bits)
	if err != nil {
		return &ValueFormatError{Type: TypeInt64, Value: s, Err: err}
	}
	dst.SetInt(i)
	return nil
}

type floatCodec struct {
	bits int
}

func (floatCodec) typeTag() string { return TypeFloat64 }
func (floatCodec) nullable() bool  { return false }

func (c floatCodec) encode(v reflect.Value) (string, bool) {
	return strconv.FormatFloat(v.Float(), 'g', -1, c.bits), true
}

func (c floatCodec) decode(s string, dst reflect.Value) error {
	f, err := strconv.ParseFloat(s, c.bits)
	if err != nil {
		return &ValueFormatError{Type: TypeFloat64, Value: s, Err: err}
	}
	dst.SetFloat(f)
	return nil
}

type stringCodec struct{}

func (stringCodec) typeTag() string { return TypeString }
func (stringCodec) nullable() bool  { return false }

func (stringCodec) encode(v reflect.Value) (string, bool) {
	return v.String(), true
}

func (stringCodec) decode(s string, dst reflect.Value) error {
	dst.SetString(s)
	return nil
}

type timeCodec struct{}

func (timeCodec) typeTag() string { return TypeDateTime }
func (timeCodec) nullable() bool  { return false }

func (timeCodec) encode(v reflect.Value) (string, bool) {
	return formatDateTime(v.Interface().(time.Time)), true
}

func (timeCodec) decode(s string, dst reflect.Value) error {
	t, err := parseDateTime(s)
	if err != nil {
		return err
	}
	dst.Set(reflect.ValueOf(t))
	return nil
}

// ptrCodec treats *T as the optional form of T.
type ptrCodec struct {
	inner valueCodec
}

func (c ptrCodec) typeTag() string { return c.inner.typeTag() }
func (ptrCodec) nullable() bool    { return true }

func (c ptrCodec) encode(v reflect.Value) (string, bool) {
	if v.IsNil() {
		return "", false
	}
	return c.inner.encode(v.Elem())
}

func (c ptrCodec) decode(s string, dst reflect.Value) error {
	if s == NullLiteral {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	tmp := reflect.New(dst.Type().Elem())
	if err := c.inner.decode(s, tmp.Elem()); err != nil {
		// unparsable optional values read as "no value"
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	dst.Set(tmp)
	return nil
}

// nullCodec adapts the guregu null types.
type nullCodec struct {
	inner     valueCodec
	innerType reflect.Type
	unwrap    func(v reflect.Value) (reflect.Value, bool)
	wrap      func(v reflect.Value) reflect.Value
}

func (c nullCodec) typeTag() string { return c.inner.typeTag() }
func (nullCodec) nullable() bool    { return true }

func (c nullCodec) encode(v reflect.Value) (string, bool) {
	inner, valid := c.unwrap(v)
	if !valid {
		return "", false
	}
	return c.inner.encode(inner)
}

func (c nullCodec) decode(s string, dst reflect.Value) error {
	if s == NullLiteral {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}

	tmp := reflect.New(c.innerType).Elem()
	if err := c.inner.decode(s, tmp); err != nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	dst.Set(c.wrap(tmp))
	return nil
}
