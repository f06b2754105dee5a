package bigquery

import (
	"fmt"
	"reflect"
	"time"

	"gopkg.in/guregu/null.v4"
)

// Remote column type tags.
const (
	TypeBool     = "BOOL"
	TypeInt64    = "INT64"
	TypeFloat64  = "FLOAT64"
	TypeString   = "STRING"
	TypeDateTime = "DATETIME"
)

var (
	timeType   = reflect.TypeOf(time.Time{})
	clientType = reflect.TypeOf((*Client)(nil))
)

// TypeTag returns the remote type tag for t. Optional wrappers report the tag
// of the type they wrap.
func TypeTag(t reflect.Type) (string, error) {
	c, err := codecFor(t)
	if err != nil {
		return "", err
	}
	return c.typeTag(), nil
}

// TypeTagOf returns the remote type tag of v's dynamic type.
func TypeTagOf(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("%w: nil has no type", ErrUnsupportedType)
	}
	return TypeTag(reflect.TypeOf(v))
}

// IsNullable reports whether t is an optional wrapper.
func IsNullable(t reflect.Type) bool {
	c, err := codecFor(t)
	return err == nil && c.nullable()
}

func codecFor(t reflect.Type) (valueCodec, error) {
	if nc, ok := nullCodecs[t]; ok {
		return nc, nil
	}

	if t.Kind() == reflect.Ptr {
		inner, err := scalarCodecFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return ptrCodec{inner: inner}, nil
	}

	return scalarCodecFor(t)
}

func scalarCodecFor(t reflect.Type) (valueCodec, error) {
	if t == timeType {
		return timeCodec{}, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return boolCodec{}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intCodec{bits: t.Bits()}, nil
	case reflect.Float32, reflect.Float64:
		return floatCodec{bits: t.Bits()}, nil
	case reflect.String:
		return stringCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

var nullCodecs = map[reflect.Type]nullCodec{
	reflect.TypeOf(null.String{}): {
		inner:     stringCodec{},
		innerType: reflect.TypeOf(""),
		unwrap: func(v reflect.Value) (reflect.Value, bool) {
			n := v.Interface().(null.String)
			return reflect.ValueOf(n.String), n.Valid
		},
		wrap: func(v reflect.Value) reflect.Value {
			return reflect.ValueOf(null.StringFrom(v.String()))
		},
	},
	reflect.TypeOf(null.Int{}): {
		inner:     intCodec{bits: 64},
		innerType: reflect.TypeOf(int64(0)),
		unwrap: func(v reflect.Value) (reflect.Value, bool) {
			n := v.Interface().(null.Int)
			return reflect.ValueOf(n.Int64), n.Valid
		},
		wrap: func(v reflect.Value) reflect.Value {
			return reflect.ValueOf(null.IntFrom(v.Int()))
		},
	},
	reflect.TypeOf(null.Float{}): {
		inner:     floatCodec{bits: 64},
		innerType: reflect.TypeOf(float64(0)),
		unwrap: func(v reflect.Value) (reflect.Value, bool) {
			n := v.Interface().(null.Float)
			return reflect.ValueOf(n.Float64), n.Valid
		},
		wrap: func(v reflect.Value) reflect.Value {
			return reflect.ValueOf(null.FloatFrom(v.Float()))
		},
	},
	reflect.TypeOf(null.Bool{}): {
		inner:     boolCodec{},
		innerType: reflect.TypeOf(false),
		unwrap: func(v reflect.Value) (reflect.Value, bool) {
			n := v.Interface().(null.Bool)
			return reflect.ValueOf(n.Bool), n.Valid
		},
		wrap: func(v reflect.Value) reflect.Value {
			return reflect.ValueOf(null.BoolFrom(v.Bool()))
		},
	},
	reflect.TypeOf(null.Time{}): {
		inner:     timeCodec{},
		innerType: timeType,
		unwrap: func(v reflect.Value) (reflect.Value, bool) {
			n := v.Interface().(null.Time)
			return reflect.ValueOf(n.Time), n.Valid
		},
		wrap: func(v reflect.Value) reflect.Value {
			return reflect.ValueOf(null.TimeFrom(v.Interface().(time.Time)))
		},
	},
}
