package bigquery

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNoRow            = errors.New("no row")
	ErrNoClient         = errors.New("record has no client")

	// ErrSchemaDefinition is returned when a record type cannot be mapped.
	// It is never recoverable at run time.
	ErrSchemaDefinition = errors.New("invalid record definition")
	ErrUnsupportedType  = errors.New("unsupported value type")
	ErrFieldNotFound    = errors.New("field not found")
	ErrValueFormat      = errors.New("malformed value")
	ErrDataIntegrity    = errors.New("data integrity violation")
	ErrTransport        = errors.New("query transport failed")
)

// FieldResolutionError is returned when a local field name does not belong
// to the record type.
type FieldResolutionError struct {
	Field string
	Valid []string
}

func (e *FieldResolutionError) Error() string {
	return fmt.Sprintf("field not found %s. Please choose one of the following: %s", e.Field, strings.Join(e.Valid, ", "))
}

func (e *FieldResolutionError) Is(err error) bool {
	return err == ErrFieldNotFound
}

// ValueFormatError is returned when a remote cell cannot be parsed into the
// local type.
type ValueFormatError struct {
	Type  string
	Value string
	Err   error
}

func (e *ValueFormatError) Error() string {
	msg := fmt.Sprintf("could not parse %q as %s", e.Value, e.Type)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValueFormatError) Is(err error) bool {
	return err == ErrValueFormat
}

func (e *ValueFormatError) Unwrap() error {
	return e.Err
}

// TransportError wraps failures reported by an Executor. Status holds the
// HTTP status when the remote answered, Code the backend error code if any.
type TransportError struct {
	Status int
	Code   string
	Err    error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("query failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (code %s)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Is(err error) bool {
	return err == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func schemaError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaDefinition, fmt.Sprintf(format, args...))
}

func integrityError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataIntegrity, fmt.Sprintf(format, args...))
}
