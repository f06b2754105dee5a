package bigquery

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// TagName is the struct tag key holding field markers.
const TagName = "bq"

// FieldDescriptor describes one mapped field of a record type.
type FieldDescriptor struct {
	LocalName      string
	RemoteName     string
	TypeTag        string
	Nullable       bool
	Required       bool
	IsPrimaryKey   bool
	IsClientHandle bool

	index []int
	typ   reflect.Type
	codec valueCodec
}

// RecordType is the immutable mapping of a Go struct onto a remote table.
type RecordType struct {
	Name    string
	Dataset string
	// Fields holds every mapped data field in declaration order. The
	// client handle is kept apart in Client.
	Fields     []*FieldDescriptor
	PrimaryKey *FieldDescriptor
	Client     *FieldDescriptor

	goType  reflect.Type
	byLocal map[string]*FieldDescriptor
	columns []string
}

type fieldTag struct {
	name       string
	primaryKey bool
	required   bool
	client     bool
	ignore     bool
}

// NewRecordType builds the RecordType of model, which may be a struct value,
// a pointer to one, or a reflect.Type.
func NewRecordType(model any, options ...RepositoryOption) (*RecordType, error) {
	opt := &repositoryOption{}
	for _, op := range options {
		op(opt)
	}

	var typ reflect.Type
	switch m := model.(type) {
	case reflect.Type:
		typ = m
	case nil:
		return nil, schemaError("nil model")
	default:
		typ = reflect.TypeOf(model)
	}

	return parseModel(typ, opt)
}

func parseModel(model reflect.Type, opt *repositoryOption) (*RecordType, error) {
	if model.Kind() == reflect.Ptr {
		model = model.Elem()
	}

	if model.Kind() != reflect.Struct {
		return nil, schemaError("%s must be a struct", model)
	}

	rt := &RecordType{
		Name:    model.Name(),
		goType:  model,
		byLocal: make(map[string]*FieldDescriptor),
	}

	var pks, clients []*FieldDescriptor
	remoteNames := make(map[string]string)
	for i := 0; i < model.NumField(); i++ {
		field := model.Field(i)
		if field.Type == reflect.TypeOf(DBTable{}) {
			if name := field.Tag.Get("name"); name != "" {
				rt.Name = name
			}
			rt.Dataset = field.Tag.Get("dataset")
			continue
		}

		tagValue, tagged := field.Tag.Lookup(TagName)
		tag, err := parseFieldTag(tagValue)
		if err != nil {
			return nil, schemaError("%s.%s: %s", model.Name(), field.Name, err)
		}

		if tag.ignore {
			continue
		}

		if !field.IsExported() {
			if tagged {
				return nil, schemaError("%s.%s: unexported fields cannot be mapped", model.Name(), field.Name)
			}
			continue
		}

		fd := &FieldDescriptor{
			LocalName:      field.Name,
			RemoteName:     tag.name,
			Required:       tag.required || tag.primaryKey,
			IsPrimaryKey:   tag.primaryKey,
			IsClientHandle: tag.client,
			index:          field.Index,
			typ:            field.Type,
		}

		if tag.client {
			if tag.primaryKey {
				return nil, schemaError("%s.%s: a field cannot be both client and primary key", model.Name(), field.Name)
			}
			if field.Type != clientType {
				return nil, schemaError("%s.%s: client field must be of type %s, got %s", model.Name(), field.Name, clientType, field.Type)
			}
			clients = append(clients, fd)
			continue
		}

		codec, err := codecFor(field.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrSchemaDefinition, model.Name(), field.Name, err)
		}

		fd.codec = codec
		fd.TypeTag = codec.typeTag()
		fd.Nullable = codec.nullable()

		if !fd.Required && !fd.Nullable {
			return nil, schemaError("%s.%s: optional field must be a pointer or null type, got %s (mark it required otherwise)", model.Name(), field.Name, field.Type)
		}

		if fd.IsPrimaryKey {
			if fd.Nullable {
				return nil, schemaError("%s.%s: primary key cannot be nullable", model.Name(), field.Name)
			}
			pks = append(pks, fd)
		}

		if fd.RemoteName == "" {
			fd.RemoteName = fd.LocalName
			if opt.naming != nil {
				fd.RemoteName = opt.naming(fd.LocalName)
			}
		}

		if prev, ok := remoteNames[fd.RemoteName]; ok {
			return nil, schemaError("%s: fields %s and %s both map to column %q", model.Name(), prev, fd.LocalName, fd.RemoteName)
		}
		remoteNames[fd.RemoteName] = fd.LocalName

		rt.Fields = append(rt.Fields, fd)
		rt.byLocal[fd.LocalName] = fd
	}

	if len(pks) != 1 {
		return nil, schemaError("%s: exactly one primary key field must be specified, found %d", model.Name(), len(pks))
	}

	if len(clients) != 1 {
		return nil, schemaError("%s: exactly one client field must be specified, found %d", model.Name(), len(clients))
	}

	rt.PrimaryKey = pks[0]
	rt.Client = clients[0]

	if m, ok := reflect.New(model).Interface().(Model); ok {
		rt.Name = m.TableName()
	}
	if opt.tableName != "" {
		rt.Name = opt.tableName
	}
	if opt.dataset != "" {
		rt.Dataset = opt.dataset
	}

	rt.columns = Map(rt.Fields, func(fd *FieldDescriptor) string {
		return fd.RemoteName
	})
	sort.Strings(rt.columns)

	return rt, nil
}

// parseFieldTag reads `<remote name>,<markers>`. Markers are separated by
// commas or spaces and accept an explicit `=true` / `=false`.
func parseFieldTag(value string) (tag fieldTag, err error) {
	value = strings.TrimSpace(value)
	if value == "-" {
		tag.ignore = true
		return
	}

	tagArr := strings.SplitN(value, ",", 2)
	tag.name = strings.TrimSpace(tagArr[0])
	if len(tagArr) == 1 {
		return
	}

	det := strings.FieldsFunc(tagArr[1], func(r rune) bool {
		return r == ',' || r == ' '
	})
	for _, v := range det {
		varr := strings.SplitN(v, "=", 2)
		key := strings.ToLower(strings.TrimSpace(varr[0]))
		on := true
		if len(varr) > 1 {
			on, err = strconv.ParseBool(strings.TrimSpace(varr[1]))
			if err != nil {
				return tag, fmt.Errorf("invalid value for marker %q: %s", key, varr[1])
			}
		}

		switch key {
		case "primary_key", "pk", "key":
			tag.primaryKey = on
		case "required":
			tag.required = on
		case "client":
			tag.client = on
		case "ignore", "db_ignore":
			tag.ignore = on
		default:
			return tag, fmt.Errorf("unknown marker %q", key)
		}
	}

	return
}

// GoType returns the struct type the record type was built from.
func (rt *RecordType) GoType() reflect.Type {
	return rt.goType
}

// Field returns the descriptor of the field with the given local name.
func (rt *RecordType) Field(localName string) (*FieldDescriptor, bool) {
	fd, ok := rt.byLocal[localName]
	return fd, ok
}

// LocalNames returns the mapped local field names in declaration order.
func (rt *RecordType) LocalNames() []string {
	return Map(rt.Fields, func(fd *FieldDescriptor) string {
		return fd.LocalName
	})
}

// TableIdentifier returns `<dataset>.<table>`, preferring the record type's
// own dataset over defaultDataset.
func (rt *RecordType) TableIdentifier(defaultDataset string) string {
	dataset := rt.Dataset
	if dataset == "" {
		dataset = defaultDataset
	}
	if dataset == "" {
		return rt.Name
	}
	return fmt.Sprintf("%s.%s", dataset, rt.Name)
}
