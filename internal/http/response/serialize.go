package response

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TimeLayout is the fixed format used for date/time values in responses,
// always rendered in UTC.
const TimeLayout = "2006-01-02 15:04:05"

var (
	timeType          = reflect.TypeOf(time.Time{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Serialize converts v into JSON-friendly values:
//
//   - structs become maps of their exported fields (json tag names honoured,
//     "-" skipped, embedded structs flattened), recursively
//   - maps are converted per value, with keys rendered as strings
//   - slices and arrays are converted per element
//   - time.Time becomes a "YYYY-MM-DD HH:MM:SS" string
//   - strings, bools and numbers pass through unchanged
//   - encoding.TextMarshaler values (uuid.UUID, …) become their text form
//   - anything else is rendered with fmt.Sprint
//
// Cyclic object graphs are unsupported: Serialize does not track visited
// pointers and will not terminate on them.
func Serialize(v any) any {
	if v == nil {
		return nil
	}
	return serializeValue(reflect.ValueOf(v))
}

func serializeValue(rv reflect.Value) any {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}

	if rv.Type() == timeType {
		return rv.Interface().(time.Time).UTC().Format(TimeLayout)
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}

	if s, ok := asText(rv); ok {
		return s
	}

	switch rv.Kind() {
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		serializeStruct(rv, out)
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = serializeValue(iter.Value())
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return []any{}
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = serializeValue(rv.Index(i))
		}
		return out
	}

	if rv.CanInterface() {
		return fmt.Sprint(rv.Interface())
	}
	return nil
}

// serializeStruct copies exported fields of rv into out. Anonymous embedded
// structs without a json name are flattened into the parent.
func serializeStruct(rv reflect.Value, out map[string]any) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() && !f.Anonymous {
			continue
		}
		name, skip := jsonName(f)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous && name == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct && inner.Type() != timeType {
				serializeStruct(inner, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = serializeValue(fv)
	}
}

func jsonName(f reflect.StructField) (name string, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	if tag == "-" {
		return "", true
	}
	name, _, _ = strings.Cut(tag, ",")
	return name, false
}

func asText(rv reflect.Value) (string, bool) {
	if !rv.CanInterface() {
		return "", false
	}
	if rv.Type().Implements(textMarshalerType) {
		if b, err := rv.Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			return string(b), true
		}
		return "", false
	}
	if rv.CanAddr() && reflect.PointerTo(rv.Type()).Implements(textMarshalerType) {
		if b, err := rv.Addr().Interface().(encoding.TextMarshaler).MarshalText(); err == nil {
			return string(b), true
		}
	}
	return "", false
}
