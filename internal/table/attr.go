package table

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// Fielder is implemented by records that expose their attributes by name.
type Fielder interface {
	Field(name string) (any, bool)
}

// Attr returns the attribute name of record. Maps are indexed directly
// (a missing key is nil), Fielders are asked, and structs are matched by a
// `table:"name"` tag, the snake_case field name or the field name. Pointer
// fields are dereferenced; a nil pointer reads as nil.
func Attr(record any, name string) (any, error) {
	switch r := record.(type) {
	case nil:
		return nil, nil
	case Fielder:
		v, ok := r.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: record %T has no attribute %q", ErrUnknownField, record, name)
		}
		return v, nil
	case map[string]any:
		return r[name], nil
	case map[string]string:
		return r[name], nil
	}

	rv := reflect.ValueOf(record)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		idx, ok := structField(rv.Type(), name)
		if !ok {
			return nil, fmt.Errorf("%w: record %T has no attribute %q", ErrUnknownField, record, name)
		}
		return indirect(rv.FieldByIndex(idx)), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	}
	return nil, fmt.Errorf("%w: cannot read attribute %q of %T", ErrIncompatibleValue, name, record)
}

// indirect returns the value a pointer field points to, or nil.
func indirect(v reflect.Value) any {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}

type fieldKey struct {
	typ  reflect.Type
	name string
}

var fieldCache sync.Map // fieldKey -> []int (nil when absent)

func structField(typ reflect.Type, name string) ([]int, bool) {
	key := fieldKey{typ, name}
	if idx, ok := fieldCache.Load(key); ok {
		return idx.([]int), idx.([]int) != nil
	}

	var found []int
	for _, f := range reflect.VisibleFields(typ) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("table"), ",")
		if tag == "-" {
			continue
		}
		if tag == name || (tag == "" && (snakeCase(f.Name) == name || strings.EqualFold(f.Name, name))) {
			found = f.Index
			break
		}
	}

	fieldCache.Store(key, found)
	return found, found != nil
}

// snakeCase converts a Go identifier to snake_case: "CreatedAt" becomes
// "created_at" and "UserID" becomes "user_id".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
