package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Option values arrive from Go callers, YAML documents and query strings,
// so accessors accept the handful of shapes those produce.

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	case []byte:
		return string(s), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return fmt.Sprint(s), true
	}
	return "", false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	return false, false
}

func toStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []string:
		return s, true
	case string:
		return []string{s}, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := toString(item)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	if str, ok := toString(v); ok {
		return []string{str}, true
	}
	return nil, false
}

func toInts(v any) ([]int, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []int:
		return s, true
	case []any:
		out := make([]int, 0, len(s))
		for _, item := range s {
			n, ok := toInt(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	case []string:
		out := make([]int, 0, len(s))
		for _, item := range s {
			n, ok := toInt(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	}
	if n, ok := toInt(v); ok {
		return []int{n}, true
	}
	return nil, false
}

// toList normalizes slices of extendable specs into []any for BuildAll.
func toList(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case []string:
		return anySlice(s), true
	case []Attrs:
		return anySlice(s), true
	case []map[string]any:
		return anySlice(s), true
	case []*Value:
		return anySlice(s), true
	case []Column:
		return anySlice(s), true
	case []BulkAction:
		return anySlice(s), true
	case []ColumnGroup:
		return anySlice(s), true
	}
	return nil, false
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
