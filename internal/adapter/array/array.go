// Package array serves tables from in-memory slices.
//
// The base scope is any slice (or a table.SourceFunc producing one). Search
// matches searchable columns case-insensitively, sorting is a stable sort on
// the sort column's attribute, and pagination wraps the filtered slice in a
// *Page that keeps the unpaginated records for counting and export.
package array

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/rapidtable/internal/table"
)

// DefaultIDAttribute names the record attribute used as the record id.
const DefaultIDAttribute = "id"

type adapter struct{}

// Adapter returns the in-memory collection adapter.
func Adapter() table.Adapter { return adapter{} }

func (adapter) Name() string { return "array" }

func (adapter) Register(d *table.Definition) error {
	if _, err := d.ExtendExtendable(table.KindConfig, func(s *table.Schema) {
		s.Field("id_attribute", DefaultIDAttribute)
	}); err != nil {
		return err
	}

	if d.Has("search") {
		if _, err := d.ExtendExtendable(table.KindColumn, func(s *table.Schema) {
			s.Field("searchable", false)
		}); err != nil {
			return err
		}
		opts := append(table.FilterOrder(d, "search"), table.Unless((*table.Table).SkipSearch))
		if err := d.RegisterFilter("search", filterSearch, opts...); err != nil {
			return err
		}
	}
	if d.Has("sorting") {
		opts := append(table.FilterOrder(d, "sorting"), table.Unless((*table.Table).SkipSorting))
		if err := d.RegisterFilter("sorting", filterSorting, opts...); err != nil {
			return err
		}
	}
	if d.Has("pagination") {
		opts := append(table.FilterOrder(d, "pagination"), table.Unless((*table.Table).SkipPagination))
		if err := d.RegisterFilter("pagination", filterPagination, opts...); err != nil {
			return err
		}
	}
	return nil
}

// Page is one page of a filtered slice.
type Page struct {
	Items   []any
	all     []any
	page    int
	perPage int
}

// NewPage slices records into page number page of perPage records. Pages
// past the end are empty.
func NewPage(records []any, page, perPage int) *Page {
	page, perPage = max(page, 1), max(perPage, 1)
	start := min((page-1)*perPage, len(records))
	end := min(start+perPage, len(records))
	return &Page{Items: records[start:end], all: records, page: page, perPage: perPage}
}

// TotalRecordsCount returns the number of unpaginated records.
func (p *Page) TotalRecordsCount() int { return len(p.all) }

// TotalPages returns the page count; it is 0 for an empty slice.
func (p *Page) TotalPages() int {
	if len(p.all) == 0 {
		return 0
	}
	return (len(p.all) + p.perPage - 1) / p.perPage
}

// CurrentPage returns the page number.
func (p *Page) CurrentPage() int { return p.page }

// Unpaginated returns every record the page was cut from.
func (p *Page) Unpaginated() []any { return p.all }

// Slice converts a slice of any element type to []any.
func Slice(scope any) ([]any, error) {
	switch s := scope.(type) {
	case nil:
		return nil, nil
	case []any:
		return s, nil
	case *Page:
		return s.Items, nil
	}

	rv := reflect.ValueOf(scope)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: array adapter needs a slice, got %T", table.ErrIncompatibleValue, scope)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func filterSearch(t *table.Table, scope any) (any, error) {
	records, err := Slice(scope)
	if err != nil {
		return nil, err
	}
	query := strings.ToLower(t.SearchQuery())
	var cols []table.Column
	for _, c := range t.Columns() {
		if c.Bool("searchable") {
			cols = append(cols, c)
		}
	}
	if query == "" || len(cols) == 0 {
		return records, nil
	}

	out := make([]any, 0, len(records))
	for _, r := range records {
		for _, c := range cols {
			v, err := table.Attr(r, c.ID())
			if err != nil {
				return nil, err
			}
			if v != nil && strings.Contains(strings.ToLower(table.CellText(v)), query) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func filterSorting(t *table.Table, scope any) (any, error) {
	records, err := Slice(scope)
	if err != nil {
		return nil, err
	}
	col, ok := t.SortColumn()
	if !ok {
		return records, nil
	}

	keys := make(map[int]any, len(records))
	idx := make([]int, len(records))
	for i, r := range records {
		v, err := table.Attr(r, col.ID())
		if err != nil {
			return nil, err
		}
		keys[i], idx[i] = v, i
	}
	desc := t.SortOrder() == table.SortDesc
	slices.SortStableFunc(idx, func(a, b int) int {
		x, y := keys[a], keys[b]
		if desc && x != nil && y != nil {
			return Compare(y, x)
		}
		return Compare(x, y)
	})

	sorted := make([]any, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	return sorted, nil
}

func filterPagination(t *table.Table, scope any) (any, error) {
	records, err := Slice(scope)
	if err != nil {
		return nil, err
	}
	return NewPage(records, t.Page(), t.PerPage()), nil
}

// Compare orders two attribute values. Nil sorts last, numbers compare
// numerically, times chronologically, and other mixed types by their text.
func Compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}

	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return cmp.Compare(x, y)
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return cmp.Compare(table.CellText(a), table.CellText(b))
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func (adapter) EachRecord(ctx context.Context, t *table.Table, _ int, skipPagination bool, fn func(record any) error) error {
	scope, err := t.Records(ctx)
	if err != nil {
		return err
	}

	var records []any
	if p, ok := scope.(*Page); ok && skipPagination {
		records = p.Unpaginated()
	} else if records, err = Slice(scope); err != nil {
		return err
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (adapter) RecordID(t *table.Table, record any) (string, error) {
	attr := t.Config().String("id_attribute")
	if attr == "" {
		attr = DefaultIDAttribute
	}
	v, err := table.Attr(record, attr)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("%w: record has no %q", table.ErrConfiguration, attr)
	}
	return table.CellText(v), nil
}

func (adapter) TotalRecordsCount(ctx context.Context, t *table.Table) (int, error) {
	scope, err := t.Records(ctx)
	if err != nil {
		return 0, err
	}
	if p, ok := scope.(*Page); ok {
		return p.TotalRecordsCount(), nil
	}
	records, err := Slice(scope)
	return len(records), err
}

func (adapter) TotalPages(ctx context.Context, t *table.Table) (int, error) {
	scope, err := t.Records(ctx)
	if err != nil {
		return 0, err
	}
	if p, ok := scope.(*Page); ok {
		return p.TotalPages(), nil
	}
	records, err := Slice(scope)
	if err != nil || len(records) == 0 {
		return 0, err
	}
	return 1, nil
}

func (adapter) CurrentPage(ctx context.Context, t *table.Table) (int, error) {
	scope, err := t.Records(ctx)
	if err != nil {
		return 0, err
	}
	if p, ok := scope.(*Page); ok {
		return p.CurrentPage(), nil
	}
	return 1, nil
}
