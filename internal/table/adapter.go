package table

import (
	"context"
	"fmt"
)

// Adapter binds a table type to a kind of data source. Besides the methods
// below, an adapter registers the "search", "sorting" and "pagination"
// filters for the features the table type includes, replacing their
// abstract versions.
type Adapter interface {
	Feature
	EachRecord(ctx context.Context, t *Table, batchSize int, skipPagination bool, fn func(record any) error) error
	RecordID(t *Table, record any) (string, error)
}

// Paginator is implemented by adapters that can count the filtered scope.
type Paginator interface {
	TotalRecordsCount(ctx context.Context, t *Table) (int, error)
	TotalPages(ctx context.Context, t *Table) (int, error)
	CurrentPage(ctx context.Context, t *Table) (int, error)
}

// abstractFilter is registered by a feature for a filter whose mechanism
// belongs to the adapter.
func abstractFilter(name string) FilterFunc {
	return func(t *Table, _ any) (any, error) {
		return nil, fmt.Errorf("%w: %s needs an adapter providing the %s filter", ErrExtensionRequired, t.def.name, name)
	}
}

func (t *Table) paginator() (Paginator, error) {
	a, ok := t.def.Adapter()
	if ok {
		if p, ok := a.(Paginator); ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no adapter able to count records", ErrExtensionRequired, t.def.name)
}

// TotalRecordsCount returns the number of records matching every filter but
// pagination.
func (t *Table) TotalRecordsCount(ctx context.Context) (int, error) {
	p, err := t.paginator()
	if err != nil {
		return 0, err
	}
	return p.TotalRecordsCount(ctx, t)
}

// TotalPages returns the page count for the current per page.
func (t *Table) TotalPages(ctx context.Context) (int, error) {
	p, err := t.paginator()
	if err != nil {
		return 0, err
	}
	return p.TotalPages(ctx, t)
}

// CurrentPage returns the page the adapter actually served.
func (t *Table) CurrentPage(ctx context.Context) (int, error) {
	p, err := t.paginator()
	if err != nil {
		return 0, err
	}
	return p.CurrentPage(ctx, t)
}

// standardFilters is the order adapters apply the feature filters in.
var standardFilters = []string{"search", "sorting", "pagination"}

// FilterOrder returns the options an adapter registers its name filter
// with: after every standard filter that precedes it and is included in d.
func FilterOrder(d *Definition, name string) []StepOption {
	var after []string
	for _, f := range standardFilters {
		if f == name {
			break
		}
		if d.Has(f) {
			after = append(after, f)
		}
	}
	if len(after) == 0 {
		return nil
	}
	return []StepOption{After(after...)}
}
