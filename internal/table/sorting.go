package table

import (
	"errors"
	"fmt"
	"slices"
)

// Sort orders.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Sortable reports whether the column can be sorted by.
func (c Column) Sortable() bool { return c.Bool("sortable") }

// SortOrder returns the column's declared default order, "asc" when unset.
func (c Column) SortOrder() string {
	if o := c.String("sort_order"); o != "" {
		return o
	}
	return SortAsc
}

// SortColumn returns the group's default sort column id.
func (g ColumnGroup) SortColumn() string { return g.String("sort_column") }

// SortOrder returns the group's default sort order, or "".
func (g ColumnGroup) SortOrder() string { return g.String("sort_order") }

type sortingFeature struct{}

// Sorting orders the records by one sortable column. It includes Columns.
// The "sorting" filter must be provided by the adapter.
func Sorting() Feature { return sortingFeature{} }

func (sortingFeature) Name() string { return "sorting" }

func (sortingFeature) Register(d *Definition) error {
	if err := d.Include(Columns()); err != nil {
		return err
	}

	exts := []struct {
		kind   string
		fields []string
	}{
		{KindColumn, []string{"sortable", "sort_order"}},
		{KindColumnGroup, []string{"sort_column", "sort_order"}},
		{KindConfig, []string{"skip_sorting", "sort_column_param", "sort_order_param", "sort_column_id", "sort_order"}},
	}
	for _, ext := range exts {
		if _, err := d.ExtendExtendable(ext.kind, func(s *Schema) {
			for _, f := range ext.fields {
				s.Field(f, nil)
			}
		}); err != nil {
			return err
		}
	}

	d.SetDefault("skip_sorting", false)

	if err := d.RegisterInitializer("sorting", initSorting, After("columns")); err != nil {
		return err
	}
	if err := d.RegisterInitializer("sorting_dsl", initSortingDSL, After("columns_dsl"), Before("sorting")); err != nil {
		return err
	}
	return d.RegisterFilter("sorting", abstractFilter("sorting"), Unless((*Table).SkipSorting))
}

// SortBy sets the class-level default sort. It becomes the sort default of
// the synthesized default column group.
func (d *Definition) SortBy(columnID, order string) *Definition {
	d.SetDefault("sort_column", columnID)
	if order != "" {
		d.SetDefault("sort_order", order)
	}
	return d
}

// initSortingDSL applies the class default for skip_sorting and the sort
// defaults of the selected column group.
func initSortingDSL(t *Table, c *Config) error {
	if err := c.SetClassDefault(t.def, "skip_sorting"); err != nil {
		return err
	}

	groupID := c.String("column_group_id")
	if groupID == "" {
		return nil
	}
	g, err := t.def.FindColumnGroup(groupID)
	if err != nil {
		return err
	}
	var errs []error
	if id := g.SortColumn(); id != "" {
		errs = append(errs, c.SetDefault("sort_column_id", id))
	}
	if o := g.SortOrder(); o != "" {
		errs = append(errs, c.SetDefault("sort_order", o))
	}
	return errors.Join(errs...)
}

func initSorting(t *Table, c *Config) error {
	if err := errors.Join(
		c.SetDefault("sort_column_param", "sort"),
		c.SetDefault("sort_order_param", "dir"),
	); err != nil {
		return err
	}
	t.RegisterParamName(c.String("sort_column_param"), c.String("sort_order_param"))

	id := t.Param(c.String("sort_column_param"))
	if _, ok := t.findSortableColumn(id); !ok {
		id = c.String("sort_column_id")
	}
	if col, ok := t.findSortableColumn(id); ok {
		t.sortColumn = col
	}

	order := t.Param(c.String("sort_order_param"))
	if !validSortOrder(order) {
		order = c.String("sort_order")
	}
	if order == "" && t.sortColumn.Value != nil {
		order = t.sortColumn.SortOrder()
	}
	if order == "" {
		order = SortAsc
	}
	if !validSortOrder(order) {
		return fmt.Errorf("%w: sort_order must be %q or %q, got %q", ErrConfiguration, SortAsc, SortDesc, order)
	}
	return c.Set("sort_order", order)
}

func validSortOrder(o string) bool { return o == SortAsc || o == SortDesc }

func (t *Table) findSortableColumn(id string) (Column, bool) {
	if id == "" {
		return Column{}, false
	}
	i := slices.IndexFunc(t.columns, func(c Column) bool { return c.Sortable() && c.ID() == id })
	if i < 0 {
		return Column{}, false
	}
	return t.columns[i], true
}

// SkipSorting reports whether sorting is disabled.
func (t *Table) SkipSorting() bool { return t.config.Bool("skip_sorting") }

// SortColumn returns the active sort column, if any.
func (t *Table) SortColumn() (Column, bool) {
	return t.sortColumn, t.sortColumn.Value != nil
}

// SortOrder returns the active sort order, "asc" or "desc".
func (t *Table) SortOrder() string { return t.config.String("sort_order") }

// ReverseSortOrder flips an order.
func ReverseSortOrder(order string) string {
	if order == SortDesc {
		return SortAsc
	}
	return SortDesc
}

// SortLinkOrder returns the order a click on col's header requests: the
// reverse of the current order when col is active, otherwise col's own
// default order.
func (t *Table) SortLinkOrder(col Column) string {
	if active, ok := t.SortColumn(); ok && active.ID() == col.ID() {
		return ReverseSortOrder(t.SortOrder())
	}
	return col.SortOrder()
}

// SortLink returns the URL a click on col's header navigates to.
func (t *Table) SortLink(col Column) string {
	return t.Path(map[string]any{
		t.config.String("sort_column_param"): col.ID(),
		t.config.String("sort_order_param"):  t.SortLinkOrder(col),
	})
}
