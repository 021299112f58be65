package table

import (
	"context"
	"fmt"
	"reflect"
	"slices"
)

// DefaultGroupID names the column group holding every column of a table type.
const DefaultGroupID = "default"

// Column is a named, orderable piece of per-record data.
type Column struct{ *Value }

// ID returns the column id.
func (c Column) ID() string { return c.String("id") }

// Label returns the explicit label, or "".
func (c Column) Label() string { return c.String("label") }

// CellName names the registered cell function used for the column. It
// defaults to the column id.
func (c Column) CellName() string {
	if name := c.String("cell"); name != "" {
		return name
	}
	return c.ID()
}

// ColumnGroup is a named, ordered subset of a table type's columns.
type ColumnGroup struct{ *Value }

// ID returns the group id.
func (g ColumnGroup) ID() string { return g.String("id") }

// ColumnIDs returns the ids of the grouped columns, in order.
func (g ColumnGroup) ColumnIDs() []string { return g.Strings("column_ids") }

// CellFunc renders the cell of one column for record. It may return plain
// values or a templ.Component; during export it should return plain values.
type CellFunc func(ctx context.Context, t *Table, record any) (any, error)

type typeCellFunc func(ctx context.Context, t *Table, value any) (any, error)

type columnsFeature struct{}

// Columns is the column feature. It is included by Sorting and Export.
func Columns() Feature { return columnsFeature{} }

func (columnsFeature) Name() string { return "columns" }

func (columnsFeature) Register(d *Definition) error {
	d.DefineExtendable(KindColumn, func(s *Schema) {
		s.Field("id", nil).Field("label", nil).Field("cell", nil)
	})
	d.DefineExtendable(KindColumnGroup, func(s *Schema) {
		s.Field("id", nil).Field("column_ids", nil)
	})
	if _, err := d.ExtendExtendable(KindConfig, func(s *Schema) {
		s.Field("columns", nil).
			Field("except", nil).
			Field("only", nil).
			Field("column_ids", nil).
			Field("column_group_id", nil)
	}); err != nil {
		return err
	}

	if err := d.RegisterInitializer("columns", initColumns); err != nil {
		return err
	}
	return d.RegisterInitializer("columns_dsl", initColumnsDSL, Before("columns"))
}

// initColumnsDSL turns column_ids / column_group_id (or the default group)
// into the columns option. Explicit columns win but cannot be combined with
// either selector.
func initColumnsDSL(t *Table, c *Config) error {
	hasIDs, hasGroup := c.IsSet("column_ids"), c.IsSet("column_group_id")

	if c.IsSet("columns") {
		if hasIDs || hasGroup {
			return fmt.Errorf("%w: columns cannot be combined with column_ids or column_group_id", ErrConfiguration)
		}
		return nil
	}

	if !hasIDs && !hasGroup {
		if len(t.def.Columns()) == 0 {
			return nil
		}
		if err := c.Set("column_group_id", DefaultGroupID); err != nil {
			return err
		}
	}

	cols, err := t.def.FindColumns(c.Strings("column_ids"), c.String("column_group_id"))
	if err != nil {
		return err
	}
	return c.Set("columns", cols)
}

func initColumns(t *Table, c *Config) error {
	raw := c.Get("columns")
	if raw == nil {
		return fmt.Errorf("%w: columns must be specified", ErrConfiguration)
	}
	list, ok := toList(raw)
	if !ok {
		return fmt.Errorf("%w: columns must be a list, got %T", ErrConfiguration, raw)
	}

	vals, err := t.def.BuildAll(KindColumn, list)
	if err != nil {
		return err
	}

	cols := make([]Column, 0, len(vals))
	seen := make(map[string]bool, len(vals))
	for _, v := range vals {
		col := Column{v}
		if col.ID() == "" {
			return fmt.Errorf("%w: column without id", ErrConfiguration)
		}
		if seen[col.ID()] {
			return fmt.Errorf("%w: duplicate column %q", ErrConfiguration, col.ID())
		}
		seen[col.ID()] = true
		cols = append(cols, col)
	}

	t.columns = filterColumns(cols, c.Strings("except"), c.Strings("only"))
	return nil
}

func filterColumns(cols []Column, except, only []string) []Column {
	if except != nil {
		cols = slices.DeleteFunc(slices.Clone(cols), func(c Column) bool {
			return slices.Contains(except, c.ID())
		})
	}
	if only != nil {
		cols = slices.DeleteFunc(slices.Clone(cols), func(c Column) bool {
			return !slices.Contains(only, c.ID())
		})
	}
	return cols
}

// Columns returns the instance's resolved columns.
func (t *Table) Columns() []Column { return t.columns }

// Column returns the instance column id.
func (t *Table) Column(id string) (Column, bool) {
	for _, c := range t.columns {
		if c.ID() == id {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnLabel resolves the header label of col: its label, the
// "columns.<id>" translation, or the titleized id.
func (t *Table) ColumnLabel(col Column) string {
	if l := col.Label(); l != "" {
		return l
	}
	if l, ok := t.translate("columns." + col.ID()); ok {
		return l
	}
	return Titleize(col.ID())
}

// ColumnCell resolves the cell of col for record: the registered cell
// function, otherwise the record attribute passed through the type cell
// helper registered for its dynamic type.
func (t *Table) ColumnCell(ctx context.Context, record any, col Column) (any, error) {
	if fn, ok := t.def.cell(col.CellName()); ok {
		return fn(ctx, t, record)
	}

	v, err := Attr(record, col.ID())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	if fn, ok := t.def.typeCell(reflect.TypeOf(v)); ok {
		return fn(ctx, t, v)
	}
	return v, nil
}

// AddColumn declares a column on the table type. Redeclaring an id replaces
// the column in place.
func (d *Definition) AddColumn(id string, attrs Attrs) (Column, error) {
	a := Attrs{"id": id}
	for k, v := range attrs {
		if k != "id" {
			a[k] = v
		}
	}
	v, err := d.Build(KindColumn, a)
	if err != nil {
		return Column{}, fmt.Errorf("column %q: %w", id, err)
	}
	col := Column{v}

	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.IndexFunc(d.columns, func(c Column) bool { return c.ID() == id }); i >= 0 {
		d.columns[i] = col
	} else {
		d.columns = append(d.columns, col)
	}
	d.touch()
	return col, nil
}

// Column is AddColumn for table type declarations; it panics on error.
func (d *Definition) Column(id string, attrs Attrs) *Definition {
	if _, err := d.AddColumn(id, attrs); err != nil {
		panic(err)
	}
	return d
}

// Columns returns the declared columns, ancestors first.
func (d *Definition) Columns() []Column {
	var out []Column
	if d.parent != nil {
		out = d.parent.Columns()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, col := range d.columns {
		if i := slices.IndexFunc(out, func(c Column) bool { return c.ID() == col.ID() }); i >= 0 {
			out[i] = col
			continue
		}
		out = append(out, col)
	}
	return out
}

// FindColumn looks a declared column up by id.
func (d *Definition) FindColumn(id string) (Column, error) {
	for _, c := range d.Columns() {
		if c.ID() == id {
			return c, nil
		}
	}
	return Column{}, fmt.Errorf("%w: %q in %s", ErrColumnNotFound, id, d.name)
}

// AddColumnGroup declares a named column subset.
func (d *Definition) AddColumnGroup(id string, columnIDs []string, attrs Attrs) (ColumnGroup, error) {
	a := Attrs{"id": id, "column_ids": slices.Clone(columnIDs)}
	for k, v := range attrs {
		if k != "id" && k != "column_ids" {
			a[k] = v
		}
	}
	v, err := d.Build(KindColumnGroup, a)
	if err != nil {
		return ColumnGroup{}, fmt.Errorf("column group %q: %w", id, err)
	}
	g := ColumnGroup{v}

	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.IndexFunc(d.groups, func(o ColumnGroup) bool { return o.ID() == id }); i >= 0 {
		d.groups[i] = g
	} else {
		d.groups = append(d.groups, g)
	}
	d.touch()
	return g, nil
}

// ColumnGroup is AddColumnGroup for table type declarations; it panics on error.
func (d *Definition) ColumnGroup(id string, columnIDs []string, attrs Attrs) *Definition {
	if _, err := d.AddColumnGroup(id, columnIDs, attrs); err != nil {
		panic(err)
	}
	return d
}

// ColumnGroups returns the declared groups, ancestors first.
func (d *Definition) ColumnGroups() []ColumnGroup {
	var out []ColumnGroup
	if d.parent != nil {
		out = d.parent.ColumnGroups()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append(out, d.groups...)
}

// FindColumnGroup looks a group up by id. The default group is synthesized
// from every declared column when d does not declare one itself.
func (d *Definition) FindColumnGroup(id string) (ColumnGroup, error) {
	d.mu.Lock()
	i := slices.IndexFunc(d.groups, func(g ColumnGroup) bool { return g.ID() == id })
	var own ColumnGroup
	if i >= 0 {
		own = d.groups[i]
	}
	d.mu.Unlock()

	switch {
	case i >= 0:
		return own, nil
	case id == DefaultGroupID:
		return d.DefaultColumnGroup()
	case d.parent != nil:
		g, err := d.parent.FindColumnGroup(id)
		if err == nil {
			return g, nil
		}
	}
	return ColumnGroup{}, fmt.Errorf("%w: %q in %s", ErrColumnGroupNotFound, id, d.name)
}

// DefaultColumnGroup returns the group of every declared column. When the
// table type sorts, the class-level sort_column and sort_order defaults
// become the group's sort defaults.
func (d *Definition) DefaultColumnGroup() (ColumnGroup, error) {
	ids := make([]string, 0)
	for _, c := range d.Columns() {
		ids = append(ids, c.ID())
	}

	s, err := d.FindExtendable(KindColumnGroup)
	if err != nil {
		return ColumnGroup{}, err
	}
	attrs := map[string]any{"id": DefaultGroupID, "column_ids": ids}
	for _, name := range []string{"sort_column", "sort_order"} {
		if v, ok := d.Default(name); ok && s.HasField(name) {
			attrs[name] = v
		}
	}
	v, err := s.New(attrs)
	if err != nil {
		return ColumnGroup{}, err
	}
	return ColumnGroup{v}, nil
}

// FindColumns resolves either explicit column ids or a column group.
func (d *Definition) FindColumns(columnIDs []string, groupID string) ([]Column, error) {
	switch {
	case columnIDs != nil && groupID != "":
		return nil, fmt.Errorf("%w: column_ids and column_group_id cannot be used together", ErrConfiguration)
	case columnIDs != nil:
		cols := make([]Column, 0, len(columnIDs))
		for _, id := range columnIDs {
			c, err := d.FindColumn(id)
			if err != nil {
				return nil, err
			}
			cols = append(cols, c)
		}
		return cols, nil
	case groupID != "":
		g, err := d.FindColumnGroup(groupID)
		if err != nil {
			return nil, err
		}
		return d.FindColumns(g.ColumnIDs(), "")
	}
	return nil, fmt.Errorf("%w: column_ids or column_group_id must be specified", ErrConfiguration)
}

// RegisterCell registers a named cell function. Columns use the function
// named by their "cell" attribute, or by their id.
func (d *Definition) RegisterCell(name string, fn CellFunc) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cells[name] = fn
	return d
}

func (d *Definition) cell(name string) (CellFunc, bool) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		fn, ok := cur.cells[name]
		cur.mu.Unlock()
		if ok {
			return fn, true
		}
	}
	return nil, false
}

// RegisterTypeCell registers a helper rendering every attribute value of
// dynamic type T that has no column-specific cell function.
func RegisterTypeCell[T any](d *Definition, fn func(ctx context.Context, t *Table, v T) (any, error)) {
	typ := reflect.TypeFor[T]()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typeCells[typ] = func(ctx context.Context, t *Table, v any) (any, error) {
		return fn(ctx, t, v.(T))
	}
}

func (d *Definition) typeCell(typ reflect.Type) (typeCellFunc, bool) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		fn, ok := cur.typeCells[typ]
		cur.mu.Unlock()
		if ok {
			return fn, true
		}
	}
	return nil, false
}
