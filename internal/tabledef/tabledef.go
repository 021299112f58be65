// Package tabledef builds table types from YAML documents.
//
// A document lists table types under "tables":
//
//	tables:
//	  - name: users
//	    features: [columns, pagination, sorting, search, export]
//	    adapter: pgrel
//	    source: public.users
//	    defaults:
//	      per_page: 50
//	    columns:
//	      - {id: name, sortable: true, searchable: true}
//	    column_groups:
//	      - {id: compact, columns: [name]}
//	    bulk_actions:
//	      - {id: archive, label: Archive}
//
// A table may extend another table of the same document; it inherits the
// parent's features, columns, groups, bulk actions and defaults.
package tabledef

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/JonMunkholm/rapidtable/internal/table"
	"gopkg.in/yaml.v3"
)

// File is a parsed definitions document.
type File struct {
	Tables []Spec `yaml:"tables"`
}

// Spec declares one table type.
type Spec struct {
	Name         string           `yaml:"name"`
	Extends      string           `yaml:"extends"`
	Label        string           `yaml:"label"`
	Features     []string         `yaml:"features"`
	Adapter      string           `yaml:"adapter"`
	Source       string           `yaml:"source"`
	Defaults     map[string]any   `yaml:"defaults"`
	Columns      []map[string]any `yaml:"columns"`
	ColumnGroups []GroupSpec      `yaml:"column_groups"`
	BulkActions  []map[string]any `yaml:"bulk_actions"`
}

// GroupSpec declares a column group.
type GroupSpec struct {
	ID         string         `yaml:"id"`
	Columns    []string       `yaml:"columns"`
	SortColumn string         `yaml:"sort_column"`
	SortOrder  string         `yaml:"sort_order"`
	Attrs      map[string]any `yaml:",inline"`
}

// AdapterFunc resolves an adapter name of a spec.
type AdapterFunc func(name string) (table.Adapter, error)

// Built is a table type together with the spec it came from.
type Built struct {
	Spec       Spec
	Definition *table.Definition
}

var features = map[string]func() table.Feature{
	"columns":      table.Columns,
	"pagination":   table.Pagination,
	"sorting":      table.Sorting,
	"search":       table.Search,
	"export":       table.Export,
	"bulk_actions": table.BulkActions,
}

// FeatureNames returns the feature names a spec may list.
func FeatureNames() []string {
	names := make([]string, 0, len(features))
	for n := range features {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Parse decodes a definitions document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse table definitions: %w", err)
	}
	return &f, f.Validate()
}

// ParseFile reads and decodes a definitions file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table definitions: %w", err)
	}
	return Parse(data)
}

// Validate checks names, parents and feature names.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Tables))
	for i, s := range f.Tables {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("tables[%d]: name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("tables[%d]: duplicate table %q", i, s.Name))
		}
		seen[s.Name] = true
		for _, feat := range s.Features {
			if _, ok := features[feat]; !ok {
				errs = append(errs, fmt.Errorf("table %q: unknown feature %q", s.Name, feat))
			}
		}
	}
	for _, s := range f.Tables {
		if s.Extends != "" && !seen[s.Extends] {
			errs = append(errs, fmt.Errorf("table %q: extends unknown table %q", s.Name, s.Extends))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", table.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// Build defines every table of the document, parents before children, in
// document order otherwise.
func (f *File) Build(adapters AdapterFunc) ([]Built, error) {
	byName := make(map[string]Spec, len(f.Tables))
	for _, s := range f.Tables {
		byName[s.Name] = s
	}

	defs := make(map[string]*table.Definition, len(f.Tables))
	visiting := make(map[string]bool)
	var out []Built

	var build func(name string) (*table.Definition, error)
	build = func(name string) (*table.Definition, error) {
		if d, ok := defs[name]; ok {
			return d, nil
		}
		if visiting[name] {
			return nil, fmt.Errorf("%w: table %q extends itself", table.ErrConfiguration, name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		s := byName[name]
		var parent *table.Definition
		if s.Extends != "" {
			var err error
			if parent, err = build(s.Extends); err != nil {
				return nil, err
			}
		}
		d, err := s.define(parent, adapters)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		defs[name] = d
		out = append(out, Built{Spec: s, Definition: d})
		return d, nil
	}

	for _, s := range f.Tables {
		if _, err := build(s.Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s Spec) define(parent *table.Definition, adapters AdapterFunc) (*table.Definition, error) {
	feats := make([]table.Feature, 0, len(s.Features)+1)
	for _, name := range s.Features {
		feats = append(feats, features[name]())
	}
	if s.Adapter != "" {
		if adapters == nil {
			return nil, fmt.Errorf("%w: no adapters available for %q", table.ErrConfiguration, s.Adapter)
		}
		a, err := adapters(s.Adapter)
		if err != nil {
			return nil, err
		}
		feats = append(feats, a)
	}

	var d *table.Definition
	var err error
	if parent != nil {
		d, err = parent.Subclass(s.Name, feats...)
	} else {
		d, err = table.Define(s.Name, feats...)
	}
	if err != nil {
		return nil, err
	}

	for _, k := range sortedKeys(s.Defaults) {
		d.SetDefault(k, s.Defaults[k])
	}
	for i, attrs := range s.Columns {
		id, _ := attrs["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("%w: columns[%d]: id is required", table.ErrConfiguration, i)
		}
		if _, err := d.AddColumn(id, attrs); err != nil {
			return nil, err
		}
	}
	for _, g := range s.ColumnGroups {
		attrs := table.Attrs{}
		for k, v := range g.Attrs {
			attrs[k] = v
		}
		if g.SortColumn != "" {
			attrs["sort_column"] = g.SortColumn
		}
		if g.SortOrder != "" {
			attrs["sort_order"] = g.SortOrder
		}
		if _, err := d.AddColumnGroup(g.ID, g.Columns, attrs); err != nil {
			return nil, err
		}
	}
	for i, attrs := range s.BulkActions {
		id, _ := attrs["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("%w: bulk_actions[%d]: id is required", table.ErrConfiguration, i)
		}
		if _, err := d.AddBulkAction(id, attrs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
