package table

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/a-h/templ"
)

// Feature is a capability a table type is composed from. Register declares
// the feature's extendable fields, class defaults, initializers and filters.
type Feature interface {
	Name() string
	Register(d *Definition) error
}

// Fragmenter is implemented by features that render a fragment of the
// table's markup.
type Fragmenter interface {
	Feature
	Fragment(t *Table) templ.Component
}

// Definition is a table type: an ordered feature list plus the registries
// those features populate. Definitions form a hierarchy; a child inherits
// everything from its parent and may extend any of it without affecting the
// parent or its siblings.
//
// Definitions are built once and then shared by every request, so all
// registries are guarded by mu.
type Definition struct {
	name   string
	parent *Definition

	mu          sync.Mutex
	gen         uint64
	features    []Feature
	adapter     Adapter
	extendables map[string]*Schema
	pipelines   [2]map[string]*step
	orders      [2]resolvedOrder
	defaults    map[string]any

	columns      []Column
	groups       []ColumnGroup
	bulkActions  []BulkAction
	cells        map[string]CellFunc
	typeCells    map[reflect.Type]typeCellFunc
	bulkHandlers map[string]BulkActionFunc
	translator   Translator
}

func newDefinition(name string, parent *Definition) *Definition {
	return &Definition{
		name:         name,
		parent:       parent,
		extendables:  make(map[string]*Schema),
		pipelines:    [2]map[string]*step{make(map[string]*step), make(map[string]*step)},
		defaults:     make(map[string]any),
		cells:        make(map[string]CellFunc),
		typeCells:    make(map[reflect.Type]typeCellFunc),
		bulkHandlers: make(map[string]BulkActionFunc),
	}
}

// Define creates a root table type composed of features. Every root type
// carries request parameter support.
func Define(name string, features ...Feature) (*Definition, error) {
	d := newDefinition(name, nil)
	if err := registerParams(d); err != nil {
		return nil, err
	}
	if err := d.Include(features...); err != nil {
		return nil, err
	}
	return d, nil
}

// MustDefine is like Define but panics on error. Intended for package-level
// table types.
func MustDefine(name string, features ...Feature) *Definition {
	d, err := Define(name, features...)
	if err != nil {
		panic(fmt.Sprintf("define table %s: %v", name, err))
	}
	return d
}

// Subclass creates a child table type of d with additional features.
func (d *Definition) Subclass(name string, features ...Feature) (*Definition, error) {
	child := newDefinition(name, d)
	if err := child.Include(features...); err != nil {
		return nil, err
	}
	return child, nil
}

// MustSubclass is like Subclass but panics on error.
func (d *Definition) MustSubclass(name string, features ...Feature) *Definition {
	child, err := d.Subclass(name, features...)
	if err != nil {
		panic(fmt.Sprintf("define table %s: %v", name, err))
	}
	return child
}

// Name returns the table type name. It doubles as the translation scope.
func (d *Definition) Name() string { return d.name }

// Parent returns the parent table type, or nil for a root type.
func (d *Definition) Parent() *Definition { return d.parent }

// Include registers features that are not already part of d or an
// ancestor. Plain features are registered before adapters so an adapter can
// see which features it has to serve.
func (d *Definition) Include(features ...Feature) error {
	ordered := slices.Clone(features)
	slices.SortStableFunc(ordered, func(a, b Feature) int {
		_, aa := a.(Adapter)
		_, ba := b.(Adapter)
		switch {
		case aa == ba:
			return 0
		case ba:
			return -1
		default:
			return 1
		}
	})

	var added, adapterAdded bool
	for _, f := range ordered {
		if d.Has(f.Name()) {
			continue
		}

		d.mu.Lock()
		d.features = append(d.features, f)
		a, isAdapter := f.(Adapter)
		if isAdapter {
			d.adapter = a
		}
		d.touch()
		d.mu.Unlock()

		if err := f.Register(d); err != nil {
			return fmt.Errorf("include %s in %s: %w", f.Name(), d.name, err)
		}
		added = added || !isAdapter
		adapterAdded = adapterAdded || isAdapter
	}

	// An inherited adapter must serve features added by a subclass.
	if added && !adapterAdded {
		if a, ok := d.Adapter(); ok {
			if err := a.Register(d); err != nil {
				return fmt.Errorf("include %s in %s: %w", a.Name(), d.name, err)
			}
		}
	}
	return nil
}

// Has reports whether the named feature is part of d or an ancestor.
func (d *Definition) Has(name string) bool {
	for _, f := range d.Features() {
		if f.Name() == name {
			return true
		}
	}
	return false
}

// Features returns the features of d, ancestors first.
func (d *Definition) Features() []Feature {
	var out []Feature
	if d.parent != nil {
		out = d.parent.Features()
	}
	d.mu.Lock()
	out = append(out, d.features...)
	d.mu.Unlock()
	return out
}

// Adapter returns the collection adapter of d or its nearest ancestor.
func (d *Definition) Adapter() (Adapter, bool) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		a := cur.adapter
		cur.mu.Unlock()
		if a != nil {
			return a, true
		}
	}
	return nil, false
}

// SetDefault sets a class-level default. Feature initializers copy class
// defaults into a config only when the instance did not set the option.
func (d *Definition) SetDefault(name string, value any) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaults[name] = value
	d.touch()
	return d
}

// Default resolves a class-level default on d or its nearest ancestor.
func (d *Definition) Default(name string) (any, bool) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		v, ok := cur.defaults[name]
		cur.mu.Unlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// touch invalidates cached pipeline orders of d and its descendants.
// d.mu must be held.
func (d *Definition) touch() { d.gen++ }

func (d *Definition) version() uint64 {
	var v uint64
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		v += cur.gen
		cur.mu.Unlock()
	}
	return v
}
