package table

import (
	"fmt"
	"maps"
	"slices"
)

// Extendable kinds declared by the built-in features.
const (
	KindConfig      = "config"
	KindColumn      = "column"
	KindColumnGroup = "column_group"
	KindBulkAction  = "bulk_action"
)

// Field is one named attribute of an extendable schema.
type Field struct {
	Name    string
	Default any
}

// Schema is a named, inheritable value type declared on a Definition.
// A child schema carries every field of its parent plus its own.
type Schema struct {
	kind   string
	owner  *Definition
	parent *Schema
	fields []Field
}

// Kind returns the extendable id, e.g. "column".
func (s *Schema) Kind() string { return s.kind }

// Parent returns the schema this one extends, or nil.
func (s *Schema) Parent() *Schema { return s.parent }

// Owner returns the definition the schema was declared on.
func (s *Schema) Owner() *Definition { return s.owner }

// Field adds a field to the schema. Redeclaring an existing field only
// replaces its default.
func (s *Schema) Field(name string, def any) *Schema {
	for i := range s.fields {
		if s.fields[i].Name == name {
			s.fields[i].Default = def
			return s
		}
	}
	s.fields = append(s.fields, Field{Name: name, Default: def})
	return s
}

// Fields returns every field, ancestors first.
func (s *Schema) Fields() []Field {
	var out []Field
	if s.parent != nil {
		out = s.parent.Fields()
	}
	for _, f := range s.fields {
		if i := slices.IndexFunc(out, func(o Field) bool { return o.Name == f.Name }); i >= 0 {
			out[i] = f
			continue
		}
		out = append(out, f)
	}
	return out
}

func (s *Schema) lookup(name string) (Field, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		for _, f := range cur.fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return Field{}, false
}

// HasField reports whether name is a field of s or one of its ancestors.
func (s *Schema) HasField(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

// IsA reports whether s is other or descends from it.
func (s *Schema) IsA(other *Schema) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// New allocates a value of this schema from attrs.
func (s *Schema) New(attrs map[string]any) (*Value, error) {
	v := &Value{schema: s, attrs: make(map[string]any, len(attrs))}
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		if err := v.Set(k, attrs[k]); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (s *Schema) String() string {
	if s.owner != nil {
		return s.owner.name + "." + s.kind
	}
	return s.kind
}

// Attrs is a plain key/value description of an extendable value.
type Attrs map[string]any

// Value is an instance of a Schema.
type Value struct {
	schema *Schema
	attrs  map[string]any
}

// Schema returns the type of the value.
func (v *Value) Schema() *Schema { return v.schema }

// Get returns the field value, falling back to the field default.
func (v *Value) Get(name string) any {
	if val, ok := v.attrs[name]; ok && val != nil {
		return val
	}
	if f, ok := v.schema.lookup(name); ok {
		return f.Default
	}
	return nil
}

// IsSet reports whether the field was assigned a non-nil value.
func (v *Value) IsSet(name string) bool {
	val, ok := v.attrs[name]
	return ok && val != nil
}

// Set assigns a field. Unknown names fail with ErrUnknownField.
func (v *Value) Set(name string, val any) error {
	if !v.schema.HasField(name) {
		return fmt.Errorf("%w: %s has no field %q", ErrUnknownField, v.schema, name)
	}
	v.attrs[name] = val
	return nil
}

// String returns the field as a string, or "".
func (v *Value) String(name string) string {
	s, _ := toString(v.Get(name))
	return s
}

// Bool returns the field as a bool.
func (v *Value) Bool(name string) bool {
	b, _ := toBool(v.Get(name))
	return b
}

// Int returns the field as an int, or 0.
func (v *Value) Int(name string) int {
	n, _ := toInt(v.Get(name))
	return n
}

// Strings returns the field coerced to a list of strings. A single string
// becomes a one-element list; nil stays nil.
func (v *Value) Strings(name string) []string {
	ss, _ := toStrings(v.Get(name))
	return ss
}

// Ints returns the field coerced to a list of ints.
func (v *Value) Ints(name string) []int {
	ns, _ := toInts(v.Get(name))
	return ns
}

// Map returns a copy of the assigned fields.
func (v *Value) Map() map[string]any {
	return maps.Clone(v.attrs)
}

// Becomes returns a new value of target carrying a copy of v's fields.
// target must strictly descend from v's schema; v is left untouched.
func (v *Value) Becomes(target *Schema) (*Value, error) {
	if target == v.schema || !target.IsA(v.schema) {
		return nil, fmt.Errorf("%w: cannot become %s because it does not extend %s",
			ErrIncompatibleValue, target, v.schema)
	}
	return &Value{schema: target, attrs: maps.Clone(v.attrs)}, nil
}

// valuer is implemented by the typed views (Column, BulkAction, ColumnGroup).
type valuer interface {
	value() *Value
}

func (v *Value) value() *Value { return v }

// DefineExtendable declares kind on d and applies fn to the new schema.
// It is idempotent: when d already declares kind the existing schema is
// returned and fn is not applied again. fn runs without d's lock held, so
// it may query d.
func (d *Definition) DefineExtendable(kind string, fn func(*Schema)) *Schema {
	d.mu.Lock()
	if s, ok := d.extendables[kind]; ok {
		d.mu.Unlock()
		return s
	}
	d.mu.Unlock()

	var parent *Schema
	if d.parent != nil {
		parent, _ = d.parent.Extendable(kind)
	}
	s := &Schema{kind: kind, owner: d, parent: parent}
	if fn != nil {
		fn(s)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.extendables[kind]; ok {
		return existing
	}
	d.extendables[kind] = s
	d.touch()
	return s
}

// ownExtendableLocked returns d's own schema for kind, creating it with
// parent when d does not declare kind yet.
func (d *Definition) ownExtendableLocked(kind string, parent *Schema) *Schema {
	if s, ok := d.extendables[kind]; ok {
		return s
	}
	s := &Schema{kind: kind, owner: d, parent: parent}
	d.extendables[kind] = s
	d.touch()
	return s
}

// ExtendExtendable applies fn to d's own specialization of kind, creating it
// on first use with the inherited schema as its parent. Siblings and
// ancestors of d are never affected. Like DefineExtendable, fn runs without
// d's lock held.
func (d *Definition) ExtendExtendable(kind string, fn func(*Schema)) (*Schema, error) {
	existing, err := d.FindExtendable(kind)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	s := d.ownExtendableLocked(kind, existing)
	d.mu.Unlock()

	if fn != nil {
		fn(s)
		d.mu.Lock()
		d.touch()
		d.mu.Unlock()
	}
	return s, nil
}

// MustExtendExtendable is like ExtendExtendable but panics on error.
func (d *Definition) MustExtendExtendable(kind string, fn func(*Schema)) *Schema {
	s, err := d.ExtendExtendable(kind, fn)
	if err != nil {
		panic(err)
	}
	return s
}

// Extendable resolves kind on d or its nearest ancestor.
func (d *Definition) Extendable(kind string) (*Schema, bool) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		s, ok := cur.extendables[kind]
		cur.mu.Unlock()
		if ok {
			return s, true
		}
	}
	return nil, false
}

// FindExtendable is like Extendable but fails with ErrExtendableNotFound.
func (d *Definition) FindExtendable(kind string) (*Schema, error) {
	s, ok := d.Extendable(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", ErrExtendableNotFound, kind, d.name)
	}
	return s, nil
}

// Build makes a value of the resolved kind from attrs or an existing value.
// A value of an ancestor schema is upgraded with Becomes; a value that
// already is-a the target is returned unchanged.
func (d *Definition) Build(kind string, in any) (*Value, error) {
	target, err := d.FindExtendable(kind)
	if err != nil {
		return nil, err
	}

	switch v := in.(type) {
	case valuer:
		val := v.value()
		if val == nil {
			break
		}
		if val.schema.IsA(target) {
			return val, nil
		}
		if target.IsA(val.schema) {
			return val.Becomes(target)
		}
	case Attrs:
		return target.New(v)
	case map[string]any:
		return target.New(v)
	case string:
		// shorthand for {id: v}
		return target.New(map[string]any{"id": v})
	}
	return nil, fmt.Errorf("%w: %s must be built from a %s value or attributes, got %T",
		ErrIncompatibleValue, kind, target, in)
}

// BuildAll maps Build over in.
func (d *Definition) BuildAll(kind string, in []any) ([]*Value, error) {
	out := make([]*Value, 0, len(in))
	for _, item := range in {
		v, err := d.Build(kind, item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
