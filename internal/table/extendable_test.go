package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefineExtendable_Idempotent(t *testing.T) {
	d := MustDefine("ext")
	first := d.DefineExtendable("widget", func(s *Schema) { s.Field("id", nil) })
	second := d.DefineExtendable("widget", func(s *Schema) { s.Field("ignored", nil) })

	assert.Same(t, first, second)
	assert.False(t, second.HasField("ignored"))
}

func TestExtendExtendable_DoesNotAffectParentOrSiblings(t *testing.T) {
	parent := MustDefine("base", Columns())
	left := parent.MustSubclass("left")
	right := parent.MustSubclass("right")

	left.MustExtendExtendable(KindColumn, func(s *Schema) { s.Field("width", 10) })

	leftCol, err := left.FindExtendable(KindColumn)
	require.NoError(t, err)
	parentCol, err := parent.FindExtendable(KindColumn)
	require.NoError(t, err)
	rightCol, err := right.FindExtendable(KindColumn)
	require.NoError(t, err)

	assert.True(t, leftCol.HasField("width"))
	assert.True(t, leftCol.HasField("label"), "extension keeps inherited fields")
	assert.False(t, parentCol.HasField("width"))
	assert.False(t, rightCol.HasField("width"))
	assert.Same(t, parentCol, rightCol)
	assert.True(t, leftCol.IsA(parentCol))
}

func TestExtendExtendable_CallbackMayQueryDefinition(t *testing.T) {
	d := MustDefine("reentrant", Columns(), Search())

	done := make(chan *Schema, 1)
	go func() {
		done <- d.MustExtendExtendable(KindColumn, func(s *Schema) {
			if d.Has("search") && len(d.Columns()) == 0 {
				s.Field("indexed", false)
			}
		})
	}()

	select {
	case s := <-done:
		assert.True(t, s.HasField("indexed"))
	case <-time.After(5 * time.Second):
		t.Fatal("ExtendExtendable did not return")
	}

	widget := d.DefineExtendable("widget", func(s *Schema) {
		if _, ok := d.Extendable(KindColumn); ok {
			s.Field("id", nil)
		}
	})
	assert.True(t, widget.HasField("id"))
}

func TestExtendExtendable_Unknown(t *testing.T) {
	d := MustDefine("unknown")
	_, err := d.ExtendExtendable("gadget", nil)
	assert.ErrorIs(t, err, ErrExtendableNotFound)
}

func TestBuild_FromAttrsAndShorthand(t *testing.T) {
	d := MustDefine("build", Columns())

	v, err := d.Build(KindColumn, Attrs{"id": "name", "label": "Full name"})
	require.NoError(t, err)
	assert.Equal(t, "name", v.String("id"))
	assert.Equal(t, "Full name", v.String("label"))

	v, err = d.Build(KindColumn, "email")
	require.NoError(t, err)
	assert.Equal(t, "email", v.String("id"))

	_, err = d.Build(KindColumn, Attrs{"colour": "red"})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = d.Build(KindColumn, 42)
	assert.ErrorIs(t, err, ErrIncompatibleValue)
}

func TestBuild_BecomesSubtype(t *testing.T) {
	parent := MustDefine("plain", Columns())
	child := parent.MustSubclass("sortable", Sorting())

	orig, err := parent.Build(KindColumn, Attrs{"id": "name", "label": "Name"})
	require.NoError(t, err)

	upgraded, err := child.Build(KindColumn, Column{orig})
	require.NoError(t, err)

	assert.NotSame(t, orig, upgraded)
	assert.Equal(t, orig.Map(), upgraded.Map())
	require.NoError(t, upgraded.Set("sortable", true))
	assert.False(t, orig.IsSet("sortable"), "the original value is not mutated")
	assert.False(t, orig.Schema().HasField("sortable"))

	again, err := child.Build(KindColumn, Column{upgraded})
	require.NoError(t, err)
	assert.Same(t, upgraded, again, "a value of the target type is returned as is")
}

func TestBuild_IncompatibleSibling(t *testing.T) {
	parent := MustDefine("root", Columns())
	a := parent.MustSubclass("a")
	b := parent.MustSubclass("b")
	a.MustExtendExtendable(KindColumn, func(s *Schema) { s.Field("x", nil) })
	b.MustExtendExtendable(KindColumn, func(s *Schema) { s.Field("y", nil) })

	v, err := a.Build(KindColumn, "id")
	require.NoError(t, err)
	_, err = b.Build(KindColumn, Column{v})
	assert.ErrorIs(t, err, ErrIncompatibleValue)
}

func TestValue_DefaultsAndCoercion(t *testing.T) {
	d := MustDefine("defaults")
	s := d.DefineExtendable("thing", func(s *Schema) {
		s.Field("size", 3).Field("tags", nil).Field("on", nil)
	})

	v, err := s.New(map[string]any{"tags": "a", "on": "true"})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Int("size"))
	assert.False(t, v.IsSet("size"))
	assert.Equal(t, []string{"a"}, v.Strings("tags"))
	assert.True(t, v.Bool("on"))
}

func TestConfig_FrozenAfterConstruction(t *testing.T) {
	d := MustDefine("frozen")
	tbl, err := d.New([]any{}, Options{"action": "/x"})
	require.NoError(t, err)

	assert.True(t, tbl.Config().Frozen())
	assert.ErrorIs(t, tbl.Config().Set("action", "/y"), ErrConfigFrozen)
	assert.Equal(t, "/x", tbl.Action())
}

func TestNew_UnknownOption(t *testing.T) {
	d := MustDefine("strict")
	_, err := d.New([]any{}, Options{"per_page": 10})
	require.ErrorIs(t, err, ErrUnknownField)
	assert.True(t, IsConfiguration(err))
}

func TestNew_NilBase(t *testing.T) {
	_, err := MustDefine("nilbase").New(nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}
