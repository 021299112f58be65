package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*Table, *Config) error { return nil }

func initNames(t *testing.T, d *Definition) []string {
	t.Helper()
	inits, _, err := d.StepNames()
	require.NoError(t, err)
	return inits
}

func TestRegisterInitializer_RegistrationOrder(t *testing.T) {
	d := MustDefine("ordered")
	d.MustRegisterInitializer("a", noop)
	d.MustRegisterInitializer("b", noop)
	d.MustRegisterInitializer("c", noop)

	assert.Equal(t, []string{"params", "a", "b", "c"}, initNames(t, d))
}

func TestRegisterInitializer_BeforeAfter(t *testing.T) {
	d := MustDefine("constrained")
	d.MustRegisterInitializer("columns", noop)
	d.MustRegisterInitializer("sorting", noop, After("columns"))
	d.MustRegisterInitializer("columns_dsl", noop, Before("columns"))
	d.MustRegisterInitializer("sorting_dsl", noop, After("columns_dsl"), Before("sorting"))

	names := initNames(t, d)
	pos := func(n string) int {
		for i, s := range names {
			if s == n {
				return i
			}
		}
		t.Fatalf("%s not in %v", n, names)
		return -1
	}
	assert.Less(t, pos("columns_dsl"), pos("columns"))
	assert.Less(t, pos("columns"), pos("sorting"))
	assert.Less(t, pos("columns_dsl"), pos("sorting_dsl"))
	assert.Less(t, pos("sorting_dsl"), pos("sorting"))
}

func TestRegisterInitializer_DanglingReference(t *testing.T) {
	d := MustDefine("dangling")
	err := d.RegisterInitializer("sorting", noop, After("columns"))
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.Contains(t, err.Error(), `unknown step "columns"`)

	assert.Equal(t, []string{"params"}, initNames(t, d), "failed registration must not change the pipeline")
}

func TestRegisterInitializer_Cycle(t *testing.T) {
	d := MustDefine("cyclic")
	d.MustRegisterInitializer("a", noop)
	d.MustRegisterInitializer("b", noop, After("a"))

	err := d.RegisterInitializer("a", noop, After("b"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "cycle")

	assert.Equal(t, []string{"params", "a", "b"}, initNames(t, d))
}

func TestRegisterInitializer_ReplaceKeepsPosition(t *testing.T) {
	d := MustDefine("replace")
	var ran []string
	d.MustRegisterInitializer("a", func(*Table, *Config) error { ran = append(ran, "a1"); return nil })
	d.MustRegisterInitializer("b", func(*Table, *Config) error { ran = append(ran, "b"); return nil })
	d.MustRegisterInitializer("a", func(*Table, *Config) error { ran = append(ran, "a2"); return nil })

	_, err := d.New([]any{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "b"}, ran)
}

func TestRegisterInitializer_ReplaceWithNewPosition(t *testing.T) {
	d := MustDefine("move")
	d.MustRegisterInitializer("a", noop)
	d.MustRegisterInitializer("b", noop)
	d.MustRegisterInitializer("a", noop, After("b"))

	assert.Equal(t, []string{"params", "b", "a"}, initNames(t, d))
}

func TestRegisterFilter_Unless(t *testing.T) {
	d := MustDefine("filters")
	d.MustRegisterFilter("double", func(_ *Table, scope any) (any, error) {
		return scope.(int) * 2, nil
	})
	d.MustRegisterFilter("never", func(*Table, any) (any, error) {
		return nil, errors.New("must be skipped")
	}, Unless(func(*Table) bool { return true }))
	d.MustRegisterFilter("inc", func(_ *Table, scope any) (any, error) {
		return scope.(int) + 1, nil
	})

	tbl, err := d.New(20, nil)
	require.NoError(t, err)
	got, err := tbl.Records(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 41, got)
}

func TestSubclass_InheritsAndExtendsPipeline(t *testing.T) {
	parent := MustDefine("parent")
	parent.MustRegisterInitializer("a", noop)
	child := parent.MustSubclass("child")
	child.MustRegisterInitializer("b", noop, Before("a"))

	assert.Equal(t, []string{"params", "a"}, initNames(t, parent))
	assert.Equal(t, []string{"params", "b", "a"}, initNames(t, child))

	parent.MustRegisterInitializer("c", noop)
	assert.Equal(t, []string{"params", "b", "a", "c"}, initNames(t, child), "cached order must see parent changes")
}

func TestAbstractFilter_ExtensionRequired(t *testing.T) {
	d := MustDefine("abstract", Search())
	tbl, err := d.New([]any{}, nil)
	require.NoError(t, err)

	_, err = tbl.Records(t.Context())
	require.Error(t, err)
	assert.True(t, IsExtensionRequired(err))
}

func TestInitializerErrorStopsConstruction(t *testing.T) {
	d := MustDefine("failing")
	boom := errors.New("boom")
	d.MustRegisterInitializer("fail", func(*Table, *Config) error { return boom })

	_, err := d.New([]any{}, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "initialize fail")
}
