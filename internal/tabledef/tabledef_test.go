package tabledef_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/rapidtable/internal/adapter/array"
	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/JonMunkholm/rapidtable/internal/tabledef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `
tables:
  - name: admin_users
    extends: users
    features: [bulk_actions]
    bulk_actions:
      - {id: archive, label: Archive now}
  - name: users
    label: Users
    features: [columns, pagination, sorting, search]
    adapter: array
    defaults:
      per_page: 50
    columns:
      - {id: id, sortable: true}
      - {id: name, sortable: true, searchable: true, label: Full name}
      - {id: email}
    column_groups:
      - id: compact
        columns: [id, name]
        sort_column: name
        sort_order: desc
`

func adapters(name string) (table.Adapter, error) {
	if name == "array" {
		return array.Adapter(), nil
	}
	return nil, errors.New("unknown adapter " + name)
}

func TestBuild_ParentsFirst(t *testing.T) {
	f, err := tabledef.Parse([]byte(doc))
	require.NoError(t, err)

	built, err := f.Build(adapters)
	require.NoError(t, err)
	require.Len(t, built, 2)
	assert.Equal(t, "users", built[0].Definition.Name())
	assert.Equal(t, "Users", built[0].Spec.Label)

	admin := built[1].Definition
	assert.Same(t, built[0].Definition, admin.Parent())
	assert.True(t, admin.Has("bulk_actions"))
	assert.True(t, admin.Has("search"))

	actions := admin.BulkActions()
	require.Len(t, actions, 1)
	assert.Equal(t, "Archive now", actions[0].Label())

	perPage, ok := admin.Default("per_page")
	assert.True(t, ok)
	assert.Equal(t, 50, perPage)
}

func TestBuild_TablesWork(t *testing.T) {
	f, err := tabledef.Parse([]byte(doc))
	require.NoError(t, err)
	built, err := f.Build(adapters)
	require.NoError(t, err)

	records := []map[string]any{
		{"id": 1, "name": "Ann", "email": "a@x"},
		{"id": 2, "name": "Bob", "email": "b@x"},
	}
	tbl, err := built[0].Definition.New(records, table.Options{"column_group_id": "compact"})
	require.NoError(t, err)

	var names []string
	for _, c := range tbl.Columns() {
		names = append(names, tbl.ColumnLabel(c))
	}
	assert.Equal(t, []string{"Id", "Full name"}, names)
	assert.Equal(t, 50, tbl.PerPage())

	col, ok := tbl.SortColumn()
	require.True(t, ok)
	assert.Equal(t, "name", col.ID())
	assert.Equal(t, table.SortDesc, tbl.SortOrder())
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":     "tables:\n  - name: a\n    colums: []\n",
		"missing name":    "tables:\n  - features: [columns]\n",
		"duplicate":       "tables:\n  - name: a\n  - name: a\n",
		"unknown feature": "tables:\n  - name: a\n    features: [charts]\n",
		"unknown parent":  "tables:\n  - name: a\n    extends: b\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tabledef.Parse([]byte(in))
			assert.Error(t, err)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown column attr": "tables:\n  - name: a\n    features: [columns]\n    columns:\n      - {id: x, searchable: true}\n",
		"column without id":   "tables:\n  - name: a\n    features: [columns]\n    columns:\n      - {label: X}\n",
		"unknown adapter":     "tables:\n  - name: a\n    adapter: mongo\n",
		"cycle":               "tables:\n  - name: a\n    extends: b\n  - name: b\n    extends: a\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := tabledef.Parse([]byte(in))
			require.NoError(t, err)
			_, err = f.Build(adapters)
			assert.Error(t, err)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	f, err := tabledef.ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Tables, 2)

	_, err = tabledef.ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
