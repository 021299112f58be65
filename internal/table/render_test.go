package table_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/JonMunkholm/rapidtable/internal/adapter/array"
	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, c.Render(t.Context(), &sb))
	return sb.String()
}

func fullUsers() *table.Definition {
	return table.MustDefine("full_users",
		table.Columns(), table.Pagination(), table.Sorting(), table.Search(),
		table.Export(), table.BulkActions(), array.Adapter(),
	).
		Column("id", table.Attrs{"sortable": true}).
		Column("name", table.Attrs{"sortable": true, "searchable": true}).
		BulkAction("archive", nil, nil)
}

func TestComponent_FullTable(t *testing.T) {
	tbl, err := fullUsers().New(users(60), table.Options{
		"action": "/tables/users",
		"params": url.Values{"page": {"2"}, "sort": {"name"}},
	})
	require.NoError(t, err)

	html := renderString(t, tbl.Component())

	assert.Contains(t, html, `<div class="rapid-table" data-rapid-table="full_users" id="rapid_table">`)
	assert.Contains(t, html, `<input id="search" name="q" placeholder="Search" type="search" value="">`)
	assert.Contains(t, html, `href="/tables/users/export?format=csv&amp;page=2&amp;sort=name"`)
	assert.Contains(t, html, `<option value="archive">Archive</option>`)
	assert.Contains(t, html, `aria-sort="ascending"`)
	assert.Contains(t, html, `<span class="rapid-table-sort-order">▲</span>`)
	assert.Contains(t, html, `class="rapid-table-page current"`)
	assert.Contains(t, html, `rel="next"`)
	assert.Contains(t, html, `User 26`)
	assert.NotContains(t, html, `User 25<`)
	assert.Equal(t, 25, strings.Count(html, `class="rapid-table-select"`), "one checkbox per row on the page")
	assert.NotContains(t, html, "hx-get", "live updates are off by default")
}

func TestComponent_EmptyMessage(t *testing.T) {
	tbl, err := fullUsers().New([]user{}, nil)
	require.NoError(t, err)

	html := renderString(t, tbl.Component())
	assert.Contains(t, html, `<td colspan="3">No records found.</td>`)
	assert.NotContains(t, html, "rapid-table-pagination")
}

func TestComponent_LiveUpdate(t *testing.T) {
	tbl, err := fullUsers().New(users(60), table.Options{
		"action":      "/tables/users",
		"param_name":  "u",
		"live_update": true,
	})
	require.NoError(t, err)

	links := renderString(t, tbl.PaginationLinks())
	assert.Contains(t, links, `hx-get="/tables/users?u%5Bpage%5D=2"`)
	assert.Contains(t, links, `hx-target="#u_rapid_table"`)
	assert.Contains(t, links, `hx-swap="outerHTML"`)
}

func TestPaginationLinks_Window(t *testing.T) {
	tbl, err := fullUsers().New(users(25*20), table.Options{"params": url.Values{"page": {"10"}}})
	require.NoError(t, err)

	links := renderString(t, tbl.PaginationLinks())
	assert.Equal(t, 2, strings.Count(links, "rapid-table-gap"))
	assert.Contains(t, links, `>6</a>`)
	assert.Contains(t, links, `>14</a>`)
	assert.NotContains(t, links, `>15</a>`)
	assert.Contains(t, links, `rel="first"`)
	assert.Contains(t, links, `rel="last"`)
}

func TestSearchForm_KeepsRegisteredParams(t *testing.T) {
	tbl, err := fullUsers().New(users(3), table.Options{
		"action": "/tables/users",
		"params": url.Values{"sort": {"id"}, "page": {"3"}, "q": {`"quoted"`}},
	})
	require.NoError(t, err)

	form := renderString(t, tbl.SearchForm())
	assert.Contains(t, form, `<input name="sort" type="hidden" value="id">`)
	assert.NotContains(t, form, `name="page"`, "a new search starts on the first page")
	assert.Contains(t, form, `value="&#34;quoted&#34;"`)
}

func TestCell_RendersComponentsAndEscapesText(t *testing.T) {
	d := fullUsers().RegisterCell("name", func(_ context.Context, tbl *table.Table, r any) (any, error) {
		if tbl.Exporting() {
			return r.(user).Name, nil
		}
		return templ.Raw("<b>" + r.(user).Name + "</b>"), nil
	})
	tbl, err := d.New([]user{{ID: 1, Name: "<Ann>"}}, nil)
	require.NoError(t, err)

	id, _ := tbl.Column("id")
	name, _ := tbl.Column("name")
	assert.Equal(t, "1", renderString(t, tbl.Cell(user{ID: 1}, id)))
	assert.Equal(t, "<b><Ann></b>", renderString(t, tbl.Cell(user{Name: "<Ann>"}, name)))

	recs, err := tbl.ExportRecords(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "<Ann>", recs[0]["name"])
}
