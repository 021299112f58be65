package table

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

// htmlWriter writes markup and keeps the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) { h.raw(templ.EscapeString(s)) }

// open writes a start tag. Attribute keys are written sorted; a true bool
// renders as a bare attribute and a false one is dropped.
func (h *htmlWriter) open(tag string, attrs templ.Attributes) {
	h.raw("<" + tag)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case bool:
			if v {
				h.raw(" " + k)
			}
		case nil:
		default:
			h.raw(" " + k + `="` + templ.EscapeString(fmt.Sprint(v)) + `"`)
		}
	}
	h.raw(">")
}

func (h *htmlWriter) close(tag string) { h.raw("</" + tag + ">") }

func (h *htmlWriter) element(tag string, attrs templ.Attributes, text string) {
	h.open(tag, attrs)
	h.text(text)
	h.close(tag)
}

func (h *htmlWriter) component(ctx context.Context, c templ.Component) {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
}

func render(fn func(ctx context.Context, h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		fn(ctx, h)
		return h.err
	})
}

// LiveUpdate reports whether links and forms swap the table in place with
// htmx instead of navigating.
func (t *Table) LiveUpdate() bool { return t.config.Bool("live_update") }

// ContainerID is the DOM id of the table's outer element.
func (t *Table) ContainerID() string { return t.IDFor("rapid_table") }

// linkAttrs returns the attributes of a navigation link to href.
func (t *Table) linkAttrs(href string, extra templ.Attributes) templ.Attributes {
	a := templ.Attributes{"href": href}
	if t.LiveUpdate() {
		a["hx-get"] = href
		a["hx-target"] = "#" + t.ContainerID()
		a["hx-swap"] = "outerHTML"
		a["hx-push-url"] = "true"
	}
	for k, v := range extra {
		a[k] = v
	}
	return a
}

// formAttrs returns the attributes of a GET form submitting to the table.
func (t *Table) formAttrs(extra templ.Attributes) templ.Attributes {
	a := templ.Attributes{"method": "get", "action": t.Action()}
	if t.LiveUpdate() {
		a["hx-get"] = t.Action()
		a["hx-target"] = "#" + t.ContainerID()
		a["hx-swap"] = "outerHTML"
		a["hx-push-url"] = "true"
	}
	for k, v := range extra {
		a[k] = v
	}
	return a
}

// HiddenFields renders the registered parameters as hidden inputs so a form
// submission keeps them. Names in except are left out.
func (t *Table) HiddenFields(overrides map[string]any, except ...string) templ.Component {
	return render(func(_ context.Context, h *htmlWriter) {
		t.hiddenFields(h, overrides, except...)
	})
}

func (t *Table) hiddenFields(h *htmlWriter, overrides map[string]any, except ...string) {
	params := t.RegisteredParams(overrides)
	keys := make([]string, 0, len(params))
	for k := range params {
		if !slices.Contains(except, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range params[k] {
			h.open("input", templ.Attributes{"type": "hidden", "name": t.ParamName(k), "value": v})
		}
	}
}

// PaginationLinks renders first/prev, a window of page numbers, and
// next/last. It renders nothing when there is a single page.
func (t *Table) PaginationLinks() templ.Component {
	return render(func(ctx context.Context, h *htmlWriter) {
		if t.SkipPagination() {
			return
		}
		total, err := t.TotalPages(ctx)
		if err != nil {
			h.err = err
			return
		}
		if total <= 1 {
			return
		}
		current, err := t.CurrentPage(ctx)
		if err != nil {
			h.err = err
			return
		}

		pageParam := t.config.String("page_param")
		link := func(page int, label string, extra templ.Attributes) {
			h.open("li", templ.Attributes{"class": "rapid-table-page"})
			h.element("a", t.linkAttrs(t.Path(map[string]any{pageParam: page}), extra), label)
			h.close("li")
		}
		gap := func() {
			h.element("li", templ.Attributes{"class": "rapid-table-page rapid-table-gap"}, t.T("pagination.gap"))
		}

		h.open("nav", templ.Attributes{"class": "rapid-table-pagination", "aria-label": "pagination"})
		h.open("ul", nil)
		if current > 1 {
			link(1, t.T("pagination.first"), templ.Attributes{"rel": "first"})
			link(current-1, t.T("pagination.prev"), templ.Attributes{"rel": "prev"})
		}
		start, end := PageRange(current, total)
		if start > 1 {
			gap()
		}
		for p := start; p <= end; p++ {
			if p == current {
				h.element("li", templ.Attributes{"class": "rapid-table-page current", "aria-current": "page"}, strconv.Itoa(p))
				continue
			}
			link(p, strconv.Itoa(p), nil)
		}
		if end < total {
			gap()
		}
		if current < total {
			link(current+1, t.T("pagination.next"), templ.Attributes{"rel": "next"})
			link(total, t.T("pagination.last"), templ.Attributes{"rel": "last"})
		}
		h.close("ul")
		h.close("nav")
	})
}

// PerPageSelect renders a form to change the page size. Changing it resets
// the page to 1. It renders nothing when every record fits on the
// smallest page.
func (t *Table) PerPageSelect() templ.Component {
	return render(func(ctx context.Context, h *htmlWriter) {
		one, err := t.OnlyEverOnePage(ctx)
		if err != nil {
			h.err = err
			return
		}
		if one {
			return
		}

		perPageParam := t.config.String("per_page_param")
		extra := templ.Attributes{"class": "rapid-table-per-page"}
		if t.LiveUpdate() {
			extra["hx-trigger"] = "change"
		}
		h.open("form", t.formAttrs(extra))
		t.hiddenFields(h, map[string]any{t.config.String("page_param"): nil}, perPageParam)
		h.element("label", templ.Attributes{"for": t.IDFor("per_page")}, t.T("pagination.per_page"))
		h.open("select", templ.Attributes{"id": t.IDFor("per_page"), "name": t.ParamName(perPageParam)})
		for _, n := range t.AvailablePerPages() {
			s := strconv.Itoa(n)
			h.element("option", templ.Attributes{"value": s, "selected": n == t.PerPage()}, s)
		}
		h.close("select")
		h.open("noscript", nil)
		h.element("button", templ.Attributes{"type": "submit"}, t.T("pagination.apply"))
		h.close("noscript")
		h.close("form")
	})
}

// ColumnHeader renders the header label of col, as a sort link when the
// column is sortable.
func (t *Table) ColumnHeader(col Column) templ.Component {
	return render(func(_ context.Context, h *htmlWriter) {
		label := t.ColumnLabel(col)
		if !t.def.Has("sorting") || t.SkipSorting() || !col.Sortable() {
			h.element("span", nil, label)
			return
		}

		indicator := ""
		if active, ok := t.SortColumn(); ok && active.ID() == col.ID() {
			indicator = "▲"
			if t.SortOrder() == SortDesc {
				indicator = "▼"
			}
		}
		h.open("a", t.linkAttrs(t.SortLink(col), templ.Attributes{"class": "rapid-table-sort-link"}))
		h.text(label)
		if indicator != "" {
			h.raw(" ")
			h.element("span", templ.Attributes{"class": "rapid-table-sort-order"}, indicator)
		}
		h.close("a")
	})
}

// SearchForm renders the search box. Submitting a query resets the page.
func (t *Table) SearchForm() templ.Component {
	return render(func(_ context.Context, h *htmlWriter) {
		overrides := map[string]any{}
		if t.def.Has("pagination") {
			overrides[t.config.String("page_param")] = nil
		}
		h.open("form", t.formAttrs(templ.Attributes{"class": "rapid-table-search", "role": "search"}))
		t.hiddenFields(h, overrides, t.SearchParam())
		h.open("input", templ.Attributes{
			"type":        "search",
			"id":          t.IDFor("search"),
			"name":        t.ParamName(t.SearchParam()),
			"value":       t.SearchQuery(),
			"placeholder": t.T("search.placeholder"),
		})
		h.element("button", templ.Attributes{"type": "submit"}, t.T("search.button"))
		h.close("form")
	})
}

// ExportLinks renders one download link per enabled export format.
func (t *Table) ExportLinks() templ.Component {
	return render(func(_ context.Context, h *htmlWriter) {
		formats := t.ExportFormats()
		if len(formats) == 0 {
			return
		}
		h.open("div", templ.Attributes{"class": "rapid-table-export"})
		h.element("span", nil, t.T("export.label"))
		for _, f := range formats {
			h.raw(" ")
			h.element("a", templ.Attributes{
				"href":     t.PathFor("export", map[string]any{"format": f}),
				"download": true,
				"class":    "rapid-table-export-link",
			}, strings.ToUpper(f))
		}
		h.close("div")
	})
}

// BulkActionsFormID is the DOM id of the bulk action form. Row checkboxes
// reference it with the form attribute.
func (t *Table) BulkActionsFormID() string { return t.IDFor("bulk_actions_form") }

// BulkActionControls renders the bulk action select and its submit button.
func (t *Table) BulkActionControls() templ.Component {
	return render(func(_ context.Context, h *htmlWriter) {
		attrs := templ.Attributes{
			"id":     t.BulkActionsFormID(),
			"class":  "rapid-table-bulk-actions",
			"method": "post",
			"action": t.PathFor("bulk_action", nil),
		}
		if t.LiveUpdate() {
			attrs["hx-post"] = attrs["action"]
			attrs["hx-target"] = "#" + t.ContainerID()
			attrs["hx-swap"] = "outerHTML"
		}
		h.open("form", attrs)
		h.open("select", templ.Attributes{
			"name":     t.ParamName(t.config.String("bulk_action_param")),
			"required": true,
		})
		h.element("option", templ.Attributes{"value": ""}, t.T("bulk_actions.placeholder"))
		for _, a := range t.BulkActions() {
			h.element("option", templ.Attributes{"value": a.ID()}, t.BulkActionLabel(a))
		}
		h.close("select")
		h.element("button", templ.Attributes{"type": "submit", "title": t.T("bulk_actions.button_title")}, t.T("bulk_actions.button"))
		h.close("form")
	})
}

// SelectAllCheckbox renders the header checkbox toggling every row.
func (t *Table) SelectAllCheckbox() templ.Component {
	return render(func(_ context.Context, h *htmlWriter) {
		h.open("input", templ.Attributes{
			"type":                        "checkbox",
			"class":                       "rapid-table-select-all",
			"aria-label":                  t.T("bulk_actions.select_all"),
			"data-rapid-table-select-all": t.BulkActionsFormID(),
		})
	})
}

// RowCheckbox renders the selection checkbox of record.
func (t *Table) RowCheckbox(record any) templ.Component {
	return render(func(_ context.Context, h *htmlWriter) {
		id, err := t.RecordID(record)
		if err != nil {
			h.err = err
			return
		}
		h.open("input", templ.Attributes{
			"type":       "checkbox",
			"class":      "rapid-table-select",
			"form":       t.BulkActionsFormID(),
			"name":       t.ParamName(t.BulkActionsParam()) + "[]",
			"value":      id,
			"checked":    slices.Contains(t.SelectedRecordIDs(), id),
			"aria-label": t.T("bulk_actions.select"),
		})
	})
}

// Cell renders one cell value. Components render as is; anything else is
// escaped text.
func (t *Table) Cell(record any, col Column) templ.Component {
	return render(func(ctx context.Context, h *htmlWriter) {
		v, err := t.ColumnCell(ctx, record, col)
		if err != nil {
			h.err = err
			return
		}
		if c, ok := v.(templ.Component); ok {
			h.component(ctx, c)
			return
		}
		h.text(CellText(v))
	})
}

// Component renders the whole table: the toolbar of feature fragments, the
// header, the rows of the current page, and the pagination footer.
func (t *Table) Component() templ.Component {
	return render(func(ctx context.Context, h *htmlWriter) {
		bulk := t.def.Has("bulk_actions") && !t.SkipBulkActions()

		h.open("div", templ.Attributes{
			"id":               t.ContainerID(),
			"class":            "rapid-table",
			"data-rapid-table": t.Name(),
		})

		h.open("div", templ.Attributes{"class": "rapid-table-toolbar"})
		for _, name := range []string{"search", "export", "bulk_actions"} {
			if f, ok := t.fragmenter(name); ok {
				h.component(ctx, f.Fragment(t))
			}
		}
		h.close("div")

		cols := t.Columns()
		h.open("table", templ.Attributes{"class": "rapid-table-table"})
		h.open("thead", nil)
		h.open("tr", nil)
		if bulk {
			h.open("th", templ.Attributes{"class": "rapid-table-select-column"})
			h.component(ctx, t.SelectAllCheckbox())
			h.close("th")
		}
		for _, col := range cols {
			attrs := templ.Attributes{"data-column": col.ID()}
			if active, ok := t.SortColumn(); ok && t.def.Has("sorting") && active.ID() == col.ID() {
				attrs["aria-sort"] = map[string]string{SortAsc: "ascending", SortDesc: "descending"}[t.SortOrder()]
			}
			h.open("th", attrs)
			h.component(ctx, t.ColumnHeader(col))
			h.close("th")
		}
		h.close("tr")
		h.close("thead")

		h.open("tbody", nil)
		rows := 0
		if h.err == nil {
			h.err = t.EachRecord(ctx, 0, false, func(record any) error {
				rows++
				h.open("tr", nil)
				if bulk {
					h.open("td", templ.Attributes{"class": "rapid-table-select-column"})
					h.component(ctx, t.RowCheckbox(record))
					h.close("td")
				}
				for _, col := range cols {
					h.open("td", templ.Attributes{"data-column": col.ID()})
					h.component(ctx, t.Cell(record, col))
					h.close("td")
				}
				h.close("tr")
				return h.err
			})
		}
		if rows == 0 {
			span := len(cols)
			if bulk {
				span++
			}
			h.open("tr", templ.Attributes{"class": "rapid-table-empty"})
			h.element("td", templ.Attributes{"colspan": span}, t.T("empty_message"))
			h.close("tr")
		}
		h.close("tbody")
		h.close("table")

		if f, ok := t.fragmenter("pagination"); ok {
			h.open("div", templ.Attributes{"class": "rapid-table-footer"})
			h.component(ctx, f.Fragment(t))
			h.close("div")
		}
		h.close("div")
	})
}

func (t *Table) fragmenter(name string) (Fragmenter, bool) {
	for _, f := range t.def.Features() {
		if f.Name() != name {
			continue
		}
		fr, ok := f.(Fragmenter)
		return fr, ok
	}
	return nil, false
}
