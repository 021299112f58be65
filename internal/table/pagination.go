package table

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/a-h/templ"
)

// DefaultAvailablePerPages is used when neither the instance nor the table
// type configures available_per_pages.
var DefaultAvailablePerPages = []int{25, 50, 100}

type paginationFeature struct{}

// Pagination splits the records into pages. The "pagination" filter must be
// provided by the adapter.
func Pagination() Feature { return paginationFeature{} }

func (paginationFeature) Name() string { return "pagination" }

func (paginationFeature) Register(d *Definition) error {
	if _, err := d.ExtendExtendable(KindConfig, func(s *Schema) {
		s.Field("skip_pagination", nil).
			Field("per_page", nil).
			Field("available_per_pages", nil).
			Field("page_param", nil).
			Field("per_page_param", nil)
	}); err != nil {
		return err
	}

	d.SetDefault("skip_pagination", false).
		SetDefault("page_param", "page").
		SetDefault("per_page_param", "per_page")

	if err := d.RegisterInitializer("pagination", initPagination); err != nil {
		return err
	}
	if err := d.RegisterInitializer("pagination_dsl", func(t *Table, c *Config) error {
		for _, name := range []string{"skip_pagination", "per_page", "available_per_pages", "page_param", "per_page_param"} {
			if err := c.SetClassDefault(t.def, name); err != nil {
				return err
			}
		}
		return nil
	}, Before("pagination")); err != nil {
		return err
	}
	return d.RegisterFilter("pagination", abstractFilter("pagination"), Unless((*Table).SkipPagination))
}

func (paginationFeature) Fragment(t *Table) templ.Component {
	return templ.Join(t.PerPageSelect(), t.PaginationLinks())
}

func initPagination(t *Table, c *Config) error {
	if err := errors.Join(
		c.SetDefault("page_param", "page"),
		c.SetDefault("per_page_param", "per_page"),
		c.SetDefault("available_per_pages", slices.Clone(DefaultAvailablePerPages)),
	); err != nil {
		return err
	}

	available := c.Ints("available_per_pages")
	if len(available) == 0 {
		return fmt.Errorf("%w: available_per_pages must list at least one page size", ErrConfiguration)
	}
	for _, n := range available {
		if n < 1 {
			return fmt.Errorf("%w: available_per_pages contains %d", ErrConfiguration, n)
		}
	}

	t.RegisterParamName(c.String("page_param"), c.String("per_page_param"))
	return nil
}

// SkipPagination reports whether pagination is disabled.
func (t *Table) SkipPagination() bool { return t.config.Bool("skip_pagination") }

// AvailablePerPages returns the selectable page sizes.
func (t *Table) AvailablePerPages() []int { return t.config.Ints("available_per_pages") }

// PerPage returns the page size: the per page parameter, then the
// configured per_page, replaced by the first available size when the result
// is not one of the available sizes. It is computed once.
func (t *Table) PerPage() int {
	if t.perPageSet {
		return t.perPage
	}

	available := t.AvailablePerPages()
	param := t.Param(t.config.String("per_page_param"))
	perPage, ok := toInt(param)
	if param == "" || !ok {
		perPage = t.config.Int("per_page")
	}
	if !slices.Contains(available, perPage) && len(available) > 0 {
		perPage = available[0]
	}

	t.perPage, t.perPageSet = perPage, true
	return perPage
}

// Page returns the requested page, 1 when absent, unparsable or below 1.
// It is computed once.
func (t *Table) Page() int {
	if t.pageSet {
		return t.page
	}

	page, err := strconv.Atoi(t.Param(t.config.String("page_param")))
	if err != nil || page < 1 {
		page = 1
	}

	t.page, t.pageSet = page, true
	return page
}

// Offset returns the index of the first record on the current page.
func (t *Table) Offset() int { return (t.Page() - 1) * t.PerPage() }

// OnlyEverOnePage reports whether pagination controls are pointless because
// every record fits on the smallest page.
func (t *Table) OnlyEverOnePage(ctx context.Context) (bool, error) {
	if t.SkipPagination() {
		return true, nil
	}
	total, err := t.TotalRecordsCount(ctx)
	if err != nil {
		return false, err
	}
	available := t.AvailablePerPages()
	return len(available) > 0 && total <= available[0], nil
}

// PageRange returns the page numbers shown around current: up to four
// siblings on each side, clamped to [1, total].
func PageRange(current, total int) (start, end int) {
	const siblings = 4
	start = max(current-siblings, 1)
	end = min(current+siblings, total)
	return start, end
}
