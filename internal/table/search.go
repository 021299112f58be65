package table

import "github.com/a-h/templ"

type searchFeature struct{}

// Search filters the records by a free-text query. The "search" filter must
// be provided by the adapter.
func Search() Feature { return searchFeature{} }

func (searchFeature) Name() string { return "search" }

func (searchFeature) Register(d *Definition) error {
	if _, err := d.ExtendExtendable(KindConfig, func(s *Schema) {
		s.Field("skip_search", nil).Field("search_param", nil)
	}); err != nil {
		return err
	}

	d.SetDefault("skip_search", false).SetDefault("search_param", "q")

	if err := d.RegisterInitializer("search", func(t *Table, c *Config) error {
		if err := c.SetDefault("search_param", "q"); err != nil {
			return err
		}
		t.RegisterParamName(c.String("search_param"))
		return nil
	}); err != nil {
		return err
	}
	if err := d.RegisterInitializer("search_dsl", func(t *Table, c *Config) error {
		if err := c.SetClassDefault(t.def, "skip_search"); err != nil {
			return err
		}
		return c.SetClassDefault(t.def, "search_param")
	}, Before("search")); err != nil {
		return err
	}
	return d.RegisterFilter("search", abstractFilter("search"), Unless((*Table).SkipSearch))
}

func (searchFeature) Fragment(t *Table) templ.Component {
	if t.SkipSearch() {
		return templ.NopComponent
	}
	return t.SearchForm()
}

// SkipSearch reports whether search is disabled.
func (t *Table) SkipSearch() bool { return t.config.Bool("skip_search") }

// SearchParam returns the un-namespaced search parameter name.
func (t *Table) SearchParam() string { return t.config.String("search_param") }

// SearchQuery returns the search text of the request, or "".
func (t *Table) SearchQuery() string { return t.Param(t.SearchParam()) }
