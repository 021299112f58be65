package core

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/JonMunkholm/rapidtable/internal/logging"
	"github.com/JonMunkholm/rapidtable/internal/table"
)

// QueryTimeout bounds rendering one table page.
var QueryTimeout = 30 * time.Second

// ExportTimeout bounds one export.
var ExportTimeout = 10 * time.Minute

// BulkActionTimeout bounds one bulk action run.
var BulkActionTimeout = 2 * time.Minute

// ServiceOptions are the instance defaults the service applies to every
// table it opens.
type ServiceOptions struct {
	// DefaultPerPage is used by paginated tables whose type sets no per_page.
	DefaultPerPage int
	// LiveUpdate turns on partial page updates for every table.
	LiveUpdate bool
	// BasePath prefixes table paths; a table's action is BasePath/<key>.
	BasePath string
	// QueryTimeout and ExportTimeout override the package timeouts when
	// positive.
	QueryTimeout  time.Duration
	ExportTimeout time.Duration
}

// Service opens catalog tables for requests.
type Service struct {
	catalog *Catalog
	limiter *ExportLimiter
	opts    ServiceOptions
}

// NewService creates a Service over catalog. A nil limiter allows the
// default number of concurrent exports.
func NewService(catalog *Catalog, limiter *ExportLimiter, opts ServiceOptions) *Service {
	if limiter == nil {
		limiter = NewExportLimiter(0, 0)
	}
	if opts.BasePath == "" {
		opts.BasePath = "/tables"
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = QueryTimeout
	}
	if opts.ExportTimeout <= 0 {
		opts.ExportTimeout = ExportTimeout
	}
	return &Service{catalog: catalog, limiter: limiter, opts: opts}
}

// Catalog returns the served catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Limiter returns the export limiter.
func (s *Service) Limiter() *ExportLimiter { return s.limiter }

// ListTables describes every served table.
func (s *Service) ListTables() []TableInfo { return s.catalog.Info() }

// Open builds the table key for one request with its query parameters.
func (s *Service) Open(ctx context.Context, key string, params url.Values) (*table.Table, error) {
	e, err := s.catalog.Get(key)
	if err != nil {
		return nil, err
	}
	if e.Source == nil {
		return nil, fmt.Errorf("%w: %s has no record source", table.ErrConfiguration, key)
	}

	opts := table.Options{}
	for k, v := range e.Options {
		opts[k] = v
	}
	opts["params"] = params
	opts["action"] = s.TablePath(key)
	if s.opts.LiveUpdate {
		opts["live_update"] = true
	}
	if s.opts.DefaultPerPage > 0 && e.Definition.Has("pagination") {
		if _, ok := e.Definition.Default("per_page"); !ok {
			if _, set := opts["per_page"]; !set {
				opts["per_page"] = s.opts.DefaultPerPage
			}
		}
	}

	t, err := e.Definition.New(e.Source, opts)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", key, err)
	}
	logging.FromContext(ctx).Debug("table opened", "table", key, "instance", t.ID())
	return t, nil
}

// BasePath returns the URL prefix tables are served under.
func (s *Service) BasePath() string { return s.opts.BasePath }

// TablePath returns the URL path a table is served at.
func (s *Service) TablePath(key string) string {
	return s.opts.BasePath + "/" + url.PathEscape(key)
}

// ReturnPath returns the table URL carrying the page, sort and search
// found in params, falling back to the bare table path when key cannot be
// opened.
func (s *Service) ReturnPath(ctx context.Context, key string, params url.Values) string {
	t, err := s.Open(ctx, key, params)
	if err != nil {
		return s.TablePath(key)
	}
	return t.Path(nil)
}

// Render writes the markup of t to w, loading at most one page of records
// within the query timeout.
func (s *Service) Render(ctx context.Context, t *table.Table, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.QueryTimeout)
	defer cancel()
	return t.Component().Render(ctx, w)
}

// PrepareExport opens key and validates the export request without
// writing anything, so a handler can reject it before sending headers.
func (s *Service) PrepareExport(ctx context.Context, key string, params url.Values, format string) (*table.Table, error) {
	t, err := s.Open(ctx, key, params)
	if err != nil {
		return nil, err
	}
	if !t.Definition().Has("export") || t.SkipExport() {
		return nil, fmt.Errorf("%w: %s", table.ErrExportDisabled, key)
	}
	for _, f := range t.ExportFormats() {
		if f == format {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", table.ErrUnsupportedFormat, format)
}

// Export streams t in format to w once an export slot is free. Filters
// apply; pagination does not.
func (s *Service) Export(ctx context.Context, t *table.Table, format string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ExportTimeout)
	defer cancel()

	return s.limiter.Run(ctx, func(ctx context.Context) error {
		return t.Export(ctx, format, w)
	})
}

// BulkAction opens key and runs the bulk action named in params.
func (s *Service) BulkAction(ctx context.Context, key string, params url.Values) (table.BulkActionResult, error) {
	t, err := s.Open(ctx, key, params)
	if err != nil {
		return table.BulkActionResult{}, err
	}
	if !t.Definition().Has("bulk_actions") {
		return table.BulkActionResult{}, fmt.Errorf("%w: %s has no bulk actions", table.ErrConfiguration, key)
	}

	ctx, cancel := context.WithTimeout(ctx, BulkActionTimeout)
	defer cancel()

	if r, ok := RequesterFromContext(ctx); ok {
		logging.FromContext(ctx).Info("bulk action requested", "table", key, "ip", r.IP, "user_agent", r.UserAgent)
	}
	return t.PerformBulkAction(ctx)
}
