package web

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/JonMunkholm/rapidtable/internal/core"
	"github.com/JonMunkholm/rapidtable/internal/logging"
	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Tables  int                      `json:"tables"`
	Exports core.ExportLimiterStatus `json:"exports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Tables:  s.service.Catalog().Len(),
		Exports: s.service.Limiter().Status(),
	})
}

func (s *Server) handleAssets() http.Handler {
	sub, err := fs.Sub(assetFiles, "assets")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/assets/", http.FileServer(http.FS(sub)))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "Tables", tableIndex(s.service.ListTables(), s.service.TablePath))
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListTables())
}

// handleTable renders one table page. htmx requests from the table's own
// links and forms get only the table markup.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "tableKey")

	entry, err := s.service.Catalog().Get(key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	t, err := s.service.Open(r.Context(), key, r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.service.Render(r.Context(), t, &buf); err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) && r.Header.Get("HX-Boosted") != "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Vary", "HX-Request")
		buf.WriteTo(w)
		return
	}
	s.renderPage(w, r, entry.Label, templ.Raw(buf.String()))
}

// handleExport streams the filtered table as a download. Validation happens
// before any header is sent so a rejected export is a normal error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "tableKey")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = table.FormatCSV
	}

	t, err := s.service.PrepareExport(r.Context(), key, r.URL.Query(), format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	cw := &countingWriter{w: w}
	w.Header().Set("Content-Type", table.ExportContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, key, format))

	log := logging.WithFields(r.Context(), "table", key, "format", format)
	if err := s.service.Export(r.Context(), t, format, cw); err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			s.respondError(w, r, err)
			return
		}
		// The body is partly sent; the client sees a truncated download.
		log.Error("export aborted", "error", err, "bytes", cw.n)
		return
	}
	log.Info("export finished", "bytes", cw.n)
}

// handleBulkAction runs the posted bulk action. htmx callers get the
// refreshed table plus a flash message, API callers the JSON result, and
// plain form posts a redirect back to the table.
func (s *Server) handleBulkAction(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "tableKey")

	if err := r.ParseForm(); err != nil {
		s.respondErrorStatus(w, r, err, http.StatusBadRequest)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.BulkAction(ctx, key, r.Form)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	switch {
	case isHTMX(r):
		t, err := s.service.Open(ctx, key, currentParams(r))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		var buf bytes.Buffer
		if err := s.service.Render(ctx, t, &buf); err != nil {
			s.respondError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		buf.WriteTo(w)
		if err := oobFlash(noticeAlert(bulkMessage(res))).Render(ctx, w); err != nil {
			logging.FromContext(ctx).Error("render bulk action notice", "table", key, "error", err)
		}
	case wantsJSON(r):
		writeJSON(w, http.StatusOK, res)
	default:
		http.Redirect(w, r, s.service.ReturnPath(ctx, key, r.Form), http.StatusSeeOther)
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, title string, body templ.Component) {
	var buf bytes.Buffer
	if err := page(title, body).Render(r.Context(), &buf); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// currentParams returns the query of the page an htmx request came from,
// so a refreshed table keeps its page, sort and search.
func currentParams(r *http.Request) url.Values {
	u, err := url.Parse(r.Header.Get("HX-Current-URL"))
	if err != nil {
		return nil
	}
	return u.Query()
}

func bulkMessage(res table.BulkActionResult) string {
	if res.Message != "" {
		return res.Message
	}
	return fmt.Sprintf("%d records affected", res.Affected)
}

// countingWriter records how many bytes reached the client.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
