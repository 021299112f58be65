package web

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/rapidtable/internal/config"
	"github.com/JonMunkholm/rapidtable/internal/core"
	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second, ShutdownTimeout: time.Second},
		Security: config.SecurityConfig{
			TrustedProxies: []string{"127.0.0.1"},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *core.DemoStore) {
	t.Helper()
	return newTestServerWithOptions(t, cfg, core.ServiceOptions{
		DefaultPerPage: 25,
		LiveUpdate:     true,
	})
}

func newTestServerWithOptions(t *testing.T, cfg *config.Config, opts core.ServiceOptions) (*Server, *core.DemoStore) {
	t.Helper()
	store := core.NewDemoStore(30)
	catalog := core.NewCatalog()
	core.RegisterDemo(catalog, store)
	svc := core.NewService(catalog, core.NewExportLimiter(2, time.Second), opts)
	s, err := NewServer(svc, cfg)
	require.NoError(t, err)
	return s, store
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_InvalidProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Security.TrustedProxies = []string{"nonsense"}
	_, err := NewServer(core.NewService(core.NewCatalog(), nil, core.ServiceOptions{}), cfg)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Tables)
	assert.Equal(t, 2, body.Exports.MaxConcurrent)
}

func TestListTables(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var tables []core.TableInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "accounts", tables[0].Key)
	assert.Contains(t, tables[0].Features, "bulk_actions")
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<a href="/tables/active_accounts">Active accounts</a>`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAssets(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/assets/rapid_table.js", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data-rapid-table-select-all")
}

func TestTablePage(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/tables/accounts?page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "<title>Accounts</title>")
	assert.Contains(t, body, "Account 026")
	assert.NotContains(t, body, "Account 025<")
	assert.Equal(t, 5, strings.Count(body, `class="rapid-table-select"`))
}

func TestTablePage_HTMXFragment(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/tables/accounts?q=enterprise", nil)
	req.Header.Set("HX-Request", "true")
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, `<div`), "fragment should start with the table container")
	assert.NotContains(t, body, "<html")
	assert.Contains(t, body, "hx-get")
}

func TestTablePage_NotFound(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/tables/missing", nil)
	req.Header.Set("Accept", "application/json")
	rec := serve(s, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "LKP001", body.Code)
}

func TestTablePage_HTMXError(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/tables/missing", nil)
	req.Header.Set("HX-Request", "true")
	rec := serve(s, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "#flash", rec.Header().Get("HX-Retarget"))
	assert.Contains(t, rec.Body.String(), "flash-error")
}

func TestExport(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/tables/accounts/export?format=csv&q=enterprise&page=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, table.ExportContentType(table.FormatCSV), rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="accounts.csv"`, rec.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 11, "header plus every enterprise account, ignoring the page")
}

func TestExport_Rejected(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/tables/accounts/export?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "EXP002")
}

func TestBulkAction_JSON(t *testing.T) {
	s, store := newTestServer(t, testConfig())

	form := url.Values{"bulk_action": {"delete"}, "ids[]": {"1", "2"}}
	req := httptest.NewRequest(http.MethodPost, "/tables/accounts/bulk_action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res table.BulkActionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Affected)
	assert.Equal(t, "delete", res.Action)

	all, err := store.Accounts(req.Context())
	require.NoError(t, err)
	assert.Len(t, all, 28)
}

func TestBulkAction_Redirect(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	form := url.Values{"bulk_action": {"deactivate"}, "ids[]": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/tables/accounts/bulk_action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(s, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/tables/accounts", rec.Header().Get("Location"))
}

func TestBulkAction_RedirectKeepsTableState(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	form := url.Values{
		"bulk_action": {"deactivate"}, "ids[]": {"3"},
		"page": {"2"}, "sort": {"name"}, "dir": {"desc"}, "q": {"enterprise"},
	}
	req := httptest.NewRequest(http.MethodPost, "/tables/accounts/bulk_action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(s, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/tables/accounts?dir=desc&page=2&q=enterprise&sort=name", rec.Header().Get("Location"))
}

func TestBasePath(t *testing.T) {
	s, _ := newTestServerWithOptions(t, testConfig(), core.ServiceOptions{
		BasePath:       "/admin/tables",
		DefaultPerPage: 25,
	})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), `<a href="/admin/tables/accounts">Accounts</a>`)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/admin/tables/accounts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, serve(s, httptest.NewRequest(http.MethodGet, "/tables/accounts", nil)).Code)

	form := url.Values{"bulk_action": {"deactivate"}, "ids[]": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/tables/accounts/bulk_action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = serve(s, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin/tables/accounts", rec.Header().Get("Location"))
}

func TestBulkAction_HTMX(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	form := url.Values{"bulk_action": {"deactivate"}, "ids[]": {"4", "5"}}
	req := httptest.NewRequest(http.MethodPost, "/tables/accounts/bulk_action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Current-URL", "http://example.com/tables/accounts?page=2")
	rec := serve(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Account 026")
	assert.Contains(t, body, `hx-swap-oob="innerHTML"`)
	assert.Contains(t, body, "2 accounts deactivated")
}

func TestBulkAction_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s, _ := newTestServer(t, cfg)

	form := url.Values{"bulk_action": {"deactivate"}, "ids[]": {"1"}}
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/tables/accounts/bulk_action", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req
	}

	assert.Equal(t, http.StatusUnauthorized, serve(s, newReq()).Code)

	req := newReq()
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, serve(s, req).Code)

	// reads stay open
	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/tables/accounts", nil)).Code)
}

func TestBulkAction_Unknown(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	form := url.Values{"bulk_action": {"explode"}}
	req := httptest.NewRequest(http.MethodPost, "/tables/accounts/bulk_action", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := serve(s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "LKP004")
}
