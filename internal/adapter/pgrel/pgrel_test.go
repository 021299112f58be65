package pgrel_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/rapidtable/internal/adapter/pgrel"
	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	sql  string
	args []any
}

// fakeDB answers queries from an in-memory result set. Select queries are
// served by rowsFor; QueryRow always scans count.
type fakeDB struct {
	columns []string
	rowsFor func(sql string, args []any) [][]any
	count   int64
	calls   []call
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql, args})
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	f.calls = append(f.calls, call{sql, args})
	return &fakeRows{columns: f.columns, rows: f.rowsFor(sql, args), pos: -1}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	f.calls = append(f.calls, call{sql, args})
	return countRow(f.count)
}

type countRow int64

func (c countRow) Scan(dest ...any) error {
	p, ok := dest[0].(*int64)
	if !ok {
		return errors.New("count scans into *int64")
	}
	*p = int64(c)
	return nil
}

type fakeRows struct {
	columns []string
	rows    [][]any
	pos     int
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Next() bool                    { r.pos++; return r.pos < len(r.rows) }
func (r *fakeRows) Scan(...any) error             { return errors.New("not supported") }
func (r *fakeRows) Values() ([]any, error)        { return r.rows[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

// userRows serves ids 1..n honoring the LIMIT and OFFSET of the query.
func userRows(n int) func(sql string, args []any) [][]any {
	return func(sql string, args []any) [][]any {
		var all [][]any
		for i := 1; i <= n; i++ {
			all = append(all, []any{int64(i), "User"})
		}
		limit, offset, i := len(all), 0, len(args)
		if strings.Contains(sql, " OFFSET $") {
			i--
			offset = args[i].(int)
		}
		if strings.Contains(sql, " LIMIT $") {
			i--
			limit = args[i].(int)
		}
		start := min(offset, len(all))
		return all[start:min(start+limit, len(all))]
	}
}

func usersDef(db pgrel.DBTX) *table.Definition {
	return table.MustDefine("pg_users",
		table.Columns(), table.Search(), table.Sorting(), table.Pagination(), pgrel.Paged(db),
	).
		Column("id", table.Attrs{"sortable": true}).
		Column("name", table.Attrs{"searchable": true, "sortable": true, "db_column": "full_name", "nulls_last": true})
}

func TestAdapter_FiltersBuildOneQuery(t *testing.T) {
	db := &fakeDB{}
	tbl, err := usersDef(db).New(pgrel.From("users"), table.Options{
		"params": url.Values{"q": {"ann"}, "sort": {"name"}, "dir": {"desc"}, "page": {"3"}},
	})
	require.NoError(t, err)

	scope, err := tbl.Records(t.Context())
	require.NoError(t, err)
	sql, args, err := scope.(*pgrel.Relation).SQL()
	require.NoError(t, err)

	assert.Equal(t, `SELECT * FROM "users" WHERE ("full_name"::text ILIKE $1) ORDER BY "full_name" DESC NULLS LAST LIMIT $2 OFFSET $3`, sql)
	assert.Equal(t, []any{"%ann%", 25, 50}, args)
	assert.Empty(t, db.calls, "filters do not hit the database")
}

func TestAdapter_RegisterWithColumnsAndSearch(t *testing.T) {
	done := make(chan *table.Definition, 1)
	go func() { done <- usersDef(&fakeDB{}) }()

	select {
	case d := <-done:
		col, err := d.FindColumn("name")
		require.NoError(t, err)
		assert.True(t, col.Bool("searchable"))
		assert.Equal(t, "full_name", pgrel.DBColumn(col))
	case <-time.After(5 * time.Second):
		t.Fatal("defining a searchable pgrel table did not return")
	}
}

func TestAdapter_SearchDisabledWithoutSearchableColumns(t *testing.T) {
	d := table.MustDefine("pg_plain", table.Columns(), table.Search(), pgrel.Adapter(&fakeDB{})).
		Column("id", nil)
	tbl, err := d.New(pgrel.From("users"), table.Options{"params": url.Values{"q": {"x"}}})
	require.NoError(t, err)

	assert.True(t, tbl.SkipSearch())
	scope, err := tbl.Records(t.Context())
	require.NoError(t, err)
	sql, _, err := scope.(*pgrel.Relation).SQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users"`, sql)
}

func TestAdapter_UnpagedAdapterLeavesPaginationAbstract(t *testing.T) {
	d := table.MustDefine("pg_unpaged", table.Columns(), table.Pagination(), pgrel.Adapter(&fakeDB{})).
		Column("id", nil)
	tbl, err := d.New(pgrel.From("users"), nil)
	require.NoError(t, err)

	_, err = tbl.Records(t.Context())
	assert.True(t, table.IsExtensionRequired(err))
}

func TestAdapter_RejectsOtherScopes(t *testing.T) {
	tbl, err := usersDef(&fakeDB{}).New([]int{1, 2}, nil)
	require.NoError(t, err)

	_, err = tbl.Records(t.Context())
	assert.ErrorIs(t, err, table.ErrIncompatibleValue)
}

func TestAdapter_EachRecordBatches(t *testing.T) {
	db := &fakeDB{columns: []string{"id", "full_name"}, rowsFor: userRows(5)}
	tbl, err := usersDef(db).New(pgrel.From("users"), table.Options{
		"params": url.Values{"page": {"2"}},
	})
	require.NoError(t, err)

	var ids []string
	err = tbl.EachRecord(t.Context(), 2, true, func(r any) error {
		id, err := tbl.RecordID(r)
		ids = append(ids, id)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
	require.Len(t, db.calls, 3)
	assert.Equal(t, []any{2, 4}, db.calls[2].args, "third batch starts at row 4")
	assert.NotContains(t, db.calls[0].sql, "$3", "page offset is dropped when skipping pagination")
}

func TestAdapter_EachRecordOrdersBatchesByPrimaryKey(t *testing.T) {
	tests := []struct {
		name   string
		params url.Values
		sql    string
	}{
		{
			name: "unsorted",
			sql:  `SELECT * FROM "users" ORDER BY "id" ASC LIMIT $1`,
		},
		{
			name:   "sorted by another column",
			params: url.Values{"sort": {"name"}},
			sql:    `SELECT * FROM "users" ORDER BY "full_name" ASC NULLS LAST, "id" ASC LIMIT $1`,
		},
		{
			name:   "sorted by the key",
			params: url.Values{"sort": {"id"}, "dir": {"desc"}},
			sql:    `SELECT * FROM "users" ORDER BY "id" DESC LIMIT $1`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{columns: []string{"id"}, rowsFor: userRows(3)}
			tbl, err := usersDef(db).New(pgrel.From("users"), table.Options{"params": tt.params})
			require.NoError(t, err)

			require.NoError(t, tbl.EachRecord(t.Context(), 2, true, func(any) error { return nil }))
			require.Len(t, db.calls, 2)
			assert.Equal(t, tt.sql, db.calls[0].sql)
			assert.Equal(t, tt.sql+" OFFSET $2", db.calls[1].sql)
		})
	}
}

func TestAdapter_EachRecordWithinPage(t *testing.T) {
	db := &fakeDB{columns: []string{"id"}, rowsFor: userRows(100)}
	tbl, err := usersDef(db).New(pgrel.From("users"), table.Options{
		"params": url.Values{"page": {"2"}},
	})
	require.NoError(t, err)

	n := 0
	require.NoError(t, tbl.EachRecord(t.Context(), 10, false, func(any) error { n++; return nil }))
	assert.Equal(t, 25, n)
	assert.Len(t, db.calls, 3)
	assert.Equal(t, []any{5, 45}, db.calls[2].args)
}

func TestAdapter_Counts(t *testing.T) {
	db := &fakeDB{count: 51}
	tbl, err := usersDef(db).New(pgrel.From("users"), table.Options{
		"params": url.Values{"page": {"2"}, "q": {"a"}},
	})
	require.NoError(t, err)

	pages, err := tbl.TotalPages(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	n, err := tbl.TotalRecordsCount(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 51, n)

	current, err := tbl.CurrentPage(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, current)

	require.Len(t, db.calls, 1, "count is memoized")
	assert.Equal(t, `SELECT COUNT(*) FROM "users" WHERE ("full_name"::text ILIKE $1)`, db.calls[0].sql)
}

func TestNormalize(t *testing.T) {
	id := uuid.New()
	var num pgtype.Numeric
	require.NoError(t, num.Scan("12.50"))

	assert.Equal(t, id.String(), pgrel.Normalize([16]byte(id)))
	assert.Equal(t, id.String(), pgrel.Normalize(pgtype.UUID{Bytes: id, Valid: true}))
	assert.Equal(t, 12.5, pgrel.Normalize(num))
	assert.Nil(t, pgrel.Normalize(pgtype.Text{}))
	assert.Equal(t, "x", pgrel.Normalize(pgtype.Text{String: "x", Valid: true}))
	assert.Equal(t, int32(4), pgrel.Normalize(int32(4)))
}

func TestRecord_MissingFieldIsNil(t *testing.T) {
	v, err := table.Attr(pgrel.Record{"id": 1}, "name")
	require.NoError(t, err)
	assert.Nil(t, v)
}
