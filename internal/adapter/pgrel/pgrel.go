// Package pgrel serves tables from PostgreSQL relations.
//
// The base scope is a *Relation (or a table.SourceFunc producing one).
// Filters never touch the database: search adds an ILIKE condition over the
// searchable columns, sorting replaces the ORDER BY and pagination sets
// LIMIT and OFFSET. Rows are only fetched by EachRecord and counted by the
// Paged adapter's Paginator methods.
package pgrel

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultPrimaryKey names the column used as the record id.
const DefaultPrimaryKey = "id"

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const countStateKey = "pgrel.count"

type adapter struct {
	db    DBTX
	paged bool
}

// Adapter returns the relation adapter. It provides the search and sorting
// filters; a table that includes pagination needs Paged instead.
func Adapter(db DBTX) table.Adapter { return &adapter{db: db} }

// Paged returns the relation adapter with LIMIT/OFFSET pagination and
// COUNT(*) based page totals.
func Paged(db DBTX) table.Adapter { return &adapter{db: db, paged: true} }

func (a *adapter) Name() string { return "pgrel" }

func (a *adapter) Register(d *table.Definition) error {
	if _, err := d.ExtendExtendable(table.KindConfig, func(s *table.Schema) {
		s.Field("primary_key", DefaultPrimaryKey)
	}); err != nil {
		return err
	}
	hasSearch := d.Has("search")
	if d.Has("columns") {
		if _, err := d.ExtendExtendable(table.KindColumn, func(s *table.Schema) {
			s.Field("db_column", nil).Field("nulls_last", false)
			if hasSearch {
				s.Field("searchable", false)
			}
		}); err != nil {
			return err
		}
	}

	if hasSearch {
		after := []string{"search"}
		if d.Has("columns") {
			after = append(after, "columns")
		}
		if err := d.RegisterInitializer("search_pgrel", initSearch, table.After(after...)); err != nil {
			return err
		}
		opts := append(table.FilterOrder(d, "search"), table.Unless((*table.Table).SkipSearch))
		if err := d.RegisterFilter("search", filterSearch, opts...); err != nil {
			return err
		}
	}
	if d.Has("sorting") {
		opts := append(table.FilterOrder(d, "sorting"), table.Unless((*table.Table).SkipSorting))
		if err := d.RegisterFilter("sorting", filterSorting, opts...); err != nil {
			return err
		}
	}
	if a.paged && d.Has("pagination") {
		opts := append(table.FilterOrder(d, "pagination"), table.Unless((*table.Table).SkipPagination))
		if err := d.RegisterFilter("pagination", filterPagination, opts...); err != nil {
			return err
		}
	}
	return nil
}

// initSearch disables search when no column can be searched.
func initSearch(t *table.Table, c *table.Config) error {
	if c.Bool("skip_search") {
		return nil
	}
	if len(searchColumns(t)) == 0 {
		return c.Set("skip_search", true)
	}
	return nil
}

// DBColumn returns the database column backing col.
func DBColumn(col table.Column) string {
	if s := col.String("db_column"); s != "" {
		return s
	}
	return col.ID()
}

func searchColumns(t *table.Table) []string {
	var cols []string
	for _, c := range t.Columns() {
		if c.Bool("searchable") {
			cols = append(cols, DBColumn(c))
		}
	}
	return cols
}

func asRelation(scope any) (*Relation, error) {
	r, ok := scope.(*Relation)
	if !ok || r == nil {
		return nil, fmt.Errorf("%w: pgrel adapter needs a *pgrel.Relation, got %T", table.ErrIncompatibleValue, scope)
	}
	return r, nil
}

func filterSearch(t *table.Table, scope any) (any, error) {
	r, err := asRelation(scope)
	if err != nil {
		return nil, err
	}
	return r.Search(t.SearchQuery(), searchColumns(t)...), nil
}

func filterSorting(t *table.Table, scope any) (any, error) {
	r, err := asRelation(scope)
	if err != nil {
		return nil, err
	}
	col, ok := t.SortColumn()
	if !ok {
		return r, nil
	}
	return r.Reorder(DBColumn(col), t.SortOrder(), col.Bool("nulls_last")), nil
}

func filterPagination(t *table.Table, scope any) (any, error) {
	r, err := asRelation(scope)
	if err != nil {
		return nil, err
	}
	return r.Limit(t.PerPage()).Offset(t.Offset()), nil
}

func (a *adapter) records(ctx context.Context, t *table.Table) (*Relation, error) {
	scope, err := t.Records(ctx)
	if err != nil {
		return nil, err
	}
	return asRelation(scope)
}

// EachRecord fetches the relation in LIMIT/OFFSET batches of batchSize
// rows, or in one query when batchSize is not positive. Batches are ordered
// by the primary key after any sort so that rows are neither skipped nor
// repeated between queries.
func (a *adapter) EachRecord(ctx context.Context, t *table.Table, batchSize int, skipPagination bool, fn func(record any) error) error {
	r, err := a.records(ctx, t)
	if err != nil {
		return err
	}
	if skipPagination {
		r = r.Unpaginated()
	}
	if batchSize <= 0 {
		_, err := a.query(ctx, r, fn)
		return err
	}

	if key := primaryKey(t); !r.OrderedBy(key) {
		r = r.Order(key, table.SortAsc, false)
	}

	start, limit := r.OffsetValue(), r.LimitValue()
	for fetched := 0; ; {
		n := batchSize
		if limit > 0 {
			n = min(batchSize, limit-fetched)
			if n <= 0 {
				return nil
			}
		}
		got, err := a.query(ctx, r.Limit(n).Offset(start+fetched), fn)
		if err != nil {
			return err
		}
		fetched += got
		if got < n {
			return nil
		}
	}
}

func (a *adapter) query(ctx context.Context, r *Relation, fn func(record any) error) (int, error) {
	sql, args, err := r.SQL()
	if err != nil {
		return 0, err
	}
	rows, err := a.db.Query(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", r.Table(), err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	n := 0
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		values, err := rows.Values()
		if err != nil {
			return n, fmt.Errorf("scan %s: %w", r.Table(), err)
		}
		rec := make(Record, len(fields))
		for i, f := range fields {
			rec[f.Name] = Normalize(values[i])
		}
		n++
		if err := fn(rec); err != nil {
			return n, err
		}
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate %s: %w", r.Table(), err)
	}
	return n, nil
}

func primaryKey(t *table.Table) string {
	if key := t.Config().String("primary_key"); key != "" {
		return key
	}
	return DefaultPrimaryKey
}

func (a *adapter) RecordID(t *table.Table, record any) (string, error) {
	key := primaryKey(t)
	v, err := table.Attr(record, key)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("%w: record has no %q", table.ErrConfiguration, key)
	}
	return table.CellText(v), nil
}

// TotalRecordsCount runs COUNT(*) over the unpaginated relation once per
// instance.
func (a *adapter) TotalRecordsCount(ctx context.Context, t *table.Table) (int, error) {
	if v, ok := t.State(countStateKey); ok {
		return v.(int), nil
	}
	r, err := a.records(ctx, t)
	if err != nil {
		return 0, err
	}
	sql, args, err := r.CountSQL()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := a.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.Table(), err)
	}
	t.SetState(countStateKey, int(count))
	return int(count), nil
}

func (a *adapter) TotalPages(ctx context.Context, t *table.Table) (int, error) {
	count, err := a.TotalRecordsCount(ctx, t)
	if err != nil || count == 0 {
		return 0, err
	}
	if !t.Definition().Has("pagination") || t.SkipPagination() {
		return 1, nil
	}
	perPage := max(t.PerPage(), 1)
	return (count + perPage - 1) / perPage, nil
}

func (a *adapter) CurrentPage(_ context.Context, t *table.Table) (int, error) {
	if !t.Definition().Has("pagination") || t.SkipPagination() {
		return 1, nil
	}
	return t.Page(), nil
}
