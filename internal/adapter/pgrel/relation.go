package pgrel

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Relation is an immutable description of a SELECT over one table. Every
// builder method returns a modified copy.
type Relation struct {
	table   string
	columns []string
	conds   []cond
	order   []orderTerm
	limit   int
	offset  int
	err     error
}

type cond struct {
	expr string
	args []any
}

type orderTerm struct {
	column    string
	desc      bool
	nullsLast bool
}

// From starts a relation over table, which may be schema qualified
// ("public.users").
func From(table string) *Relation {
	return &Relation{table: table}
}

func (r *Relation) clone() *Relation {
	c := *r
	c.columns = slices.Clone(r.columns)
	c.conds = slices.Clone(r.conds)
	c.order = slices.Clone(r.order)
	return &c
}

// Table returns the relation's table name.
func (r *Relation) Table() string { return r.table }

// Select restricts the selected columns. No columns selects every column.
func (r *Relation) Select(columns ...string) *Relation {
	c := r.clone()
	c.columns = slices.Clone(columns)
	return c
}

// Where adds a condition. expr uses ? as the argument placeholder.
func (r *Relation) Where(expr string, args ...any) *Relation {
	c := r.clone()
	if n := strings.Count(expr, "?"); n != len(args) {
		c.err = errors.Join(c.err, fmt.Errorf("pgrel: %q has %d placeholders but %d args", expr, n, len(args)))
		return c
	}
	c.conds = append(c.conds, cond{expr: expr, args: args})
	return c
}

// WhereEq adds column = value.
func (r *Relation) WhereEq(column string, value any) *Relation {
	return r.Where(quoteIdentifier(column)+" = ?", value)
}

// Search adds a case-insensitive substring match of query against any of
// columns. An empty query or column list leaves the relation unchanged.
func (r *Relation) Search(query string, columns ...string) *Relation {
	query = strings.TrimSpace(query)
	if query == "" || len(columns) == 0 {
		return r
	}
	pattern := "%" + escapeLike(query) + "%"
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		parts[i] = quoteIdentifier(col) + "::text ILIKE ?"
		args[i] = pattern
	}
	return r.Where("("+strings.Join(parts, " OR ")+")", args...)
}

// Order appends an ORDER BY term.
func (r *Relation) Order(column, dir string, nullsLast bool) *Relation {
	c := r.clone()
	switch strings.ToLower(dir) {
	case "asc", "":
	case "desc":
	default:
		c.err = errors.Join(c.err, fmt.Errorf("pgrel: invalid sort direction %q", dir))
		return c
	}
	c.order = append(c.order, orderTerm{column: column, desc: strings.EqualFold(dir, "desc"), nullsLast: nullsLast})
	return c
}

// Reorder replaces any ORDER BY terms with one term.
func (r *Relation) Reorder(column, dir string, nullsLast bool) *Relation {
	c := r.clone()
	c.order = nil
	return c.Order(column, dir, nullsLast)
}

// Limit sets the LIMIT; 0 removes it.
func (r *Relation) Limit(n int) *Relation {
	c := r.clone()
	c.limit = max(n, 0)
	return c
}

// Offset sets the OFFSET.
func (r *Relation) Offset(n int) *Relation {
	c := r.clone()
	c.offset = max(n, 0)
	return c
}

// LimitValue returns the LIMIT, 0 when unlimited.
func (r *Relation) LimitValue() int { return r.limit }

// OffsetValue returns the OFFSET.
func (r *Relation) OffsetValue() int { return r.offset }

// OrderedBy reports whether column is one of the ORDER BY terms.
func (r *Relation) OrderedBy(column string) bool {
	return slices.ContainsFunc(r.order, func(o orderTerm) bool { return o.column == column })
}

// Unpaginated returns the relation without LIMIT and OFFSET.
func (r *Relation) Unpaginated() *Relation {
	c := r.clone()
	c.limit, c.offset = 0, 0
	return c
}

// SQL renders the SELECT statement and its arguments.
func (r *Relation) SQL() (string, []any, error) {
	if r.err != nil {
		return "", nil, r.err
	}
	where, args, err := r.where()
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(r.columns) > 0 {
		cols = strings.Join(quoteColumns(r.columns), ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", cols, quoteTable(r.table), where.clause)

	if len(r.order) > 0 {
		terms := make([]string, len(r.order))
		for i, o := range r.order {
			terms[i] = quoteIdentifier(o.column) + " ASC"
			if o.desc {
				terms[i] = quoteIdentifier(o.column) + " DESC"
			}
			if o.nullsLast {
				terms[i] += " NULLS LAST"
			}
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	next := where.next
	if r.limit > 0 {
		b.WriteString(" LIMIT $" + strconv.Itoa(next))
		args = append(args, r.limit)
		next++
	}
	if r.offset > 0 {
		b.WriteString(" OFFSET $" + strconv.Itoa(next))
		args = append(args, r.offset)
	}
	return b.String(), args, nil
}

// CountSQL renders a COUNT(*) over the unpaginated relation.
func (r *Relation) CountSQL() (string, []any, error) {
	if r.err != nil {
		return "", nil, r.err
	}
	where, args, err := r.where()
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteTable(r.table), where.clause), args, nil
}

type builtWhere struct {
	clause string
	next   int
}

func (r *Relation) where() (builtWhere, []any, error) {
	wb := NewWhereBuilder()
	for _, c := range r.conds {
		if err := wb.AddExpr(c.expr, c.args...); err != nil {
			return builtWhere{}, nil, err
		}
	}
	clause, args := wb.Build()
	return builtWhere{clause: clause, next: wb.NextArgIndex()}, args, nil
}

// WhereBuilder accumulates AND-ed conditions with $n placeholders.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add adds column = value. column is quoted.
func (wb *WhereBuilder) Add(column string, value any) {
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", quoteIdentifier(column), wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddExpr adds a condition whose ? placeholders are numbered in order.
func (wb *WhereBuilder) AddExpr(expr string, args ...any) error {
	var b strings.Builder
	used := 0
	for _, r := range expr {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		if used == len(args) {
			return fmt.Errorf("pgrel: %q has more placeholders than args", expr)
		}
		b.WriteString("$" + strconv.Itoa(wb.argIndex+used))
		used++
	}
	if used != len(args) {
		return fmt.Errorf("pgrel: %q has fewer placeholders than args", expr)
	}
	wb.conditions = append(wb.conditions, b.String())
	wb.args = append(wb.args, args...)
	wb.argIndex += used
	return nil
}

// Build returns the WHERE clause (with a leading space) and its args, or
// "" and nil when there are no conditions.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex returns the number of the next placeholder.
func (wb *WhereBuilder) NextArgIndex() int { return wb.argIndex }

func quoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// quoteTable quotes each part of a possibly schema qualified name.
func quoteTable(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
	}
	return quoted
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
