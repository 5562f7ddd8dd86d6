package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction represents ORDER BY direction.
type Direction int

const (
	// Asc represents ascending order.
	Asc Direction = iota
	// Desc represents descending order.
	Desc
)

// Placeholder renders the n-th (1-based) bind parameter for a SQL dialect.
type Placeholder func(n int) string

// Dollar renders PostgreSQL style placeholders ($1, $2, ...).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders SQLite/MySQL style placeholders (?).
func Question(int) string { return "?" }

// Statement is a rendered query with its positional arguments.
type Statement struct {
	SQL  string
	Args []interface{}
}

type orderTerm struct {
	column    string
	direction Direction
}

// Builder constructs SQL SELECT queries.
// Every method returns a new Builder, so a partially built query (for example
// the filtered base of a listing) can be shared between a COUNT and a page
// query without the two drifting apart.
type Builder struct {
	table        string
	selectCols   []string
	whereClauses []Condition
	groupByCols  []string
	having       []string
	orderBy      []orderTerm
	limitVal     int64
	offsetVal    int64
}

// From creates a new Builder for the specified table.
func From(table string) *Builder {
	return &Builder{table: table}
}

// Select specifies the columns to retrieve.
func (b *Builder) Select(columns ...string) *Builder {
	nb := b.clone()
	nb.selectCols = append(nb.selectCols, columns...)
	return nb
}

// Where adds a WHERE condition.
// Multiple calls are combined with AND logic.
func (b *Builder) Where(condition Condition) *Builder {
	nb := b.clone()
	nb.whereClauses = append(nb.whereClauses, condition)
	return nb
}

// GroupBy appends GROUP BY expressions.
func (b *Builder) GroupBy(columns ...string) *Builder {
	nb := b.clone()
	nb.groupByCols = append(nb.groupByCols, columns...)
	return nb
}

// Having appends a literal HAVING predicate. Multiple calls are combined
// with AND.
func (b *Builder) Having(predicate string) *Builder {
	nb := b.clone()
	nb.having = append(nb.having, predicate)
	return nb
}

// OrderBy appends a sort key. Later calls act as tie-breakers.
func (b *Builder) OrderBy(column string, direction Direction) *Builder {
	nb := b.clone()
	nb.orderBy = append(nb.orderBy, orderTerm{column: column, direction: direction})
	return nb
}

// Limit sets the maximum number of rows to return. Zero means no limit.
func (b *Builder) Limit(limit int64) *Builder {
	nb := b.clone()
	nb.limitVal = limit
	return nb
}

// Offset sets the number of rows to skip.
func (b *Builder) Offset(offset int64) *Builder {
	nb := b.clone()
	nb.offsetVal = offset
	return nb
}

// Count returns a new builder that generates a COUNT(*) query
// with the same FROM and WHERE clauses.
func (b *Builder) Count() *Builder {
	nb := b.clone()
	nb.selectCols = []string{"COUNT(*)"}
	nb.groupByCols = nil
	nb.having = nil
	nb.orderBy = nil
	nb.limitVal = 0
	nb.offsetVal = 0
	return nb
}

// Build renders the statement using ph for bind parameters. Arguments are
// appended in the order their placeholders appear in the SQL text.
func (b *Builder) Build(ph Placeholder) Statement {
	var (
		sql  strings.Builder
		args []interface{}
	)
	bind := func(v interface{}) string {
		args = append(args, v)
		return ph(len(args))
	}

	sql.WriteString("SELECT ")
	if len(b.selectCols) == 0 {
		sql.WriteString("*")
	} else {
		sql.WriteString(strings.Join(b.selectCols, ", "))
	}

	sql.WriteString(" FROM ")
	sql.WriteString(b.table)

	if len(b.whereClauses) > 0 {
		parts := make([]string, 0, len(b.whereClauses))
		for _, c := range b.whereClauses {
			parts = append(parts, c.SQL(bind))
		}
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(parts, " AND "))
	}

	if len(b.groupByCols) > 0 {
		sql.WriteString(" GROUP BY ")
		sql.WriteString(strings.Join(b.groupByCols, ", "))
	}

	if len(b.having) > 0 {
		sql.WriteString(" HAVING ")
		sql.WriteString(strings.Join(b.having, " AND "))
	}

	if len(b.orderBy) > 0 {
		terms := make([]string, 0, len(b.orderBy))
		for _, o := range b.orderBy {
			dir := " ASC"
			if o.direction == Desc {
				dir = " DESC"
			}
			terms = append(terms, o.column+dir)
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(terms, ", "))
	}

	if b.limitVal > 0 {
		sql.WriteString(" LIMIT ")
		sql.WriteString(bind(b.limitVal))
	}

	if b.offsetVal > 0 {
		sql.WriteString(" OFFSET ")
		sql.WriteString(bind(b.offsetVal))
	}

	return Statement{SQL: sql.String(), Args: args}
}

func (b *Builder) clone() *Builder {
	nb := &Builder{
		table:        b.table,
		selectCols:   make([]string, len(b.selectCols)),
		whereClauses: make([]Condition, len(b.whereClauses)),
		groupByCols:  make([]string, len(b.groupByCols)),
		having:       make([]string, len(b.having)),
		orderBy:      make([]orderTerm, len(b.orderBy)),
		limitVal:     b.limitVal,
		offsetVal:    b.offsetVal,
	}
	copy(nb.selectCols, b.selectCols)
	copy(nb.whereClauses, b.whereClauses)
	copy(nb.groupByCols, b.groupByCols)
	copy(nb.having, b.having)
	copy(nb.orderBy, b.orderBy)
	return nb
}

// String returns a human-readable representation for debugging.
func (b *Builder) String() string {
	stmt := b.Build(Dollar)
	return fmt.Sprintf("SQL: %s\nArgs: %v", stmt.SQL, stmt.Args)
}

// Rebind rewrites "?" placeholders in a static query for the dialect rendered
// by ph. Queries must not contain literal question marks.
func Rebind(sql string, ph Placeholder) string {
	if strings.IndexByte(sql, '?') < 0 {
		return sql
	}
	var (
		out strings.Builder
		n   int
	)
	out.Grow(len(sql) + 8)
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			n++
			out.WriteString(ph(n))
			continue
		}
		out.WriteByte(sql[i])
	}
	return out.String()
}
