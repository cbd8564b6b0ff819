package fhir

import (
	"fmt"
)

// SearchQuery builds a parameterised SELECT with a WHERE clause assembled
// from search criteria.
type SearchQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewSearchQuery creates a new SearchQuery for the given table and columns.
func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *SearchQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// AddDateBounds restricts column to the half-open range b. Unbounded sides
// add nothing; an empty range adds a clause that matches no rows.
func (q *SearchQuery) AddDateBounds(column string, b DateBounds) {
	if b.IsEmpty() {
		q.where += " AND FALSE"
		return
	}
	if b.Lower != nil {
		q.Add(fmt.Sprintf("%s >= $%d", column, q.idx), *b.Lower)
	}
	if b.Upper != nil {
		q.Add(fmt.Sprintf("%s < $%d", column, q.idx), *b.Upper)
	}
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *SearchQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// SQL returns the unpaged data query.
func (q *SearchQuery) SQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// Args returns the positional arguments for SQL.
func (q *SearchQuery) Args() []interface{} {
	return q.args
}
