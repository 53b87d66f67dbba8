package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const restPrefix = "/rest/v1/"

// Operator is a filter operator in the backend's column=operator.value
// querystring syntax.
type Operator string

// Supported filter operators.
const (
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
	OpIs  Operator = "is"
)

// filter is one accumulated filter clause. values is only set for OpIn.
type filter struct {
	column string
	op     Operator
	value  any
	values []any
}

// order is one accumulated ordering clause.
type order struct {
	column     string
	descending bool
}

// Query accumulates column selection, filters, ordering, and a row limit,
// then resolves with exactly one network call through a terminal method.
// Builder methods are pure local accumulation and return the receiver.
type Query struct {
	c        *Client
	table    string
	columns  string
	filters  []filter
	orders   []order
	rowLimit int
	err      error
}

// From starts a query against the named table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table, columns: "*"}
}

// Select sets the column list. Empty means all columns.
func (q *Query) Select(columns string) *Query {
	if columns == "" {
		columns = "*"
	}

	q.columns = columns

	return q
}

// Eq adds an equality filter. A nil value renders as the literal null token
// so equality-against-null is expressible.
func (q *Query) Eq(column string, value any) *Query {
	q.filters = append(q.filters, filter{column: column, op: OpEq, value: value})
	return q
}

// Gte adds a greater-than-or-equal filter.
func (q *Query) Gte(column string, value any) *Query {
	q.filters = append(q.filters, filter{column: column, op: OpGte, value: value})
	return q
}

// Lte adds a less-than-or-equal filter.
func (q *Query) Lte(column string, value any) *Query {
	q.filters = append(q.filters, filter{column: column, op: OpLte, value: value})
	return q
}

// In adds a membership filter over the given values. An empty value list
// is rejected when the query resolves because the backend has no valid
// rendering for it.
func (q *Query) In(column string, values ...any) *Query {
	if len(values) == 0 {
		q.err = fmt.Errorf("rest: in filter on %s needs at least one value", column)
		return q
	}

	q.filters = append(q.filters, filter{column: column, op: OpIn, values: values})

	return q
}

// Is adds an identity filter (null / true / false).
func (q *Query) Is(column string, value any) *Query {
	q.filters = append(q.filters, filter{column: column, op: OpIs, value: value})
	return q
}

// Order adds an ordering clause. Clauses apply in call order; the first
// call is the primary sort key.
func (q *Query) Order(column string, ascending bool) *Query {
	q.orders = append(q.orders, order{column: column, descending: !ascending})
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.rowLimit = n
	return q
}

// HasFilters reports whether any filter has been accumulated.
func (q *Query) HasFilters() bool {
	return len(q.filters) > 0
}

// encodeValue renders a single interpolated filter value. The gateway
// percent-encodes only values it interpolates itself, never whole
// caller-supplied paths.
func encodeValue(v any) string {
	if v == nil {
		return "null"
	}

	return url.QueryEscape(fmt.Sprintf("%v", v))
}

// render produces the filter's querystring clause.
func (f filter) render() string {
	col := url.QueryEscape(f.column)

	if f.op == OpIn {
		vals := make([]string, len(f.values))
		for i, v := range f.values {
			vals[i] = encodeValue(v)
		}

		return fmt.Sprintf("%s=in.(%s)", col, strings.Join(vals, ","))
	}

	return fmt.Sprintf("%s=%s.%s", col, f.op, encodeValue(f.value))
}

// render produces the order clause in column.asc / column.desc form.
func (o order) render() string {
	dir := "asc"
	if o.descending {
		dir = "desc"
	}

	return fmt.Sprintf("order=%s.%s", url.QueryEscape(o.column), dir)
}

// selectQuery renders the deterministic querystring for a read:
// select, then filters in call order, then orders, then limit.
func (q *Query) selectQuery() string {
	params := []string{"select=" + url.QueryEscape(q.columns)}

	for _, f := range q.filters {
		params = append(params, f.render())
	}

	for _, o := range q.orders {
		params = append(params, o.render())
	}

	if q.rowLimit > 0 {
		params = append(params, "limit="+strconv.Itoa(q.rowLimit))
	}

	return strings.Join(params, "&")
}

// mutationQuery renders the querystring for a mutation: filters in call
// order plus an optional on_conflict key.
func (q *Query) mutationQuery(onConflict string) string {
	params := make([]string, 0, len(q.filters)+1)

	for _, f := range q.filters {
		params = append(params, f.render())
	}

	if onConflict != "" {
		params = append(params, "on_conflict="+url.QueryEscape(onConflict))
	}

	return strings.Join(params, "&")
}

// path joins the table with a rendered querystring.
func (q *Query) path(qs string) string {
	if qs == "" {
		return restPrefix + q.table
	}

	return restPrefix + q.table + "?" + qs
}

// QueryString returns the rendered read querystring without executing.
// Offline snapshots are keyed by it.
func (q *Query) QueryString() string {
	return q.selectQuery()
}

// Rows executes the read and decodes the ordered row set into dest
// (a pointer to a slice). A nil dest discards the rows.
func (q *Query) Rows(ctx context.Context, dest any) error {
	if q.err != nil {
		return q.err
	}

	raw, err := q.c.Do(ctx, http.MethodGet, q.path(q.selectQuery()), nil)
	if err != nil {
		return err
	}

	return decodeInto(raw, dest)
}

// One executes the read and decodes the single required row into dest.
// Zero rows is ErrNoRows.
func (q *Query) One(ctx context.Context, dest any) error {
	row, found, err := q.first(ctx)
	if err != nil {
		return err
	}

	if !found {
		return ErrNoRows
	}

	return decodeInto(row, dest)
}

// Optional executes the read and decodes the single row into dest when one
// exists. Zero rows is (false, nil), not an error.
func (q *Query) Optional(ctx context.Context, dest any) (bool, error) {
	row, found, err := q.first(ctx)
	if err != nil || !found {
		return false, err
	}

	return true, decodeInto(row, dest)
}

// first fetches the row set and returns its first row, if any.
func (q *Query) first(ctx context.Context) (json.RawMessage, bool, error) {
	if q.err != nil {
		return nil, false, q.err
	}

	raw, err := q.c.Do(ctx, http.MethodGet, q.path(q.selectQuery()), nil)
	if err != nil {
		return nil, false, err
	}

	var rows []json.RawMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, false, fmt.Errorf("rest: decoding rows for %s: %w", q.table, err)
		}
	}

	if len(rows) == 0 {
		return nil, false, nil
	}

	return rows[0], true, nil
}

// Insert inserts rows (a struct, map, or slice thereof). When dest is
// non-nil the backend is asked to return the representation and the
// resulting rows are decoded into it.
func (q *Query) Insert(ctx context.Context, rows, dest any) error {
	return q.mutate(ctx, http.MethodPost, q.path(""), rows, dest, false)
}

// Update applies values to every row matching the accumulated filters.
func (q *Query) Update(ctx context.Context, values, dest any) error {
	return q.mutate(ctx, http.MethodPatch, q.path(q.mutationQuery("")), values, dest, false)
}

// Delete removes every row matching the accumulated filters.
func (q *Query) Delete(ctx context.Context, dest any) error {
	return q.mutate(ctx, http.MethodDelete, q.path(q.mutationQuery("")), nil, dest, false)
}

// Upsert inserts rows, merging duplicates on the given conflict key.
func (q *Query) Upsert(ctx context.Context, rows any, onConflict string, dest any) error {
	return q.mutate(ctx, http.MethodPost, q.path(q.mutationQuery(onConflict)), rows, dest, true)
}

// mutate performs the single network call shared by all mutation terminals.
func (q *Query) mutate(ctx context.Context, method, path string, payload, dest any, merge bool) error {
	if q.err != nil {
		return q.err
	}

	var body *bytes.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("rest: encoding %s payload: %w", q.table, err)
		}

		body = bytes.NewReader(data)
	}

	prefer := "return=minimal"
	if dest != nil {
		prefer = "return=representation"
	}

	if merge {
		prefer = "resolution=merge-duplicates," + prefer
	}

	var (
		raw json.RawMessage
		err error
	)

	if body != nil {
		raw, err = q.c.Do(ctx, method, path, body, WithHeader("Prefer", prefer))
	} else {
		raw, err = q.c.Do(ctx, method, path, nil, WithHeader("Prefer", prefer))
	}

	if err != nil {
		return err
	}

	return decodeInto(raw, dest)
}

// decodeInto unmarshals the raw response into dest, tolerating absent
// results and nil destinations.
func decodeInto(raw json.RawMessage, dest any) error {
	if dest == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("rest: decoding response: %w", err)
	}

	return nil
}
