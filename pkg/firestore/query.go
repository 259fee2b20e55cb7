package firestore

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/erauner12/firerest/pkg/client"
)

// Direction orders query results.
type Direction string

const (
	Asc  Direction = "ASCENDING"
	Desc Direction = "DESCENDING"
)

var operators = map[string]string{
	"==":                 "EQUAL",
	"!=":                 "NOT_EQUAL",
	"<":                  "LESS_THAN",
	"<=":                 "LESS_THAN_OR_EQUAL",
	">":                  "GREATER_THAN",
	">=":                 "GREATER_THAN_OR_EQUAL",
	"array-contains":     "ARRAY_CONTAINS",
	"in":                 "IN",
	"not-in":             "NOT_IN",
	"array-contains-any": "ARRAY_CONTAINS_ANY",
}

// Query accumulates clauses and is consumed by exactly one Get.
type Query struct {
	coll *CollectionRef

	mu       sync.Mutex
	filters  []map[string]any
	orders   []map[string]any
	limit    int
	err      error
	consumed bool
}

// Query starts a structured query over c.
func (c *CollectionRef) Query() *Query {
	return &Query{coll: c, err: c.err}
}

// Where is shorthand for c.Query().Where(...).
func (c *CollectionRef) Where(field, op string, value any) *Query {
	return c.Query().Where(field, op, value)
}

// OrderBy is shorthand for c.Query().OrderBy(...).
func (c *CollectionRef) OrderBy(field string, dir Direction) *Query {
	return c.Query().OrderBy(field, dir)
}

// Limit is shorthand for c.Query().Limit(n).
func (c *CollectionRef) Limit(n int) *Query {
	return c.Query().Limit(n)
}

// Where adds a field filter. Multiple filters are AND-ed.
func (q *Query) Where(field, op string, value any) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q
	}
	wireOp, ok := operators[op]
	if !ok {
		q.err = client.InvalidArgument("unsupported operator %q", op)
		return q
	}
	if field == "" {
		q.err = client.InvalidArgument("filter field is required")
		return q
	}
	ev, err := encodeValue(value)
	if err != nil {
		q.err = client.InvalidArgument("filter value for %q: %v", field, err)
		return q
	}
	q.filters = append(q.filters, map[string]any{
		"fieldFilter": map[string]any{
			"field": map[string]string{"fieldPath": field},
			"op":    wireOp,
			"value": ev,
		},
	})
	return q
}

// OrderBy appends a sort clause.
func (q *Query) OrderBy(field string, dir Direction) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q
	}
	if field == "" {
		q.err = client.InvalidArgument("orderBy field is required")
		return q
	}
	if dir != Asc && dir != Desc {
		q.err = client.InvalidArgument("unknown direction %q", dir)
		return q
	}
	q.orders = append(q.orders, map[string]any{
		"field":     map[string]string{"fieldPath": field},
		"direction": string(dir),
	})
	return q
}

// Limit caps the number of results.
func (q *Query) Limit(n int) *Query {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err == nil && n <= 0 {
		q.err = client.InvalidArgument("limit must be positive, got %d", n)
	}
	q.limit = n
	return q
}

// structured renders the structuredQuery body.
func (q *Query) structured() map[string]any {
	sq := map[string]any{
		"from": []map[string]string{{"collectionId": q.coll.ID()}},
	}
	switch len(q.filters) {
	case 0:
	case 1:
		sq["where"] = q.filters[0]
	default:
		sq["where"] = map[string]any{
			"compositeFilter": map[string]any{"op": "AND", "filters": q.filters},
		}
	}
	if len(q.orders) > 0 {
		sq["orderBy"] = q.orders
	}
	if q.limit > 0 {
		sq["limit"] = q.limit
	}
	return sq
}

// Get runs the query. A second Get on the same Query fails.
func (q *Query) Get(ctx context.Context) ([]*Document, error) {
	q.mu.Lock()
	if q.consumed {
		q.mu.Unlock()
		return nil, client.InvalidArgument("query already executed")
	}
	q.consumed = true
	if q.err != nil {
		err := q.err
		q.mu.Unlock()
		return nil, err
	}
	body, err := client.JSONBody(map[string]any{"structuredQuery": q.structured()})
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Document *wireDocument   `json:"document"`
		ReadTime json.RawMessage `json:"readTime"`
	}
	if _, err := q.coll.f.c.ExecuteJSON(ctx, client.Call{
		Service: "firestore",
		URL:     q.coll.parentURL() + ":runQuery",
		Method:  http.MethodPost,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    client.AuthBearer,
	}, &rows); err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		if row.Document == nil {
			continue
		}
		doc, err := row.Document.decode()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
