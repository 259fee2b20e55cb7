package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/erauner12/firerest/pkg/client"
)

// Query is an immutable set of clauses over a reference. Every builder
// method returns a new Query; ordering and filtering happen server-side.
type Query struct {
	ref *Reference

	orderBy      string
	limitToFirst int
	limitToLast  int
	startAt      *bound
	endAt        *bound
	equalTo      *bound
	shallow      bool

	err error
}

type bound struct{ value any }

// Query starts an unfiltered query at r.
func (r *Reference) Query() *Query {
	return &Query{ref: r, err: r.err}
}

// OrderByChild is shorthand for r.Query().OrderByChild(path).
func (r *Reference) OrderByChild(path string) *Query { return r.Query().OrderByChild(path) }

// OrderByKey is shorthand for r.Query().OrderByKey().
func (r *Reference) OrderByKey() *Query { return r.Query().OrderByKey() }

// OrderByValue is shorthand for r.Query().OrderByValue().
func (r *Reference) OrderByValue() *Query { return r.Query().OrderByValue() }

// Shallow is shorthand for r.Query().Shallow().
func (r *Reference) Shallow() *Query { return r.Query().Shallow() }

func (q *Query) clone() *Query {
	c := *q
	return &c
}

// OrderByChild orders results by the value at the given child path.
func (q *Query) OrderByChild(path string) *Query {
	c := q.clone()
	path = joinPath(path)
	if c.err == nil {
		if path == "" {
			c.err = client.InvalidArgument("orderByChild requires a path")
		} else {
			c.err = checkPath(path)
		}
	}
	c.orderBy = path
	return c
}

// OrderByKey orders results by child key.
func (q *Query) OrderByKey() *Query {
	c := q.clone()
	c.orderBy = "$key"
	return c
}

// OrderByValue orders results by child value.
func (q *Query) OrderByValue() *Query {
	c := q.clone()
	c.orderBy = "$value"
	return c
}

// LimitToFirst keeps the first n results in the current order. n must be positive.
func (q *Query) LimitToFirst(n int) *Query {
	c := q.clone()
	if n <= 0 && c.err == nil {
		c.err = client.InvalidArgument("limitToFirst must be positive, got %d", n)
	}
	c.limitToFirst = n
	return c
}

// LimitToLast keeps the last n results in the current order. n must be positive.
func (q *Query) LimitToLast(n int) *Query {
	c := q.clone()
	if n <= 0 && c.err == nil {
		c.err = client.InvalidArgument("limitToLast must be positive, got %d", n)
	}
	c.limitToLast = n
	return c
}

// StartAt keeps results whose order value is at or after v.
func (q *Query) StartAt(v any) *Query {
	c := q.clone()
	c.startAt = &bound{v}
	return c
}

// EndAt keeps results whose order value is at or before v.
func (q *Query) EndAt(v any) *Query {
	c := q.clone()
	c.endAt = &bound{v}
	return c
}

// EqualTo keeps results whose order value equals v.
func (q *Query) EqualTo(v any) *Query {
	c := q.clone()
	c.equalTo = &bound{v}
	return c
}

// Shallow returns only the keys of the children, with true as values.
func (q *Query) Shallow() *Query {
	c := q.clone()
	c.shallow = true
	return c
}

// Params renders the query string. Values are JSON encoded.
func (q *Query) Params() (url.Values, error) {
	if q.err != nil {
		return nil, q.err
	}
	v := url.Values{}
	if q.orderBy != "" {
		if err := setJSON(v, "orderBy", q.orderBy); err != nil {
			return nil, err
		}
	}
	if q.limitToFirst > 0 {
		v.Set("limitToFirst", strconv.Itoa(q.limitToFirst))
	}
	if q.limitToLast > 0 {
		v.Set("limitToLast", strconv.Itoa(q.limitToLast))
	}
	for name, b := range map[string]*bound{"startAt": q.startAt, "endAt": q.endAt, "equalTo": q.equalTo} {
		if b == nil {
			continue
		}
		if err := setJSON(v, name, b.value); err != nil {
			return nil, err
		}
	}
	if q.shallow {
		v.Set("shallow", "true")
	}
	return v, nil
}

// Get runs the query and decodes the result into out.
func (q *Query) Get(ctx context.Context, out any) (bool, error) {
	params, err := q.Params()
	if err != nil {
		return false, err
	}
	u := q.ref.URL()
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return q.ref.db.c.ExecuteJSON(ctx, client.Call{
		Service: "database",
		URL:     u,
		Method:  http.MethodGet,
		Auth:    client.AuthQuery,
	}, out)
}

func setJSON(v url.Values, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return client.InvalidArgument("cannot encode %s: %v", key, err)
	}
	v.Set(key, string(data))
	return nil
}
