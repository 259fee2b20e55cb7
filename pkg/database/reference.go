// Package database is the real-time data-store facade. References address
// JSON tree locations by slash-delimited path; every call goes through the
// client pipeline with the token carried in the auth= query parameter.
package database

import (
	"context"
	"net/http"
	"strings"

	"github.com/erauner12/firerest/pkg/client"
)

// Database binds references to a client and its data-store URL.
type Database struct {
	c       *client.Client
	baseURL string
}

// New returns the data-store facade for c.
func New(c *client.Client) *Database {
	return &Database{c: c, baseURL: c.Settings().DatabaseURL}
}

// Ref returns a reference to path; "" or "/" is the root. A path with a
// character keys cannot hold yields a reference whose operations fail with
// invalid_argument before any request is sent.
func (d *Database) Ref(path string) *Reference {
	p := joinPath(path)
	return &Reference{db: d, path: p, err: checkPath(p)}
}

// Reference is an immutable location in the tree.
type Reference struct {
	db   *Database
	path string
	err  error
}

// Path returns the normalized path without leading or trailing slashes.
func (r *Reference) Path() string { return r.path }

// Key returns the last path segment, or "" at the root.
func (r *Reference) Key() string {
	if r.path == "" {
		return ""
	}
	return r.path[strings.LastIndex(r.path, "/")+1:]
}

// Child returns a reference below r.
func (r *Reference) Child(path string) *Reference {
	p := joinPath(r.path, path)
	return &Reference{db: r.db, path: p, err: checkPath(p)}
}

// Parent returns the enclosing reference, or nil at the root.
func (r *Reference) Parent() *Reference {
	if r.path == "" {
		return nil
	}
	idx := strings.LastIndex(r.path, "/")
	if idx < 0 {
		return r.Root()
	}
	p := r.path[:idx]
	return &Reference{db: r.db, path: p, err: checkPath(p)}
}

// Root returns the root reference.
func (r *Reference) Root() *Reference {
	return &Reference{db: r.db}
}

// URL returns the REST endpoint for this location.
func (r *Reference) URL() string {
	if r.path == "" {
		return r.db.baseURL + "/.json"
	}
	return r.db.baseURL + "/" + r.path + ".json"
}

// Get decodes the value at r into out. found is false when no value exists.
func (r *Reference) Get(ctx context.Context, out any) (bool, error) {
	return r.Query().Get(ctx, out)
}

// Set replaces the value at r.
func (r *Reference) Set(ctx context.Context, value any) error {
	return r.write(ctx, http.MethodPut, value, nil)
}

// Update merges the given children into the value at r. Keys may be
// slash-delimited paths below r.
func (r *Reference) Update(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return client.InvalidArgument("update requires at least one value")
	}
	for k := range values {
		if err := checkPath(joinPath(k)); err != nil {
			return err
		}
	}
	return r.write(ctx, http.MethodPatch, values, nil)
}

// Push appends value under a generated key and returns its reference.
func (r *Reference) Push(ctx context.Context, value any) (*Reference, error) {
	var out struct {
		Name string `json:"name"`
	}
	if err := r.write(ctx, http.MethodPost, value, &out); err != nil {
		return nil, err
	}
	if out.Name == "" {
		return nil, client.InvalidResponse(nil, "push response has no name")
	}
	return r.Child(out.Name), nil
}

// Remove deletes the value at r.
func (r *Reference) Remove(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	_, err := r.db.c.Execute(ctx, client.Call{
		Service: "database",
		URL:     r.URL(),
		Method:  http.MethodDelete,
		Auth:    client.AuthQuery,
	})
	return err
}

func (r *Reference) write(ctx context.Context, method string, value any, out any) error {
	if r.err != nil {
		return r.err
	}
	body, err := client.JSONBody(value)
	if err != nil {
		return err
	}
	_, err = r.db.c.ExecuteJSON(ctx, client.Call{
		Service: "database",
		URL:     r.URL(),
		Method:  method,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    client.AuthQuery,
	}, out)
	return err
}

// joinPath joins segments with "/", trimming slashes from each and dropping
// empty segments. The root is "".
func joinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		for _, p := range strings.Split(seg, "/") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
	}
	return strings.Join(parts, "/")
}

// invalidPathChars cannot appear in keys; # and ? would also end the URL path.
const invalidPathChars = ".#$[]?"

func checkPath(path string) error {
	if i := strings.IndexAny(path, invalidPathChars); i >= 0 {
		return client.InvalidArgument("path %q contains invalid character %q", path, path[i])
	}
	return nil
}
