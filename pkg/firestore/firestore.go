// Package firestore is the document-database facade: document and
// collection references, a typed value codec and structured queries, all
// sent through the client pipeline with a bearer token.
package firestore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/erauner12/firerest/pkg/client"
)

// Client binds references to the pipeline and the documents root URL.
type Client struct {
	c       *client.Client
	baseURL string
}

// New returns the document-database facade for c.
func New(c *client.Client) *Client {
	return &Client{c: c, baseURL: c.Settings().FirestoreURL}
}

// Collection returns a reference to the collection at path.
func (f *Client) Collection(path string) *CollectionRef {
	p := cleanPath(path)
	ref := &CollectionRef{f: f, path: p}
	if n := segments(p); n == 0 || n%2 == 0 {
		ref.err = client.InvalidArgument("collection path %q must have an odd number of segments", path)
	}
	return ref
}

// Doc returns a reference to the document at path.
func (f *Client) Doc(path string) *DocumentRef {
	p := cleanPath(path)
	ref := &DocumentRef{f: f, path: p}
	if n := segments(p); n == 0 || n%2 != 0 {
		ref.err = client.InvalidArgument("document path %q must have an even number of segments", path)
	}
	return ref
}

// Document is a decoded document snapshot.
type Document struct {
	Name       string
	Fields     map[string]any
	CreateTime time.Time
	UpdateTime time.Time
}

// ID returns the last segment of the document name.
func (d *Document) ID() string {
	return d.Name[strings.LastIndex(d.Name, "/")+1:]
}

// DataTo fills m from the document fields.
func (d *Document) DataTo(m FieldMapper) error {
	return m.FromFields(d.Fields)
}

type wireDocument struct {
	Name       string                     `json:"name,omitempty"`
	Fields     map[string]json.RawMessage `json:"fields,omitempty"`
	CreateTime time.Time                  `json:"createTime,omitempty"`
	UpdateTime time.Time                  `json:"updateTime,omitempty"`
}

func (w *wireDocument) decode() (*Document, error) {
	fields, err := decodeFields(w.Fields)
	if err != nil {
		return nil, client.InvalidResponse(err, "cannot decode document %s", w.Name)
	}
	return &Document{
		Name:       w.Name,
		Fields:     fields,
		CreateTime: w.CreateTime,
		UpdateTime: w.UpdateTime,
	}, nil
}

// IsNotFound reports a missing document.
func IsNotFound(err error) bool {
	return client.IsCode(err, "404") || client.IsCode(err, "NOT_FOUND")
}

// DocumentRef addresses one document.
type DocumentRef struct {
	f    *Client
	path string
	err  error
}

// ID returns the document ID, the last path segment.
func (d *DocumentRef) ID() string { return d.path[strings.LastIndex(d.path, "/")+1:] }

// Path returns the document path relative to the database root.
func (d *DocumentRef) Path() string { return d.path }

// Parent returns the containing collection.
func (d *DocumentRef) Parent() *CollectionRef {
	idx := strings.LastIndex(d.path, "/")
	if idx < 0 {
		return d.f.Collection("")
	}
	return d.f.Collection(d.path[:idx])
}

// Collection returns a subcollection of this document.
func (d *DocumentRef) Collection(id string) *CollectionRef {
	return d.f.Collection(d.path + "/" + cleanPath(id))
}

func (d *DocumentRef) url() string { return d.f.baseURL + "/" + d.path }

// Get fetches the document. A missing document fails with a code
// recognised by IsNotFound.
func (d *DocumentRef) Get(ctx context.Context) (*Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	var w wireDocument
	found, err := d.f.c.ExecuteJSON(ctx, client.Call{
		Service: "firestore",
		URL:     d.url(),
		Method:  http.MethodGet,
		Auth:    client.AuthBearer,
	}, &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &client.Error{Code: "NOT_FOUND", Message: d.path}
	}
	return w.decode()
}

// Set creates or overwrites the document with fields.
func (d *DocumentRef) Set(ctx context.Context, fields map[string]any) (*Document, error) {
	return d.patch(ctx, fields, nil)
}

// SetData is Set for a typed document.
func (d *DocumentRef) SetData(ctx context.Context, m FieldMapper) (*Document, error) {
	return d.patch(ctx, m.ToFields(), nil)
}

// Update changes only the given top-level fields of an existing document.
func (d *DocumentRef) Update(ctx context.Context, fields map[string]any) (*Document, error) {
	if len(fields) == 0 {
		return nil, client.InvalidArgument("update requires at least one field")
	}
	mask := make([]string, 0, len(fields))
	for k := range fields {
		mask = append(mask, k)
	}
	sort.Strings(mask)
	return d.patch(ctx, fields, mask)
}

// Delete removes the document.
func (d *DocumentRef) Delete(ctx context.Context) error {
	if d.err != nil {
		return d.err
	}
	_, err := d.f.c.Execute(ctx, client.Call{
		Service: "firestore",
		URL:     d.url(),
		Method:  http.MethodDelete,
		Auth:    client.AuthBearer,
	})
	return err
}

func (d *DocumentRef) patch(ctx context.Context, fields map[string]any, mask []string) (*Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return nil, client.InvalidArgument("%v", err)
	}
	body, err := client.JSONBody(map[string]any{"fields": encoded})
	if err != nil {
		return nil, err
	}

	u := d.url()
	if len(mask) > 0 {
		q := url.Values{}
		for _, m := range mask {
			q.Add("updateMask.fieldPaths", m)
		}
		q.Set("currentDocument.exists", "true")
		u += "?" + q.Encode()
	}

	var w wireDocument
	if _, err := d.f.c.ExecuteJSON(ctx, client.Call{
		Service: "firestore",
		URL:     u,
		Method:  http.MethodPatch,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    client.AuthBearer,
	}, &w); err != nil {
		return nil, err
	}
	return w.decode()
}

// CollectionRef addresses a collection.
type CollectionRef struct {
	f    *Client
	path string
	err  error
}

// ID returns the collection ID, the last path segment.
func (c *CollectionRef) ID() string { return c.path[strings.LastIndex(c.path, "/")+1:] }

// Path returns the collection path relative to the database root.
func (c *CollectionRef) Path() string { return c.path }

// Doc returns a document in this collection.
func (c *CollectionRef) Doc(id string) *DocumentRef {
	return c.f.Doc(c.path + "/" + cleanPath(id))
}

func (c *CollectionRef) url() string { return c.f.baseURL + "/" + c.path }

// parentURL is the runQuery parent: the documents root or the owning document.
func (c *CollectionRef) parentURL() string {
	idx := strings.LastIndex(c.path, "/")
	if idx < 0 {
		return c.f.baseURL
	}
	return c.f.baseURL + "/" + c.path[:idx]
}

// Add creates a document with a generated id.
func (c *CollectionRef) Add(ctx context.Context, fields map[string]any) (*Document, error) {
	if c.err != nil {
		return nil, c.err
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return nil, client.InvalidArgument("%v", err)
	}
	body, err := client.JSONBody(map[string]any{"fields": encoded})
	if err != nil {
		return nil, err
	}
	var w wireDocument
	if _, err := c.f.c.ExecuteJSON(ctx, client.Call{
		Service: "firestore",
		URL:     c.url(),
		Method:  http.MethodPost,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    client.AuthBearer,
	}, &w); err != nil {
		return nil, err
	}
	return w.decode()
}

// List returns up to pageSize documents (0 uses the backend default).
func (c *CollectionRef) List(ctx context.Context, pageSize int) ([]*Document, error) {
	if c.err != nil {
		return nil, c.err
	}
	if pageSize < 0 {
		return nil, client.InvalidArgument("pageSize must not be negative")
	}
	u := c.url()
	if pageSize > 0 {
		u += "?pageSize=" + strconv.Itoa(pageSize)
	}
	var out struct {
		Documents []wireDocument `json:"documents"`
	}
	if _, err := c.f.c.ExecuteJSON(ctx, client.Call{
		Service: "firestore",
		URL:     u,
		Method:  http.MethodGet,
		Auth:    client.AuthBearer,
	}, &out); err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(out.Documents))
	for i := range out.Documents {
		doc, err := out.Documents[i].decode()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func cleanPath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "/")
}

func segments(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/") + 1
}
