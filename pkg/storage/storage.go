// Package storage is the object-storage facade. Objects live in a single
// bucket and are addressed by slash-delimited paths.
package storage

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erauner12/firerest/pkg/client"
)

// Storage binds references to a client and its bucket endpoint.
type Storage struct {
	c       *client.Client
	baseURL string
	bucket  string
}

// New returns the object-storage facade for c.
func New(c *client.Client) *Storage {
	s := c.Settings()
	return &Storage{c: c, baseURL: s.StorageURL, bucket: s.StorageBucket}
}

// Bucket returns the bucket name.
func (s *Storage) Bucket() string { return s.bucket }

// Ref returns a reference to the object at path.
func (s *Storage) Ref(path string) *Reference {
	return &Reference{s: s, path: cleanPath(path)}
}

// Metadata describes a stored object.
type Metadata struct {
	Name           string    `json:"name"`
	Bucket         string    `json:"bucket"`
	ContentType    string    `json:"contentType"`
	Size           int64     `json:"size,string"`
	MD5Hash        string    `json:"md5Hash,omitempty"`
	TimeCreated    time.Time `json:"timeCreated"`
	Updated        time.Time `json:"updated"`
	DownloadTokens string    `json:"downloadTokens,omitempty"`
}

// Reference is an immutable object location.
type Reference struct {
	s    *Storage
	path string
}

// Path returns the normalized object path.
func (r *Reference) Path() string { return r.path }

// Name returns the last path segment.
func (r *Reference) Name() string {
	return r.path[strings.LastIndex(r.path, "/")+1:]
}

// Child returns a reference below r.
func (r *Reference) Child(path string) *Reference {
	return r.s.Ref(r.path + "/" + path)
}

// objectURL escapes the whole path, slashes included, as one segment.
func (r *Reference) objectURL() string {
	return r.s.baseURL + "/" + url.PathEscape(r.path)
}

func (r *Reference) check() error {
	if r.path == "" {
		return client.InvalidArgument("object path is required")
	}
	return nil
}

// Upload stores data at r, replacing any existing object.
func (r *Reference) Upload(ctx context.Context, data []byte, contentType string) (*Metadata, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", r.path)

	var meta Metadata
	if _, err := r.s.c.ExecuteJSON(ctx, client.Call{
		Service: "storage",
		URL:     r.s.baseURL + "?" + q.Encode(),
		Method:  http.MethodPost,
		Body:    data,
		Headers: map[string]string{"Content-Type": contentType},
		Auth:    client.AuthBearer,
	}, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Download returns the object content.
func (r *Reference) Download(ctx context.Context) ([]byte, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	resp, err := r.s.c.Execute(ctx, client.Call{
		Service: "storage",
		URL:     r.objectURL() + "?alt=media",
		Method:  http.MethodGet,
		Auth:    client.AuthBearer,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Metadata fetches the object metadata.
func (r *Reference) Metadata(ctx context.Context) (*Metadata, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	var meta Metadata
	found, err := r.s.c.ExecuteJSON(ctx, client.Call{
		Service: "storage",
		URL:     r.objectURL(),
		Method:  http.MethodGet,
		Auth:    client.AuthBearer,
	}, &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, client.InvalidResponse(nil, "empty metadata for %s", r.path)
	}
	return &meta, nil
}

// Delete removes the object.
func (r *Reference) Delete(ctx context.Context) error {
	if err := r.check(); err != nil {
		return err
	}
	_, err := r.s.c.Execute(ctx, client.Call{
		Service: "storage",
		URL:     r.objectURL(),
		Method:  http.MethodDelete,
		Auth:    client.AuthBearer,
	})
	return err
}

// DownloadURL returns a public URL built from the object's first download
// token.
func (r *Reference) DownloadURL(ctx context.Context) (string, error) {
	meta, err := r.Metadata(ctx)
	if err != nil {
		return "", err
	}
	token, _, _ := strings.Cut(meta.DownloadTokens, ",")
	if token == "" {
		return "", client.InvalidResponse(nil, "object %s has no download token", r.path)
	}
	q := url.Values{}
	q.Set("alt", "media")
	q.Set("token", token)
	return r.objectURL() + "?" + q.Encode(), nil
}

func cleanPath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "/")
}
