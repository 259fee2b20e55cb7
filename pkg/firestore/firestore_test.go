package firestore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/firerest/pkg/client"
	"github.com/erauner12/firerest/pkg/config"
)

const docsRoot = "https://firestore.googleapis.com/v1/projects/demo/databases/(default)/documents"

func newTestFirestore(t *testing.T) (*Client, *client.RecordingTransport) {
	t.Helper()
	transport := client.NewRecordingTransport()
	c, err := client.New(config.Settings{
		ProjectID:   "demo",
		APIKey:      "key",
		DatabaseURL: "https://demo.firebaseio.com",
	}, client.WithTransport(transport), client.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	transport.RespondJSON(200, map[string]any{
		"localId": "u1", "idToken": "fs-token", "refreshToken": "r", "expiresIn": "3600",
	})
	_, err = c.Auth().SignInWithPassword(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	return New(c), transport
}

type profile struct {
	Name  string
	Age   int64
	Admin bool
}

func (p *profile) ToFields() map[string]any {
	return map[string]any{"name": p.Name, "age": p.Age, "admin": p.Admin}
}

func (p *profile) FromFields(f map[string]any) error {
	var ok bool
	if p.Name, ok = f["name"].(string); !ok {
		return fmt.Errorf("name: unexpected %T", f["name"])
	}
	if p.Age, ok = f["age"].(int64); !ok {
		return fmt.Errorf("age: unexpected %T", f["age"])
	}
	p.Admin, _ = f["admin"].(bool)
	return nil
}

func TestPaths(t *testing.T) {
	fs, _ := newTestFirestore(t)

	doc := fs.Collection("/users/").Doc("alice")
	assert.Equal(t, "users/alice", doc.Path())
	assert.Equal(t, "alice", doc.ID())
	assert.Equal(t, "users", doc.Parent().Path())

	sub := doc.Collection("posts")
	assert.Equal(t, "users/alice/posts", sub.Path())
	assert.Equal(t, "posts", sub.ID())
	assert.Equal(t, docsRoot+"/users/alice", sub.parentURL())
	assert.Equal(t, docsRoot, fs.Collection("users").parentURL())
}

func TestInvalidPathsFailBeforeNetwork(t *testing.T) {
	fs, transport := newTestFirestore(t)
	before := transport.Count()

	_, err := fs.Doc("users").Get(context.Background())
	assert.True(t, client.IsCode(err, client.CodeInvalidArgument))

	_, err = fs.Collection("users/alice").Add(context.Background(), map[string]any{"a": 1})
	assert.True(t, client.IsCode(err, client.CodeInvalidArgument))

	assert.Equal(t, before, transport.Count())
}

func TestDocumentGet(t *testing.T) {
	fs, transport := newTestFirestore(t)
	transport.Respond(200, `{
		"name": "projects/demo/databases/(default)/documents/users/alice",
		"fields": {
			"name": {"stringValue": "Alice"},
			"age": {"integerValue": "30"},
			"admin": {"booleanValue": true}
		},
		"createTime": "2026-01-01T00:00:00Z",
		"updateTime": "2026-01-02T00:00:00Z"
	}`)

	doc, err := fs.Doc("users/alice").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", doc.ID())

	var p profile
	require.NoError(t, doc.DataTo(&p))
	assert.Equal(t, profile{Name: "Alice", Age: 30, Admin: true}, p)

	req, _ := transport.Last()
	assert.Equal(t, docsRoot+"/users/alice", req.URL)
	assert.Equal(t, "Bearer fs-token", req.Headers["Authorization"])
}

func TestDocumentGet_NotFound(t *testing.T) {
	fs, transport := newTestFirestore(t)
	transport.Respond(404, `{"error":{"code":404,"message":"Document not found","status":"NOT_FOUND"}}`)

	_, err := fs.Doc("users/ghost").Get(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDocumentSetData(t *testing.T) {
	fs, transport := newTestFirestore(t)
	transport.Respond(200, `{"name":"projects/demo/databases/(default)/documents/users/bob","fields":{"name":{"stringValue":"Bob"},"age":{"integerValue":"41"},"admin":{"booleanValue":false}}}`)

	_, err := fs.Doc("users/bob").SetData(context.Background(), &profile{Name: "Bob", Age: 41})
	require.NoError(t, err)

	req, _ := transport.Last()
	assert.Equal(t, http.MethodPatch, req.Method)
	assert.JSONEq(t, `{"fields":{
		"name":{"stringValue":"Bob"},
		"age":{"integerValue":"41"},
		"admin":{"booleanValue":false}
	}}`, string(req.Body))
}

func TestDocumentUpdate_UsesFieldMask(t *testing.T) {
	fs, transport := newTestFirestore(t)
	transport.Respond(200, `{"name":"x/users/bob","fields":{}}`)

	_, err := fs.Doc("users/bob").Update(context.Background(), map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)

	req, _ := transport.Last()
	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, u.Query()["updateMask.fieldPaths"])
	assert.Equal(t, "true", u.Query().Get("currentDocument.exists"))
}

func TestCollectionAddAndList(t *testing.T) {
	fs, transport := newTestFirestore(t)
	ctx := context.Background()

	transport.Respond(200, `{"name":"x/users/generated","fields":{"n":{"integerValue":"1"}}}`)
	doc, err := fs.Collection("users").Add(ctx, map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, "generated", doc.ID())
	req, _ := transport.Last()
	assert.Equal(t, http.MethodPost, req.Method)

	transport.Respond(200, `{"documents":[{"name":"x/users/a","fields":{}},{"name":"x/users/b","fields":{}}]}`)
	docs, err := fs.Collection("users").List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	req, _ = transport.Last()
	assert.Contains(t, req.URL, "pageSize=2")

	transport.Respond(200, `{}`)
	docs, err = fs.Collection("users").List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestQuery_BuildsStructuredQuery(t *testing.T) {
	fs, transport := newTestFirestore(t)
	transport.Respond(200, `[
		{"readTime":"2026-01-01T00:00:00Z","document":{"name":"x/users/a","fields":{"age":{"integerValue":"40"}}}},
		{"readTime":"2026-01-01T00:00:00Z"}
	]`)

	docs, err := fs.Collection("users").
		Where("age", ">=", 18).
		Where("active", "==", true).
		OrderBy("age", Desc).
		Limit(10).
		Get(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, int64(40), docs[0].Fields["age"])

	req, _ := transport.Last()
	assert.Equal(t, docsRoot+":runQuery", req.URL)

	var body map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &body))
	sq := body["structuredQuery"].(map[string]any)
	assert.Equal(t, float64(10), sq["limit"])
	where := sq["where"].(map[string]any)["compositeFilter"].(map[string]any)
	assert.Equal(t, "AND", where["op"])
	assert.Len(t, where["filters"], 2)
}

func TestQuery_ConsumedOnce(t *testing.T) {
	fs, transport := newTestFirestore(t)
	transport.Respond(200, `[]`)

	q := fs.Collection("users").Limit(1)
	_, err := q.Get(context.Background())
	require.NoError(t, err)

	before := transport.Count()
	_, err = q.Get(context.Background())
	assert.True(t, client.IsCode(err, client.CodeInvalidArgument))
	assert.Equal(t, before, transport.Count())
}

func TestQuery_InvalidClauses(t *testing.T) {
	fs, _ := newTestFirestore(t)

	_, err := fs.Collection("users").Where("age", "~", 1).Get(context.Background())
	assert.True(t, client.IsCode(err, client.CodeInvalidArgument))

	_, err = fs.Collection("users").OrderBy("age", "sideways").Get(context.Background())
	assert.True(t, client.IsCode(err, client.CodeInvalidArgument))

	_, err = fs.Collection("users").Limit(0).Get(context.Background())
	assert.True(t, client.IsCode(err, client.CodeInvalidArgument))
}

func TestValueCodec(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	in := map[string]any{
		"null":   nil,
		"str":    "s",
		"int":    42,
		"float":  1.5,
		"bool":   true,
		"time":   ts,
		"bytes":  []byte("hi"),
		"geo":    GeoPoint{Latitude: 1, Longitude: 2},
		"list":   []any{"a", int64(1)},
		"nested": map[string]any{"k": "v"},
		"tags":   []string{"x", "y"},
	}

	encoded, err := encodeFields(in)
	require.NoError(t, err)
	data, err := json.Marshal(encoded)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	out, err := decodeFields(raw)
	require.NoError(t, err)

	assert.Nil(t, out["null"])
	assert.Equal(t, "s", out["str"])
	assert.Equal(t, int64(42), out["int"])
	assert.Equal(t, 1.5, out["float"])
	assert.Equal(t, true, out["bool"])
	assert.True(t, ts.Equal(out["time"].(time.Time)))
	assert.Equal(t, []byte("hi"), out["bytes"])
	assert.Equal(t, GeoPoint{Latitude: 1, Longitude: 2}, out["geo"])
	assert.Equal(t, []any{"a", int64(1)}, out["list"])
	assert.Equal(t, map[string]any{"k": "v"}, out["nested"])
	assert.Equal(t, []any{"x", "y"}, out["tags"])
}

func TestValueCodec_RejectsUnknownType(t *testing.T) {
	_, err := decodeValue(json.RawMessage(`{"mysteryValue": 1}`))
	assert.Error(t, err)
}
