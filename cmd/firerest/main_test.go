package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/firerest/internal/fakebackend"
)

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "firerest.yaml")
	cfg := fmt.Sprintf(`project_id: cli-test
api_key: cli-key
auth_url: %[1]s/v1/accounts
token_url: %[1]s/v1/token
database_url: %[1]s/db
`, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{out: &out}
	err := a.execute(context.Background(), args)
	return out.String(), err
}

func TestCLI_AgainstFakeBackend(t *testing.T) {
	srv := httptest.NewServer(fakebackend.New("cli-key").Routes())
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)
	creds := []string{"--config", cfg, "--email", "cli@example.com", "--password", "secret123"}

	out, err := run(t, append([]string{"signup"}, creds...)...)
	require.NoError(t, err)
	var id map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &id))
	assert.Equal(t, "cli@example.com", id["email"])

	_, err = run(t, append([]string{"db", "set", "notes/n1", `{"text":"hi"}`}, creds...)...)
	require.NoError(t, err)

	out, err = run(t, append([]string{"db", "get", "notes/n1"}, creds...)...)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, out)

	out, err = run(t, append([]string{"token"}, creds...)...)
	require.NoError(t, err)
	var tok map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tok))
	assert.NotEmpty(t, tok["token"])
	assert.Equal(t, id["uid"], tok["uid"])
}

func TestCLI_Errors(t *testing.T) {
	srv := httptest.NewServer(fakebackend.New("cli-key").Routes())
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)

	_, err := run(t, "signin", "--config", cfg, "--email", "nobody@example.com", "--password", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_NOT_FOUND")

	_, err = run(t, "db", "set", "x", "{not json", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")

	_, err = run(t, "signin", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email is required")
}

func TestCLI_ReleasesResourcesWhenCommandFails(t *testing.T) {
	srv := httptest.NewServer(fakebackend.New("cli-key").Routes())
	defer srv.Close()
	cfg := writeConfig(t, srv.URL)

	released := 0
	a := &app{out: &bytes.Buffer{}}
	a.cleanup = append(a.cleanup, func() { released++ })

	err := a.execute(context.Background(), []string{
		"db", "get", "x", "--config", cfg, "--email", "nobody@example.com", "--password", "x",
	})
	require.Error(t, err)
	assert.Equal(t, 1, released)
	assert.Empty(t, a.cleanup)
}
