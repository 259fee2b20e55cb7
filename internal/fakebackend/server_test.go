package fakebackend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/firerest/pkg/client"
	"github.com/erauner12/firerest/pkg/config"
	"github.com/erauner12/firerest/pkg/database"
)

const testKey = "fake-key"

func startFake(t *testing.T, opts ...Option) (*Server, *client.Client) {
	t.Helper()
	fake := New(testKey, opts...)
	srv := httptest.NewServer(fake.Routes())
	t.Cleanup(srv.Close)

	c, err := client.New(config.Settings{
		ProjectID:   "fake",
		APIKey:      testKey,
		AuthURL:     srv.URL + "/v1/accounts",
		TokenURL:    srv.URL + "/v1/token",
		DatabaseURL: srv.URL + "/db",
	}, client.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return fake, c
}

func TestPasswordAccountLifecycle(t *testing.T) {
	_, c := startFake(t)
	ctx := context.Background()

	id, err := c.Auth().SignUp(ctx, "Alice@Example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, id.UID)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.True(t, c.Auth().IsSignedIn())

	c.Auth().SignOut()
	assert.False(t, c.Auth().IsSignedIn())

	again, err := c.Auth().SignInWithPassword(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, id.UID, again.UID)

	_, err = c.Auth().SignUp(ctx, "alice@example.com", "other-pass")
	require.Error(t, err)
	assert.Equal(t, "400", client.CodeOf(err))
	assert.Contains(t, err.Error(), "EMAIL_EXISTS")
}

func TestWrongPasswordLeavesSessionEmpty(t *testing.T) {
	_, c := startFake(t)
	ctx := context.Background()

	_, err := c.Auth().SignUp(ctx, "bob@example.com", "correct-horse")
	require.NoError(t, err)
	c.Auth().SignOut()

	_, err = c.Auth().SignInWithPassword(ctx, "bob@example.com", "wrong")
	require.Error(t, err)

	var cerr *client.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "400", cerr.Code)
	assert.Equal(t, "INVALID_PASSWORD", cerr.Message)
	assert.Nil(t, c.Auth().CurrentUser())
}

func TestAnonymousAndCustomTokenSignIn(t *testing.T) {
	fake, c := startFake(t)
	ctx := context.Background()

	anon, err := c.Auth().SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.True(t, anon.IsAnonymous())

	token, err := fake.MintCustomToken("service-user")
	require.NoError(t, err)
	id, err := c.Auth().SignInWithCustomToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "service-user", id.UID)

	_, err = c.Auth().SignInWithCustomToken(ctx, "not-a-token")
	assert.Equal(t, "400", client.CodeOf(err))
	assert.Equal(t, "service-user", c.Auth().CurrentUser().UID)
}

func TestShortLivedTokensRefresh(t *testing.T) {
	fake, c := startFake(t, WithTokenTTL(2*time.Minute))
	ctx := context.Background()

	_, err := c.Auth().SignUp(ctx, "carol@example.com", "secret123")
	require.NoError(t, err)

	// Inside the refresh buffer from the start.
	token, err := c.Tokens().GetValidToken(ctx, false)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, fake.RefreshCount())
	assert.Equal(t, token, c.Session().Snapshot().AccessToken)

	uid := c.Auth().CurrentUser().UID
	assert.Equal(t, 1, fake.RevokeRefreshTokens(uid))
	_, err = c.Tokens().GetValidToken(ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_REFRESH_TOKEN")
	assert.Equal(t, uid, c.Auth().CurrentUser().UID)
}

func TestDatabaseRoundTrip(t *testing.T) {
	_, c := startFake(t)
	ctx := context.Background()
	db := database.New(c)

	_, err := c.Auth().SignUp(ctx, "dave@example.com", "secret123")
	require.NoError(t, err)

	users := db.Ref("users")
	require.NoError(t, users.Child("dave").Set(ctx, map[string]any{"name": "Dave", "age": 40}))
	require.NoError(t, users.Child("dave").Update(ctx, map[string]any{"age": 41, "city": "Oslo"}))

	var dave struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
		City string `json:"city"`
	}
	found, err := users.Child("dave").Get(ctx, &dave)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Dave", dave.Name)
	assert.Equal(t, 41, dave.Age)
	assert.Equal(t, "Oslo", dave.City)

	pushed, err := db.Ref("log").Push(ctx, map[string]string{"msg": "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pushed.Path(), "log/"))

	var keys map[string]bool
	found, err = db.Ref("").Shallow().Get(ctx, &keys)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]bool{"users": true, "log": true}, keys)

	require.NoError(t, pushed.Remove(ctx))
	found, err = db.Ref("log").Get(ctx, nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDatabaseRequiresAuth(t *testing.T) {
	_, c := startFake(t)

	_, err := database.New(c).Ref("secret").Get(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, client.CodeUnknown, client.CodeOf(err))
	assert.Contains(t, err.Error(), "Permission denied")
}

func TestOOBCodes(t *testing.T) {
	fake, c := startFake(t)
	ctx := context.Background()

	_, err := c.Auth().SignUp(ctx, "erin@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, c.Auth().SendEmailVerification(ctx))
	require.NoError(t, c.Auth().SendPasswordReset(ctx, "erin@example.com"))

	err = c.Auth().SendPasswordReset(ctx, "nobody@example.com")
	assert.Contains(t, err.Error(), "EMAIL_NOT_FOUND")

	codes := fake.OOBCodes()
	require.Len(t, codes, 2)
	assert.NotEmpty(t, codes[0].CorrelationID)
	assert.NotEmpty(t, codes[1].CorrelationID)
	assert.NotEqual(t, codes[0].CorrelationID, codes[1].CorrelationID)

	for i := range codes {
		codes[i].CorrelationID = ""
	}
	assert.Equal(t, []OOBCode{
		{RequestType: "VERIFY_EMAIL", Email: "erin@example.com"},
		{RequestType: "PASSWORD_RESET", Email: "erin@example.com"},
	}, codes)
}

func TestRejectsWrongAPIKey(t *testing.T) {
	fake := New(testKey)
	srv := httptest.NewServer(fake.Routes())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/accounts:signUp?key=wrong", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set("X-Correlation-ID", "corr-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "corr-1", resp.Header.Get("X-Correlation-ID"))
}
