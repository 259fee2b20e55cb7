package client

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/erauner12/firerest/pkg/config"
)

// fakeClock is a settable clock shared by a test client.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testSettings() config.Settings {
	return config.Settings{
		ProjectID:   "demo",
		APIKey:      "test-key",
		DatabaseURL: "https://demo.firebaseio.com",
		AuthURL:     "https://auth.test/v1/accounts",
		TokenURL:    "https://token.test/v1/token",
	}
}

func newTestClient(t *testing.T, transport Transport, clock *fakeClock, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithTransport(transport),
		WithClock(clock.Now),
		WithLogger(zerolog.Nop()),
	}, opts...)
	c, err := New(testSettings(), opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func signInResponse(uid, token, refresh, expiresIn string) map[string]any {
	return map[string]any{
		"localId":      uid,
		"email":        "test@example.com",
		"idToken":      token,
		"refreshToken": refresh,
		"expiresIn":    expiresIn,
		"registered":   true,
	}
}

func refreshResponseBody(token, refresh, expiresIn string) map[string]any {
	return map[string]any{
		"id_token":      token,
		"access_token":  token,
		"refresh_token": refresh,
		"expires_in":    expiresIn,
		"token_type":    "Bearer",
		"user_id":       "test-user-id",
	}
}
