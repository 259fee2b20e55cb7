package client

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestSignInWithPassword_Success(t *testing.T) {
	transport := NewRecordingTransport()
	c := newTestClient(t, transport, newFakeClock())

	transport.RespondJSON(200, map[string]any{
		"localId":      "test-user-id",
		"email":        "test@example.com",
		"idToken":      "test-token-abc",
		"refreshToken": "test-refresh",
		"expiresIn":    "3600",
	})

	identity, err := c.Auth().SignInWithPassword(context.Background(), "test@example.com", "testpassword123")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if identity.UID != "test-user-id" {
		t.Errorf("uid = %q", identity.UID)
	}
	if !c.Auth().IsSignedIn() {
		t.Error("expected signed in")
	}

	token, err := c.Tokens().GetValidToken(context.Background(), false)
	if err != nil {
		t.Fatalf("GetValidToken failed: %v", err)
	}
	if !strings.Contains(token, "test-token") {
		t.Errorf("token = %q", token)
	}
	if transport.Count() != 1 {
		t.Errorf("expected 1 network call, got %d", transport.Count())
	}

	req, _ := transport.Last()
	if req.URL != "https://auth.test/v1/accounts:signInWithPassword?key=test-key" {
		t.Errorf("unexpected URL: %s", req.URL)
	}
	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["email"] != "test@example.com" || body["password"] != "testpassword123" || body["returnSecureToken"] != true {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestSignInWithPassword_BackendErrorLeavesSessionEmpty(t *testing.T) {
	transport := NewRecordingTransport()
	c := newTestClient(t, transport, newFakeClock())

	notified := 0
	c.Auth().OnAuthStateChanged(func(*Identity) { notified++ })

	transport.Respond(400, `{"error":{"code":400,"message":"INVALID_PASSWORD"}}`)

	_, err := c.Auth().SignInWithPassword(context.Background(), "test@example.com", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if e.Code != "400" || e.Message != "INVALID_PASSWORD" {
		t.Errorf("got %q/%q", e.Code, e.Message)
	}

	snap := c.Session().Snapshot()
	if snap.Identity != nil || snap.AccessToken != "" || snap.RefreshToken != "" || !snap.ExpiresAt.IsZero() {
		t.Errorf("session not empty after failure: %+v", snap)
	}
	if notified != 0 {
		t.Errorf("observers notified %d times on failure", notified)
	}
}

func TestAuth_ArgumentValidationBeforeNetwork(t *testing.T) {
	transport := NewRecordingTransport()
	c := newTestClient(t, transport, newFakeClock())
	ctx := context.Background()

	if _, err := c.Auth().SignInWithPassword(ctx, "", "pw"); !IsCode(err, CodeInvalidArgument) {
		t.Errorf("empty email: %v", err)
	}
	if _, err := c.Auth().SignUp(ctx, "a@b.c", ""); !IsCode(err, CodeInvalidArgument) {
		t.Errorf("empty password: %v", err)
	}
	if _, err := c.Auth().SignInWithCustomToken(ctx, "  "); !IsCode(err, CodeInvalidArgument) {
		t.Errorf("empty custom token: %v", err)
	}
	if err := c.Auth().SendPasswordReset(ctx, ""); !IsCode(err, CodeInvalidArgument) {
		t.Errorf("empty reset email: %v", err)
	}
	if transport.Count() != 0 {
		t.Errorf("expected no network calls, got %d", transport.Count())
	}
}

func TestSignInAnonymously(t *testing.T) {
	transport := NewRecordingTransport()
	c := newTestClient(t, transport, newFakeClock())

	transport.RespondJSON(200, map[string]any{
		"localId":      "anon-1",
		"idToken":      "anon-token",
		"refreshToken": "anon-refresh",
		"expiresIn":    "3600",
	})

	identity, err := c.Auth().SignInAnonymously(context.Background())
	if err != nil {
		t.Fatalf("anonymous sign in failed: %v", err)
	}
	if !identity.IsAnonymous() {
		t.Error("expected anonymous identity")
	}
	req, _ := transport.Last()
	if !strings.Contains(req.URL, ":signUp?") {
		t.Errorf("unexpected URL: %s", req.URL)
	}
}

func TestSendEmailVerification(t *testing.T) {
	t.Run("requires sign in", func(t *testing.T) {
		transport := NewRecordingTransport()
		c := newTestClient(t, transport, newFakeClock())
		if err := c.Auth().SendEmailVerification(context.Background()); !IsCode(err, CodeNotSignedIn) {
			t.Fatalf("expected %s, got %v", CodeNotSignedIn, err)
		}
	})

	t.Run("sends id token", func(t *testing.T) {
		transport := NewRecordingTransport()
		c := signedInClient(t, transport, newFakeClock())
		transport.RespondJSON(200, map[string]any{"email": "test@example.com"})

		if err := c.Auth().SendEmailVerification(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		req, _ := transport.Last()
		var body map[string]any
		_ = json.Unmarshal(req.Body, &body)
		if body["requestType"] != "VERIFY_EMAIL" || body["idToken"] != "initial-token" {
			t.Errorf("unexpected body: %v", body)
		}
	})
}

func TestSignOut_ClearsAndNotifies(t *testing.T) {
	transport := NewRecordingTransport()
	c := signedInClient(t, transport, newFakeClock())

	var got []*Identity
	c.Auth().OnAuthStateChanged(func(id *Identity) { got = append(got, id) })

	c.Auth().SignOut()

	if c.Auth().CurrentUser() != nil || c.Auth().IsSignedIn() {
		t.Error("still signed in after sign out")
	}
	if len(got) != 1 || got[0] != nil {
		t.Errorf("unexpected notifications: %v", got)
	}
}
