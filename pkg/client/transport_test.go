package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTransport_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("missing header")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"a":1}` {
			t.Errorf("unexpected body: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	tr := NewHTTPTransport()
	resp, err := tr.Send(context.Background(), Request{
		URL:     server.URL + "/path",
		Method:  http.MethodPut,
		Body:    []byte(`{"a":1}`),
		Headers: map[string]string{"X-Test": "yes"},
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || !resp.Success() {
		t.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.Text() != `{"ok":true}` {
		t.Errorf("unexpected body: %s", resp.Text())
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("headers not propagated")
	}
}

func TestHTTPTransport_ErrorStatusIsAResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	resp, err := NewHTTPTransport().Send(context.Background(), Request{URL: server.URL, Method: http.MethodGet})
	if err != nil {
		t.Fatalf("HTTP errors must not be transport errors: %v", err)
	}
	if resp.Success() {
		t.Error("500 reported as success")
	}
}

func TestHTTPTransport_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	resp, err := NewHTTPTransport().Send(context.Background(), Request{URL: addr, Method: http.MethodGet})
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !IsCode(Normalize(resp, err), CodeConnection) {
		t.Errorf("expected %s", CodeConnection)
	}
}

func TestHTTPTransport_RateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := NewHTTPTransport(WithRateLimit(0.001, 1))
	if _, err := tr.Send(context.Background(), Request{URL: server.URL, Method: http.MethodGet}); err != nil {
		t.Fatalf("first request should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := tr.Send(ctx, Request{URL: server.URL, Method: http.MethodGet}); err == nil {
		t.Error("expected rate limiter to refuse within the deadline")
	}
}

func TestRecordingTransport_QueueThenHandler(t *testing.T) {
	rt := NewRecordingTransport()
	rt.Respond(201, "first")
	rt.Handler = func(req Request) (*Response, error) {
		return &Response{StatusCode: 200, Body: []byte("fallback")}, nil
	}

	r1, _ := rt.Send(context.Background(), Request{URL: "a"})
	r2, _ := rt.Send(context.Background(), Request{URL: "b"})

	if r1.Text() != "first" || r2.Text() != "fallback" {
		t.Errorf("got %q, %q", r1.Text(), r2.Text())
	}
	if rt.Count() != 2 {
		t.Errorf("count = %d", rt.Count())
	}
}

func TestRecordingTransport_EmptyQueue(t *testing.T) {
	_, err := NewRecordingTransport().Send(context.Background(), Request{})
	if err != ErrNoScriptedResponse {
		t.Errorf("expected ErrNoScriptedResponse, got %v", err)
	}
}
