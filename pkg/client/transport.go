package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Request is one outbound call handed to a Transport.
type Request struct {
	URL     string
	Method  string
	Body    []byte
	Headers map[string]string
}

// Response is the normalized result of a call that reached the server.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Success reports a 2xx status.
func (r *Response) Success() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Transport sends a single request. A non-nil error means no response
// reached the caller; HTTP failures are reported through the Response.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// HTTPTransport is the production Transport backed by net/http.
type HTTPTransport struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) { t.httpClient = c }
}

// WithRateLimit caps outbound requests per second with the given burst.
// Callers wait for a slot; a cancelled context aborts the wait.
func WithRateLimit(perSecond float64, burst int) HTTPTransportOption {
	return func(t *HTTPTransport) { t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewHTTPTransport creates a transport with a 30s timeout.
func NewHTTPTransport(opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req Request) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Header:     resp.Header,
	}, nil
}
