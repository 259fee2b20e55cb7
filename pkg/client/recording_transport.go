package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
)

// ErrNoScriptedResponse is returned by RecordingTransport when its queue is empty
// and no fallback is configured.
var ErrNoScriptedResponse = errors.New("recording transport: no scripted response")

// RecordingTransport is a scriptable Transport for tests. It records every
// request and answers from a FIFO queue, falling back to Handler if set.
type RecordingTransport struct {
	mu       sync.Mutex
	requests []Request
	queue    []scripted

	// Handler answers requests once the queue is drained.
	Handler func(req Request) (*Response, error)
}

type scripted struct {
	resp *Response
	err  error
}

// NewRecordingTransport returns an empty RecordingTransport.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{}
}

// Respond queues a response with the given status and raw body.
func (t *RecordingTransport) Respond(status int, body string) *RecordingTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, scripted{resp: &Response{StatusCode: status, Body: []byte(body), Header: http.Header{}}})
	return t
}

// RespondJSON queues a response whose body is v encoded as JSON.
func (t *RecordingTransport) RespondJSON(status int, v any) *RecordingTransport {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return t.Respond(status, string(data))
}

// Fail queues a connection failure.
func (t *RecordingTransport) Fail(err error) *RecordingTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, scripted{err: err})
	return t
}

// Send implements Transport.
func (t *RecordingTransport) Send(ctx context.Context, req Request) (*Response, error) {
	t.mu.Lock()
	t.requests = append(t.requests, cloneRequest(req))
	if len(t.queue) > 0 {
		next := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()
		return next.resp, next.err
	}
	handler := t.Handler
	t.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	return nil, ErrNoScriptedResponse
}

// Requests returns a copy of every request seen so far.
func (t *RecordingTransport) Requests() []Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// Count returns the number of requests seen so far.
func (t *RecordingTransport) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// Last returns the most recent request, or false if none was sent.
func (t *RecordingTransport) Last() (Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.requests) == 0 {
		return Request{}, false
	}
	return t.requests[len(t.requests)-1], true
}

func cloneRequest(req Request) Request {
	out := req
	if req.Body != nil {
		out.Body = append([]byte(nil), req.Body...)
	}
	if req.Headers != nil {
		out.Headers = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
