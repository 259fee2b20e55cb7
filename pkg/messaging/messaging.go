// Package messaging sends push notifications to device tokens, topics or
// topic conditions.
package messaging

import (
	"context"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/erauner12/firerest/pkg/client"
)

// MaxMulticastTokens is the largest token list SendMulticast accepts.
const MaxMulticastTokens = 500

// multicastConcurrency bounds in-flight sends per SendMulticast.
const multicastConcurrency = 16

// Notification is the user-visible part of a message.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

// Message targets exactly one of Token, Topic or Condition.
type Message struct {
	Token        string            `json:"token,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Condition    string            `json:"condition,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

func (m Message) validate() error {
	targets := 0
	for _, t := range []string{m.Token, m.Topic, m.Condition} {
		if t != "" {
			targets++
		}
	}
	if targets != 1 {
		return client.InvalidArgument("exactly one of token, topic or condition is required")
	}
	return nil
}

// MulticastMessage sends the same payload to many device tokens.
type MulticastMessage struct {
	Tokens       []string
	Notification *Notification
	Data         map[string]string
}

// SendResponse is the outcome for one token of a multicast.
type SendResponse struct {
	Token     string
	MessageID string
	Error     error
}

// Success reports whether the send was accepted.
func (r SendResponse) Success() bool { return r.Error == nil }

// BatchResponse collects per-token outcomes in input order.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResponse
}

// Messaging binds sends to a client.
type Messaging struct {
	c   *client.Client
	url string
}

// New returns the messaging facade for c.
func New(c *client.Client) *Messaging {
	return &Messaging{c: c, url: c.Settings().MessagingURL}
}

// Send delivers msg and returns the backend message id.
func (m *Messaging) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	body, err := client.JSONBody(map[string]any{"message": msg})
	if err != nil {
		return "", err
	}
	var out struct {
		Name string `json:"name"`
	}
	if _, err := m.c.ExecuteJSON(ctx, client.Call{
		Service: "messaging",
		URL:     m.url,
		Method:  http.MethodPost,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    client.AuthBearer,
	}, &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", client.InvalidResponse(nil, "send response has no message name")
	}
	return out.Name, nil
}

// SendMulticast sends one message per token concurrently. Per-token
// failures are reported in the BatchResponse, not as the returned error.
func (m *Messaging) SendMulticast(ctx context.Context, msg MulticastMessage) (*BatchResponse, error) {
	switch n := len(msg.Tokens); {
	case n == 0:
		return nil, client.InvalidArgument("multicast requires at least one token")
	case n > MaxMulticastTokens:
		return nil, client.InvalidArgument("multicast accepts at most %d tokens, got %d", MaxMulticastTokens, n)
	}
	for i, tok := range msg.Tokens {
		if tok == "" {
			return nil, client.InvalidArgument("token %d is empty", i)
		}
	}

	responses := make([]SendResponse, len(msg.Tokens))
	var failures atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(multicastConcurrency)
	for i, tok := range msg.Tokens {
		g.Go(func() error {
			id, err := m.Send(gctx, Message{
				Token:        tok,
				Notification: msg.Notification,
				Data:         msg.Data,
			})
			responses[i] = SendResponse{Token: tok, MessageID: id, Error: err}
			if err != nil {
				failures.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := int(failures.Load())
	m.c.Logger().Debug().
		Int("tokens", len(msg.Tokens)).
		Int("failed", failed).
		Msg("multicast complete")

	return &BatchResponse{
		SuccessCount: len(msg.Tokens) - failed,
		FailureCount: failed,
		Responses:    responses,
	}, nil
}
