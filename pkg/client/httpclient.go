package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/firerest/internal/metrics"
	"github.com/erauner12/firerest/pkg/config"
)

// Client is the authenticated request pipeline shared by every facade.
// Each call:
//   - attaches the session token (bearer header or auth= query) when the
//     call asks for it and someone is signed in
//   - injects X-Correlation-ID
//   - sends once through the Transport (no retries)
//   - normalizes failures into *Error
type Client struct {
	settings  config.Settings
	transport Transport
	session   *Session
	tokens    *TokenManager
	auth      *Auth
	logger    zerolog.Logger
}

// Option configures a Client.
type Option func(*options)

type options struct {
	transport Transport
	session   *Session
	logger    *zerolog.Logger
	clock     func() time.Time
	coalesce  bool
}

// WithTransport replaces the default HTTPTransport.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithSession shares an existing session between clients.
func WithSession(s *Session) Option {
	return func(o *options) { o.session = s }
}

// WithLogger sets the logger; the default is the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithClock overrides time.Now for expiry arithmetic. It only applies to
// the session New creates; a session passed with WithSession keeps its own
// clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithRefreshCoalescing makes concurrent refreshes share one request.
func WithRefreshCoalescing() Option {
	return func(o *options) { o.coalesce = true }
}

// New validates settings and builds a client.
func New(settings config.Settings, opts ...Option) (*Client, error) {
	settings = settings.WithDefaults()
	if err := settings.Validate(); err != nil {
		return nil, InvalidArgument("%v", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = NewHTTPTransport()
	}
	if o.session == nil {
		o.session = NewSession()
		if o.clock != nil {
			o.session.now = o.clock
		}
	}
	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	logger = logger.With().Str("project", settings.ProjectID).Logger()

	c := &Client{
		settings:  settings,
		transport: o.transport,
		session:   o.session,
		logger:    logger,
	}
	c.tokens = &TokenManager{
		session:   c.session,
		transport: c.transport,
		tokenURL:  settings.TokenURL,
		apiKey:    settings.APIKey,
		logger:    logger.With().Str("component", "tokens").Logger(),
		coalesce:  o.coalesce,
	}
	c.auth = &Auth{c: c}
	return c, nil
}

// Settings returns the client's copy of its settings.
func (c *Client) Settings() config.Settings { return c.settings }

// Session returns the shared session state.
func (c *Client) Session() *Session { return c.session }

// Tokens returns the token lifecycle manager.
func (c *Client) Tokens() *TokenManager { return c.tokens }

// Auth returns the identity operations.
func (c *Client) Auth() *Auth { return c.auth }

// Logger returns the client's logger for facades.
func (c *Client) Logger() *zerolog.Logger { return &c.logger }

// Execute runs one call through the pipeline and returns the raw response
// on success.
func (c *Client) Execute(ctx context.Context, call Call) (*Response, error) {
	correlationID := uuid.New().String()

	logger := c.logger.With().
		Str("service", call.Service).
		Str("method", call.Method).
		Str("url", redactURL(call.URL)).
		Str("correlationId", correlationID).
		Logger()

	req := Request{
		URL:     call.URL,
		Method:  call.Method,
		Body:    call.Body,
		Headers: make(map[string]string, len(call.Headers)+2),
	}
	for k, v := range call.Headers {
		req.Headers[k] = v
	}
	req.Headers["X-Correlation-ID"] = correlationID

	if call.Auth != AuthNone && c.session.CurrentIdentity() != nil {
		c.attachToken(ctx, &req, call.Auth, &logger)
	}

	start := time.Now()
	resp, sendErr := c.transport.Send(ctx, req)
	duration := time.Since(start)

	if err := Normalize(resp, sendErr); err != nil {
		metrics.ObserveRequest(call.Service, call.Method, CodeOf(err), duration)
		if sendErr != nil {
			logger.Error().Err(sendErr).Dur("duration", duration).Msg("request failed")
		} else {
			logger.Debug().
				Int("status", resp.StatusCode).
				Str("code", CodeOf(err)).
				Dur("duration", duration).
				Msg("request returned error")
		}
		return nil, err
	}

	metrics.ObserveRequest(call.Service, call.Method, metrics.OutcomeOK, duration)
	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("request completed")

	return resp, nil
}

// ExecuteJSON runs call and decodes the body into out. An empty or "null"
// body reports found=false without error.
func (c *Client) ExecuteJSON(ctx context.Context, call Call, out any) (bool, error) {
	resp, err := c.Execute(ctx, call)
	if err != nil {
		return false, err
	}
	return decodeBody(resp.Body, out)
}

// JSONBody encodes v for use as a Call body.
func JSONBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, InvalidArgument("cannot encode body: %v", err)
	}
	return data, nil
}

// attachToken never fails the call: a missing or unrefreshable token
// downgrades it to an unauthenticated request.
func (c *Client) attachToken(ctx context.Context, req *Request, mode AuthMode, logger *zerolog.Logger) {
	token, err := c.tokens.GetValidToken(ctx, false)
	if err != nil {
		logger.Warn().Err(err).Msg("could not obtain token, sending unauthenticated")
		return
	}

	switch mode {
	case AuthBearer:
		req.Headers["Authorization"] = fmt.Sprintf("Bearer %s", token)
	case AuthQuery:
		u, err := url.Parse(req.URL)
		if err != nil {
			logger.Warn().Err(err).Msg("could not attach query token, sending unauthenticated")
			return
		}
		q := u.Query()
		q.Set("auth", token)
		u.RawQuery = q.Encode()
		req.URL = u.String()
	}
	logger.Debug().Str("mode", mode.String()).Msg("attached token")
}

func decodeBody(body []byte, out any) (bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return false, InvalidResponse(err, "cannot decode response")
	}
	return true, nil
}

// redactURL drops the query string, which may carry the API key or a token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	u.RawQuery = ""
	return u.String()
}
