// Package fakebackend is an in-memory stand-in for the identity, token and
// real-time data-store endpoints. It backs the end-to-end tests and the
// serve-fake command; it is not a faithful emulator.
package fakebackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const issuer = "firerest-fake"

// OOBCode records an out-of-band email the backend would have sent.
type OOBCode struct {
	RequestType string
	Email       string
	// CorrelationID is the X-Correlation-ID of the request that asked for it.
	CorrelationID string
}

type user struct {
	UID           string
	Email         string
	PasswordHash  []byte
	DisplayName   string
	EmailVerified bool
	CreatedAt     time.Time
}

// Server holds all fake state behind one lock.
type Server struct {
	apiKey   string
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time

	mu     sync.RWMutex
	users  map[string]*user  // key: uid
	emails map[string]string // email -> uid
	oob    []OOBCode
	grants *grantStore
	tree   *tree

	refreshCount int
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued id tokens (default one hour).
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithSecret sets the HS256 signing secret.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = []byte(secret) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New returns a fake backend accepting apiKey.
func New(apiKey string, opts ...Option) *Server {
	s := &Server{
		apiKey:   apiKey,
		secret:   []byte("fake-backend-secret"),
		tokenTTL: time.Hour,
		now:      time.Now,
		users:    make(map[string]*user),
		emails:   make(map[string]string),
		tree:     &tree{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.grants = newGrantStore(30*24*time.Hour, s.now)
	return s
}

// Routes mounts the fake endpoints:
//
//	POST /v1/accounts:<op>  identity operations
//	POST /v1/token          refresh-token exchange
//	*    /db/<path>.json    data-store tree
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CorrelationMiddleware)
	r.Use(AccessLog)

	r.Post("/v1/token", s.exchangeRefreshToken)
	r.Post("/v1/{action}", s.accounts)
	r.HandleFunc("/db/*", s.database)
	return r
}

// OOBCodes returns the out-of-band emails requested so far.
func (s *Server) OOBCodes() []OOBCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OOBCode(nil), s.oob...)
}

// RefreshCount returns how many refresh-token exchanges succeeded.
func (s *Server) RefreshCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshCount
}

// RevokeRefreshTokens invalidates every refresh token held by uid.
func (s *Server) RevokeRefreshTokens(uid string) int {
	return s.grants.revokeUser(uid)
}

// MintCustomToken signs a custom token for uid that signInWithCustomToken
// accepts.
func (s *Server) MintCustomToken(uid string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"uid": uid,
		"iss": issuer,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) mintIDToken(u *user) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":            issuer,
		"sub":            u.UID,
		"user_id":        u.UID,
		"iat":            now.Unix(),
		"exp":            now.Add(s.tokenTTL).Unix(),
		"email_verified": u.EmailVerified,
	}
	if u.Email != "" {
		claims["email"] = u.Email
	}
	if u.DisplayName != "" {
		claims["name"] = u.DisplayName
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// verifyToken validates an HS256 token and returns its claims.
func (s *Server) verifyToken(raw string) (jwt.MapClaims, error) {
	if raw == "" {
		return nil, errors.New("missing token")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError writes the structured error envelope the identity service uses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors": []map[string]string{
				{"message": message, "domain": "global", "reason": "invalid"},
			},
		},
	})
}
