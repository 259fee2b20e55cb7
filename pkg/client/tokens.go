package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/erauner12/firerest/internal/metrics"
)

// TokenRefreshBuffer is the time before expiry at which a cached token is
// treated as stale and refreshed.
const TokenRefreshBuffer = 5 * time.Minute

// TokenManager keeps the session's access token valid. It never holds the
// session lock across a network call.
type TokenManager struct {
	session   *Session
	transport Transport
	tokenURL  string
	apiKey    string
	logger    zerolog.Logger

	// coalesce shares one in-flight refresh between concurrent callers.
	coalesce bool
	sf       singleflight.Group
}

// authResponse covers signInWithPassword, signUp and signInWithCustomToken.
type authResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
}

// refreshResponse is the token endpoint payload.
type refreshResponse struct {
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	UserID       string `json:"user_id"`
}

// GetValidToken returns the cached access token when it is more than
// TokenRefreshBuffer away from expiry, refreshing it otherwise or when
// forceRefresh is set.
func (tm *TokenManager) GetValidToken(ctx context.Context, forceRefresh bool) (string, error) {
	snap := tm.session.Snapshot()
	if snap.Identity == nil || snap.AccessToken == "" {
		return "", newError(CodeNotSignedIn, "no user is signed in")
	}

	if !forceRefresh && tm.session.now().Add(TokenRefreshBuffer).Before(snap.ExpiresAt) {
		tm.logger.Debug().
			Time("expiresAt", snap.ExpiresAt).
			Msg("using cached token")
		return snap.AccessToken, nil
	}

	return tm.Refresh(ctx)
}

// Refresh exchanges the refresh token for a new credential triple. The
// identity is kept; only the tokens and expiry change.
func (tm *TokenManager) Refresh(ctx context.Context) (string, error) {
	if !tm.coalesce {
		return tm.refresh(ctx)
	}
	v, err, shared := tm.sf.Do("refresh", func() (any, error) {
		return tm.refresh(ctx)
	})
	if shared {
		tm.logger.Debug().Msg("joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (tm *TokenManager) refresh(ctx context.Context) (string, error) {
	snap := tm.session.Snapshot()
	if snap.RefreshToken == "" || snap.Identity == nil {
		return "", newError(CodeNoRefreshToken, "no refresh token available")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", snap.RefreshToken)

	req := Request{
		URL:    withAPIKey(tm.tokenURL, tm.apiKey),
		Method: http.MethodPost,
		Body:   []byte(form.Encode()),
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
	}

	tm.logger.Debug().Str("uid", snap.Identity.UID).Msg("refreshing token")

	resp, sendErr := tm.transport.Send(ctx, req)
	if err := Normalize(resp, sendErr); err != nil {
		metrics.ObserveRefresh("error")
		tm.logger.Warn().Err(err).Msg("token refresh failed")
		return "", err
	}

	var rr refreshResponse
	if err := json.Unmarshal(resp.Body, &rr); err != nil {
		metrics.ObserveRefresh("error")
		return "", InvalidResponse(err, "malformed refresh response")
	}
	accessToken := rr.IDToken
	if accessToken == "" {
		accessToken = rr.AccessToken
	}
	if accessToken == "" {
		metrics.ObserveRefresh("error")
		return "", InvalidResponse(nil, "refresh response has no token")
	}
	expiresIn, err := parseExpiresIn(rr.ExpiresIn)
	if err != nil {
		metrics.ObserveRefresh("error")
		return "", err
	}
	refreshToken := rr.RefreshToken
	if refreshToken == "" {
		refreshToken = snap.RefreshToken
	}

	if !tm.session.updateCredentials(snap.Identity.UID, accessToken, refreshToken, expiresIn) {
		metrics.ObserveRefresh("discarded")
		tm.logger.Info().Str("uid", snap.Identity.UID).Msg("session changed during refresh, discarding result")
		return "", newError(CodeNotSignedIn, "session changed during token refresh")
	}

	metrics.ObserveRefresh(metrics.OutcomeOK)
	tm.logger.Info().
		Str("uid", snap.Identity.UID).
		Dur("expiresIn", expiresIn).
		Msg("refreshed token")

	return accessToken, nil
}

// ProcessAuthResponse applies a sign-in, sign-up or custom-token response
// to the session and returns the new identity. Nothing is applied if the
// payload is unusable.
func (tm *TokenManager) ProcessAuthResponse(body []byte) (*Identity, error) {
	var ar authResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, InvalidResponse(err, "malformed auth response")
	}
	if ar.IDToken == "" {
		return nil, InvalidResponse(nil, "auth response has no idToken")
	}
	expiresIn, err := parseExpiresIn(ar.ExpiresIn)
	if err != nil {
		return nil, err
	}

	identity := Identity{
		UID:           ar.LocalID,
		Email:         ar.Email,
		EmailVerified: ar.EmailVerified,
		DisplayName:   ar.DisplayName,
		PhotoURL:      ar.PhotoURL,
	}
	fillFromClaims(&identity, ar.IDToken)
	if identity.UID == "" {
		return nil, InvalidResponse(nil, "auth response has no user id")
	}

	tm.session.applyAuth(identity, ar.IDToken, ar.RefreshToken, expiresIn)

	tm.logger.Info().
		Str("uid", identity.UID).
		Bool("anonymous", identity.IsAnonymous()).
		Msg("signed in")

	return copyIdentity(&identity), nil
}

// Restore re-applies a previously persisted session tuple.
func (tm *TokenManager) Restore(snap Snapshot) error {
	if snap.Identity == nil || snap.Identity.UID == "" {
		return InvalidArgument("snapshot has no identity")
	}
	if snap.RefreshToken == "" {
		return InvalidArgument("snapshot has no refresh token")
	}
	tm.session.restore(snap)
	tm.logger.Info().Str("uid", snap.Identity.UID).Msg("restored session")
	return nil
}

// fillFromClaims completes identity fields missing from the response body
// with the id token's claims. Custom-token sign-in only returns tokens.
// The signature is not verified; the token came from the backend over TLS.
func fillFromClaims(identity *Identity, idToken string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return
	}

	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}

	if identity.UID == "" {
		identity.UID = str("user_id")
		if identity.UID == "" {
			identity.UID, _ = claims.GetSubject()
		}
	}
	if identity.Email == "" {
		identity.Email = str("email")
	}
	if v, ok := claims["email_verified"].(bool); ok && !identity.EmailVerified {
		identity.EmailVerified = v
	}
	if identity.DisplayName == "" {
		identity.DisplayName = str("name")
	}
	if identity.PhotoURL == "" {
		identity.PhotoURL = str("picture")
	}
}

// parseExpiresIn parses the backend's whole-second lifetime string.
func parseExpiresIn(v string) (time.Duration, error) {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, InvalidResponse(err, "malformed expiresIn %q", v)
	}
	if secs < 0 {
		return 0, InvalidResponse(nil, "negative expiresIn %d", secs)
	}
	return time.Duration(secs) * time.Second, nil
}

func withAPIKey(endpoint, apiKey string) string {
	sep := "?"
	if u, err := url.Parse(endpoint); err == nil && u.RawQuery != "" {
		sep = "&"
	}
	return fmt.Sprintf("%s%skey=%s", endpoint, sep, url.QueryEscape(apiKey))
}
