package client

import (
	"context"
	"net/http"
	"strings"
)

// Auth groups the identity REST operations. Successful sign-in responses
// flow into the session before the call returns; failures leave the
// session untouched.
type Auth struct {
	c *Client
}

// SignInWithPassword signs in an existing email/password account.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, InvalidArgument("email and password are required")
	}
	return a.signIn(ctx, ":signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

// SignUp creates an email/password account and signs it in.
func (a *Auth) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, InvalidArgument("email and password are required")
	}
	return a.signIn(ctx, ":signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
}

// SignInAnonymously creates an anonymous account and signs it in.
func (a *Auth) SignInAnonymously(ctx context.Context) (*Identity, error) {
	return a.signIn(ctx, ":signUp", map[string]any{
		"returnSecureToken": true,
	})
}

// SignInWithCustomToken exchanges a server-minted custom token.
func (a *Auth) SignInWithCustomToken(ctx context.Context, token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, InvalidArgument("custom token is required")
	}
	return a.signIn(ctx, ":signInWithCustomToken", map[string]any{
		"token":             token,
		"returnSecureToken": true,
	})
}

// SendPasswordReset emails a password reset link.
func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return InvalidArgument("email is required")
	}
	_, err := a.post(ctx, ":sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	})
	return err
}

// SendEmailVerification emails a verification link to the signed-in user.
func (a *Auth) SendEmailVerification(ctx context.Context) error {
	token, err := a.c.tokens.GetValidToken(ctx, false)
	if err != nil {
		return err
	}
	_, err = a.post(ctx, ":sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"idToken":     token,
	})
	return err
}

// SignOut clears the session. Observers are notified even if nobody was
// signed in.
func (a *Auth) SignOut() {
	a.c.session.SignOut()
	a.c.logger.Info().Msg("signed out")
}

// CurrentUser returns the signed-in identity or nil.
func (a *Auth) CurrentUser() *Identity {
	return a.c.session.CurrentIdentity()
}

// IsSignedIn reports the session's signed-in state at call time.
func (a *Auth) IsSignedIn() bool {
	return a.c.session.IsSignedIn()
}

// OnAuthStateChanged registers fn for identity changes; nil means signed out.
func (a *Auth) OnAuthStateChanged(fn func(*Identity)) func() {
	return a.c.session.OnIdentityChanged(fn)
}

func (a *Auth) signIn(ctx context.Context, op string, payload map[string]any) (*Identity, error) {
	resp, err := a.post(ctx, op, payload)
	if err != nil {
		return nil, err
	}
	return a.c.tokens.ProcessAuthResponse(resp.Body)
}

func (a *Auth) post(ctx context.Context, op string, payload map[string]any) (*Response, error) {
	body, err := JSONBody(payload)
	if err != nil {
		return nil, err
	}
	return a.c.Execute(ctx, Call{
		Service: "auth",
		URL:     withAPIKey(a.c.settings.AuthURL+op, a.c.settings.APIKey),
		Method:  http.MethodPost,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    AuthNone,
	})
}
