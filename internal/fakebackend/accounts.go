package fakebackend

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

type accountsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Token       string `json:"token"`
	RequestType string `json:"requestType"`
	IDToken     string `json:"idToken"`
}

// accounts handles POST /v1/accounts:<op>
func (s *Server) accounts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != s.apiKey {
		writeError(w, http.StatusBadRequest, "API key not valid. Please pass a valid API key.")
		return
	}

	var req accountsRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON")
			return
		}
	}

	switch chi.URLParam(r, "action") {
	case "accounts:signUp":
		s.signUp(w, r, req)
	case "accounts:signInWithPassword":
		s.signInWithPassword(w, r, req)
	case "accounts:signInWithCustomToken":
		s.signInWithCustomToken(w, r, req)
	case "accounts:sendOobCode":
		s.sendOobCode(w, r, req)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND")
	}
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request, req accountsRequest) {
	u := &user{UID: uuid.New().String(), CreatedAt: s.now().UTC()}

	if req.Email != "" || req.Password != "" {
		if req.Email == "" {
			writeError(w, http.StatusBadRequest, "MISSING_EMAIL")
			return
		}
		if len(req.Password) < 6 {
			writeError(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
			return
		}
		u.Email = strings.ToLower(req.Email)
		u.PasswordHash = hash
	}

	s.mu.Lock()
	if u.Email != "" {
		if _, taken := s.emails[u.Email]; taken {
			s.mu.Unlock()
			writeError(w, http.StatusBadRequest, "EMAIL_EXISTS")
			return
		}
		s.emails[u.Email] = u.UID
	}
	s.users[u.UID] = u
	s.mu.Unlock()

	log.Ctx(r.Context()).Info().
		Str("uid", u.UID).
		Bool("anonymous", u.Email == "").
		Msg("account created")

	s.writeAuthResponse(w, u, true)
}

func (s *Server) signInWithPassword(w http.ResponseWriter, r *http.Request, req accountsRequest) {
	s.mu.RLock()
	uid, ok := s.emails[strings.ToLower(req.Email)]
	var u *user
	if ok {
		u = s.users[uid]
	}
	s.mu.RUnlock()

	if u == nil {
		writeError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
		return
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PASSWORD")
		return
	}

	log.Ctx(r.Context()).Info().Str("uid", u.UID).Msg("password sign-in")
	s.writeAuthResponse(w, u, true)
}

func (s *Server) signInWithCustomToken(w http.ResponseWriter, r *http.Request, req accountsRequest) {
	claims, err := s.verifyToken(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CUSTOM_TOKEN")
		return
	}
	uid, _ := claims["uid"].(string)
	if uid == "" {
		writeError(w, http.StatusBadRequest, "INVALID_CUSTOM_TOKEN")
		return
	}

	s.mu.Lock()
	u, exists := s.users[uid]
	if !exists {
		u = &user{UID: uid, CreatedAt: s.now().UTC()}
		s.users[uid] = u
	}
	s.mu.Unlock()

	log.Ctx(r.Context()).Info().Str("uid", uid).Bool("new", !exists).Msg("custom token sign-in")
	// Custom-token responses carry tokens only; identity comes from claims.
	s.writeAuthResponse(w, u, false)
}

func (s *Server) sendOobCode(w http.ResponseWriter, r *http.Request, req accountsRequest) {
	var email string
	switch req.RequestType {
	case "PASSWORD_RESET":
		s.mu.RLock()
		_, ok := s.emails[strings.ToLower(req.Email)]
		s.mu.RUnlock()
		if !ok {
			writeError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
			return
		}
		email = strings.ToLower(req.Email)
	case "VERIFY_EMAIL":
		claims, err := s.verifyToken(req.IDToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
			return
		}
		email, _ = claims["email"].(string)
		if email == "" {
			writeError(w, http.StatusBadRequest, "MISSING_EMAIL")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "INVALID_REQ_TYPE")
		return
	}

	s.mu.Lock()
	s.oob = append(s.oob, OOBCode{
		RequestType:   req.RequestType,
		Email:         email,
		CorrelationID: GetCorrelationID(r.Context()),
	})
	s.mu.Unlock()

	log.Ctx(r.Context()).Info().
		Str("requestType", req.RequestType).
		Str("email", email).
		Msg("oob code queued")

	writeJSON(w, http.StatusOK, map[string]string{"kind": "identitytoolkit#GetOobConfirmationCodeResponse", "email": email})
}

func (s *Server) writeAuthResponse(w http.ResponseWriter, u *user, withProfile bool) {
	idToken, err := s.mintIDToken(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	g := s.grants.issue(u.UID)

	resp := map[string]any{
		"idToken":      idToken,
		"refreshToken": g.Token,
		"expiresIn":    strconv.Itoa(int(s.tokenTTL.Seconds())),
	}
	if withProfile {
		resp["localId"] = u.UID
		resp["email"] = u.Email
		resp["emailVerified"] = u.EmailVerified
		resp["displayName"] = u.DisplayName
		resp["registered"] = u.Email != ""
	}
	writeJSON(w, http.StatusOK, resp)
}

// exchangeRefreshToken handles POST /v1/token
func (s *Server) exchangeRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != s.apiKey {
		writeError(w, http.StatusBadRequest, "API key not valid. Please pass a valid API key.")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" {
		writeError(w, http.StatusBadRequest, "INVALID_GRANT_TYPE")
		return
	}

	g, ok := s.grants.lookup(r.PostForm.Get("refresh_token"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_REFRESH_TOKEN")
		return
	}

	s.mu.Lock()
	u := s.users[g.UID]
	if u != nil {
		s.refreshCount++
	}
	s.mu.Unlock()
	if u == nil {
		writeError(w, http.StatusBadRequest, "USER_NOT_FOUND")
		return
	}

	idToken, err := s.mintIDToken(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}

	log.Ctx(r.Context()).Info().Str("uid", u.UID).Msg("refresh token exchanged")

	expiresIn := strconv.Itoa(int(s.tokenTTL.Seconds()))
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  idToken,
		"id_token":      idToken,
		"refresh_token": g.Token,
		"expires_in":    expiresIn,
		"token_type":    "Bearer",
		"user_id":       u.UID,
	})
}
