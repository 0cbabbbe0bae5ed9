package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/recoverytrack/internal/identity"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Token  string `json:"token"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, token, err := s.auth.SignUp(r.Context(), c.Email, c.Password)
	switch {
	case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.internalError(w, "sign up failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{UserID: id.UserID, Email: id.Email, Token: token})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, token, err := s.auth.SignIn(r.Context(), c.Email, c.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "sign in failed", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: id.UserID, Email: id.Email, Token: token})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := s.auth.SignOut(r.Context(), token); err != nil {
		s.internalError(w, "sign out failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireIdentity resolves the caller from the Authorization header, or from
// the token query parameter when allowQuery is set. It writes a 401 and
// returns false when the caller is not signed in.
func (s *Server) requireIdentity(w http.ResponseWriter, r *http.Request, allowQuery bool) (identity.Identity, bool) {
	token := bearerToken(r)
	if token == "" && allowQuery {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return identity.Identity{}, false
	}

	id, err := s.auth.Authenticate(r.Context(), token)
	if errors.Is(err, identity.ErrInvalidToken) || errors.Is(err, identity.ErrTokenRevoked) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return identity.Identity{}, false
	}
	if err != nil {
		s.internalError(w, "authenticate failed", err)
		return identity.Identity{}, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}
