package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"twindm/internal/auth"
	"twindm/internal/models"
	"twindm/internal/pipeline"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister creates a user. Only the salted hash of the password is
// ever stored.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user := models.User{Username: req.Username, Password: req.Password}
	if err := s.store.CreateUser(r.Context(), &user); err != nil {
		if errors.Is(err, pipeline.ErrConflict) {
			writeError(w, http.StatusConflict, "username already exists")
			return
		}
		s.log.WithError(err).Error("create user")
		writeError(w, http.StatusInternalServerError, "error creating user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"userId": user.ID.String()})
}

type loginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// handleLogin verifies credentials and issues a bearer token. Unknown
// usernames and bad passwords are indistinguishable to the caller.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, err := s.store.UserByUsername(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	match, err := auth.VerifyPassword(req.Password, user.Password)
	if err != nil || !match {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.CreateToken(user.ID, user.Username)
	if err != nil {
		s.log.WithError(err).Error("create token")
		writeError(w, http.StatusInternalServerError, "error issuing token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}
