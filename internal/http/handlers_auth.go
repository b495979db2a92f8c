package httpapp

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/alphabot-ai/blogapi/internal/auth"
	"github.com/alphabot-ai/blogapi/internal/store"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	const msg = "User registration failed"
	var req auth.Registration
	if err := readJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	user, err := s.auth.Register(r.Context(), req)
	if err != nil {
		// Duplicates answer like any other failure but stay visible in logs.
		if errors.Is(err, store.ErrDuplicateUser) {
			hlog.FromRequest(r).Warn().Str("username", req.Username).Msg("username or email already taken")
			writeError(w, http.StatusInternalServerError, msg)
			return
		}
		fail(w, r, http.StatusInternalServerError, msg, err)
		return
	}
	hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("user registered")
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "Invalid credentials")
			return
		}
		fail(w, r, http.StatusInternalServerError, "Login failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
