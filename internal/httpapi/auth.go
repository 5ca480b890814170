package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nocturnal-archive/gateway/internal/apperr"
	"github.com/nocturnal-archive/gateway/internal/auth"
	"github.com/rs/zerolog"
)

type authHandler struct {
	svc     *auth.Service
	ceiling int64
	logger  zerolog.Logger
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	ExpiresAt    string `json:"expires_at"`
	DailyCeiling int64  `json:"daily_ceiling"`
}

func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "malformed request body"))
		return
	}

	tok, err := h.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeProblem(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:        tok.Raw,
		ExpiresAt:    tok.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		DailyCeiling: h.ceiling,
	})
}

func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, apperr.New(apperr.InvalidRequest, "malformed request body"))
		return
	}

	tok, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeProblem(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:        tok.Raw,
		ExpiresAt:    tok.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		DailyCeiling: h.ceiling,
	})
}
