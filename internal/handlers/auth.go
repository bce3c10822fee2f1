package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/heartlink/backend/internal/auth"
	"github.com/heartlink/backend/internal/logging"
)

// AuthHandler implements the account and session endpoints.
type AuthHandler struct {
	Auth    AuthService
	Limiter RateLimiter
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("auth service unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "signup") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many signup attempts")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid signup payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, tokens, err := h.Auth.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondError(ctx, w, http.StatusBadRequest, "a valid email and a password of at least 8 characters are required")
		case errors.Is(err, auth.ErrEmailTaken):
			respondError(ctx, w, http.StatusConflict, "account already exists")
		default:
			logger.Error("signup failed", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		}
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{
		Identity: toIdentityPayload(identity),
		Tokens:   toTokensPayload(tokens),
	})
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("auth service unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "login") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, tokens, err := h.Auth.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthFailed) {
			respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Error("login failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to sign in")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{
		Identity: toIdentityPayload(identity),
		Tokens:   toTokensPayload(tokens),
	})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("auth service unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondError(ctx, w, http.StatusBadRequest, "refresh token is required")
		return
	}

	identity, tokens, err := h.Auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrRefreshTokenExpired) {
			respondError(ctx, w, http.StatusUnauthorized, "unable to refresh session")
			return
		}
		logger.Error("refresh failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to refresh session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{
		Identity: toIdentityPayload(identity),
		Tokens:   toTokensPayload(tokens),
	})
}

// Logout revokes the session behind the provided refresh token.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Auth == nil {
		logger.Error("auth service unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "session service unavailable")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid logout payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Auth.SignOut(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		logger.Error("logout failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to sign out")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "signed out"})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Identity identityPayload `json:"identity"`
	Tokens   tokensPayload   `json:"tokens"`
}
