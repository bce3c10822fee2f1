package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/heartlink/backend/internal/auth"
	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/models"
)

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// authenticate resolves the request's bearer token. On failure it writes
// the error response and reports false.
func authenticate(w http.ResponseWriter, r *http.Request, identities Authenticator) (models.Identity, bool) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if identities == nil {
		logger.Error("authenticator unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return models.Identity{}, false
	}

	token := bearerToken(r)
	if token == "" {
		respondError(ctx, w, http.StatusUnauthorized, "missing bearer token")
		return models.Identity{}, false
	}

	identity, err := identities.Identify(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrAccessTokenExpired) {
			respondError(ctx, w, http.StatusUnauthorized, "invalid or expired access token")
			return models.Identity{}, false
		}
		logger.Error("token lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify access token")
		return models.Identity{}, false
	}

	annotateIdentity(r, identity.ID)
	return identity, true
}

// annotateIdentity stamps the authenticated identity onto the request so
// later log lines, including the middleware's completion line, carry it.
// The request is updated in place because callers keep using their own
// *http.Request after authenticate returns.
func annotateIdentity(r *http.Request, identityID string) {
	ctx := logging.WithIdentityID(r.Context(), identityID)
	ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("identity_id", identityID))
	*r = *r.WithContext(ctx)
}
