package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/repositories"
)

const maxAvatarBytes = 5 << 20

// ProfileHandler implements the profile endpoints. Reads go through the
// get-or-create path so a fresh account always receives a usable profile.
type ProfileHandler struct {
	Identities Authenticator
	Profiles   ProfileService
}

// Handle dispatches /api/v1/profile by method.
func (h ProfileHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPatch:
		h.update(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h ProfileHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := authenticate(w, r, h.Identities)
	if !ok {
		return
	}

	p, err := h.Profiles.GetOrCreate(ctx, identity, profile.DefaultsFor(identity))
	if err != nil {
		logger.Error("profile resolution failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load profile")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toProfilePayload(p))
}

func (h ProfileHandler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := authenticate(w, r, h.Identities)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	changes, err := req.changes()
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.Profiles.Update(ctx, identity.ID, changes)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "profile not found")
			return
		}
		logger.Error("profile update failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update profile")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toProfilePayload(updated))
}

// Avatar handles POST /api/v1/profile/avatar multipart uploads.
func (h ProfileHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := authenticate(w, r, h.Identities)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		logger.Warn("invalid avatar upload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "an avatar file is required")
		return
	}
	defer file.Close()

	updated, err := h.Profiles.SetAvatar(ctx, identity.ID, header.Filename, file)
	if err != nil {
		logger.Error("avatar upload failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to store avatar")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toProfilePayload(updated))
}

type updateProfileRequest struct {
	Nickname  *string `json:"nickname"`
	BirthDate *string `json:"birthDate"`
	AvatarURL *string `json:"avatarUrl"`
}

func (req updateProfileRequest) changes() (repositories.ProfileChanges, error) {
	changes := repositories.ProfileChanges{AvatarURL: req.AvatarURL}

	if req.Nickname != nil {
		nickname := strings.TrimSpace(*req.Nickname)
		if nickname == "" {
			return repositories.ProfileChanges{}, errors.New("nickname must not be empty")
		}
		changes.Nickname = &nickname
	}

	if req.BirthDate != nil {
		parsed, err := time.Parse(dateLayout, *req.BirthDate)
		if err != nil {
			return repositories.ProfileChanges{}, errors.New("birthDate must use YYYY-MM-DD")
		}
		changes.BirthDate = &parsed
	}

	return changes, nil
}
