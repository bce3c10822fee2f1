package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/pairing"
	"github.com/heartlink/backend/internal/realtime"
)

// PairingHandler implements the invite-code and couple endpoints.
type PairingHandler struct {
	Identities Authenticator
	Pairing    PairingService
	Changes    ChangePublisher
	Limiter    RateLimiter
}

// Handle dispatches /api/v1/couple by method.
func (h PairingHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.info(w, r)
	case http.MethodDelete:
		h.unpair(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h PairingHandler) info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := authenticate(w, r, h.Identities)
	if !ok {
		return
	}

	info, err := h.Pairing.CoupleInfo(ctx, identity.ID)
	if err != nil {
		logger.Error("couple lookup failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load couple")
		return
	}

	respondJSON(ctx, w, http.StatusOK, toCoupleInfoPayload(info))
}

// CreateCode handles POST /api/v1/couple/code requests.
func (h PairingHandler) CreateCode(w http.ResponseWriter, r *http.Request) {
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

	var req createCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid code payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	anniversary := time.Now().UTC().Truncate(24 * time.Hour)
	if strings.TrimSpace(req.Anniversary) != "" {
		parsed, err := time.Parse(dateLayout, req.Anniversary)
		if err != nil {
			respondError(ctx, w, http.StatusBadRequest, "anniversary must use YYYY-MM-DD")
			return
		}
		anniversary = parsed
	}

	couple, err := h.Pairing.CreateInviteCode(ctx, identity, anniversary)
	if err != nil {
		if errors.Is(err, pairing.ErrAlreadyPaired) {
			respondError(ctx, w, http.StatusConflict, "already in a couple")
			return
		}
		logger.Error("code creation failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create invite code")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, toCouplePayload(couple))
}

// Redeem handles POST /api/v1/couple/redeem requests. Redemption is
// rate-limited per identity so invite codes cannot be brute forced.
func (h PairingHandler) Redeem(w http.ResponseWriter, r *http.Request) {
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

	if !allowIdentity(h.Limiter, identity.ID, "redeem") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many redemption attempts")
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid redeem payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		respondError(ctx, w, http.StatusBadRequest, "invite code is required")
		return
	}

	couple, err := h.Pairing.RedeemInviteCode(ctx, identity, code)
	if err != nil {
		switch {
		case errors.Is(err, pairing.ErrCodeNotFound):
			respondError(ctx, w, http.StatusNotFound, "invite code not found")
		case errors.Is(err, pairing.ErrSelfPairing):
			respondError(ctx, w, http.StatusUnprocessableEntity, "cannot pair with yourself")
		case errors.Is(err, pairing.ErrAlreadyPaired):
			respondError(ctx, w, http.StatusConflict, "already in a couple")
		default:
			logger.Error("redemption failed", "identityId", identity.ID, "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "unable to redeem invite code")
		}
		return
	}

	h.publish(r, couple.ID)
	respondJSON(ctx, w, http.StatusOK, toCouplePayload(couple))
}

func (h PairingHandler) unpair(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := authenticate(w, r, h.Identities)
	if !ok {
		return
	}

	info, err := h.Pairing.CoupleInfo(ctx, identity.ID)
	if err != nil {
		logger.Error("couple lookup failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load couple")
		return
	}

	if err := h.Pairing.Unpair(ctx, identity.ID); err != nil {
		logger.Error("unpair failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to unpair")
		return
	}

	if info != nil {
		h.publish(r, info.Couple.ID)
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "unpaired"})
}

// publish emits a couple-changed notification. Delivery is best-effort;
// partners converge on their next refresh regardless.
func (h PairingHandler) publish(r *http.Request, coupleID string) {
	if h.Changes == nil {
		return
	}
	ctx := r.Context()
	event := realtime.Event{CoupleID: coupleID, Kind: realtime.KindCoupleChanged}
	if err := h.Changes.Publish(ctx, event); err != nil {
		logging.FromContext(ctx).Warn("couple change publish failed", "coupleId", coupleID, "error", err)
	}
}

type createCodeRequest struct {
	Anniversary string `json:"anniversary"`
}

type redeemRequest struct {
	Code string `json:"code"`
}
