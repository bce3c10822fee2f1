package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/realtime"
	"github.com/heartlink/backend/internal/repositories"
)

// EventsHandler implements the shared calendar endpoints. Every operation
// is scoped to the caller's active couple; a couple id never travels in
// the request.
type EventsHandler struct {
	Identities Authenticator
	Pairing    PairingService
	Events     EventStore
	Changes    ChangePublisher
	NowFunc    func() time.Time
}

// Handle dispatches /api/v1/events by method.
func (h EventsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h EventsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, coupleID, ok := requireCouple(w, r, h.Identities, h.Pairing)
	if !ok {
		return
	}

	events, err := h.Events.ListForCouple(ctx, coupleID)
	if err != nil {
		logging.FromContext(ctx).Error("event list failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load events")
		return
	}

	payload := make([]eventPayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, toEventPayload(event))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"events": payload})
}

func (h EventsHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, coupleID, ok := requireCouple(w, r, h.Identities, h.Pairing)
	if !ok {
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid event payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		respondError(ctx, w, http.StatusBadRequest, "title is required")
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "date must use YYYY-MM-DD")
		return
	}

	now := h.now()
	event := models.Event{
		ID:        uuid.NewString(),
		CoupleID:  coupleID,
		AuthorID:  identity.ID,
		Title:     req.Title,
		Note:      strings.TrimSpace(req.Note),
		Date:      date,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Events.Create(ctx, event); err != nil {
		logger.Error("event creation failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create event")
		return
	}

	publishChange(r, h.Changes, coupleID, realtime.KindEventsChanged)
	respondJSON(ctx, w, http.StatusCreated, toEventPayload(event))
}

func (h EventsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, coupleID, ok := requireCouple(w, r, h.Identities, h.Pairing)
	if !ok {
		return
	}

	eventID := strings.TrimSpace(r.URL.Query().Get("id"))
	if eventID == "" {
		respondError(ctx, w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.Events.Delete(ctx, coupleID, eventID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "event not found")
			return
		}
		logger.Error("event delete failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to delete event")
		return
	}

	publishChange(r, h.Changes, coupleID, realtime.KindEventsChanged)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h EventsHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

// requireCouple authenticates the request and resolves the caller's
// active couple. On failure it writes the error response and reports false.
func requireCouple(w http.ResponseWriter, r *http.Request, identities Authenticator, couples PairingService) (models.Identity, string, bool) {
	ctx := r.Context()

	identity, ok := authenticate(w, r, identities)
	if !ok {
		return models.Identity{}, "", false
	}

	info, err := couples.CoupleInfo(ctx, identity.ID)
	if err != nil {
		logging.FromContext(ctx).Error("couple lookup failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load couple")
		return models.Identity{}, "", false
	}
	if info == nil {
		respondError(ctx, w, http.StatusConflict, "not in a couple")
		return models.Identity{}, "", false
	}

	return identity, info.Couple.ID, true
}

func publishChange(r *http.Request, changes ChangePublisher, coupleID, kind string) {
	if changes == nil {
		return
	}
	ctx := r.Context()
	if err := changes.Publish(ctx, realtime.Event{CoupleID: coupleID, Kind: kind}); err != nil {
		logging.FromContext(ctx).Warn("change publish failed", "coupleId", coupleID, "kind", kind, "error", err)
	}
}

type createEventRequest struct {
	Title string `json:"title"`
	Note  string `json:"note"`
	Date  string `json:"date"`
}
