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

// TodosHandler implements the shared todo-list endpoints.
type TodosHandler struct {
	Identities Authenticator
	Pairing    PairingService
	Todos      TodoStore
	Changes    ChangePublisher
	NowFunc    func() time.Time
}

// Handle dispatches /api/v1/todos by method.
func (h TodosHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	case http.MethodPatch:
		h.setDone(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h TodosHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, coupleID, ok := requireCouple(w, r, h.Identities, h.Pairing)
	if !ok {
		return
	}

	todos, err := h.Todos.ListForCouple(ctx, coupleID)
	if err != nil {
		logging.FromContext(ctx).Error("todo list failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to load todos")
		return
	}

	payload := make([]todoPayload, 0, len(todos))
	for _, todo := range todos {
		payload = append(payload, toTodoPayload(todo))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"todos": payload})
}

func (h TodosHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, coupleID, ok := requireCouple(w, r, h.Identities, h.Pairing)
	if !ok {
		return
	}

	var req createTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid todo payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		respondError(ctx, w, http.StatusBadRequest, "title is required")
		return
	}

	now := h.now()
	todo := models.Todo{
		ID:        uuid.NewString(),
		CoupleID:  coupleID,
		AuthorID:  identity.ID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Todos.Create(ctx, todo); err != nil {
		logger.Error("todo creation failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to create todo")
		return
	}

	publishChange(r, h.Changes, coupleID, realtime.KindTodosChanged)
	respondJSON(ctx, w, http.StatusCreated, toTodoPayload(todo))
}

func (h TodosHandler) setDone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, coupleID, ok := requireCouple(w, r, h.Identities, h.Pairing)
	if !ok {
		return
	}

	var req setDoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid todo payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		respondError(ctx, w, http.StatusBadRequest, "id is required")
		return
	}

	updated, err := h.Todos.SetDone(ctx, coupleID, req.ID, req.Done)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "todo not found")
			return
		}
		logger.Error("todo update failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to update todo")
		return
	}

	publishChange(r, h.Changes, coupleID, realtime.KindTodosChanged)
	respondJSON(ctx, w, http.StatusOK, toTodoPayload(updated))
}

func (h TodosHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, coupleID, ok := requireCouple(w, r, h.Identities, h.Pairing)
	if !ok {
		return
	}

	todoID := strings.TrimSpace(r.URL.Query().Get("id"))
	if todoID == "" {
		respondError(ctx, w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.Todos.Delete(ctx, coupleID, todoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "todo not found")
			return
		}
		logger.Error("todo delete failed", "identityId", identity.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to delete todo")
		return
	}

	publishChange(r, h.Changes, coupleID, realtime.KindTodosChanged)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h TodosHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type createTodoRequest struct {
	Title string `json:"title"`
}

type setDoneRequest struct {
	ID   string `json:"id"`
	Done bool   `json:"done"`
}
