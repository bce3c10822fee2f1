package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/pairing"
)

// dateLayout is the wire format for calendar dates (birth dates,
// anniversaries, event dates).
const dateLayout = "2006-01-02"

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

type identityPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokensPayload struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type profilePayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
	BirthDate string `json:"birthDate"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type couplePayload struct {
	ID          string  `json:"id"`
	UserOne     string  `json:"userOne"`
	UserTwo     *string `json:"userTwo"`
	Anniversary string  `json:"anniversary"`
	InviteCode  string  `json:"inviteCode"`
	State       string  `json:"state"`
}

type coupleInfoPayload struct {
	Couple     *couplePayload  `json:"couple"`
	ProfileOne *profilePayload `json:"profileOne,omitempty"`
	ProfileTwo *profilePayload `json:"profileTwo,omitempty"`
}

type eventPayload struct {
	ID       string `json:"id"`
	CoupleID string `json:"coupleId"`
	AuthorID string `json:"authorId"`
	Title    string `json:"title"`
	Note     string `json:"note,omitempty"`
	Date     string `json:"date"`
}

type todoPayload struct {
	ID          string     `json:"id"`
	CoupleID    string     `json:"coupleId"`
	AuthorID    string     `json:"authorId"`
	Title       string     `json:"title"`
	Done        bool       `json:"done"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func toIdentityPayload(identity models.Identity) identityPayload {
	return identityPayload{ID: identity.ID, Email: identity.Email}
}

func toTokensPayload(tokens models.SessionTokens) tokensPayload {
	return tokensPayload{
		AccessToken:      tokens.AccessToken,
		AccessExpiresAt:  tokens.AccessExpiresAt,
		RefreshToken:     tokens.RefreshToken,
		RefreshExpiresAt: tokens.RefreshExpiresAt,
	}
}

func toProfilePayload(p models.Profile) profilePayload {
	return profilePayload{
		ID:        p.ID,
		Email:     p.Email,
		Nickname:  p.Nickname,
		BirthDate: p.BirthDate.Format(dateLayout),
		AvatarURL: p.AvatarURL,
	}
}

func toCouplePayload(c models.Couple) couplePayload {
	return couplePayload{
		ID:          c.ID,
		UserOne:     c.UserOne,
		UserTwo:     c.UserTwo,
		Anniversary: c.Anniversary.Format(dateLayout),
		InviteCode:  c.InviteCode,
		State:       c.State(),
	}
}

func toCoupleInfoPayload(info *pairing.Info) coupleInfoPayload {
	if info == nil {
		return coupleInfoPayload{}
	}
	couple := toCouplePayload(info.Couple)
	payload := coupleInfoPayload{Couple: &couple}
	if info.ProfileOne != nil {
		p := toProfilePayload(*info.ProfileOne)
		payload.ProfileOne = &p
	}
	if info.ProfileTwo != nil {
		p := toProfilePayload(*info.ProfileTwo)
		payload.ProfileTwo = &p
	}
	return payload
}

func toEventPayload(e models.Event) eventPayload {
	return eventPayload{
		ID:       e.ID,
		CoupleID: e.CoupleID,
		AuthorID: e.AuthorID,
		Title:    e.Title,
		Note:     e.Note,
		Date:     e.Date.Format(dateLayout),
	}
}

func toTodoPayload(t models.Todo) todoPayload {
	return todoPayload{
		ID:          t.ID,
		CoupleID:    t.CoupleID,
		AuthorID:    t.AuthorID,
		Title:       t.Title,
		Done:        t.Done,
		CompletedAt: t.CompletedAt,
	}
}
