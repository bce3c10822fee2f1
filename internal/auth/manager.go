package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/heartlink/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the provided token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrAccessTokenExpired indicates the access token has expired and must be refreshed.
	ErrAccessTokenExpired = errors.New("access token expired")
)

// SessionStore persists issued sessions so they survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Find(ctx context.Context, refreshToken string) (Session, error)
	FindByAccessToken(ctx context.Context, accessToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
}

// Session represents a token pair issued to a user.
type Session struct {
	RefreshToken    string
	AccessToken     string
	UserID          string
	AccessExpiresAt time.Time
	ExpiresAt       time.Time
}

// Manager manages the lifecycle of issued session tokens backed by a persistent store.
type Manager struct {
	accessTTL  time.Duration
	refreshTTL time.Duration

	store SessionStore
	now   func() time.Time
}

// NewManager constructs a Manager that issues access and refresh tokens with the provided TTLs.
func NewManager(accessTTL, refreshTTL time.Duration, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Manager{
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new pair of access and refresh tokens for the provided user identifier.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := m.now()
	accessToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	tokens := models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}

	if err := m.store.Save(ctx, Session{
		RefreshToken:    refreshToken,
		AccessToken:     accessToken,
		UserID:          userID,
		AccessExpiresAt: tokens.AccessExpiresAt,
		ExpiresAt:       tokens.RefreshExpiresAt,
	}); err != nil {
		return models.SessionTokens{}, err
	}

	return tokens, nil
}

// Refresh exchanges a refresh token for a new session token pair and
// reports which user the session belongs to.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, string, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, "", ErrSessionNotFound
	}

	session, err := m.store.Find(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, "", err
	}

	if m.now().After(session.ExpiresAt) {
		_ = m.store.Delete(ctx, refreshToken)
		return models.SessionTokens{}, "", ErrRefreshTokenExpired
	}

	if err := m.store.Delete(ctx, refreshToken); err != nil {
		return models.SessionTokens{}, "", err
	}

	tokens, err := m.Issue(ctx, session.UserID)
	if err != nil {
		return models.SessionTokens{}, "", err
	}

	return tokens, session.UserID, nil
}

// Authenticate resolves a bearer access token to the owning user id.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrSessionNotFound
	}

	session, err := m.store.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return "", err
	}

	if m.now().After(session.AccessExpiresAt) {
		return "", ErrAccessTokenExpired
	}

	return session.UserID, nil
}

// Revoke removes the provided refresh token from the active session store.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := m.store.Delete(ctx, refreshToken); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
