package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerIssueAndAuthenticate(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", tokens)
	}

	userID, err := manager.Authenticate(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %s", userID)
	}
}

func TestManagerAuthenticateExpiredAccessToken(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }

	if _, err := manager.Authenticate(context.Background(), tokens.AccessToken); !errors.Is(err, ErrAccessTokenExpired) {
		t.Fatalf("expected ErrAccessTokenExpired, got %v", err)
	}
}

func TestManagerRefreshRotatesTokens(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rotated, userID, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %s", userID)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected refresh token to rotate")
	}

	if _, _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old refresh token to be dead, got %v", err)
	}
}

func TestManagerRefreshExpired(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }

	if _, _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}

	if store.Has(tokens.RefreshToken) {
		t.Fatal("expected expired session to be removed")
	}
}

func TestManagerRevokeIsIdempotent(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := manager.Revoke(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := manager.Revoke(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("second revoke should be a no-op, got %v", err)
	}
	if err := manager.Revoke(context.Background(), ""); err != nil {
		t.Fatalf("empty revoke should be a no-op, got %v", err)
	}
}
