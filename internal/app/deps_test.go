package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartlink/backend/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func TestBuildDependencies(t *testing.T) {
	cfg := config.Config{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 720 * time.Hour,
		ObjectStore:     config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	deps, err := buildDependencies(context.Background(), fakePool{}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deps.Auth == nil {
		t.Fatal("expected auth service to be configured")
	}
	if deps.Identities == nil {
		t.Fatal("expected authenticator to be configured")
	}
	if deps.Profiles == nil {
		t.Fatal("expected profile resolver to be configured")
	}
	if deps.Pairing == nil {
		t.Fatal("expected pairing engine to be configured")
	}
	if deps.Events == nil {
		t.Fatal("expected event repository to be configured")
	}
	if deps.Todos == nil {
		t.Fatal("expected todo repository to be configured")
	}
	if deps.Changes == nil {
		t.Fatal("expected change broker to be configured")
	}
	if deps.AuthLimiter == nil {
		t.Fatal("expected auth rate limiter to be configured")
	}
	if deps.RedeemLimiter == nil {
		t.Fatal("expected redeem rate limiter to be configured")
	}
}
