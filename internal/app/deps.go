package app

import (
	"context"
	"fmt"
	"time"

	"github.com/heartlink/backend/internal/auth"
	"github.com/heartlink/backend/internal/config"
	"github.com/heartlink/backend/internal/db"
	"github.com/heartlink/backend/internal/handlers"
	"github.com/heartlink/backend/internal/middleware"
	"github.com/heartlink/backend/internal/pairing"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/realtime"
	"github.com/heartlink/backend/internal/repositories"
	"github.com/heartlink/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	sessionStore := repositories.NewPostgresSessionStore(pool)
	manager := auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessionStore)
	authService := auth.NewService(repositories.NewPostgresUserRepository(pool), manager)

	var avatars profile.AvatarStorage
	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewS3AvatarStore(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, fmt.Errorf("configure avatar storage: %w", err)
		}
		avatars = store
	}

	profiles := profile.NewResolver(repositories.NewPostgresProfileRepository(pool), avatars)
	engine := pairing.NewEngine(repositories.NewPostgresCoupleRepository(pool), profiles)

	return handlers.Dependencies{
		Auth:       authService,
		Identities: authService,
		Profiles:   profiles,
		Pairing:    engine,
		Events:     repositories.NewPostgresEventRepository(pool),
		Todos:      repositories.NewPostgresTodoRepository(pool),
		Changes:    realtime.NewPostgresBroker(pool),

		AuthLimiter:   middleware.NewKeyRateLimiter(10, time.Minute, 5, 10*time.Minute),
		RedeemLimiter: middleware.NewKeyRateLimiter(5, time.Minute, 3, 10*time.Minute),
	}, nil
}
