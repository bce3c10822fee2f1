// Package profile guarantees the 1:1 identity-to-profile mapping.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/repositories"
)

// ErrCreateFailed indicates the lazy profile create step failed. The
// caller still has a session; features requiring a profile degrade
// instead of the whole app failing.
var ErrCreateFailed = errors.New("profile create failed")

// Defaults supplies the required fields for a lazily created profile.
type Defaults struct {
	Email     string
	Nickname  string
	BirthDate time.Time
	AvatarURL string
}

// DefaultsFor builds the fallback profile fields for an identity.
func DefaultsFor(identity models.Identity) Defaults {
	return Defaults{
		Email:     identity.Email,
		Nickname:  "User",
		BirthDate: time.Date(1995, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AvatarStorage persists uploaded avatar images and returns their public
// location.
type AvatarStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Resolver looks up profiles and creates them on first sight.
type Resolver struct {
	profiles repositories.ProfileRepository
	avatars  AvatarStorage
	now      func() time.Time
}

// NewResolver constructs a resolver. avatars may be nil when avatar
// uploads are not configured.
func NewResolver(profiles repositories.ProfileRepository, avatars AvatarStorage) *Resolver {
	return &Resolver{
		profiles: profiles,
		avatars:  avatars,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get fetches the profile for an identity id.
func (r *Resolver) Get(ctx context.Context, id string) (models.Profile, error) {
	return r.profiles.Get(ctx, id)
}

// GetOrCreate looks up the identity's profile, creating it from defaults
// when absent. Creation is idempotent from the caller's view: a lost
// create race falls through to the re-read and returns the winner's row.
// Connectivity failures on the initial read pass through untouched so the
// caller can distinguish them from a missing profile.
func (r *Resolver) GetOrCreate(ctx context.Context, identity models.Identity, defaults Defaults) (models.Profile, error) {
	existing, err := r.profiles.Get(ctx, identity.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.Profile{}, fmt.Errorf("lookup profile: %w", err)
	}

	logging.FromContext(ctx).Info("profile missing, creating", "identityId", identity.ID)

	now := r.now()
	created := models.Profile{
		ID:        identity.ID,
		Email:     defaults.Email,
		Nickname:  defaults.Nickname,
		BirthDate: defaults.BirthDate,
		AvatarURL: defaults.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if created.Email == "" {
		created.Email = identity.Email
	}

	if err := r.profiles.Create(ctx, created); err != nil && !errors.Is(err, repositories.ErrConflict) {
		return models.Profile{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}

	stored, err := r.profiles.Get(ctx, identity.ID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%w: reread: %v", ErrCreateFailed, err)
	}
	return stored, nil
}

// Update applies a partial update to the identity's profile. Ownership is
// enforced by the backend of record, not re-validated here.
func (r *Resolver) Update(ctx context.Context, id string, changes repositories.ProfileChanges) (models.Profile, error) {
	if changes.IsEmpty() {
		return r.profiles.Get(ctx, id)
	}
	return r.profiles.Update(ctx, id, changes)
}

// SetAvatar uploads an avatar image and records its location on the
// profile.
func (r *Resolver) SetAvatar(ctx context.Context, id, filename string, data io.Reader) (models.Profile, error) {
	if r.avatars == nil {
		return models.Profile{}, errors.New("avatar storage not configured")
	}

	key := path.Join("avatars", id, fmt.Sprintf("%d_%s", r.now().UnixNano(), path.Base(filename)))
	location, err := r.avatars.Save(ctx, key, data)
	if err != nil {
		return models.Profile{}, fmt.Errorf("store avatar: %w", err)
	}

	return r.profiles.Update(ctx, id, repositories.ProfileChanges{AvatarURL: &location})
}
