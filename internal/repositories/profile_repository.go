package repositories

import (
	"context"
	"time"

	"github.com/heartlink/backend/internal/models"
)

// ProfileChanges carries a partial profile update. Nil fields are left
// untouched.
type ProfileChanges struct {
	Nickname  *string
	BirthDate *time.Time
	AvatarURL *string
}

// IsEmpty reports whether the update would change nothing.
func (c ProfileChanges) IsEmpty() bool {
	return c.Nickname == nil && c.BirthDate == nil && c.AvatarURL == nil
}

// ProfileRepository defines the data access contract for profiles.
type ProfileRepository interface {
	Get(ctx context.Context, id string) (models.Profile, error)
	Create(ctx context.Context, profile models.Profile) error
	Update(ctx context.Context, id string, changes ProfileChanges) (models.Profile, error)
}
