package handlers

import (
	"context"
	"io"
	"time"

	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/pairing"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/realtime"
	"github.com/heartlink/backend/internal/repositories"
)

// AuthService captures the credential operations required by the auth handlers.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error)
	SignIn(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.Identity, models.SessionTokens, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// Authenticator resolves bearer access tokens to identities.
type Authenticator interface {
	Identify(ctx context.Context, accessToken string) (models.Identity, error)
}

// ProfileService captures the profile operations required by the profile handlers.
type ProfileService interface {
	GetOrCreate(ctx context.Context, identity models.Identity, defaults profile.Defaults) (models.Profile, error)
	Update(ctx context.Context, id string, changes repositories.ProfileChanges) (models.Profile, error)
	SetAvatar(ctx context.Context, id, filename string, data io.Reader) (models.Profile, error)
}

// PairingService captures the invite-code protocol operations.
type PairingService interface {
	CreateInviteCode(ctx context.Context, identity models.Identity, anniversary time.Time) (models.Couple, error)
	RedeemInviteCode(ctx context.Context, identity models.Identity, code string) (models.Couple, error)
	CoupleInfo(ctx context.Context, identityID string) (*pairing.Info, error)
	Unpair(ctx context.Context, identityID string) error
}

// EventStore captures persistence for the shared calendar.
type EventStore interface {
	Create(ctx context.Context, event models.Event) error
	ListForCouple(ctx context.Context, coupleID string) ([]models.Event, error)
	Delete(ctx context.Context, coupleID, eventID string) error
}

// TodoStore captures persistence for the shared todo list.
type TodoStore interface {
	Create(ctx context.Context, todo models.Todo) error
	ListForCouple(ctx context.Context, coupleID string) ([]models.Todo, error)
	SetDone(ctx context.Context, coupleID, todoID string, done bool) (models.Todo, error)
	Delete(ctx context.Context, coupleID, todoID string) error
}

// ChangePublisher fans change notifications out to the couple's devices.
type ChangePublisher interface {
	Publish(ctx context.Context, event realtime.Event) error
}
