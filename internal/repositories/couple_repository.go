package repositories

import (
	"context"

	"github.com/heartlink/backend/internal/models"
)

// CoupleRepository defines data access for couple records and the
// invite-code protocol. Implementations must guarantee that
// SetSecondMember is an atomic conditional update: it only succeeds while
// the couple is active, its second slot is empty, and the joiner is not
// already the first member. A lost condition is reported as ErrConflict
// so callers can re-read and classify the failure.
type CoupleRepository interface {
	CreateWithCode(ctx context.Context, couple models.Couple) error
	FindActiveByCode(ctx context.Context, code string) (models.Couple, error)
	SetSecondMember(ctx context.Context, coupleID, identityID string) (models.Couple, error)
	FindActiveForUser(ctx context.Context, identityID string) (models.Couple, error)
	DeactivateForUser(ctx context.Context, identityID string) error
}
