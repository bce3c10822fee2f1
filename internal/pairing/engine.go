// Package pairing implements the invite-code protocol and the couple
// lifecycle: pending on code creation, paired on redemption, dissolved on
// unpair. The engine holds no locks; concurrent redemption is resolved by
// the backend's atomic conditional update.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/models"
	"github.com/heartlink/backend/internal/profile"
	"github.com/heartlink/backend/internal/repositories"
)

var (
	// ErrCodeNotFound indicates no active couple carries the invite code.
	ErrCodeNotFound = errors.New("invite code not found")
	// ErrSelfPairing indicates the caller tried to redeem their own code.
	ErrSelfPairing = errors.New("cannot pair with yourself")
	// ErrAlreadyPaired indicates the caller or the code's couple is
	// already in a paired relationship.
	ErrAlreadyPaired = errors.New("already paired")
)

// codeRetries bounds regeneration attempts after an invite-code
// uniqueness conflict at the backend.
const codeRetries = 3

// ProfileResolver is the slice of the profile resolver the engine needs.
type ProfileResolver interface {
	Get(ctx context.Context, id string) (models.Profile, error)
	GetOrCreate(ctx context.Context, identity models.Identity, defaults profile.Defaults) (models.Profile, error)
}

// Info is a couple together with the denormalized member profiles. A nil
// profile means the member has no profile record (degraded, not fatal).
type Info struct {
	Couple     models.Couple
	ProfileOne *models.Profile
	ProfileTwo *models.Profile
}

// PartnerProfile returns the other member's profile relative to the
// given identity, or nil while the couple is pending.
func (i *Info) PartnerProfile(identityID string) *models.Profile {
	partner := i.Couple.PartnerOf(identityID)
	if partner == "" {
		return nil
	}
	if i.ProfileOne != nil && i.ProfileOne.ID == partner {
		return i.ProfileOne
	}
	if i.ProfileTwo != nil && i.ProfileTwo.ID == partner {
		return i.ProfileTwo
	}
	return nil
}

// Engine drives the invite-code protocol over the couple repository.
type Engine struct {
	couples  repositories.CoupleRepository
	profiles ProfileResolver
	now      func() time.Time
}

// NewEngine constructs a pairing engine.
func NewEngine(couples repositories.CoupleRepository, profiles ProfileResolver) *Engine {
	return &Engine{
		couples:  couples,
		profiles: profiles,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInviteCode creates a pending couple with a fresh invite code.
// Inviting must never be blocked by a missing profile, so one is ensured
// as a side effect. The caller having an active couple already fails with
// ErrAlreadyPaired; a race past that check is caught by the backend's
// uniqueness constraint and surfaces as repositories.ErrConflict.
func (e *Engine) CreateInviteCode(ctx context.Context, identity models.Identity, anniversary time.Time) (models.Couple, error) {
	if _, err := e.profiles.GetOrCreate(ctx, identity, profile.DefaultsFor(identity)); err != nil {
		return models.Couple{}, fmt.Errorf("ensure inviter profile: %w", err)
	}

	if _, err := e.couples.FindActiveForUser(ctx, identity.ID); err == nil {
		return models.Couple{}, ErrAlreadyPaired
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.Couple{}, fmt.Errorf("lookup active couple: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := newInviteCode()
		if err != nil {
			return models.Couple{}, err
		}

		couple := models.Couple{
			ID:          uuid.NewString(),
			UserOne:     identity.ID,
			Anniversary: anniversary,
			InviteCode:  code,
			Active:      true,
			CreatedAt:   e.now(),
		}

		err = e.couples.CreateWithCode(ctx, couple)
		if err == nil {
			logging.FromContext(ctx).Info("invite code created", "coupleId", couple.ID)
			return couple, nil
		}
		if !errors.Is(err, repositories.ErrConflict) {
			return models.Couple{}, fmt.Errorf("create couple: %w", err)
		}
		lastErr = err
	}

	return models.Couple{}, fmt.Errorf("create couple: %w", lastErr)
}

// RedeemInviteCode joins the caller to the pending couple carrying the
// code. The operation is at-most-once-effective: of two concurrent
// redemptions only the first wins the backend's conditional update; the
// loser observes the filled second slot and fails with ErrAlreadyPaired.
// The checks run in protocol order: the code is resolved first, then
// self-redemption is rejected, and only then the caller's own couple
// state is consulted, so an inviter redeeming their own code always
// gets ErrSelfPairing.
func (e *Engine) RedeemInviteCode(ctx context.Context, identity models.Identity, code string) (models.Couple, error) {
	couple, err := e.couples.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Couple{}, ErrCodeNotFound
		}
		return models.Couple{}, fmt.Errorf("lookup invite code: %w", err)
	}

	if couple.UserOne == identity.ID {
		return models.Couple{}, ErrSelfPairing
	}
	if couple.UserTwo != nil {
		return models.Couple{}, ErrAlreadyPaired
	}

	if _, err := e.couples.FindActiveForUser(ctx, identity.ID); err == nil {
		return models.Couple{}, ErrAlreadyPaired
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.Couple{}, fmt.Errorf("lookup active couple: %w", err)
	}

	if _, err := e.profiles.GetOrCreate(ctx, identity, profile.DefaultsFor(identity)); err != nil {
		return models.Couple{}, fmt.Errorf("ensure joiner profile: %w", err)
	}

	updated, err := e.couples.SetSecondMember(ctx, couple.ID, identity.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.Couple{}, e.classifyRedeemConflict(ctx, identity.ID, code, err)
		}
		return models.Couple{}, fmt.Errorf("pair with couple: %w", err)
	}

	logging.FromContext(ctx).Info("invite code redeemed", "coupleId", updated.ID)
	return updated, nil
}

// classifyRedeemConflict re-reads after a lost conditional update so a
// state-mismatch surfaces as the protocol error it is, never a generic one.
func (e *Engine) classifyRedeemConflict(ctx context.Context, identityID, code string, cause error) error {
	couple, err := e.couples.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("pair with couple: %w", cause)
	}
	if couple.UserOne == identityID {
		return ErrSelfPairing
	}
	if couple.UserTwo != nil {
		return ErrAlreadyPaired
	}
	if _, err := e.couples.FindActiveForUser(ctx, identityID); err == nil {
		return ErrAlreadyPaired
	}
	return fmt.Errorf("pair with couple: %w", cause)
}

// CoupleInfo returns the caller's active couple with member profiles, or
// nil when unpaired. "Is paired" is never stored; it is always derived
// from this lookup.
func (e *Engine) CoupleInfo(ctx context.Context, identityID string) (*Info, error) {
	couple, err := e.couples.FindActiveForUser(ctx, identityID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup active couple: %w", err)
	}

	info := &Info{Couple: couple}
	if p, err := e.profiles.Get(ctx, couple.UserOne); err == nil {
		info.ProfileOne = &p
	}
	if couple.UserTwo != nil {
		if p, err := e.profiles.Get(ctx, *couple.UserTwo); err == nil {
			info.ProfileTwo = &p
		}
	}
	return info, nil
}

// Unpair dissolves the caller's active couple. Unpairing when already
// unpaired is a no-op success, never a user-visible failure.
func (e *Engine) Unpair(ctx context.Context, identityID string) error {
	err := e.couples.DeactivateForUser(ctx, identityID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("deactivate couple: %w", err)
	}
	logging.FromContext(ctx).Info("couple dissolved", "identityId", identityID)
	return nil
}
