package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/heartlink/backend/internal/auth"
	"github.com/heartlink/backend/internal/models"
)

// NewInMemoryUserRepository returns an auth.UserStore backed by maps.
// Useful for tests and local development.
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{users: make(map[string]models.User)}
}

// InMemoryUserRepository implements auth.UserStore without a database.
type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// Create stores a new account, enforcing email uniqueness.
func (r *InMemoryUserRepository) Create(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return auth.ErrEmailTaken
		}
	}
	if _, ok := r.users[user.ID]; ok {
		return ErrConflict
	}
	r.users[user.ID] = user
	return nil
}

// FindByEmail retrieves an account by email.
func (r *InMemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, auth.ErrUserNotFound
}

// FindByID retrieves an account by id.
func (r *InMemoryUserRepository) FindByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return models.User{}, auth.ErrUserNotFound
	}
	return user, nil
}

// NewInMemoryProfileRepository returns a ProfileRepository backed by a map.
func NewInMemoryProfileRepository() *InMemoryProfileRepository {
	return &InMemoryProfileRepository{profiles: make(map[string]models.Profile)}
}

// InMemoryProfileRepository implements ProfileRepository without a database.
type InMemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]models.Profile
}

// Get retrieves a profile by identity id.
func (r *InMemoryProfileRepository) Get(_ context.Context, id string) (models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[id]
	if !ok {
		return models.Profile{}, ErrNotFound
	}
	return profile, nil
}

// Create stores a new profile, enforcing the one-per-identity invariant.
func (r *InMemoryProfileRepository) Create(_ context.Context, profile models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[profile.ID]; ok {
		return ErrConflict
	}
	r.profiles[profile.ID] = profile
	return nil
}

// Update applies a partial update to an existing profile.
func (r *InMemoryProfileRepository) Update(_ context.Context, id string, changes ProfileChanges) (models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[id]
	if !ok {
		return models.Profile{}, ErrNotFound
	}
	if changes.Nickname != nil {
		profile.Nickname = *changes.Nickname
	}
	if changes.BirthDate != nil {
		profile.BirthDate = *changes.BirthDate
	}
	if changes.AvatarURL != nil {
		profile.AvatarURL = *changes.AvatarURL
	}
	profile.UpdatedAt = time.Now().UTC()
	r.profiles[id] = profile
	return profile, nil
}

// NewInMemoryCoupleRepository returns a CoupleRepository backed by a map.
// The conditional-update semantics mirror the PostgreSQL implementation
// so the pairing engine behaves identically in tests.
func NewInMemoryCoupleRepository() *InMemoryCoupleRepository {
	return &InMemoryCoupleRepository{couples: make(map[string]models.Couple)}
}

// InMemoryCoupleRepository implements CoupleRepository without a database.
type InMemoryCoupleRepository struct {
	mu      sync.Mutex
	couples map[string]models.Couple
}

// CreateWithCode inserts a pending couple, enforcing the active-code and
// active-membership uniqueness constraints.
func (r *InMemoryCoupleRepository) CreateWithCode(_ context.Context, couple models.Couple) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.couples {
		if !existing.Active {
			continue
		}
		if existing.InviteCode == couple.InviteCode || existing.HasMember(couple.UserOne) {
			return ErrConflict
		}
	}
	r.couples[couple.ID] = couple
	return nil
}

// FindActiveByCode looks up an active couple by exact code match.
func (r *InMemoryCoupleRepository) FindActiveByCode(_ context.Context, code string) (models.Couple, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, couple := range r.couples {
		if couple.Active && couple.InviteCode == code {
			return couple, nil
		}
	}
	return models.Couple{}, ErrNotFound
}

// SetSecondMember atomically fills the second slot of a pending couple.
func (r *InMemoryCoupleRepository) SetSecondMember(_ context.Context, coupleID, identityID string) (models.Couple, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	couple, ok := r.couples[coupleID]
	if !ok || !couple.Active || couple.UserTwo != nil || couple.UserOne == identityID {
		return models.Couple{}, ErrConflict
	}
	for _, existing := range r.couples {
		if existing.Active && existing.ID != coupleID && existing.HasMember(identityID) {
			return models.Couple{}, ErrConflict
		}
	}
	member := identityID
	couple.UserTwo = &member
	r.couples[coupleID] = couple
	return couple, nil
}

// FindActiveForUser returns the identity's active couple, if any.
func (r *InMemoryCoupleRepository) FindActiveForUser(_ context.Context, identityID string) (models.Couple, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, couple := range r.couples {
		if couple.Active && couple.HasMember(identityID) {
			return couple, nil
		}
	}
	return models.Couple{}, ErrNotFound
}

// DeactivateForUser dissolves the identity's active couple.
func (r *InMemoryCoupleRepository) DeactivateForUser(_ context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, couple := range r.couples {
		if couple.Active && couple.HasMember(identityID) {
			couple.Active = false
			r.couples[id] = couple
			return nil
		}
	}
	return ErrNotFound
}

var _ auth.UserStore = (*InMemoryUserRepository)(nil)
var _ ProfileRepository = (*InMemoryProfileRepository)(nil)
var _ CoupleRepository = (*InMemoryCoupleRepository)(nil)
