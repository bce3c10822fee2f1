// Package session tracks the single authenticated identity for the
// running process and notifies observers when it changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/heartlink/backend/internal/logging"
	"github.com/heartlink/backend/internal/models"
)

// ErrSignOutFailed indicates the backend revoke call failed. Local state
// is cleared regardless, so the caller is signed out either way.
var ErrSignOutFailed = errors.New("sign out revoke failed")

// EventKind classifies session change notifications.
type EventKind string

const (
	SignedIn  EventKind = "signed-in"
	SignedOut EventKind = "signed-out"
)

// Event is delivered to subscribers whenever the current identity changes.
type Event struct {
	Kind     EventKind
	Identity *models.Identity
}

// Provider is the narrow slice of the auth collaborator the store needs.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error)
	SignIn(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.Identity, models.SessionTokens, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// Store owns the current identity for the process lifetime. All reads are
// served from cache; the provider is only consulted on explicit calls.
type Store struct {
	provider Provider
	creds    CredentialStore

	mu           sync.RWMutex
	current      *models.Identity
	refreshToken string
	subs         map[int]chan Event
	nextSub      int
}

// NewStore constructs a session store over the given provider. creds may
// be nil, in which case sessions do not survive process restarts.
func NewStore(provider Provider, creds CredentialStore) *Store {
	if creds == nil {
		creds = NewMemoryCredentialStore()
	}
	return &Store{
		provider: provider,
		creds:    creds,
		subs:     make(map[int]chan Event),
	}
}

// Restore exchanges a previously persisted refresh credential for a live
// session during initialization. A restored identity fires SignedIn, the
// same as an interactive sign-in. Returns nil when no credential exists.
func (s *Store) Restore(ctx context.Context) (*models.Identity, error) {
	token, err := s.creds.Load()
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if token == "" {
		return nil, nil
	}

	identity, tokens, err := s.provider.Refresh(ctx, token)
	if err != nil {
		// A dead credential is not worth keeping.
		_ = s.creds.Clear()
		logging.FromContext(ctx).Warn("session restore failed", "error", err)
		return nil, nil
	}

	s.commit(identity, tokens)
	return &identity, nil
}

// SignUp registers a new account; on success the identity becomes current.
func (s *Store) SignUp(ctx context.Context, email, password string) (models.Identity, error) {
	identity, tokens, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return models.Identity{}, err
	}
	s.commit(identity, tokens)
	return identity, nil
}

// SignIn authenticates; on success the identity becomes current.
func (s *Store) SignIn(ctx context.Context, email, password string) (models.Identity, error) {
	identity, tokens, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return models.Identity{}, err
	}
	s.commit(identity, tokens)
	return identity, nil
}

// SignOut clears the current identity. Local state is cleared and
// SignedOut delivered before the backend revoke call, so the caller can
// never be left stuck authenticated by a failing backend.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.refreshToken
	s.current = nil
	s.refreshToken = ""
	s.mu.Unlock()

	_ = s.creds.Clear()
	s.notify(Event{Kind: SignedOut})

	if token == "" {
		return nil
	}
	if err := s.provider.SignOut(ctx, token); err != nil {
		logging.FromContext(ctx).Warn("session revoke failed", "error", err)
		return fmt.Errorf("%w: %v", ErrSignOutFailed, err)
	}
	return nil
}

// CurrentIdentity returns the cached identity, or nil when signed out.
func (s *Store) CurrentIdentity() *models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	identity := *s.current
	return &identity
}

// Subscribe registers a change listener. Delivery is asynchronous and
// best-effort: a subscriber that stops draining misses events rather than
// blocking the store. The returned func cancels the subscription.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 16)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) commit(identity models.Identity, tokens models.SessionTokens) {
	s.mu.Lock()
	current := identity
	s.current = &current
	s.refreshToken = tokens.RefreshToken
	s.mu.Unlock()

	if err := s.creds.Save(tokens.RefreshToken); err != nil {
		logging.FromContext(context.Background()).Warn("persist credential failed", "error", err)
	}
	s.notify(Event{Kind: SignedIn, Identity: &identity})
}

func (s *Store) notify(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
