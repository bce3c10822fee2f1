package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/heartlink/backend/internal/models"
)

var (
	// ErrInvalidCredentials indicates the email/password shape was rejected at sign-up.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken indicates the email already belongs to an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrAuthFailed indicates the credentials did not match an account.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrUserNotFound indicates no account matches the lookup.
	ErrUserNotFound = errors.New("account not found")
)

const minPasswordLength = 8

// UserStore persists credential accounts. Implementations report a
// duplicate email from Create with an error matching ErrEmailTaken and a
// missing account from the finders with one matching ErrUserNotFound.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Service implements the credential lifecycle: account creation, password
// verification, and session token exchange. It is the concrete provider
// behind the session store and the HTTP auth endpoints.
type Service struct {
	users    UserStore
	sessions *Manager
	now      func() time.Time
}

// NewService constructs an auth service over the given account store
// and token manager.
func NewService(users UserStore, sessions *Manager) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SignUp registers a new account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return models.Identity{}, models.SessionTokens{}, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return models.Identity{}, models.SessionTokens{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return models.Identity{}, models.SessionTokens{}, fmt.Errorf("lookup account: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Identity{}, models.SessionTokens{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  string(hashed),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return models.Identity{}, models.SessionTokens{}, err
		}
		return models.Identity{}, models.SessionTokens{}, fmt.Errorf("create account: %w", err)
	}

	tokens, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return models.Identity{}, models.SessionTokens{}, fmt.Errorf("issue session: %w", err)
	}

	return models.Identity{ID: user.ID, Email: user.Email}, tokens, nil
}

// SignIn verifies credentials and issues a fresh session.
func (s *Service) SignIn(ctx context.Context, email, password string) (models.Identity, models.SessionTokens, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return models.Identity{}, models.SessionTokens{}, ErrAuthFailed
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.Identity{}, models.SessionTokens{}, ErrAuthFailed
		}
		return models.Identity{}, models.SessionTokens{}, fmt.Errorf("lookup account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return models.Identity{}, models.SessionTokens{}, ErrAuthFailed
	}

	tokens, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return models.Identity{}, models.SessionTokens{}, fmt.Errorf("issue session: %w", err)
	}

	return models.Identity{ID: user.ID, Email: user.Email}, tokens, nil
}

// Refresh exchanges a refresh token for a new token pair and the owning identity.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.Identity, models.SessionTokens, error) {
	tokens, userID, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return models.Identity{}, models.SessionTokens{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return models.Identity{}, models.SessionTokens{}, fmt.Errorf("lookup refreshed account: %w", err)
	}

	return models.Identity{ID: user.ID, Email: user.Email}, tokens, nil
}

// SignOut revokes the refresh token backing a session.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, refreshToken)
}

// Identify resolves a bearer access token to its identity.
func (s *Service) Identify(ctx context.Context, accessToken string) (models.Identity, error) {
	userID, err := s.sessions.Authenticate(ctx, accessToken)
	if err != nil {
		return models.Identity{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("lookup authenticated account: %w", err)
	}

	return models.Identity{ID: user.ID, Email: user.Email}, nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return ErrInvalidCredentials
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidCredentials
	}
	if len(password) < minPasswordLength {
		return ErrInvalidCredentials
	}
	return nil
}
