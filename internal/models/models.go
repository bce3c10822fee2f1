package models

import "time"

// Identity is the authenticated principal for one account. It lives only
// for the duration of a session and is never persisted beyond the auth
// service's own refresh credential.
type Identity struct {
	ID    string
	Email string
}

// User is the credential-backed account record owned by the auth service.
type User struct {
	ID        string
	Email     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile holds the user-facing display data for an identity. Exactly one
// profile exists per identity, created lazily the first time the identity
// is seen without one.
type Profile struct {
	ID        string
	Email     string
	Nickname  string
	BirthDate time.Time
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Couple links two identities. UserTwo stays nil while the couple is
// pending; Active flips to false when either member unpairs. Dissolved
// records are kept as tombstones and never reactivated.
type Couple struct {
	ID          string
	UserOne     string
	UserTwo     *string
	Anniversary time.Time
	InviteCode  string
	Active      bool
	CreatedAt   time.Time
}

// Couple lifecycle states, derived from the record rather than stored.
const (
	CoupleStatePending   = "pending"
	CoupleStatePaired    = "paired"
	CoupleStateDissolved = "dissolved"
)

// State derives the lifecycle state of the couple record.
func (c Couple) State() string {
	switch {
	case !c.Active:
		return CoupleStateDissolved
	case c.UserTwo == nil:
		return CoupleStatePending
	default:
		return CoupleStatePaired
	}
}

// HasMember reports whether the identity occupies either member slot.
func (c Couple) HasMember(identityID string) bool {
	if c.UserOne == identityID {
		return true
	}
	return c.UserTwo != nil && *c.UserTwo == identityID
}

// PartnerOf returns the other member's id, or "" when the couple is
// still pending or the identity is not a member.
func (c Couple) PartnerOf(identityID string) string {
	if c.UserOne == identityID {
		if c.UserTwo == nil {
			return ""
		}
		return *c.UserTwo
	}
	if c.UserTwo != nil && *c.UserTwo == identityID {
		return c.UserOne
	}
	return ""
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Event is a shared calendar entry belonging to a couple.
type Event struct {
	ID        string
	CoupleID  string
	AuthorID  string
	Title     string
	Note      string
	Date      time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Todo is a shared todo-list entry belonging to a couple.
type Todo struct {
	ID          string
	CoupleID    string
	AuthorID    string
	Title       string
	Done        bool
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
