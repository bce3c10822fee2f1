package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartlink/backend/internal/auth"
	"github.com/heartlink/backend/internal/db"
	"github.com/heartlink/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for accounts.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new account record. Email is the only user-supplied
// unique column, so unique violations surface as auth.ErrEmailTaken.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, user.ID, user.Email, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches an account by its email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findUser(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM users
        WHERE email = $1
    `, email)
}

// FindByID fetches an account by its identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findUser(ctx, `
        SELECT id, email, password_hash, created_at, updated_at
        FROM users
        WHERE id = $1
    `, id)
}

func (r *PostgresUserRepository) findUser(ctx context.Context, query, arg string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var user models.User
	row := conn.QueryRow(ctx, query, arg)
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, auth.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// PostgresProfileRepository provides PostgreSQL-backed persistence for profiles.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// Get fetches a profile by identity id.
func (r *PostgresProfileRepository) Get(ctx context.Context, id string) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, email, nickname, birth_date, avatar_url, created_at, updated_at
        FROM profiles
        WHERE id = $1
    `, id)

	var profile models.Profile
	if err := row.Scan(&profile.ID, &profile.Email, &profile.Nickname, &profile.BirthDate, &profile.AvatarURL, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("select profile: %w", err)
	}

	return profile, nil
}

// Create persists a new profile record.
func (r *PostgresProfileRepository) Create(ctx context.Context, profile models.Profile) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO profiles (id, email, nickname, birth_date, avatar_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, profile.ID, profile.Email, profile.Nickname, profile.BirthDate, profile.AvatarURL, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert profile: %w", err)
	}

	return nil
}

// Update applies a partial update and returns the stored profile.
func (r *PostgresProfileRepository) Update(ctx context.Context, id string, changes ProfileChanges) (models.Profile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Profile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE profiles
        SET nickname   = COALESCE($2, nickname),
            birth_date = COALESCE($3, birth_date),
            avatar_url = COALESCE($4, avatar_url),
            updated_at = NOW()
        WHERE id = $1
        RETURNING id, email, nickname, birth_date, avatar_url, created_at, updated_at
    `, id, changes.Nickname, changes.BirthDate, changes.AvatarURL)

	var profile models.Profile
	if err := row.Scan(&profile.ID, &profile.Email, &profile.Nickname, &profile.BirthDate, &profile.AvatarURL, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	return profile, nil
}

// PostgresCoupleRepository provides PostgreSQL-backed persistence for couples.
type PostgresCoupleRepository struct {
	pool db.Pool
}

// NewPostgresCoupleRepository constructs a couple repository backed by PostgreSQL.
func NewPostgresCoupleRepository(pool db.Pool) *PostgresCoupleRepository {
	return &PostgresCoupleRepository{pool: pool}
}

const coupleColumns = `id, user_one, user_two, anniversary, invite_code, active, created_at`

// CreateWithCode inserts a pending couple carrying a fresh invite code.
// Partial unique indexes on the active invite code and on each active
// member slot back the engine's uniqueness invariants; violations
// surface as ErrConflict.
func (r *PostgresCoupleRepository) CreateWithCode(ctx context.Context, couple models.Couple) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO couples (id, user_one, user_two, anniversary, invite_code, active, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, couple.ID, couple.UserOne, couple.UserTwo, couple.Anniversary, couple.InviteCode, couple.Active, couple.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert couple: %w", err)
	}

	return nil
}

// FindActiveByCode looks up the active couple carrying the exact invite code.
func (r *PostgresCoupleRepository) FindActiveByCode(ctx context.Context, code string) (models.Couple, error) {
	return r.findCouple(ctx, `
        SELECT `+coupleColumns+`
        FROM couples
        WHERE invite_code = $1 AND active
    `, code)
}

// FindActiveForUser returns the active couple containing the identity in
// either member slot.
func (r *PostgresCoupleRepository) FindActiveForUser(ctx context.Context, identityID string) (models.Couple, error) {
	return r.findCouple(ctx, `
        SELECT `+coupleColumns+`
        FROM couples
        WHERE active AND (user_one = $1 OR user_two = $1)
    `, identityID)
}

func (r *PostgresCoupleRepository) findCouple(ctx context.Context, query, arg string) (models.Couple, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Couple{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var couple models.Couple
	row := conn.QueryRow(ctx, query, arg)
	if err := row.Scan(&couple.ID, &couple.UserOne, &couple.UserTwo, &couple.Anniversary, &couple.InviteCode, &couple.Active, &couple.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Couple{}, ErrNotFound
		}
		return models.Couple{}, fmt.Errorf("select couple: %w", err)
	}

	return couple, nil
}

// SetSecondMember fills the second member slot, transitioning the couple
// from pending to paired. The update is conditional so that concurrent
// redemptions cannot both succeed: a couple that is inactive, already
// paired, or created by the joiner leaves zero rows affected, which is
// reported as ErrConflict. The NOT EXISTS clause keeps a joiner who is
// already a member of some other active couple out of a second one; the
// partial unique indexes only guard each member slot per couple.
func (r *PostgresCoupleRepository) SetSecondMember(ctx context.Context, coupleID, identityID string) (models.Couple, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Couple{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE couples
        SET user_two = $2
        WHERE id = $1 AND active AND user_two IS NULL AND user_one <> $2
          AND NOT EXISTS (
              SELECT 1 FROM couples other
              WHERE other.active AND (other.user_one = $2 OR other.user_two = $2)
          )
        RETURNING `+coupleColumns+`
    `, coupleID, identityID)

	var couple models.Couple
	if err := row.Scan(&couple.ID, &couple.UserOne, &couple.UserTwo, &couple.Anniversary, &couple.InviteCode, &couple.Active, &couple.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Couple{}, ErrConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Couple{}, ErrConflict
		}
		return models.Couple{}, fmt.Errorf("set second member: %w", err)
	}

	return couple, nil
}

// DeactivateForUser dissolves the identity's active couple. ErrNotFound
// is returned when no active couple exists; callers that want idempotent
// unpairing swallow it.
func (r *PostgresCoupleRepository) DeactivateForUser(ctx context.Context, identityID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE couples
        SET active = FALSE
        WHERE active AND (user_one = $1 OR user_two = $1)
    `, identityID)
	if err != nil {
		return fmt.Errorf("deactivate couple: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ auth.UserStore = (*PostgresUserRepository)(nil)
var _ ProfileRepository = (*PostgresProfileRepository)(nil)
var _ CoupleRepository = (*PostgresCoupleRepository)(nil)
