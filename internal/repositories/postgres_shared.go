package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartlink/backend/internal/db"
	"github.com/heartlink/backend/internal/models"
)

// PostgresEventRepository provides PostgreSQL-backed persistence for the
// shared calendar.
type PostgresEventRepository struct {
	pool db.Pool
}

// NewPostgresEventRepository constructs an event repository backed by PostgreSQL.
func NewPostgresEventRepository(pool db.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// Create stores a new calendar event.
func (r *PostgresEventRepository) Create(ctx context.Context, event models.Event) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO events (id, couple_id, author_id, title, note, event_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, event.ID, event.CoupleID, event.AuthorID, event.Title, event.Note, event.Date, event.CreatedAt, event.UpdatedAt)
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
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// ListForCouple returns the couple's events in ascending date order.
func (r *PostgresEventRepository) ListForCouple(ctx context.Context, coupleID string) ([]models.Event, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, couple_id, author_id, title, note, event_date, created_at, updated_at
        FROM events
        WHERE couple_id = $1
        ORDER BY event_date ASC, created_at ASC
    `, coupleID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.CoupleID, &event.AuthorID, &event.Title, &event.Note, &event.Date, &event.CreatedAt, &event.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// Delete removes an event. The couple id is part of the predicate so one
// couple can never delete another couple's rows.
func (r *PostgresEventRepository) Delete(ctx context.Context, coupleID, eventID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM events
        WHERE id = $1 AND couple_id = $2
    `, eventID, coupleID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresTodoRepository provides PostgreSQL-backed persistence for the
// shared todo list.
type PostgresTodoRepository struct {
	pool db.Pool
}

// NewPostgresTodoRepository constructs a todo repository backed by PostgreSQL.
func NewPostgresTodoRepository(pool db.Pool) *PostgresTodoRepository {
	return &PostgresTodoRepository{pool: pool}
}

// Create stores a new todo entry.
func (r *PostgresTodoRepository) Create(ctx context.Context, todo models.Todo) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO todos (id, couple_id, author_id, title, done, completed_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, todo.ID, todo.CoupleID, todo.AuthorID, todo.Title, todo.Done, todo.CompletedAt, todo.CreatedAt, todo.UpdatedAt)
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
		return fmt.Errorf("insert todo: %w", err)
	}

	return nil
}

// ListForCouple returns the couple's todos, open items first.
func (r *PostgresTodoRepository) ListForCouple(ctx context.Context, coupleID string) ([]models.Todo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, couple_id, author_id, title, done, completed_at, created_at, updated_at
        FROM todos
        WHERE couple_id = $1
        ORDER BY done ASC, created_at DESC
    `, coupleID)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	var todos []models.Todo
	for rows.Next() {
		var todo models.Todo
		if err := rows.Scan(&todo.ID, &todo.CoupleID, &todo.AuthorID, &todo.Title, &todo.Done, &todo.CompletedAt, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}

	return todos, nil
}

// SetDone toggles a todo's completion state and returns the stored row.
func (r *PostgresTodoRepository) SetDone(ctx context.Context, coupleID, todoID string, done bool) (models.Todo, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Todo{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE todos
        SET done = $3,
            completed_at = CASE WHEN $3 THEN NOW() ELSE NULL END,
            updated_at = NOW()
        WHERE id = $1 AND couple_id = $2
        RETURNING id, couple_id, author_id, title, done, completed_at, created_at, updated_at
    `, todoID, coupleID, done)

	var todo models.Todo
	if err := row.Scan(&todo.ID, &todo.CoupleID, &todo.AuthorID, &todo.Title, &todo.Done, &todo.CompletedAt, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Todo{}, ErrNotFound
		}
		return models.Todo{}, fmt.Errorf("update todo: %w", err)
	}

	return todo, nil
}

// Delete removes a todo entry.
func (r *PostgresTodoRepository) Delete(ctx context.Context, coupleID, todoID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM todos
        WHERE id = $1 AND couple_id = $2
    `, todoID, coupleID)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ EventRepository = (*PostgresEventRepository)(nil)
var _ TodoRepository = (*PostgresTodoRepository)(nil)
