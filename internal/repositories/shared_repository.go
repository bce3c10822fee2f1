package repositories

import (
	"context"

	"github.com/heartlink/backend/internal/models"
)

// EventRepository defines data access for a couple's shared calendar.
type EventRepository interface {
	Create(ctx context.Context, event models.Event) error
	ListForCouple(ctx context.Context, coupleID string) ([]models.Event, error)
	Delete(ctx context.Context, coupleID, eventID string) error
}

// TodoRepository defines data access for a couple's shared todo list.
type TodoRepository interface {
	Create(ctx context.Context, todo models.Todo) error
	ListForCouple(ctx context.Context, coupleID string) ([]models.Todo, error)
	SetDone(ctx context.Context, coupleID, todoID string, done bool) (models.Todo, error)
	Delete(ctx context.Context, coupleID, todoID string) error
}
