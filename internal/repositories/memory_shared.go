package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/heartlink/backend/internal/models"
)

// NewInMemoryEventRepository returns an EventRepository backed by a map.
func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{events: make(map[string]models.Event)}
}

// InMemoryEventRepository implements EventRepository without a database.
type InMemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]models.Event
}

// Create stores a new calendar event.
func (r *InMemoryEventRepository) Create(_ context.Context, event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; ok {
		return ErrConflict
	}
	r.events[event.ID] = event
	return nil
}

// ListForCouple returns the couple's events ordered by date.
func (r *InMemoryEventRepository) ListForCouple(_ context.Context, coupleID string) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.Event
	for _, event := range r.events {
		if event.CoupleID == coupleID {
			result = append(result, event)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// Delete removes an event scoped to its couple.
func (r *InMemoryEventRepository) Delete(_ context.Context, coupleID, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok || event.CoupleID != coupleID {
		return ErrNotFound
	}
	delete(r.events, eventID)
	return nil
}

// NewInMemoryTodoRepository returns a TodoRepository backed by a map.
func NewInMemoryTodoRepository() *InMemoryTodoRepository {
	return &InMemoryTodoRepository{todos: make(map[string]models.Todo)}
}

// InMemoryTodoRepository implements TodoRepository without a database.
type InMemoryTodoRepository struct {
	mu    sync.RWMutex
	todos map[string]models.Todo
}

// Create stores a new todo entry.
func (r *InMemoryTodoRepository) Create(_ context.Context, todo models.Todo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.todos[todo.ID]; ok {
		return ErrConflict
	}
	r.todos[todo.ID] = todo
	return nil
}

// ListForCouple returns the couple's todos ordered by creation time.
func (r *InMemoryTodoRepository) ListForCouple(_ context.Context, coupleID string) ([]models.Todo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.Todo
	for _, todo := range r.todos {
		if todo.CoupleID == coupleID {
			result = append(result, todo)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// SetDone flips the completion flag of a todo scoped to its couple.
func (r *InMemoryTodoRepository) SetDone(_ context.Context, coupleID, todoID string, done bool) (models.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[todoID]
	if !ok || todo.CoupleID != coupleID {
		return models.Todo{}, ErrNotFound
	}
	todo.Done = done
	if done {
		now := time.Now().UTC()
		todo.CompletedAt = &now
	} else {
		todo.CompletedAt = nil
	}
	todo.UpdatedAt = time.Now().UTC()
	r.todos[todoID] = todo
	return todo, nil
}

// Delete removes a todo scoped to its couple.
func (r *InMemoryTodoRepository) Delete(_ context.Context, coupleID, todoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	todo, ok := r.todos[todoID]
	if !ok || todo.CoupleID != coupleID {
		return ErrNotFound
	}
	delete(r.todos, todoID)
	return nil
}

var _ EventRepository = (*InMemoryEventRepository)(nil)
var _ TodoRepository = (*InMemoryTodoRepository)(nil)
