package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/heartlink/backend/internal/db"
	"github.com/heartlink/backend/internal/logging"
)

const notifyChannel = "couple_events"

// PostgresBroker implements Broker over PostgreSQL LISTEN/NOTIFY so
// change events reach every running instance, not just the one that
// performed the write.
type PostgresBroker struct {
	pool db.Pool
}

// NewPostgresBroker constructs a broker over the shared connection pool.
func NewPostgresBroker(pool db.Pool) *PostgresBroker {
	return &PostgresBroker{pool: pool}
}

// Publish emits the event on the shared notification channel.
func (b *PostgresBroker) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// Subscribe holds a dedicated connection listening for the couple's
// events until the returned cancel func runs or the context ends.
func (b *PostgresBroker) Subscribe(ctx context.Context, coupleID string) (<-chan Event, func(), error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `LISTEN `+notifyChannel); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("listen: %w", err)
	}

	listenCtx, cancelCtx := context.WithCancel(ctx)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer conn.Release()

		for {
			notification, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					logging.FromContext(ctx).Warn("couple event listener stopped", "error", err)
				}
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
				logging.FromContext(ctx).Warn("malformed couple event", "error", err)
				continue
			}
			if event.CoupleID != coupleID {
				continue
			}

			select {
			case events <- event:
			default:
			}
		}
	}()

	return events, cancelCtx, nil
}

var _ Broker = (*PostgresBroker)(nil)
