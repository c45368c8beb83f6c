package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"sync_engine/internal/domain"
)

// EventLedger is the durable log of every webhook event received. The
// primary key is the external event ID, so at-least-once delivery degrades
// to at-most-once storage via conflict-ignore.
type EventLedger struct {
	db *sqlx.DB
}

func NewEventLedger(db *sqlx.DB) *EventLedger {
	return &EventLedger{db: db}
}

// Insert stores one event with processed_at null. On a duplicate delivery
// the insert is a no-op and the pre-existing row is returned; a fresh insert
// returns (nil, nil).
func (l *EventLedger) Insert(ctx context.Context, event *domain.WebhookEvent) (*domain.WebhookEvent, error) {
	query := `
		INSERT INTO webhook_events (id, type, payload, received_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	res, err := GetExecutor(ctx, l.db).ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Payload,
		event.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected > 0 {
		return nil, nil
	}

	var existing domain.WebhookEvent
	err = l.db.GetContext(ctx, &existing, `
		SELECT id, type, payload, received_at, processed_at, error, retry_count
		FROM webhook_events
		WHERE id = $1`, event.ID)
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// MarkProcessed stamps processed_at and clears any stored error.
func (l *EventLedger) MarkProcessed(ctx context.Context, id string) error {
	query := `
		UPDATE webhook_events
		SET processed_at = now(), error = NULL
		WHERE id = $1`

	_, err := GetExecutor(ctx, l.db).ExecContext(ctx, query, id)
	return err
}

// MarkFailed increments the retry counter and records the failure message,
// leaving processed_at null so the sweep can pick the event up again.
func (l *EventLedger) MarkFailed(ctx context.Context, id string, message string) error {
	query := `
		UPDATE webhook_events
		SET retry_count = retry_count + 1, error = $2
		WHERE id = $1`

	_, err := l.db.ExecContext(ctx, query, id, message)
	return err
}

// Pending returns unprocessed events that still have retry budget and were
// received after since, oldest first. Dead-lettered rows never match.
func (l *EventLedger) Pending(ctx context.Context, maxRetries int, since time.Time, limit int) ([]domain.WebhookEvent, error) {
	var events []domain.WebhookEvent
	query := `
		SELECT id, type, payload, received_at, processed_at, error, retry_count
		FROM webhook_events
		WHERE processed_at IS NULL
		  AND retry_count < $1
		  AND received_at >= $2
		ORDER BY received_at
		LIMIT $3`

	if err := l.db.SelectContext(ctx, &events, query, maxRetries, since, limit); err != nil {
		return nil, err
	}
	return events, nil
}

// PendingCount reports how many unprocessed events are still retry-eligible
// and how many have been dead-lettered.
func (l *EventLedger) PendingCount(ctx context.Context, maxRetries int) (pending, deadLettered int64, err error) {
	query := `
		SELECT
			count(*) FILTER (WHERE retry_count < $1),
			count(*) FILTER (WHERE retry_count >= $1)
		FROM webhook_events
		WHERE processed_at IS NULL`

	err = l.db.QueryRowContext(ctx, query, maxRetries).Scan(&pending, &deadLettered)
	return pending, deadLettered, err
}

// Get reads one ledger row. Returns (nil, nil) when the event is unknown.
func (l *EventLedger) Get(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	err := l.db.GetContext(ctx, &event, `
		SELECT id, type, payload, received_at, processed_at, error, retry_count
		FROM webhook_events
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
