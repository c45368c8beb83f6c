package engine

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"sync_engine/internal/domain"
)

// Resource declares one resource type a connector can pull, plus the types
// that must be synced before it.
type Resource struct {
	Type      string
	DependsOn []string
}

// Batch is one page of raw records. NextCursor is the cursor that resumes
// the stream after this page; Timestamp is the source-asserted time the page
// reflects.
type Batch struct {
	Items      []json.RawMessage
	NextCursor string
	Timestamp  time.Time
}

// Stream is a lazy, forward-only sequence of batches. Next returns a nil
// batch when the stream is exhausted. A stream is restartable only by
// calling Pull again with a cursor, never mid-flight.
type Stream interface {
	Next(ctx context.Context) (*Batch, error)
}

// Connector adapts one external service. Implementations live outside this
// repository and register themselves with the connector registry.
type Connector interface {
	ID() string
	Name() string
	Resources() []Resource
	Pull(ctx context.Context, resourceType string, cp *domain.Checkpoint) (Stream, error)
	Map(resourceType string, raw json.RawMessage) (*domain.Record, error)
}

// RecordStore is the single write path into the relational store.
type RecordStore interface {
	Upsert(ctx context.Context, record *domain.Record) (created bool, err error)
	SoftDelete(ctx context.Context, resourceType, id string) error
	CountByType(ctx context.Context) (map[string]int64, error)
}

// CheckpointStore persists per-resource-type sync progress. Get returns
// (nil, nil) when no checkpoint exists yet.
type CheckpointStore interface {
	Get(ctx context.Context, resourceType string) (*domain.Checkpoint, error)
	Advance(ctx context.Context, cp *domain.Checkpoint) error
	List(ctx context.Context) ([]domain.Checkpoint, error)
}

// EventLedger is the durable record of every webhook event. Insert is
// conflict-ignore on the event ID: it returns the pre-existing row on a
// duplicate delivery and nil on a fresh insert.
type EventLedger interface {
	Insert(ctx context.Context, event *domain.WebhookEvent) (existing *domain.WebhookEvent, err error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, message string) error
	Pending(ctx context.Context, maxRetries int, since time.Time, limit int) ([]domain.WebhookEvent, error)
	PendingCount(ctx context.Context, maxRetries int) (pending, deadLettered int64, err error)
}

// Publisher fans successful record writes out to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, record *domain.Record, created bool) error
	Close() error
}

// Limiter bounds the outbound request rate to one external service.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// TransactionManager runs fn inside one database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
