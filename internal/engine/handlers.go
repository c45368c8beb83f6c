package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"sync_engine/internal/domain"
	"sync_engine/internal/metrics"
)

// recordEvent is the payload shape of record-change webhook events: the
// envelope plus the raw source record under data.
type recordEvent struct {
	Data json.RawMessage `json:"data"`
}

// deletePayload carries only the source ID of a deleted record. Sources do
// not resend the record body on delete.
type deletePayload struct {
	ID string `json:"id"`
}

// RegisterRecordHandlers installs created/updated/deleted handlers for every
// resource type the connector declares. Created and updated events share one
// handler: the upsert store makes the distinction irrelevant on this side.
// The publisher may be nil; publishing stays best-effort either way.
func RegisterRecordHandlers(p *Processor, conn Connector, records RecordStore, publisher Publisher, logger *slog.Logger) {
	for _, resource := range conn.Resources() {
		rt := resource.Type
		upsert := upsertHandler(rt, conn, records, publisher, logger)
		p.Register(rt+".created", upsert)
		p.Register(rt+".updated", upsert)
		p.Register(rt+".deleted", deleteHandler(rt, records, publisher, logger))
	}
}

func upsertHandler(resourceType string, conn Connector, records RecordStore, publisher Publisher, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *domain.WebhookEvent) error {
		var payload recordEvent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("decode event payload: %w", err)
		}
		if len(payload.Data) == 0 {
			return fmt.Errorf("event %s has no data", event.ID)
		}

		record, err := conn.Map(resourceType, payload.Data)
		if err != nil {
			return fmt.Errorf("map record: %w", err)
		}

		created, err := records.Upsert(ctx, record)
		if err != nil {
			return fmt.Errorf("upsert record %s/%s: %w", record.ResourceType, record.ID, err)
		}

		action := "update"
		if created {
			action = "create"
		}
		metrics.RecordsSyncedTotal.WithLabelValues(resourceType, action).Inc()

		publish(ctx, publisher, record, created, logger)
		return nil
	}
}

func deleteHandler(resourceType string, records RecordStore, publisher Publisher, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *domain.WebhookEvent) error {
		var payload recordEvent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("decode event payload: %w", err)
		}
		var target deletePayload
		if err := json.Unmarshal(payload.Data, &target); err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		if target.ID == "" {
			return fmt.Errorf("event %s has no record id", event.ID)
		}

		if err := records.SoftDelete(ctx, resourceType, target.ID); err != nil {
			return fmt.Errorf("soft delete %s/%s: %w", resourceType, target.ID, err)
		}
		metrics.RecordsSyncedTotal.WithLabelValues(resourceType, "delete").Inc()

		publish(ctx, publisher, &domain.Record{
			ID:           target.ID,
			ResourceType: resourceType,
			DeletedAt:    &event.ReceivedAt,
		}, false, logger)
		return nil
	}
}

// publish is best-effort: a broker outage must not fail the event and burn
// its retry budget, since the record write already committed.
func publish(ctx context.Context, publisher Publisher, record *domain.Record, created bool, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, record, created); err != nil {
		logger.Warn("failed to publish record change",
			"resource_type", record.ResourceType,
			"record_id", record.ID,
			"error", err,
		)
	}
}
