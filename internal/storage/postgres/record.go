package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sync_engine/internal/domain"
)

// RecordStore is the single write path into the records table. Both the
// orchestrator and the webhook processor write through it, so the insert-or-
// update statement is the only concurrency primitive the engine needs.
type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Upsert writes one record, overwriting every field unconditionally and
// stamping synced_at. There is deliberately no source_updated_at guard:
// last writer wins by write order. Returns true when the row was inserted
// rather than updated.
func (s *RecordStore) Upsert(ctx context.Context, record *domain.Record) (bool, error) {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return false, fmt.Errorf("marshal fields: %w", err)
	}

	// xmax = 0 only holds for a freshly inserted tuple.
	query := `
		INSERT INTO records (
			resource_type, id, fields, source_updated_at, synced_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, now(), $5
		)
		ON CONFLICT (resource_type, id) DO UPDATE SET
			fields = EXCLUDED.fields,
			source_updated_at = EXCLUDED.source_updated_at,
			synced_at = now(),
			deleted_at = EXCLUDED.deleted_at
		RETURNING (xmax = 0)`

	var created bool
	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		record.ResourceType,
		record.ID,
		fields,
		record.SourceUpdatedAt,
		record.DeletedAt,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert record %s/%s: %w", record.ResourceType, record.ID, err)
	}

	return created, nil
}

// SoftDelete marks one record deleted through the same conflict path as
// Upsert, leaving its fields intact. A tombstone row is created when the
// record was never pulled.
func (s *RecordStore) SoftDelete(ctx context.Context, resourceType, id string) error {
	query := `
		INSERT INTO records (
			resource_type, id, fields, source_updated_at, synced_at, deleted_at
		) VALUES (
			$1, $2, '{}'::jsonb, now(), now(), now()
		)
		ON CONFLICT (resource_type, id) DO UPDATE SET
			synced_at = now(),
			deleted_at = now()`

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, resourceType, id); err != nil {
		return fmt.Errorf("soft delete record %s/%s: %w", resourceType, id, err)
	}
	return nil
}

// CountByType counts live (non-deleted) records per resource type.
func (s *RecordStore) CountByType(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT resource_type, count(*)
		FROM records
		WHERE deleted_at IS NULL
		GROUP BY resource_type`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			resourceType string
			count        int64
		)
		if err := rows.Scan(&resourceType, &count); err != nil {
			return nil, err
		}
		counts[resourceType] = count
	}

	return counts, rows.Err()
}

// Get reads one record back, deleted or not. Used by tests and handlers
// that re-fetch before deciding what to write.
func (s *RecordStore) Get(ctx context.Context, resourceType, id string) (*domain.Record, error) {
	query := `
		SELECT id, resource_type, fields, source_updated_at, synced_at, deleted_at
		FROM records
		WHERE resource_type = $1 AND id = $2`

	var row struct {
		ID              string     `db:"id"`
		ResourceType    string     `db:"resource_type"`
		Fields          []byte     `db:"fields"`
		SourceUpdatedAt time.Time  `db:"source_updated_at"`
		SyncedAt        time.Time  `db:"synced_at"`
		DeletedAt       *time.Time `db:"deleted_at"`
	}
	if err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, resourceType, id).StructScan(&row); err != nil {
		return nil, err
	}

	record := &domain.Record{
		ID:              row.ID,
		ResourceType:    row.ResourceType,
		SourceUpdatedAt: row.SourceUpdatedAt,
		SyncedAt:        row.SyncedAt,
		DeletedAt:       row.DeletedAt,
	}
	if err := json.Unmarshal(row.Fields, &record.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return record, nil
}
