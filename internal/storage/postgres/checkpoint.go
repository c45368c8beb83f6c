package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"sync_engine/internal/domain"
)

// CheckpointStore persists per-resource-type sync cursors. Only the
// orchestrator writes here, sequentially within one run, so no locking is
// needed beyond the upsert itself.
type CheckpointStore struct {
	db *sqlx.DB
}

func NewCheckpointStore(db *sqlx.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Get returns (nil, nil) when no checkpoint exists: an absent checkpoint
// means the next pull for that type is a full sync.
func (s *CheckpointStore) Get(ctx context.Context, resourceType string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	query := `
		SELECT resource_type, cursor, last_synced_at, total_synced
		FROM checkpoints
		WHERE resource_type = $1`

	err := s.db.GetContext(ctx, &cp, query, resourceType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// Advance upserts the cursor and timestamp for one resource type.
// cp.TotalSynced is a delta for this run and is added to the stored total.
func (s *CheckpointStore) Advance(ctx context.Context, cp *domain.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (resource_type, cursor, last_synced_at, total_synced)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (resource_type) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			last_synced_at = EXCLUDED.last_synced_at,
			total_synced = checkpoints.total_synced + EXCLUDED.total_synced`

	_, err := s.db.ExecContext(ctx, query,
		cp.ResourceType,
		cp.Cursor,
		cp.LastSyncedAt,
		cp.TotalSynced,
	)
	return err
}

func (s *CheckpointStore) List(ctx context.Context) ([]domain.Checkpoint, error) {
	var checkpoints []domain.Checkpoint
	query := `
		SELECT resource_type, cursor, last_synced_at, total_synced
		FROM checkpoints
		ORDER BY resource_type`

	if err := s.db.SelectContext(ctx, &checkpoints, query); err != nil {
		return nil, err
	}
	return checkpoints, nil
}
