package engine

import (
	"context"
	"fmt"
	"time"

	"sync_engine/internal/config"
	"sync_engine/internal/domain"
)

// StatusService aggregates the read-only snapshot served to operators.
type StatusService struct {
	records     RecordStore
	checkpoints CheckpointStore
	ledger      EventLedger
	maxRetries  int
}

func NewStatusService(records RecordStore, checkpoints CheckpointStore, ledger EventLedger, cfg config.WebhookConfig) *StatusService {
	return &StatusService{
		records:     records,
		checkpoints: checkpoints,
		ledger:      ledger,
		maxRetries:  cfg.MaxRetries,
	}
}

func (s *StatusService) Status(ctx context.Context) (*domain.EngineStatus, error) {
	counts, err := s.records.CountByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	checkpoints, err := s.checkpoints.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	pending, deadLettered, err := s.ledger.PendingCount(ctx, s.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("count pending events: %w", err)
	}

	status := &domain.EngineStatus{
		RecordCounts:  counts,
		LastSyncedAt:  make(map[string]time.Time, len(checkpoints)),
		PendingEvents: pending,
		DeadLettered:  deadLettered,
	}
	for _, cp := range checkpoints {
		status.LastSyncedAt[cp.ResourceType] = cp.LastSyncedAt
	}
	return status, nil
}
