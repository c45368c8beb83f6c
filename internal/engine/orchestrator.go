package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sync_engine/internal/domain"
	"sync_engine/internal/metrics"
)

// Orchestrator drives full and incremental pulls across resource types in
// dependency order. It is single-flight: a Sync call that overlaps a running
// one fails immediately with domain.ErrSyncInProgress instead of queuing,
// because checkpoint mutation is single-writer per resource type.
type Orchestrator struct {
	connector   Connector
	records     RecordStore
	checkpoints CheckpointStore
	limiter     Limiter
	publisher   Publisher // optional
	logger      *slog.Logger
	order       []string
	running     atomic.Bool
}

func NewOrchestrator(
	connector Connector,
	records RecordStore,
	checkpoints CheckpointStore,
	limiter Limiter,
	publisher Publisher,
	logger *slog.Logger,
) (*Orchestrator, error) {
	order, err := dependencyOrder(connector.Resources())
	if err != nil {
		return nil, fmt.Errorf("resolve dependency order: %w", err)
	}

	return &Orchestrator{
		connector:   connector,
		records:     records,
		checkpoints: checkpoints,
		limiter:     limiter,
		publisher:   publisher,
		logger:      logger.With("connector", connector.ID()),
		order:       order,
	}, nil
}

// DependencyOrder returns the cached pull order.
func (o *Orchestrator) DependencyOrder() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

func (o *Orchestrator) Sync(ctx context.Context, opts domain.SyncOptions) (*domain.SyncResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, domain.ErrSyncInProgress
	}
	defer o.running.Store(false)

	result := &domain.SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Success:   true,
	}

	types, err := o.selectTypes(opts.ResourceTypes)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With("run_id", result.RunID)
	logger.Info("starting sync",
		"connector_name", o.connector.Name(),
		"resource_types", types,
		"full", opts.Full,
	)

	for _, rt := range types {
		if ctx.Err() != nil {
			result.Duration = time.Since(result.StartedAt)
			result.Success = false
			logger.Info("sync cancelled", "resource_type", rt)
			metrics.SyncRunsTotal.WithLabelValues("cancelled").Inc()
			return result, ctx.Err()
		}

		res, cancelled := o.syncResource(ctx, logger, rt, opts.Full)
		result.Resources = append(result.Resources, *res)
		if res.Failed() {
			result.Success = false
		}
		if cancelled {
			result.Duration = time.Since(result.StartedAt)
			result.Success = false
			metrics.SyncRunsTotal.WithLabelValues("cancelled").Inc()
			return result, ctx.Err()
		}
	}

	result.Duration = time.Since(result.StartedAt)

	status := "success"
	if !result.Success {
		status = "failed"
	}
	metrics.SyncRunsTotal.WithLabelValues(status).Inc()
	metrics.SyncDuration.Observe(result.Duration.Seconds())

	logger.Info("sync completed",
		"success", result.Success,
		"duration", result.Duration,
	)

	return result, nil
}

// selectTypes narrows the cached dependency order to the requested subset,
// preserving order.
func (o *Orchestrator) selectTypes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return o.order, nil
	}

	want := make(map[string]bool, len(requested))
	for _, rt := range requested {
		want[rt] = true
	}

	var types []string
	for _, rt := range o.order {
		if want[rt] {
			types = append(types, rt)
			delete(want, rt)
		}
	}
	for rt := range want {
		return nil, fmt.Errorf("unknown resource type %q", rt)
	}
	return types, nil
}

// syncResource pulls one resource type to completion. All failures are
// captured in the result; cancelled reports that the run should stop after
// this type.
func (o *Orchestrator) syncResource(ctx context.Context, logger *slog.Logger, resourceType string, full bool) (res *domain.ResourceResult, cancelled bool) {
	res = &domain.ResourceResult{ResourceType: resourceType}
	logger = logger.With("resource_type", resourceType)

	var cp *domain.Checkpoint
	if !full {
		var err error
		cp, err = o.checkpoints.Get(ctx, resourceType)
		if err != nil {
			res.Err = fmt.Sprintf("read checkpoint: %v", err)
			return res, false
		}
	}

	stream, err := o.connector.Pull(ctx, resourceType, cp)
	if err != nil {
		res.Err = fmt.Sprintf("pull: %v", err)
		logger.Error("pull failed", "error", err)
		return res, false
	}

	var (
		lastCursor    string
		lastTimestamp time.Time
		sawBatch      bool
	)

	for {
		if ctx.Err() != nil {
			return res, true
		}

		// One token per outbound page request, not per record.
		if err := o.limiter.Acquire(ctx); err != nil {
			return res, true
		}

		batch, err := stream.Next(ctx)
		if err != nil {
			res.Err = fmt.Sprintf("fetch batch: %v", err)
			logger.Error("batch fetch failed", "error", err)
			return res, false
		}
		if batch == nil {
			break
		}

		o.applyBatch(ctx, logger, resourceType, batch, res)
		lastCursor = batch.NextCursor
		lastTimestamp = batch.Timestamp
		sawBatch = true
	}

	if !sawBatch && cp != nil {
		// Nothing new since the stored cursor; leave the checkpoint alone
		// instead of overwriting it with an empty one.
		logger.Info("resource type already up to date")
		return res, false
	}

	if lastTimestamp.IsZero() {
		lastTimestamp = time.Now()
	}

	synced := res.Created + res.Updated
	next := &domain.Checkpoint{
		ResourceType: resourceType,
		Cursor:       lastCursor,
		LastSyncedAt: lastTimestamp,
		TotalSynced:  int64(synced),
	}
	if err := o.checkpoints.Advance(ctx, next); err != nil {
		res.Err = fmt.Sprintf("advance checkpoint: %v", err)
		logger.Error("checkpoint advance failed", "error", err)
		return res, false
	}

	logger.Info("resource type synced",
		"fetched", res.Fetched,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"published", res.Published,
	)

	return res, false
}

// applyBatch maps and upserts every item in one page. Record-level failures
// never abort the batch.
func (o *Orchestrator) applyBatch(ctx context.Context, logger *slog.Logger, resourceType string, batch *Batch, res *domain.ResourceResult) {
	for _, raw := range batch.Items {
		res.Fetched++

		record, err := o.connector.Map(resourceType, raw)
		if err != nil {
			res.Skipped++
			metrics.RecordsSkippedTotal.WithLabelValues(resourceType).Inc()
			logger.Warn("skipping unmappable record", "error", err)
			continue
		}

		created, err := o.records.Upsert(ctx, record)
		if err != nil {
			res.Skipped++
			metrics.RecordsSkippedTotal.WithLabelValues(resourceType).Inc()
			logger.Warn("skipping failed upsert", "record_id", record.ID, "error", err)
			continue
		}

		action := "update"
		if created {
			action = "create"
			res.Created++
		} else {
			res.Updated++
		}
		metrics.RecordsSyncedTotal.WithLabelValues(resourceType, action).Inc()

		if o.publisher != nil {
			if err := o.publisher.Publish(ctx, record, created); err != nil {
				logger.Warn("publish failed", "record_id", record.ID, "error", err)
			} else {
				res.Published++
			}
		}
	}
}
