package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sync_engine/internal/config"
	"sync_engine/internal/domain"
	"sync_engine/internal/metrics"
)

// Handler processes one webhook event type. Its only allowed side effect is
// writing through the RecordStore, directly or via a connector re-fetch.
type Handler func(ctx context.Context, event *domain.WebhookEvent) error

// envelope is the minimal shape every webhook payload must expose.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Processor verifies, persists, and dispatches webhook events. It is safe
// for concurrent Handle calls: the handler registry is built once at startup
// and the ledger's conflict-ignore insert is the dedup point.
type Processor struct {
	ledger   EventLedger
	tx       TransactionManager
	verifier *SignatureVerifier
	handlers map[string]Handler
	logger   *slog.Logger
	cfg      config.WebhookConfig
}

func NewProcessor(
	ledger EventLedger,
	tx TransactionManager,
	verifier *SignatureVerifier,
	logger *slog.Logger,
	cfg config.WebhookConfig,
) *Processor {
	return &Processor{
		ledger:   ledger,
		tx:       tx,
		verifier: verifier,
		handlers: make(map[string]Handler),
		logger:   logger,
		cfg:      cfg,
	}
}

// Register installs the handler for one event type. Call before serving
// traffic; the registry is not locked.
func (p *Processor) Register(eventType string, h Handler) {
	p.handlers[eventType] = h
}

// Handle runs one delivery through verification, ledger storage, and
// dispatch. The returned error is non-nil only for failures the sender
// should see (bad signature, bad envelope, storage loss); handler failures
// are absorbed and left for the retry sweep.
func (p *Processor) Handle(ctx context.Context, body []byte, signatureHeader string) (*domain.HandleResult, error) {
	metrics.WebhookReceivedTotal.Inc()
	start := time.Now()
	defer func() {
		metrics.WebhookHandleDuration.Observe(time.Since(start).Seconds())
	}()

	if err := p.verifier.Verify(body, signatureHeader); err != nil {
		metrics.WebhookInvalidSignatureTotal.Inc()
		p.logger.Warn("rejected webhook", "error", err)
		return &domain.HandleResult{Status: http.StatusUnauthorized}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &domain.HandleResult{Status: http.StatusBadRequest},
			fmt.Errorf("invalid event envelope: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return &domain.HandleResult{Status: http.StatusBadRequest}, errMissingEnvelope
	}

	event := &domain.WebhookEvent{
		ID:         env.ID,
		Type:       env.Type,
		Payload:    body,
		ReceivedAt: time.Now(),
	}

	existing, err := p.ledger.Insert(ctx, event)
	if err != nil {
		// Without a ledger row the sweep cannot retry this event, so the
		// sender must redeliver it.
		return &domain.HandleResult{EventID: env.ID, Status: http.StatusInternalServerError},
			fmt.Errorf("store event %s: %w", env.ID, err)
	}

	result := &domain.HandleResult{EventID: env.ID, Status: http.StatusOK}

	if existing != nil {
		metrics.WebhookDuplicateTotal.Inc()
		result.Duplicate = true
		if existing.Processed() {
			result.Processed = true
			return result, nil
		}
		// Redelivered before its first attempt succeeded; try again inline.
		event = existing
	}

	if err := p.process(ctx, event); err != nil {
		p.logger.Warn("event left unprocessed", "event_id", event.ID, "type", event.Type, "error", err)
		return result, nil
	}

	result.Processed = true
	return result, nil
}

var errMissingEnvelope = errors.New("missing id or type")

// process dispatches one stored event to its handler and marks the outcome.
// The handler and the processed-mark share a transaction so a crash between
// them cannot record an unapplied event as processed.
func (p *Processor) process(ctx context.Context, event *domain.WebhookEvent) error {
	handler, ok := p.handlers[event.Type]
	if !ok {
		p.logger.Info("no handler for event type, marking processed",
			"event_id", event.ID,
			"type", event.Type,
		)
		if err := p.ledger.MarkProcessed(ctx, event.ID); err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		metrics.WebhookProcessedTotal.Inc()
		return nil
	}

	hctx, cancel := context.WithTimeout(ctx, p.cfg.HandlerTimeout)
	defer cancel()

	err := p.tx.WithTransaction(hctx, func(txCtx context.Context) error {
		if err := invoke(txCtx, handler, event); err != nil {
			return err
		}
		return p.ledger.MarkProcessed(txCtx, event.ID)
	})
	if err == nil {
		metrics.WebhookProcessedTotal.Inc()
		return nil
	}

	metrics.WebhookFailedTotal.Inc()
	if mfErr := p.ledger.MarkFailed(ctx, event.ID, err.Error()); mfErr != nil {
		p.logger.Error("failed to record handler error", "event_id", event.ID, "error", mfErr)
	} else if event.RetryCount+1 >= p.cfg.MaxRetries {
		metrics.WebhookDeadLetteredTotal.Inc()
		p.logger.Error("event dead-lettered",
			"event_id", event.ID,
			"type", event.Type,
			"retry_count", event.RetryCount+1,
		)
	}
	return fmt.Errorf("handle event %s: %w", event.ID, err)
}

// invoke runs the handler, converting a panic into an error so one bad
// handler cannot take the processor down.
func invoke(ctx context.Context, handler Handler, event *domain.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// RetrySweep re-dispatches unprocessed events that still have retry budget
// and are within the configured age window. Backoff comes from the sweep's
// own scheduling interval, not per-row sleeping. Events at the retry limit
// are dead-lettered: excluded here, kept in the ledger for operators.
func (p *Processor) RetrySweep(ctx context.Context) (int, error) {
	since := time.Now().Add(-p.cfg.MaxEventAge)
	events, err := p.ledger.Pending(ctx, p.cfg.MaxRetries, since, p.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("scan pending events: %w", err)
	}

	retried := 0
	for i := range events {
		if ctx.Err() != nil {
			return retried, ctx.Err()
		}
		retried++
		metrics.WebhookSweepRetriesTotal.Inc()
		if err := p.process(ctx, &events[i]); err != nil {
			p.logger.Warn("retry failed", "event_id", events[i].ID, "error", err)
		}
	}

	if retried > 0 {
		p.logger.Info("retry sweep completed", "retried", retried)
	}
	return retried, nil
}
