package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sync_engine/internal/config"
	"sync_engine/internal/domain"
	. "sync_engine/internal/engine"
	"sync_engine/internal/engine/mocks"
)

type ProcessorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	ledger *mocks.MockEventLedger
	tx     *mocks.MockTransactionManager

	processor *Processor
	cfg       config.WebhookConfig
}

func (s *ProcessorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.ledger = mocks.NewMockEventLedger(s.ctrl)
	s.tx = mocks.NewMockTransactionManager(s.ctrl)

	s.cfg = config.WebhookConfig{
		Secret:          testSecret,
		FreshnessWindow: 5 * time.Minute,
		MaxRetries:      3,
		MaxEventAge:     24 * time.Hour,
		HandlerTimeout:  time.Second,
		SweepBatchSize:  50,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	verifier := NewSignatureVerifier(s.cfg.Secret, s.cfg.FreshnessWindow)
	s.processor = NewProcessor(s.ledger, s.tx, verifier, logger, s.cfg)
}

func (s *ProcessorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestProcessorTestSuite(t *testing.T) {
	suite.Run(t, new(ProcessorTestSuite))
}

// expectTransaction makes the mock tx manager run the given function
// directly, the way the real manager does inside a committed transaction.
func (s *ProcessorTestSuite) expectTransaction() {
	s.tx.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *ProcessorTestSuite) handle(body []byte) (*domain.HandleResult, error) {
	return s.processor.Handle(context.Background(), body, signedHeader(s.T(), testSecret, body, time.Now()))
}

func (s *ProcessorTestSuite) TestHandle_InvalidSignatureRejectedBeforeStorage() {
	body := []byte(`{"id":"evt_1","type":"customer.updated"}`)

	// No ledger expectations: nothing may be stored.
	result, err := s.processor.Handle(context.Background(), body, "deadbeef")

	s.ErrorIs(err, domain.ErrInvalidSignature)
	s.Equal(http.StatusUnauthorized, result.Status)
}

func (s *ProcessorTestSuite) TestHandle_MalformedEnvelope() {
	body := []byte(`{"no_id":true}`)

	result, err := s.handle(body)

	s.Error(err)
	s.Equal(http.StatusBadRequest, result.Status)
}

func (s *ProcessorTestSuite) TestHandle_FreshEventProcessed() {
	body := []byte(`{"id":"evt_2","type":"customer.updated"}`)

	var handled *domain.WebhookEvent
	s.processor.Register("customer.updated", func(_ context.Context, event *domain.WebhookEvent) error {
		handled = event
		return nil
	})

	s.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, nil)
	s.expectTransaction()
	s.ledger.EXPECT().MarkProcessed(gomock.Any(), "evt_2").Return(nil)

	result, err := s.handle(body)

	s.NoError(err)
	s.True(result.Processed)
	s.False(result.Duplicate)
	s.Equal(http.StatusOK, result.Status)
	s.Require().NotNil(handled)
	s.Equal("evt_2", handled.ID)
	s.Equal(body, handled.Payload)
}

func (s *ProcessorTestSuite) TestHandle_UnknownTypeIsTerminal() {
	body := []byte(`{"id":"evt_3","type":"totally.uninteresting"}`)

	s.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, nil)
	s.ledger.EXPECT().MarkProcessed(gomock.Any(), "evt_3").Return(nil)

	result, err := s.handle(body)

	s.NoError(err)
	s.True(result.Processed)
}

func (s *ProcessorTestSuite) TestHandle_DuplicateAlreadyProcessed() {
	body := []byte(`{"id":"evt_4","type":"customer.updated"}`)

	calls := 0
	s.processor.Register("customer.updated", func(context.Context, *domain.WebhookEvent) error {
		calls++
		return nil
	})

	processedAt := time.Now()
	s.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&domain.WebhookEvent{
		ID:          "evt_4",
		Type:        "customer.updated",
		ProcessedAt: &processedAt,
	}, nil)

	result, err := s.handle(body)

	s.NoError(err)
	s.True(result.Duplicate)
	s.True(result.Processed)
	s.Equal(0, calls, "handler must not fire again for a processed duplicate")
}

func (s *ProcessorTestSuite) TestHandle_DuplicateUnprocessedRetriedInline() {
	body := []byte(`{"id":"evt_5","type":"customer.updated"}`)

	calls := 0
	s.processor.Register("customer.updated", func(context.Context, *domain.WebhookEvent) error {
		calls++
		return nil
	})

	s.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&domain.WebhookEvent{
		ID:   "evt_5",
		Type: "customer.updated",
	}, nil)
	s.expectTransaction()
	s.ledger.EXPECT().MarkProcessed(gomock.Any(), "evt_5").Return(nil)

	result, err := s.handle(body)

	s.NoError(err)
	s.True(result.Duplicate)
	s.True(result.Processed)
	s.Equal(1, calls)
}

func (s *ProcessorTestSuite) TestHandle_HandlerFailureAbsorbed() {
	body := []byte(`{"id":"evt_6","type":"customer.updated"}`)

	s.processor.Register("customer.updated", func(context.Context, *domain.WebhookEvent) error {
		return errors.New("downstream unavailable")
	})

	s.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, nil)
	s.expectTransaction()
	s.ledger.EXPECT().MarkFailed(gomock.Any(), "evt_6", gomock.Any()).Return(nil)

	result, err := s.handle(body)

	// The sender sees success; the sweep owns the retry.
	s.NoError(err)
	s.False(result.Processed)
	s.Equal(http.StatusOK, result.Status)
}

func (s *ProcessorTestSuite) TestHandle_HandlerPanicCaught() {
	body := []byte(`{"id":"evt_7","type":"customer.updated"}`)

	s.processor.Register("customer.updated", func(context.Context, *domain.WebhookEvent) error {
		panic("nil map write")
	})

	s.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, nil)
	s.expectTransaction()
	s.ledger.EXPECT().MarkFailed(gomock.Any(), "evt_7", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, message string) error {
			s.Contains(message, "panic")
			return nil
		},
	)

	result, err := s.handle(body)

	s.NoError(err)
	s.False(result.Processed)
}

func (s *ProcessorTestSuite) TestHandle_LedgerInsertFailure() {
	body := []byte(`{"id":"evt_8","type":"customer.updated"}`)

	s.ledger.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	result, err := s.handle(body)

	// No durable row means the sweep cannot retry; the sender must redeliver.
	s.Error(err)
	s.Equal(http.StatusInternalServerError, result.Status)
}

func (s *ProcessorTestSuite) TestRetrySweep_RedispatchesPending() {
	succeeded := 0
	s.processor.Register("customer.updated", func(context.Context, *domain.WebhookEvent) error {
		succeeded++
		return nil
	})
	s.processor.Register("invoice.paid", func(context.Context, *domain.WebhookEvent) error {
		return errors.New("still failing")
	})

	s.ledger.EXPECT().Pending(gomock.Any(), s.cfg.MaxRetries, gomock.Any(), s.cfg.SweepBatchSize).Return(
		[]domain.WebhookEvent{
			{ID: "evt_a", Type: "customer.updated"},
			{ID: "evt_b", Type: "invoice.paid", RetryCount: 1},
		}, nil)

	s.expectTransaction()
	s.ledger.EXPECT().MarkProcessed(gomock.Any(), "evt_a").Return(nil)
	s.expectTransaction()
	s.ledger.EXPECT().MarkFailed(gomock.Any(), "evt_b", gomock.Any()).Return(nil)

	retried, err := s.processor.RetrySweep(context.Background())

	s.NoError(err)
	s.Equal(2, retried)
	s.Equal(1, succeeded)
}

func (s *ProcessorTestSuite) TestRetrySweep_AgeWindow() {
	s.ledger.EXPECT().Pending(gomock.Any(), s.cfg.MaxRetries, gomock.Any(), s.cfg.SweepBatchSize).DoAndReturn(
		func(_ context.Context, _ int, since time.Time, _ int) ([]domain.WebhookEvent, error) {
			s.WithinDuration(time.Now().Add(-s.cfg.MaxEventAge), since, time.Minute)
			return nil, nil
		},
	)

	retried, err := s.processor.RetrySweep(context.Background())

	s.NoError(err)
	s.Equal(0, retried)
}
