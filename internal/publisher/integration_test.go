//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"sync_engine/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	url, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = url
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) TestPublish_RecordChange() {
	cfg := Config{
		URL:        s.amqpURL,
		Exchange:   "sync_engine_test",
		RoutingKey: "records",
		QueueName:  "record_changes_test",
	}

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	deleted := time.Now()
	cases := []struct {
		name    string
		record  *domain.Record
		created bool
		action  string
	}{
		{"create", &domain.Record{ID: "c1", ResourceType: "customers", Fields: map[string]any{"name": "Ada"}}, true, "create"},
		{"update", &domain.Record{ID: "c1", ResourceType: "customers", Fields: map[string]any{"name": "Ada L."}}, false, "update"},
		{"delete", &domain.Record{ID: "c1", ResourceType: "customers", DeletedAt: &deleted}, false, "delete"},
	}

	for _, tc := range cases {
		s.Require().NoError(pub.Publish(s.ctx, tc.record, tc.created))
	}

	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	deliveries, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	for _, tc := range cases {
		select {
		case delivery := <-deliveries:
			var msg RecordMessage
			s.Require().NoError(json.Unmarshal(delivery.Body, &msg))
			s.Equal(tc.action, msg.Action)
			s.Equal("customers", msg.ResourceType)
			s.Equal(tc.record.ID, msg.Record.ID)
		case <-time.After(10 * time.Second):
			s.FailNowf("timeout", "no %s message received", tc.name)
		}
	}
}
