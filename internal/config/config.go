package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Connector ConnectorConfig `yaml:"connector"`
	Sync      SyncConfig      `yaml:"sync"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Server    ServerConfig    `yaml:"server"`
	LogLevel  string          `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// ConnectorConfig selects and configures the external-service connector.
// Settings is passed through opaquely to the connector factory.
type ConnectorConfig struct {
	Name              string            `yaml:"name"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Timeout           time.Duration     `yaml:"timeout"`
	Settings          map[string]string `yaml:"settings"`
}

type SyncConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type WebhookConfig struct {
	Secret          string        `yaml:"secret"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	MaxRetries      int           `yaml:"max_retries"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	MaxEventAge     time.Duration `yaml:"max_event_age"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	SweepBatchSize  int           `yaml:"sweep_batch_size"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "sync_engine"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "records"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "record_changes"
	}
	if c.Connector.RequestsPerSecond == 0 {
		c.Connector.RequestsPerSecond = 5
	}
	if c.Connector.Timeout == 0 {
		c.Connector.Timeout = 30 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.RunTimeout == 0 {
		c.Sync.RunTimeout = 10 * time.Minute
	}
	if c.Webhook.FreshnessWindow == 0 {
		c.Webhook.FreshnessWindow = 5 * time.Minute
	}
	if c.Webhook.MaxRetries == 0 {
		c.Webhook.MaxRetries = 5
	}
	if c.Webhook.SweepInterval == 0 {
		c.Webhook.SweepInterval = time.Minute
	}
	if c.Webhook.MaxEventAge == 0 {
		c.Webhook.MaxEventAge = 24 * time.Hour
	}
	if c.Webhook.HandlerTimeout == 0 {
		c.Webhook.HandlerTimeout = 30 * time.Second
	}
	if c.Webhook.SweepBatchSize == 0 {
		c.Webhook.SweepBatchSize = 100
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
