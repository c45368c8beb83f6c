package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sync_engine/internal/config"
	"sync_engine/internal/connector"
	"sync_engine/internal/engine"
	"sync_engine/internal/metrics"
	"sync_engine/internal/publisher"
	"sync_engine/internal/ratelimit"
	"sync_engine/internal/scheduler"
	"sync_engine/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	metrics.Register()

	// Initialize RabbitMQ publisher
	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	// Initialize stores
	recordStore := postgres.NewRecordStore(db)
	checkpointStore := postgres.NewCheckpointStore(db)
	eventLedger := postgres.NewEventLedger(db)
	txManager := postgres.NewTransactionManager(db)

	// One limiter per external service, created here and passed by reference.
	limiter := ratelimit.New(cfg.Connector.RequestsPerSecond)

	conn, err := connector.Open(cfg.Connector, logger)
	if err != nil {
		logger.Error("failed to open connector", "error", err)
		os.Exit(1)
	}

	orchestrator, err := engine.NewOrchestrator(
		conn,
		recordStore,
		checkpointStore,
		limiter,
		rabbitMQ,
		logger,
	)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	verifier := engine.NewSignatureVerifier(cfg.Webhook.Secret, cfg.Webhook.FreshnessWindow)
	processor := engine.NewProcessor(eventLedger, txManager, verifier, logger, cfg.Webhook)
	engine.RegisterRecordHandlers(processor, conn, recordStore, rabbitMQ, logger)
	status := engine.NewStatusService(recordStore, checkpointStore, eventLedger, cfg.Webhook)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	server := newServer(cfg.Server.Addr, processor, status, logger)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	sched := scheduler.NewScheduler(
		orchestrator,
		processor,
		cfg.Sync.Interval,
		cfg.Webhook.SweepInterval,
		cfg.Sync.RunTimeout,
		logger,
	)

	logger.Info("starting sync engine",
		"connector", conn.Name(),
		"sync_interval", cfg.Sync.Interval,
		"dependency_order", orchestrator.DependencyOrder(),
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

// newServer mounts the thin HTTP front end: webhook intake, status, metrics.
func newServer(addr string, processor *engine.Processor, status *engine.StatusService, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhooks", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		result, err := processor.Handle(r.Context(), body, r.Header.Get("X-Webhook-Signature"))
		if err != nil {
			http.Error(w, err.Error(), result.Status)
			return
		}
		w.WriteHeader(result.Status)
		_ = json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		st, err := status.Status(r.Context())
		if err != nil {
			logger.Error("status query failed", "error", err)
			http.Error(w, "status unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	return &http.Server{Addr: addr, Handler: mux}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
