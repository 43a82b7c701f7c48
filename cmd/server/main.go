package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/notifyhub/delivery-queue/internal/api"
	"github.com/notifyhub/delivery-queue/internal/clock"
	"github.com/notifyhub/delivery-queue/internal/config"
	"github.com/notifyhub/delivery-queue/internal/db"
	"github.com/notifyhub/delivery-queue/internal/delivery"
	"github.com/notifyhub/delivery-queue/internal/events"
	"github.com/notifyhub/delivery-queue/internal/metrics"
	"github.com/notifyhub/delivery-queue/internal/ratelimiter"
	"github.com/notifyhub/delivery-queue/internal/repository"
	"github.com/notifyhub/delivery-queue/internal/service"
	"github.com/notifyhub/delivery-queue/internal/telemetry"
	"github.com/notifyhub/delivery-queue/internal/worker"
)

func main() {
	bootLogger, _ := zap.NewProduction()

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()

	// ---- tracing ----
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	// ---- store ----
	clk := clock.NewReal()
	store, closeStore, err := openStore(ctx, cfg, clk, logger)
	if err != nil {
		logger.Fatal("failed to open queue store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer closeStore()

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	backend, err := newBackend(cfg.Delivery, logger)
	if err != nil {
		logger.Fatal("failed to build delivery backend", zap.Error(err))
	}

	svc := service.NewQueueService(store, backend, clk, logger, service.Options{
		Enabled:          cfg.Queue.Enabled,
		MaxAttempts:      cfg.Queue.MaxAttempts,
		RetentionTTL:     cfg.Queue.RetentionTTL,
		PriorityOrdering: cfg.Queue.PriorityOrdering,
		SendingLease:     cfg.Queue.SendingLease,
	}, m.ServiceHooks())
	adapter := events.NewAdapter(svc, events.AllowAll{}, logger)

	// ---- background loops ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	group := worker.NewGroup(workerCtx, logger)

	if cfg.Queue.Enabled {
		drain := worker.NewDrainWorker(svc, cfg.Queue.DrainInterval, logger, worker.DrainHooks{
			OnPass:       m.ObservePass,
			OnStatistics: m.ObserveStatistics,
		})
		group.Go("drain", drain.Run)
	} else {
		logger.Info("queue disabled: notifications are delivered inline")
	}

	if exp, ok := store.(repository.Expirer); ok {
		purge := worker.NewPurgeWorker(exp, cfg.Store.PurgeInterval, logger, m.ObservePurged)
		group.Go("purge", purge.Run)
	}

	if cfg.Events.AMQPURL != "" {
		consumer, err := events.NewAMQPConsumer(cfg.Events.AMQPURL, cfg.Events.AMQPQueue, adapter.Handle, logger)
		if err != nil {
			logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer consumer.Close() //nolint:errcheck
		group.Go("amqp", consumer.Run)
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		reader := events.NewKafkaReader(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, cfg.Events.KafkaGroupID)
		consumer := events.NewKafkaConsumer(reader, adapter.Handle, cfg.Events.RetryDelay, logger)
		defer consumer.Close() //nolint:errcheck
		group.Go("kafka", consumer.Run)
	}

	// ---- HTTP server ----
	router := api.NewRouter(svc, adapter, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Backend),
			zap.Bool("queue_enabled", cfg.Queue.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the drain, purge and consumer loops.
	cancelWorkers()

	// 3. Wait for the in-flight item of a running pass to be recorded.
	group.Wait()

	// 4. Flush pending spans.
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown error", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "parse LOG_LEVEL %q", level)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// openStore builds the configured QueueRecordStore and returns a function
// releasing its connections.
func openStore(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *zap.Logger) (repository.QueueRecordStore, func(), error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate("file://migrations", cfg.DB.DatabaseURL); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database migrations applied")
		return repository.NewPgStore(pool, clk), pool.Close, nil

	case config.StoreRedis:
		client, err := db.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisStore(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil

	default:
		logger.Warn("using the in-memory queue store: queued items are lost on restart")
		return repository.NewMemoryStore(clk), func() {}, nil
	}
}

// newBackend picks the webhook backend when WEBHOOK_URL is set and the log
// backend otherwise, behind the per-priority rate limiter.
func newBackend(cfg config.DeliveryConfig, logger *zap.Logger) (delivery.Backend, error) {
	renderer, err := delivery.NewRenderer(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}

	var backend delivery.Backend
	if cfg.WebhookURL != "" {
		backend = delivery.NewWebhookBackend(cfg.WebhookURL, cfg.DefaultFrom, cfg.WebhookTimeout, renderer)
	} else {
		logger.Warn("WEBHOOK_URL not set: notifications are written to the log only")
		backend = delivery.NewLogBackend(renderer, logger)
	}
	return delivery.NewRateLimited(backend, ratelimiter.New(cfg.RateLimit)), nil
}
