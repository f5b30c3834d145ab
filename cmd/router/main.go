package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"skill-routing-engine/pkg/activity"
	"skill-routing-engine/pkg/catalogue"
	"skill-routing-engine/pkg/config"
	"skill-routing-engine/pkg/constants"
	"skill-routing-engine/pkg/conversation"
	"skill-routing-engine/pkg/dispatch"
	"skill-routing-engine/pkg/handlers"
	"skill-routing-engine/pkg/holiday"
	"skill-routing-engine/pkg/metrics"
	"skill-routing-engine/pkg/outcome"
	redisClient "skill-routing-engine/pkg/redis"
	"skill-routing-engine/pkg/routing"
	"skill-routing-engine/pkg/schedule"
	"skill-routing-engine/pkg/server"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithField("pod_id", cfg.PodID).Info("Starting skill routing service")

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Connect to Redis
	redis, err := redisClient.NewClient(redisClient.DefaultConnectionConfig(cfg.RedisURL), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()
	rdb := redis.GetRedisClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalogue snapshot with cross-pod invalidation
	store := catalogue.NewFileStore(cfg.CataloguePath, logger, m)
	if _, err := store.Snapshot(); err != nil {
		logger.WithError(err).WithField("path", cfg.CataloguePath).Fatal("Failed to load catalogue")
	}
	invalidator := catalogue.NewInvalidator(rdb, store, cfg.PodID, logger)
	go invalidator.Run(ctx)

	// Holiday calendar
	var calendar schedule.Calendar = holiday.NewSnapshotCalendar(store)
	if cfg.DatabaseURL != "" {
		pg, err := holiday.NewPostgresCalendarFromConnString(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to holiday database")
		}
		defer pg.Close()
		calendar = pg
	}
	evaluator := schedule.NewEvaluator(calendar, cfg.HolidayTimeout(), logger, m)

	opts := routing.Options{ClassifierTimeout: cfg.ClassifierTimeout()}
	if cfg.ClassifierURL != "" {
		opts.Classifier = routing.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout())
	}
	if cfg.ConnectorBaseURL != "" {
		registry := dispatch.NewRegistry()
		registry.SetDefault(dispatch.NewHTTPConnector(cfg.ConnectorBaseURL, cfg.ToolTimeout()))
		opts.Executor = dispatch.NewExecutor(registry, cfg.ToolTimeout(), logger, m)
	}
	orchestrator := routing.NewOrchestrator(evaluator, logger, m, opts)

	// Outcome sinks
	var sinks []outcome.Publisher
	if cfg.SinkEnabled("redis") {
		sinks = append(sinks, outcome.NewStreamPublisher(rdb, constants.OutcomesStreamMaxLen, logger, m))
	}
	if cfg.SinkEnabled("kafka") {
		if len(cfg.KafkaBrokers) == 0 {
			logger.Warn("Kafka outcome sink enabled without KAFKA_BROKERS, skipping")
		} else {
			sinks = append(sinks, outcome.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOutcomesTopic, logger))
		}
	}
	publisher := outcome.NewMultiPublisher(logger, m, sinks...)

	service := routing.NewService(
		orchestrator,
		store,
		conversation.NewStore(rdb, cfg.ConversationTTLDuration(), logger, m),
		conversation.NewLocker(rdb, cfg.LockTTL(), logger, m),
		publisher,
		conversation.NewLeaderElection(rdb, cfg.PodID, cfg.LeaderElectionTTLDuration(), logger, m),
		routing.ServiceConfig{
			ConversationTTL: cfg.ConversationTTLDuration(),
			CleanupInterval: cfg.CleanupInterval(),
		},
		logger,
		m,
	)
	service.Start(ctx)

	var consumer *activity.Consumer
	if cfg.ActivityConsumer && cfg.SinkEnabled("redis") {
		consumer = activity.NewConsumer(rdb, cfg.ConsumerGroupName, cfg.PodID, logger, m)
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start activity consumer")
		}
	}

	handler := handlers.NewHandler(service, store, invalidator, activity.NewReader(rdb), logger)
	router := server.NewRouter(handler, promhttp.Handler(), logger)
	httpServer := server.NewHTTPServer(cfg, router)

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during HTTP server shutdown")
	}
	if consumer != nil {
		consumer.Stop()
	}
	service.Stop()
	cancel()

	logger.Info("Skill routing service shutdown complete")
}
