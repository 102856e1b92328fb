package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohitjoer/customer-support-voice-agent/config"
	"github.com/mohitjoer/customer-support-voice-agent/internal/api"
	"github.com/mohitjoer/customer-support-voice-agent/internal/audit"
	"github.com/mohitjoer/customer-support-voice-agent/internal/broker"
	"github.com/mohitjoer/customer-support-voice-agent/internal/gateway"
	"github.com/mohitjoer/customer-support-voice-agent/internal/models"
	"github.com/mohitjoer/customer-support-voice-agent/internal/redisclient"
	"github.com/mohitjoer/customer-support-voice-agent/internal/service"
	"github.com/mohitjoer/customer-support-voice-agent/internal/session"
	"github.com/mohitjoer/customer-support-voice-agent/internal/store"
	"github.com/mohitjoer/customer-support-voice-agent/internal/telephony"
	"github.com/mohitjoer/customer-support-voice-agent/internal/util"
	"github.com/mohitjoer/customer-support-voice-agent/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting support gateway")

	tp, err := util.InitTracer("support-gateway", cfg.Server.Env, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	ctx := context.Background()

	seed, err := loadSeed(cfg.Store.SeedFile)
	if err != nil {
		log.Fatalf("Failed to load seed orders: %v", err)
	}

	var orders store.OrderStore
	var db *store.Store

	switch cfg.Store.Backend {
	case "memory":
		orders = store.NewMemoryStore(seed...)
		logger.Info("Using in-memory order store", zap.Int("orders", len(seed)))
	default:
		db, err = store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Println("Database connected")

		if cfg.Store.Migrate {
			if err := db.Migrate(ctx); err != nil {
				log.Fatalf("Failed to migrate database: %v", err)
			}
		}
		if len(seed) > 0 {
			if err := db.Seed(ctx, seed); err != nil {
				log.Fatalf("Failed to seed orders: %v", err)
			}
			logger.Info("Seeded orders", zap.Int("orders", len(seed)))
		}
		orders = db
	}

	var redisClient *redisclient.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	sinks := make([]audit.Sink, 0, 3)

	fileSink, err := audit.NewFileSink(cfg.Audit.FilePath)
	if err != nil {
		log.Fatalf("Failed to open audit file: %v", err)
	}
	defer fileSink.Close()
	sinks = append(sinks, fileSink)

	if db != nil && cfg.Audit.SQLEnabled {
		sinks = append(sinks, audit.NewSQLSink(db))
	}

	if cfg.Kafka.Enabled && cfg.Audit.KafkaEnabled {
		auditProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAudit,
			broker.WithMaxAttempts(cfg.Kafka.AuditMaxAttempts),
			broker.WithWriteTimeout(cfg.Kafka.AuditWriteTimeout))
		defer auditProducer.Close()
		sinks = append(sinks, audit.NewEventSink(broker.NewEventPublisher(auditProducer)))
		log.Println("Kafka audit producer initialized")
	}

	auditor := audit.NewLogger(cfg.Audit.WriteTimeout, sinks...)

	gw := gateway.NewGateway(orders, auditor)
	if cfg.Business.OrderLockingEnabled {
		if redisClient == nil {
			log.Fatalf("ORDER_LOCKING_ENABLED requires Redis")
		}
		gw.WithOrderLocks(redisClient, cfg.Business.OrderLockTTL)
	}

	var speaker session.Speaker
	if redisClient != nil {
		speaker = telephony.NewRedisSpeaker(redisClient, cfg.Session.SayChannelPrefix)
	}

	var terminator session.Terminator
	if cfg.LiveKit.Enabled() {
		terminator = telephony.NewLiveKitTerminator(cfg.LiveKit.URL, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	} else {
		logger.Warn("LiveKit is not configured, end_call will not release rooms")
	}

	sessions := session.NewManager(speaker, terminator, auditor, cfg.Session.EndGrace)
	if db != nil && cfg.Audit.SQLEnabled {
		sessions.WithCallRecorder(session.NewSQLCallRecorder(db))
	}

	supportService := service.NewSupportService(gw, sessions)
	if redisClient != nil {
		supportService.WithIdempotency(redisClient, cfg.Business.IdempotencyTTL)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var actionWorker *worker.ActionWorker
	if cfg.Kafka.Enabled {
		resultProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicResults)
		defer resultProducer.Close()

		actionConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicActions, cfg.Kafka.ConsumerGroup)
		actionWorker = worker.NewActionWorker(actionConsumer, supportService, broker.NewEventPublisher(resultProducer))
		go func() {
			if err := actionWorker.Start(workerCtx); err != nil && err != context.Canceled {
				log.Printf("Action worker error: %v", err)
			}
		}()
	}

	go pruneSessions(workerCtx, sessions, cfg.Session.Retention)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(supportService)
	if db != nil {
		handler.AddReadinessCheck("postgres", db.Ping)
	}
	if redisClient != nil {
		handler.AddReadinessCheck("redis", redisClient.Ping)
	}
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	if actionWorker != nil {
		actionWorker.Stop()
	}

	log.Println("Server exited")
}

func loadSeed(path string) ([]models.Order, error) {
	if path == "" {
		return nil, nil
	}
	return store.LoadOrders(path)
}

// pruneSessions drops ended sessions older than retention
func pruneSessions(ctx context.Context, sessions *session.Manager, retention time.Duration) {
	if retention <= 0 {
		return
	}

	interval := retention / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Prune(time.Now().Add(-retention)); n > 0 {
				util.GetLogger().Debug("Pruned ended sessions", zap.Int("count", n))
			}
		}
	}
}
