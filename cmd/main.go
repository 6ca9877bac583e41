/**
 * @description
 * This is the main entry point for the membership-service. It is responsible
 * for initializing all components of the service: configuration, the database
 * pool, the Redis rate limiter, the RabbitMQ event producer, the SMS gateway
 * client, repositories, the core application service, the reconciliation
 * scheduler, and the HTTP server. It wires everything together and starts the
 * service.
 *
 * @dependencies
 * - log/slog, net/http, os/signal: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/joho/godotenv: .env loading for local development.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages.
 * - pkg/rabbitmq, pkg/smsclient: Broker and SMS gateway clients.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/pitchside/membership-service/internal/api"
	"github.com/pitchside/membership-service/internal/app"
	"github.com/pitchside/membership-service/internal/config"
	"github.com/pitchside/membership-service/internal/store"
	"github.com/pitchside/membership-service/pkg/rabbitmq"
	"github.com/pitchside/membership-service/pkg/smsclient"
)

func main() {
	// Load .env for local development; in deployment the environment is the
	// source of truth and the file is absent.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Error("jwt secret must be configured", "env", "JWT_SECRET")
		os.Exit(1)
	}

	logger.Info("starting membership-service", "port", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database url parse failed", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// The event producer degrades to a no-op fallback when the broker is down;
	// transfer processing must not depend on it.
	var events rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable, using fallback", "error", err)
		events = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		events = producer
		logger.Info("rabbitmq producer connected")
	}

	// Redis backs the transfer-creation rate limit. A missing or unreachable
	// Redis disables enforcement rather than blocking startup.
	var redisClient *redis.Client
	if cfg.TransferCreateRateLimitPerHour > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			logger.Warn("redis url missing, transfer rate limiting disabled", "env", "REDIS_URL")
		} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
			logger.Warn("redis url parse failed, transfer rate limiting disabled", "error", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed, transfer rate limiting disabled", "error", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				logger.Info("redis connected")
			}
		}
	}
	var limiter *app.RedisTransferRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisTransferRateLimiter(redisClient, "")
	}

	smsClient := smsclient.NewClient(cfg.SMSGatewayURL, cfg.SMSAPIKey, cfg.SMSSenderNumber)
	notifications := app.NewNotifications(smsClient, cfg.AdminPhoneList(), logger)

	repository := store.NewPostgresRepository(dbpool)
	idempotency := app.NewIdempotencyService(repository, logger)
	service := app.NewService(repository, repository, notifications, events, *cfg, logger)

	jobs := app.NewJobs(repository, repository, notifications, idempotency, logger, *cfg)
	scheduler := app.NewScheduler(jobs, logger, *cfg)
	scheduler.Start()

	handlers := api.NewTransferHandlers(service, idempotency, limiter, *cfg, logger)
	router := api.NewRouter(handlers, *cfg)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	// Let an in-flight reconciliation run finish before exiting.
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		logger.Warn("scheduler did not stop before deadline")
	}

	logger.Info("shutdown complete")
}
