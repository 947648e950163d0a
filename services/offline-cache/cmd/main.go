package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PaykiPlatform/pkg/config"
	"PaykiPlatform/pkg/connection"
	"PaykiPlatform/pkg/health"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/pkg/metrics"
	"PaykiPlatform/pkg/rabbitmq"
	"PaykiPlatform/pkg/ratelimit"
	pkg_redis "PaykiPlatform/pkg/redis"
	"PaykiPlatform/services/offline-cache/internal/controller"
	"PaykiPlatform/services/offline-cache/internal/middleware"
	"PaykiPlatform/services/offline-cache/internal/notifier"
	"PaykiPlatform/services/offline-cache/internal/server"
	"PaykiPlatform/services/offline-cache/internal/storage"
)

func main() {
	configPath := os.Getenv("PAYKI_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}

	// Инициализация конфигурации
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger, err := logger.NewLogger(cfg.Environment, cfg.Logger.Level, "offline-cache")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Offline cache stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := metrics.InitializeOpenTelemetry("offline-cache", controller.BuildHash)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()
	metricCollector := metrics.NewMetrics("offline_cache")
	healthChecker := health.NewCompositeHealthChecker(controller.BuildHash, 2*time.Second)

	opts, err := controller.OptionsFromConfig(cfg.Cache, cfg.Push)
	if err != nil {
		return err
	}

	// Redis нужен для поколений кэша и общего rate limiter
	var redisClient *pkg_redis.Client
	if cfg.Cache.Backend == "redis" {
		err = connection.WithRetryLogged(ctx, connection.DefaultRetryConfig(), appLogger, "redis", func(ctx context.Context) error {
			var err error
			redisClient, err = pkg_redis.Connect(ctx, pkg_redis.FromConfig(cfg.Redis))
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		healthChecker.Register("redis", redisClient.HealthCheck)
	}

	var cacheStorage storage.CacheStorage = storage.NewMemoryStorage()
	var rateLimiter ratelimit.RateLimiter = ratelimit.NewMemoryRateLimiter()
	if redisClient != nil {
		cacheStorage = storage.NewRedisStorage(redisClient.Client, cfg.Cache.Namespace)
		rateLimiter = ratelimit.NewRedisRateLimiter(redisClient.Client)
	}

	inbox := notifier.NewInbox(notifier.DefaultCapacity)
	ctrl := controller.New(opts, cacheStorage, http.DefaultTransport, inbox, metricCollector, appLogger)

	// Origin может подняться позже прокси, поэтому установка повторяется
	err = connection.WithRetryLogged(ctx, connection.DefaultRetryConfig(), appLogger, "cache install", ctrl.Start)
	if err != nil {
		// Без предзагрузки прокси работает как обычный: запросы не перехватываются
		appLogger.Error("Cache controller not activated", logger.Error(err))
	}

	if cfg.Push.Enabled {
		mqCfg := rabbitmq.FromConfig(cfg.RabbitMQ)
		conn, err := rabbitmq.Connect(ctx, mqCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer conn.Close()
		healthChecker.Register("rabbitmq", conn.HealthCheck)

		relay := notifier.NewRelay(rabbitmq.NewConsumer(conn, mqCfg, appLogger), cfg.Push.Queue, ctrl, metricCollector, appLogger)
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLogger.Error("Push relay stopped", logger.Error(err))
			}
		}()
	}

	handler := server.NewHandler(opts.Origin, ctrl, inbox, healthChecker, appLogger)

	// Обертываем хендлер в middleware
	var httpHandler http.Handler = handler.Routes()
	if cfg.RateLimiting.Enabled {
		httpHandler = ratelimit.Middleware(rateLimiter, cfg.RateLimiting.RequestsPerMinute, time.Minute, appLogger)(httpHandler)
	}
	httpHandler = metricCollector.Middleware(httpHandler)
	httpHandler = middleware.RecoveryMiddleware(appLogger)(httpHandler)
	httpHandler = middleware.LoggingMiddleware(appLogger)(httpHandler)

	// Эндпоинт для метрик
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricCollector.GetHandler())
	metricsMux.Handle("/", httpHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting offline cache proxy",
			logger.String("addr", srv.Addr),
			logger.String("origin", opts.Origin.String()),
			logger.String("generation", opts.Generation),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	ctrl.Wait()

	appLogger.Info("Server stopped")
	return nil
}
