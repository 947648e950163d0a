// Package app собирает зависимости session-sync из общей конфигурации
package app

import (
	"context"
	"fmt"
	"time"

	"PaykiPlatform/pkg/config"
	"PaykiPlatform/pkg/database"
	"PaykiPlatform/pkg/health"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/pkg/metrics"
	"PaykiPlatform/pkg/rabbitmq"
	pkgredis "PaykiPlatform/pkg/redis"
	"PaykiPlatform/services/session-sync/internal/client"
	"PaykiPlatform/services/session-sync/internal/repository"
	filerepo "PaykiPlatform/services/session-sync/internal/repository/file"
	"PaykiPlatform/services/session-sync/internal/repository/postgres"
	redisrepo "PaykiPlatform/services/session-sync/internal/repository/redis"
	"PaykiPlatform/services/session-sync/internal/repository/rest"
	"PaykiPlatform/services/session-sync/internal/service"
	"PaykiPlatform/services/session-sync/internal/store"
)

// Version версия клиента, подставляется через ldflags
var Version = "dev"

const serviceName = "session-sync"

// App набор подключенных зависимостей
type App struct {
	Config            *config.Config
	Logger            logger.Logger
	Metrics           *metrics.Metrics
	Identity          *client.IdentityClient
	Functions         *client.FunctionsClient
	Profiles          repository.ProfileRepository
	Snapshots         repository.SnapshotRepository
	PushSubscriptions repository.PushSubscriptionRepository
	Activity          repository.ActivityRepository
	Publisher         service.Publisher
	Cache             service.CacheClearer
	Health            *health.CompositeHealthChecker

	closers []func()
}

// New подключает хранилища согласно конфигурации.
// Postgres используется при database.enabled, иначе данные идут через REST API проекта.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewMetrics(serviceName),
		Health:  health.NewCompositeHealthChecker(Version, 3*time.Second),
	}

	sessions, err := store.NewSessionStore(config.ExpandHome(cfg.Identity.SessionFile))
	if err != nil {
		return nil, err
	}
	a.Identity = client.NewIdentityClient(cfg.Identity.URL, cfg.Identity.AnonKey, sessions, log)
	a.Health.Register("identity", a.Identity.Health)

	functionsURL := cfg.Functions.BaseURL
	if functionsURL == "" {
		functionsURL = client.FunctionsBaseURL(cfg.Identity.URL)
	}
	timeout := config.Duration(cfg.Functions.Timeout, 10*time.Second)
	a.Functions = client.NewFunctionsClient(functionsURL, cfg.Identity.AnonKey, timeout, log)

	if err := a.connectData(ctx, timeout); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.connectCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.connectPush(ctx); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) connectData(ctx context.Context, timeout time.Duration) error {
	cfg := a.Config
	if !cfg.Database.Enabled {
		restClient := rest.NewClient(cfg.Identity.URL, cfg.Identity.AnonKey, a.Identity, timeout)
		a.Profiles = rest.NewProfileRepository(restClient)
		a.PushSubscriptions = rest.NewPushSubscriptionRepository(restClient)
		a.Activity = rest.NewActivityRepository(restClient)
		return nil
	}

	pg, err := database.Connect(ctx, database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pg.Close)
	a.Health.Register("postgres", pg.HealthCheck)

	a.Profiles = postgres.NewProfileRepository(pg.Pool)
	a.PushSubscriptions = postgres.NewPushSubscriptionRepository(pg.Pool)
	a.Activity = postgres.NewActivityRepository(pg.Pool)
	a.Logger.Debug("Using direct database access", logger.String("host", cfg.Database.Host))
	return nil
}

func (a *App) connectCache(ctx context.Context) error {
	cfg := a.Config

	var rdb *pkgredis.Client
	if cfg.Session.SnapshotBackend == "redis" || cfg.Cache.Backend == "redis" {
		var err error
		rdb, err = pkgredis.Connect(ctx, pkgredis.FromConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.Health.Register("redis", rdb.HealthCheck)
	}

	if cfg.Session.SnapshotBackend == "redis" {
		a.Snapshots = redisrepo.NewSnapshotRepository(rdb.Client, "")
	} else {
		snapshots, err := filerepo.NewSnapshotRepository(config.ExpandHome(cfg.Session.SnapshotDir))
		if err != nil {
			return err
		}
		a.Snapshots = snapshots
	}

	var clearers []service.CacheClearer
	if cfg.Cache.Backend == "redis" {
		clearers = append(clearers, NewRedisCacheClearer(rdb.Client, cfg.Cache.Namespace))
	}
	if cfg.Cache.ControlURL != "" {
		clearers = append(clearers, NewHTTPCacheClearer(cfg.Cache.ControlURL, 3*time.Second))
	}
	a.Cache = NewMultiClearer(a.Logger, clearers...)
	return nil
}

func (a *App) connectPush(ctx context.Context) error {
	if !a.Config.Push.Enabled {
		return nil
	}

	mqCfg := rabbitmq.FromConfig(a.Config.RabbitMQ)
	conn, err := rabbitmq.Connect(ctx, mqCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	a.Health.Register("rabbitmq", conn.HealthCheck)
	a.Publisher = rabbitmq.NewProducer(conn, mqCfg)
	return nil
}

// Synchronizer создает синхронизатор поверх подключенных зависимостей
func (a *App) Synchronizer(nav service.Navigator) *service.Synchronizer {
	return service.NewSynchronizer(service.Dependencies{
		Identity:          a.Identity,
		Profiles:          a.Profiles,
		Snapshots:         a.Snapshots,
		PushSubscriptions: a.PushSubscriptions,
		Cache:             a.Cache,
		Navigator:         nav,
		Logger:            a.Logger,
		Metrics:           a.Metrics,
	}, service.OptionsFromConfig(a.Config.Session))
}

// Heartbeat создает планировщик пинга и проверки связи для синхронизатора
func (a *App) Heartbeat(sync *service.Synchronizer) (*service.Heartbeat, error) {
	return service.NewHeartbeat(sync, a.Identity.Health, a.Config.Session.HeartbeatSpec, a.Config.Session.ProbeSpec, a.Logger)
}

// ActivityService сервис истории пассажира
func (a *App) ActivityService() *service.ActivityService {
	return service.NewActivityService(a.Activity, a.Logger)
}

// PushService сервис подписок и рассылки
func (a *App) PushService() *service.PushService {
	return service.NewPushService(a.PushSubscriptions, a.Publisher, a.Config.RabbitMQ.RoutingKey, a.Logger)
}

// Close закрывает подключения в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
