// Package main - точка входа фонового процесса (Worker) GameHub Engine.
//
// Worker отвечает за периодические задачи:
// - Пересчёт лидербордов по расписанию
// - Переоценка достижений после смены рекордов
// - Полный обход пользователей (sweep) для прогресса без рекордов
// - Доставка уведомлений и записей в ленту активности
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sam399/gamehub-engine/config"
	"github.com/sam399/gamehub-engine/internal/application/command"
	"github.com/sam399/gamehub-engine/internal/application/notifier"
	"github.com/sam399/gamehub-engine/internal/application/scoring"
	"github.com/sam399/gamehub-engine/internal/domain/activity"
	"github.com/sam399/gamehub-engine/internal/domain/leaderboard"
	"github.com/sam399/gamehub-engine/internal/domain/notification"
	"github.com/sam399/gamehub-engine/internal/domain/shared"
	"github.com/sam399/gamehub-engine/internal/infrastructure/external/activitystore"
	"github.com/sam399/gamehub-engine/internal/infrastructure/messaging"
	"github.com/sam399/gamehub-engine/internal/infrastructure/persistence/postgres"
	"github.com/sam399/gamehub-engine/internal/infrastructure/persistence/projections"
	gameredis "github.com/sam399/gamehub-engine/internal/infrastructure/persistence/redis"
	"github.com/sam399/gamehub-engine/internal/infrastructure/scheduler"
	"github.com/sam399/gamehub-engine/internal/infrastructure/scheduler/jobs"
	"github.com/sam399/gamehub-engine/internal/infrastructure/service"
	"github.com/sam399/gamehub-engine/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupSlog(cfg)
	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	log.Info("starting GameHub Engine worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (опционально; без него работают только медленные пути)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache  *gameredis.Cache
		hintCache   leaderboard.RankHintCache
		broadcaster leaderboard.Broadcaster
	)

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := gameredis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = gameredis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, hints and broadcast disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			if cfg.Features.IsEnabled(config.FeatureLeaderboardRankHint, nil) {
				hintCache = gameredis.NewRankHintCache(redisCache)
			}
			broadcaster = gameredis.NewBroadcaster(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. РЕПОЗИТОРИИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	defRepo := postgres.NewDefinitionRepository(dbConn)
	entryRepo := postgres.NewEntryRepository(dbConn)
	achievementRepo := postgres.NewAchievementDefinitionRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)

	// Источник данных активности: собственные read-модели в postgres либо
	// удалённый сервис за HTTP.
	var store activity.Store = postgres.NewActivityStore(dbConn)
	if cfg.ActivityService.BaseURL != "" &&
		cfg.Features.IsEnabled(config.FeatureExperimentalRemoteActivity, nil) {
		store = newActivityClient(cfg, log)
		log.Info("using remote activity service", "base_url", cfg.ActivityService.BaseURL)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS + DISPATCHER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	dispatcher := messaging.NewDispatcher(messaging.DefaultDispatcherConfig(eventBus))
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	dispatcher.Use(messaging.LoggingMiddleware(log))
	if cfg.Features.IsEnabled(config.FeatureExperimentalMetrics, nil) {
		dispatcher.Use(messaging.MetricsMiddleware(dispatcher.Metrics()))
	}

	// Проекция лидербордов в памяти: обновляется по событиям и прогревается
	// активными лидербордами на старте.
	view := projections.NewLeaderboardView()
	projector := projections.NewProjector(view, defRepo, entryRepo, log)
	if err := dispatcher.Register(shared.EventLeaderboardUpdated, "leaderboard-projection", projector.Handler()); err != nil {
		return fmt.Errorf("failed to register projection handler: %w", err)
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer func() {
		log.Info("stopping dispatcher...")
		_ = dispatcher.Stop()
	}()

	if err := projector.Warm(ctx); err != nil {
		log.Warn("projection warmup failed, views fill in lazily", "error", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	var (
		feed notification.ActivityFeed
		disp notification.Dispatcher
	)
	if redisCache != nil && cfg.Features.IsEnabled(config.FeatureActivityFeed, nil) {
		feed = service.NewRedisActivityFeed(redisCache)
		disp = service.NewRedisNotificationDispatcher(redisCache)
	} else {
		feed = service.NewLogActivityFeed(log)
		disp = service.NewLogNotificationDispatcher(log)
	}

	notif := notifier.New(feed, disp, service.NewUUIDGenerator(), eventBus, notifier.DefaultConfig(), appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ОБРАБОТЧИКИ КОМАНД
	// ─────────────────────────────────────────────────────────────────────────
	calculator := scoring.NewCalculator(store, progressRepo, appLog)
	refreshHandler := command.NewRefreshLeaderboardHandler(
		defRepo, entryRepo, calculator, hintCache, broadcaster, eventBus, appLog)
	evaluateHandler := command.NewEvaluateAchievementsHandler(
		achievementRepo, progressRepo, store, eventBus, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	refreshJob := jobs.NewRefreshJob(refreshHandler, evaluateHandler, notif, log)

	sched := scheduler.NewRefreshScheduler(refreshJob, defRepo, scheduler.Config{
		Logger:           log,
		TickTimeout:      cfg.Scheduler.TickTimeout,
		RealtimeOverride: cfg.Scheduler.RealtimeOverride,
		Publisher:        eventBus,
	})

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			log.Info("stopping scheduler...")
			_ = sched.Stop()
		}()
		log.Info("refresh scheduler started", "tracked", len(sched.Tracked()))
	} else {
		log.Info("refresh scheduler disabled by config")
	}

	// Sweep живёт на собственном тикере: он обходит всех пользователей и не
	// привязан к конкретному лидерборду.
	if cfg.Scheduler.Enabled && cfg.Features.IsEnabled(config.FeatureAchievementSweep, nil) {
		sweep := jobs.NewEvaluateSweepJob(evaluateHandler, store, notif, jobs.EvaluateSweepConfig{
			Interval:   cfg.Scheduler.SweepInterval,
			BatchPause: cfg.Scheduler.SweepPause,
			Timeout:    cfg.Scheduler.SweepTimeout,
		}, log)
		go runSweepLoop(ctx, sweep, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("GameHub Engine worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	// Отложенные вызовы останавливают планировщик, диспетчер, шину и
	// соединения в обратном порядке инициализации.
	return nil
}

// runSweepLoop запускает периодический обход достижений до отмены контекста.
func runSweepLoop(ctx context.Context, sweep *jobs.EvaluateSweepJob, log *slog.Logger) {
	ticker := time.NewTicker(sweep.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep.Run(ctx); err != nil {
				log.Error("achievement sweep failed", "error", err)
			}
		}
	}
}

// newActivityClient собирает HTTP-клиент сервиса активности из конфигурации.
func newActivityClient(cfg *config.Config, log *slog.Logger) *activitystore.Client {
	clientCfg := activitystore.DefaultClientConfig(cfg.ActivityService.BaseURL)
	clientCfg.APIKey = cfg.ActivityService.APIKey
	clientCfg.Timeout = cfg.ActivityService.RequestTimeout
	clientCfg.Logger = log
	clientCfg.Debug = cfg.App.Debug

	clientCfg.RateLimiterConfig.RequestsPerSecond = cfg.ActivityService.RateLimit
	clientCfg.RateLimiterConfig.BurstSize = cfg.ActivityService.RateLimitBurst

	clientCfg.CircuitBreakerConfig.FailureThreshold = cfg.ActivityService.CircuitBreakerThreshold
	clientCfg.CircuitBreakerConfig.Timeout = cfg.ActivityService.CircuitBreakerTimeout
	clientCfg.CircuitBreakerConfig.HalfOpenMaxRetries = cfg.ActivityService.CircuitBreakerHalfOpenMax

	clientCfg.RetryConfig.MaxRetries = cfg.ActivityService.MaxRetries
	clientCfg.RetryConfig.InitialBackoff = cfg.ActivityService.RetryBaseDelay
	clientCfg.RetryConfig.MaxBackoff = cfg.ActivityService.RetryMaxDelay

	return activitystore.NewClient(clientCfg)
}

// setupSlog настраивает структурированное логирование процесса.
func setupSlog(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
