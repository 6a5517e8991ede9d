package container

import (
	"context"
	"database/sql"
	"fmt"

	"remindbot/internal/bot"
	"remindbot/internal/cache"
	"remindbot/internal/config"
	"remindbot/internal/database"
	"remindbot/internal/metrics"
	"remindbot/internal/repository"
	"remindbot/internal/scheduler"
	"remindbot/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Container struct {
	Config *config.Config
	Logger *logrus.Logger

	Postgres *pgxpool.Pool
	SQLite   *sql.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Observer

	Repo       repository.ReminderRepository
	Bot        *bot.Bot
	Scheduler  *scheduler.Scheduler
	Dispatcher *services.Dispatcher
	Reminders  *services.ReminderService
	Commands   *bot.Handler
}

// New opens storage and wires every component. Only a storage failure is an
// error; an unreachable Redis disables the listing cache.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	if err := c.openStorage(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := c.Repo.Migrate(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if cfg.RedisAddr != "" {
		client, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, reminder listing cache disabled")
		} else {
			c.Redis = client
		}
	}
	reminderCache := cache.NewReminderCache(c.Redis, cache.DefaultTTL, logger)

	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.MustNew(c.Registry)

	c.Bot = bot.NewBot(&bot.Config{
		Token:    cfg.BotToken,
		BaseURL:  cfg.TelegramAPIURL,
		SendRate: cfg.SendRate,
		Logger:   logger,
	})
	c.Scheduler = scheduler.New(cfg.DispatchWorkers, logger, c.Metrics)
	c.Dispatcher = services.NewDispatcher(c.Repo, c.Bot, reminderCache, c.Metrics, logger)
	c.Reminders = services.NewReminderService(&services.ReminderServiceConfig{
		Repo:       c.Repo,
		Timers:     c.Scheduler,
		Dispatcher: c.Dispatcher,
		Cache:      reminderCache,
		Metrics:    c.Metrics,
		Logger:     logger,
		Location:   cfg.Location,
	})
	c.Commands = bot.NewHandler(c.Reminders, c.Bot, cfg.Location, logger)

	return c, nil
}

func (c *Container) openStorage(ctx context.Context) error {
	driver, dsn := c.Config.StorageDriver()

	switch driver {
	case config.DriverSQLite:
		db, err := database.NewSQLite(ctx, dsn, c.Logger)
		if err != nil {
			return err
		}
		c.SQLite = db
		c.Repo = repository.NewSQLiteRepository(db)
	default:
		pool, err := database.NewPostgres(ctx, dsn, c.Logger)
		if err != nil {
			return err
		}
		c.Postgres = pool
		c.Repo = repository.NewPostgresRepository(pool)
	}
	return nil
}

func (c *Container) Close() {
	if c.Redis != nil {
		c.Redis.Close()
		c.Logger.Info("Redis connection closed")
	}
	if c.Postgres != nil {
		c.Postgres.Close()
		c.Logger.Info("Database connection closed")
	}
	if c.SQLite != nil {
		c.SQLite.Close()
		c.Logger.Info("Database connection closed")
	}
}
