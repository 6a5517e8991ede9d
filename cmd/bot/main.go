package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/container"
	"remindbot/internal/handlers"
	"remindbot/internal/logger"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envErr := godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		logger.Get().WithError(err).Fatal("Invalid configuration")
	}

	log := logger.Init(cfg.LogLevel)
	if envErr != nil {
		log.Info("No .env file found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize dependencies")
	}
	defer c.Close()

	if err := c.Reminders.Startup(ctx); err != nil {
		log.WithError(err).Fatal("Failed to recover pending reminders")
	}

	if err := c.Bot.SetCommands(ctx, bot.Commands); err != nil {
		log.WithError(err).Warn("Failed to register bot commands")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", handlers.WebhookHandler(c.Commands, log))
	mux.HandleFunc("/health", handlers.HealthHandler(c.Reminders.Ready))
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.Scheduler.Run(gctx)
		return nil
	})

	g.Go(func() error {
		c.Reminders.StartHistoryWorker(gctx, cfg.HistoryRetention, 0)
		return nil
	})

	g.Go(func() error {
		log.Infof("Bot starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		c.Scheduler.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Server stopped with error")
	}
	log.Info("Bot stopped")
}
