package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"PodcastNotifier/internal/app"
	"PodcastNotifier/internal/config"
	"PodcastNotifier/internal/logging"
	"PodcastNotifier/internal/usecase"
)

func main() {
	once := flag.String("once", "", "run a single job (poll, submit, complete, notify or all) and exit")
	flag.Parse()

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	if *once != "" {
		if err := application.RunOnce(ctx, *once); err != nil {
			logger.Error("job failed", "job", *once, "error", err)
			stop()
			os.Exit(1)
		}
		return
	}

	logger.Info("starting daemon", "jobs", usecase.Jobs())
	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		stop()
		os.Exit(1)
	}
}
