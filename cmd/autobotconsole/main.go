package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autobot-console/internal/api"
	"autobot-console/internal/bot"
	"autobot-console/internal/config"
	"autobot-console/internal/repository"
	"autobot-console/internal/service"
	"autobot-console/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	shutdownTracing, err := telemetry.Setup(cfg.TracingEnabled)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer func() {
		if err := repository.CloseDB(db); err != nil {
			log.Printf("close db: %v", err)
		}
	}()

	userRepo := repository.NewUserRepository(db)
	client := api.New(cfg.APIBaseURL, cfg.APITimeout)

	digestSvc := service.NewDigestService(userRepo, func(session string) service.DigestAPI {
		return client.WithSession(session, nil)
	}, cfg.Location)
	scheduler := service.NewSchedulerService(cfg.Location)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, client, digestSvc, scheduler, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	if cfg.ReportInterval > 0 {
		if err := scheduler.ScheduleInterval(service.DigestJob, cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("digest: %v", err)
			}
		}); err != nil {
			log.Fatalf("schedule digests: %v", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	log.Printf("AutoBot console started, API at %s.", cfg.APIBaseURL)
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
