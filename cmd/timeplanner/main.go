package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"time-planner/internal/bot"
	"time-planner/internal/clock"
	"time-planner/internal/config"
	"time-planner/internal/notify"
	"time-planner/internal/repository"
	"time-planner/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	eventRepo := repository.NewEventRepository(db)

	tm := clock.New()

	// The bot doubles as the push channel; without a token the dispatcher
	// runs in notifications-disabled mode and reminders fall back to the
	// in-app alert writer.
	var telegramBot *bot.Bot
	var push notify.Channel
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg.TelegramToken, userRepo, logger)
		if err != nil {
			log.Fatalf("bot: %v", err)
		}
		push = telegramBot
	} else {
		logger.Warn("no telegram token, notifications degrade to in-app alerts")
	}

	dispatcher := notify.NewDispatcher(push, notify.NewAlertChannel(os.Stdout), notify.NewEmailChannel(logger), logger)
	scheduler := notify.NewScheduler(tm, clock.SystemTimers{}, dispatcher, logger)
	defer scheduler.Close()

	taskSvc := service.NewTaskService(taskRepo, scheduler)
	eventSvc := service.NewEventService(eventRepo, scheduler)
	watchSvc := service.NewWatchService(taskRepo, eventRepo, scheduler, dispatcher, tm, logger)

	if telegramBot != nil {
		telegramBot.Attach(tm, scheduler, taskSvc, eventSvc, watchSvc)
	}

	if err := watchSvc.Resync(ctx); err != nil {
		logger.Error("initial resync failed", "error", err)
	}

	cronSvc := service.NewCronService(time.Local)
	if _, err := cronSvc.ScheduleInterval(cfg.RefreshInterval, tm.Refresh); err != nil {
		log.Fatalf("schedule clock refresh: %v", err)
	}
	if _, err := cronSvc.ScheduleInterval(cfg.SweepInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := watchSvc.Sweep(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("urgency sweep failed", "error", err)
		}
	}); err != nil {
		log.Fatalf("schedule sweep: %v", err)
	}
	cronSvc.Start()
	defer cronSvc.Stop()

	logger.Info("time planner started")
	if telegramBot != nil {
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("bot stopped with error: %v", err)
		}
	} else {
		<-ctx.Done()
	}
	logger.Info("shutdown complete")
}
