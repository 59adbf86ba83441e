package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "voicelog-backend/cmd/api"
	"voicelog-backend/internal/notification"
	pushDelivery "voicelog-backend/internal/push/delivery"
	pushdomain "voicelog-backend/internal/push/domain"
	pushRepo "voicelog-backend/internal/push/repository"
	reminderDelivery "voicelog-backend/internal/reminder/delivery"
	reminderRepo "voicelog-backend/internal/reminder/repository"
	"voicelog-backend/internal/reminder/scheduler"
	reminderUsecase "voicelog-backend/internal/reminder/usecase"
	"voicelog-backend/pkg/broker"
	"voicelog-backend/pkg/config"
	"voicelog-backend/pkg/database"
	"voicelog-backend/pkg/fcm"
	"voicelog-backend/pkg/logger"
	"voicelog-backend/pkg/metrics"
	"voicelog-backend/pkg/sse"
	"voicelog-backend/pkg/webpush"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.App.LogLevel, cfg.App.LogPretty)
	log.Info().Str("env", cfg.App.Env).Str("timezone", cfg.Location.String()).Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize database (optional)
	var db *gorm.DB
	if cfg.Database.URL != "" {
		db, err = database.NewPostgresConnection(ctx, database.Options{
			URL:         cfg.Database.URL,
			Attempts:    cfg.Database.ConnectAttempts,
			PingTimeout: cfg.Database.OpTimeout.Duration(),
			Logger:      log,
		})
		switch {
		case errors.Is(err, database.ErrUnreachable):
			log.Error().Err(err).Msg("database unreachable, serving from the in-process store until it recovers")
		case err != nil:
			log.Error().Err(err).Msg("invalid database configuration, reminders are kept in memory only")
			db = nil
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, reminders are kept in memory only")
	}

	// Initialize repositories (dependency injection)
	var durable reminderRepo.ReminderRepository
	var subscriptions pushRepo.SubscriptionRepository = pushRepo.NewMemorySubscriptionRepository()
	if db != nil {
		durable = reminderRepo.NewGormReminderRepository(db)
		subscriptions = pushRepo.NewGormSubscriptionRepository(db)
	}
	store := reminderRepo.NewFailoverRepository(durable, reminderRepo.NewMemoryReminderRepository(), reminderRepo.FailoverOptions{
		OpTimeout:     cfg.Database.OpTimeout.Duration(),
		ProbeInterval: cfg.Database.ProbeInterval.Duration(),
		CreateRetries: 2,
		OnBackendChange: func(b reminderRepo.Backend) {
			m.SetStoreDurable(b == reminderRepo.BackendDurable)
		},
		Logger: log,
	})
	m.SetStoreDurable(store.Health().Backend == reminderRepo.BackendDurable)

	// Initialize SSE Manager
	sseManager := sse.NewManager(sse.Options{
		KeepAlive:  cfg.SSE.KeepAlive.Duration(),
		StaleAfter: cfg.SSE.StaleAfter.Duration(),
		Logger:     log,
	})
	go sseManager.Run(ctx)
	m.GaugeFunc("sse_clients", "Number of connected live clients", func() float64 {
		return float64(sseManager.Len())
	})

	// Delivery ledger: Redis when configured
	ledger := notification.NewMemoryLedger(cfg.Redis.TTL.Duration(), nil)
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		if rdb, err = connectRedis(ctx, cfg.Redis.URL); err != nil {
			log.Error().Err(err).Msg("redis unavailable, delivery ledger stays in memory")
			rdb = nil
		} else {
			ledger = notification.NewRedisLedger(rdb, cfg.Redis.TTL.Duration())
			log.Info().Msg("redis delivery ledger enabled")
		}
	}

	// Push senders (optional)
	senders := make(map[pushdomain.Provider]notification.PushSender)
	if cfg.Push.VAPIDPublicKey != "" {
		client, err := webpush.NewClient(webpush.Config{
			PublicKey:  cfg.Push.VAPIDPublicKey,
			PrivateKey: cfg.Push.VAPIDPrivateKey,
			Subject:    cfg.Push.VAPIDSubject,
		}, nil)
		if err != nil {
			log.Error().Err(err).Msg("web push disabled")
		} else {
			senders[pushdomain.ProviderWebPush] = notification.NewWebPushSender(client)
		}
	} else {
		log.Warn().Msg("VAPID keys not set, web push disabled")
	}
	if cfg.Push.FirebaseCredentials != "" {
		client, err := fcm.NewClient(ctx, cfg.Push.FirebaseCredentials, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize FCM client, push to mobile disabled")
		} else {
			senders[pushdomain.ProviderFCM] = notification.NewFCMSender(client)
		}
	}

	// Broker (optional)
	var publisher notification.Publisher
	var rabbit *broker.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbit, err = broker.NewPublisher(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, 3, log)
		if err != nil {
			log.Error().Err(err).Msg("rabbitmq unavailable, alerts are not forwarded")
		} else {
			publisher = rabbit
		}
	}

	dispatcher := notification.NewDispatcher(notification.Options{
		Registry:      sseManager,
		Subscriptions: subscriptions,
		Senders:       senders,
		Publisher:     publisher,
		Ledger:        ledger,
		Timeout:       cfg.Delivery.Timeout.Duration(),
		Metrics:       m,
		Logger:        log,
	})

	monitor := scheduler.NewReminderMonitor(store, dispatcher, scheduler.Options{
		Interval: cfg.Monitor.Interval.Duration(),
		Grace:    cfg.Monitor.Grace.Duration(),
		Metrics:  m,
		Logger:   log,
	})
	monitor.Start(ctx)

	// Initialize use cases and handlers
	settings := api.NewSettingsStore(cfg.App.DefaultSnoozeMinutes)
	reminders := reminderUsecase.NewReminderUsecase(store, reminderUsecase.Options{
		Location:             cfg.Location,
		DefaultSnoozeMinutes: cfg.App.DefaultSnoozeMinutes,
		SnoozeMinutes:        settings.DefaultSnoozeMinutes,
		Logger:               log,
	})

	handler := api.NewHandler(api.Dependencies{
		Reminders:   reminderDelivery.NewReminderHandler(reminders, monitor),
		Push:        pushDelivery.NewPushHandler(subscriptions, cfg.Push.VAPIDPublicKey, log),
		Settings:    settings,
		SSE:         sseManager,
		Store:       store,
		Metrics:     m,
		Gatherer:    registry,
		CORSOrigins: cfg.App.CORSOrigins,
		Logger:      log,
	})

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- handler.Start(":" + cfg.App.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := handler.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	monitor.Stop()
	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			log.Warn().Err(err).Msg("rabbitmq close")
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		if err := database.Close(db); err != nil {
			log.Warn().Err(err).Msg("database close")
		}
	}
	log.Info().Msg("server stopped")
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
