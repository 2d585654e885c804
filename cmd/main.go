package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Dosada05/pong-server/brackets"
	"github.com/Dosada05/pong-server/config"
	"github.com/Dosada05/pong-server/db"
	"github.com/Dosada05/pong-server/engine"
	"github.com/Dosada05/pong-server/gateway"
	"github.com/Dosada05/pong-server/handlers"
	"github.com/Dosada05/pong-server/ledger"
	"github.com/Dosada05/pong-server/metrics"
	"github.com/Dosada05/pong-server/repositories"
	api "github.com/Dosada05/pong-server/routes"
	"github.com/Dosada05/pong-server/services"
	"github.com/Dosada05/pong-server/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.Int("tick_rate", cfg.TickRate),
		slog.Int("tournament_size", cfg.TournamentSize),
		slog.Duration("ready_timeout", cfg.ReadyTimeout))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gameMetrics := metrics.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище недоставленных результатов (опционально)
	var undelivered repositories.UndeliveredResultRepository
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}()
		if err := db.EnsureSchema(ctx, dbConn); err != nil {
			logger.Error("failed to prepare database schema", slog.Any("error", err))
			os.Exit(1)
		}
		undelivered = repositories.NewPostgresUndeliveredResultRepository(dbConn)
		logger.Info("database connection established")
	} else {
		logger.Warn("DATABASE_URL is not set, undelivered results will only be logged")
	}

	// Архив турниров в Cloudflare R2 (опционально)
	var archive services.TournamentArchiver
	if cfg.ArchiveEnabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		archive = storage.NewTournamentArchive(uploader)
		logger.Info("Cloudflare R2 uploader initialized")
	}

	if cfg.StatsServiceURL == "" {
		logger.Warn("STATS_SERVICE_URL is not set, results will only be logged")
	}
	publisher := services.NewResultPublisher(
		ledger.NewHTTPClient(cfg.StatsServiceURL, cfg.StatsTimeout),
		undelivered,
		archive,
		services.PublisherConfig{MaxAttempts: cfg.PublishMaxAttempts},
		gameMetrics,
		logger,
	)

	// Инициализация сервисов
	matchmaker := services.NewMatchmaker(cfg.TournamentSize, gameMetrics, logger)
	tournamentService := services.NewTournamentService(brackets.NewSingleEliminationGenerator(), logger)
	hub := gateway.NewHub(gameMetrics, logger)

	engineCfg := engine.DefaultConfig()
	engineCfg.TickInterval = cfg.TickInterval()
	engineCfg.Rules.TargetScore = cfg.TargetScore
	engineCfg.Rules.ServeSpeed = cfg.ServeSpeed

	gameService := services.NewGameService(
		services.GameServiceConfig{
			Engine:         engineCfg,
			ReadyTimeout:   cfg.ReadyTimeout,
			PublishTimeout: time.Duration(cfg.PublishMaxAttempts+1) * cfg.StatsTimeout,
		},
		matchmaker,
		tournamentService,
		publisher,
		hub,
		gameMetrics,
		logger,
	)
	logger.Info("Services initialized")

	var background sync.WaitGroup

	background.Add(2)
	go func() {
		defer background.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer background.Done()
		gameService.Run(ctx, hub.Events())
	}()
	logger.Info("WebSocket Hub started")

	// Планировщик повторной доставки результатов
	if undelivered != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			runRedelivery(ctx, publisher, cfg.RedeliveryInterval, logger)
		}()
	}

	// Инициализация обработчиков HTTP
	gameHandler := handlers.NewGameHandler(gameService)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	webSocketHandler := handlers.NewWebSocketHandler(hub, cfg.AllowedOrigins, logger)

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		api.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			JWTSecretKey:   cfg.JWTSecretKey,
			Registry:       registry,
		},
		gameHandler,
		tournamentHandler,
		webSocketHandler,
	)
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			exitCode = 1
		}
		stop()
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
		exitCode = 1
	}

	// ctx уже отменён: hub закрывает соединения, цикл событий завершается
	background.Wait()
	gameService.Shutdown(shutdownCtx)

	logger.Info("application exited")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func runRedelivery(ctx context.Context, publisher *services.ResultPublisher, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		logger.Warn("redelivery scheduler disabled", slog.Duration("interval", interval))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("redelivery scheduler started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := publisher.RedeliverPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Scheduler: redelivery run failed", slog.Any("error", err))
			}
		}
	}
}
