package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sourcetrader/internal/api"
	"sourcetrader/internal/config"
	"sourcetrader/internal/events"
	"sourcetrader/internal/repository"
	"sourcetrader/internal/service"
	"sourcetrader/internal/telegram"
	"sourcetrader/internal/tracing"
	"sourcetrader/internal/websocket"
	"sourcetrader/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer logger.Sync()

	shutdownTracing, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logger.Fatal("failed to init tracing", utils.Err(err))
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	if err := repository.Migrate(db); err != nil {
		logger.Fatal("failed to apply migrations", utils.Err(err))
	}

	// Инициализация репозиториев
	signalRepo := repository.NewSignalRepository(db)
	subscriberRepo := repository.NewSubscriberRepository(db)
	stateRepo := repository.NewStateRepository(db)

	// Внешние клиенты
	tg := telegram.NewClient(cfg.Telegram, logger)
	defer tg.Close()

	hub := websocket.NewHub(logger)
	go hub.Run()

	var publisher *events.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka), logger)
		logger.Info("kafka publisher enabled",
			utils.String("topic", cfg.Kafka.Topic),
			utils.Int("brokers", len(cfg.Kafka.Brokers)),
		)
	}

	// Инициализация сервисов
	formatter := service.NewMessageFormatter(cfg.Signals, cfg.Summary.Location, cfg.Telegram.SupportContact)

	notifier := service.NewNotificationService(tg, subscriberRepo, formatter, cfg.Telegram, logger)

	statsService := service.NewStatsService(signalRepo, logger)
	statsService.SetWebSocketHub(hub)

	resolver := service.NewReferenceResolver(signalRepo, logger)
	signalService := service.NewSignalService(
		signalRepo,
		service.NewSignalValidator(cfg.Signals),
		resolver,
		notifier,
		statsService,
		logger,
	)
	signalService.SetWebSocketHub(hub)
	if publisher != nil {
		signalService.SetEventPublisher(publisher)
	}

	summaryService := service.NewSummaryService(statsService, notifier, stateRepo, formatter, cfg.Summary, logger)
	summaryService.SetWebSocketHub(hub)

	subscriptions := service.NewSubscriptionService(subscriberRepo, cfg.Signals, logger)
	botService := service.NewBotService(subscriptions, statsService, signalService, notifier, formatter, logger)

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		SignalService:  signalService,
		StatsService:   statsService,
		SummaryService: summaryService,
		BotService:     botService,
		Hub:            hub,
		DB:             db,
		Security:       cfg.Security,
		Location:       cfg.Summary.Location,
		Logger:         logger,
	}

	// Настройка HTTP роутера
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server",
			utils.String("addr", server.Addr),
			utils.String("summary_window", cfg.Summary.WindowStart.String()),
			utils.String("timezone", cfg.Summary.Timezone),
		)
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	// Дожидаемся рассылок и публикаций, запущенных последними запросами
	if err := signalService.Wait(ctx); err != nil {
		logger.Warn("background deliveries not finished", utils.Err(err))
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close kafka writer", utils.Err(err))
		}
	}

	hub.Stop()

	if err := shutdownTracing(ctx); err != nil {
		logger.Error("failed to flush traces", utils.Err(err))
	}

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
