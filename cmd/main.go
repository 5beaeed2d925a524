package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"eegility/internal/auth"
	"eegility/internal/cache"
	"eegility/internal/config"
	"eegility/internal/event"
	"eegility/internal/handler"
	"eegility/internal/logger"
	"eegility/internal/repository"
	"eegility/internal/service"
	"eegility/internal/service/s3"
)

func connectWithRetry(cfg config.DatabaseConfig, maxAttempts int, delay time.Duration, log *zap.Logger) (*sqlx.DB, error) {
	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	system := cfg
	system.Name = "postgres"
	pgDB, err := sqlx.Connect("postgres", system.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли рабочая база
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Info("database does not exist, creating", zap.String("database", cfg.Name))
		if _, err := pgDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(cfg.Name)); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", cfg.GetDSN())
		if err == nil {
			return db, nil
		}

		log.Warn("failed to connect to database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg config.DatabaseConfig, log *zap.Logger) error {
	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", cfg.GetURL())
		if err == nil {
			break
		}
		log.Warn("failed to create migrate instance", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Warn("found dirty database state, forcing version", zap.Uint("version", version))
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// newAuthenticator выбирает провайдера идентификации по конфигурации.
// Для grpc возвращается соединение, которое нужно закрыть при остановке.
func newAuthenticator(cfg config.AuthConfig, users *repository.UserRepository, log *zap.Logger) (auth.Authenticator, *grpc.ClientConn, error) {
	switch cfg.Mode {
	case config.AuthModeGRPC:
		conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to auth service: %w", err)
		}
		return auth.NewGRPCAuthenticator(conn, users, log), conn, nil
	default:
		authn, err := auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, users)
		if err != nil {
			return nil, nil, err
		}
		return authn, nil, nil
	}
}

func main() {
	configPath := os.Getenv("EEG_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Загружаем конфигурацию
	appConfig, err := config.NewConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(appConfig.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Подключаемся к базе данных
	db, err := connectWithRetry(appConfig.Database, 5, time.Second*5, log)
	if err != nil {
		log.Fatal("failed to connect to database after retries", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(appConfig.Database, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	db.SetMaxOpenConns(appConfig.Database.MaxConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal("failed to ping database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация S3 клиента; без него ссылки на скачивание недоступны
	var storage service.ObjectStorage
	if appConfig.S3.Enabled() {
		s3Client, err := s3.NewClient(ctx, &appConfig.S3)
		if err != nil {
			log.Fatal("failed to create S3 client", zap.Error(err))
		}
		storage = s3Client
	} else {
		log.Warn("S3 is not configured, downloads and object checks are disabled")
	}

	// Инициализация репозиториев
	userRepo := repository.NewUserRepository(db)
	shareRepo := repository.NewShareRepository(db)
	var recordStore service.RecordStore = repository.NewRecordRepository(db)

	if appConfig.Redis.Addr != "" {
		recordCache, err := cache.NewRecordCache(recordStore, appConfig.Redis, log)
		if err != nil {
			log.Fatal("failed to init record cache", zap.Error(err))
		}
		defer recordCache.Close()
		recordStore = recordCache
	}

	publisher, err := event.NewPublisher(appConfig.RabbitMQ.URI, appConfig.RabbitMQ.Exchange, log)
	if err != nil {
		log.Fatal("failed to init event publisher", zap.Error(err))
	}
	defer publisher.Close()

	authn, authConn, err := newAuthenticator(appConfig.Auth, userRepo, log)
	if err != nil {
		log.Fatal("failed to init authenticator", zap.Error(err))
	}
	if authConn != nil {
		defer authConn.Close()
	}

	// Инициализация сервисов
	permissionService := service.NewPermissionService(recordStore, shareRepo, log)
	shareService := service.NewShareService(shareRepo, recordStore, userRepo, permissionService, publisher, log)
	recordService := service.NewRecordService(recordStore, permissionService, storage, publisher, log)
	recordService.SetDownloadTTL(appConfig.Sharing.DownloadURLTTL)

	// Инициализация хендлеров
	recordHandler := handler.NewRecordHandler(recordService, permissionService, shareService, log)
	shareHandler := handler.NewShareHandler(shareService, log)

	router := handler.NewRouter(recordHandler, shareHandler, authn, handler.RouterOptions{
		AllowedOrigins: appConfig.Server.AllowedOrigins,
		Health:         db.PingContext,
		AccessLog:      true,
	}, log)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запускаем HTTP сервер
	go func() {
		log.Info("starting HTTP server", zap.String("port", appConfig.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// Периодически переводим просроченные запросы в expired
	sweepTicker := time.NewTicker(appConfig.Sharing.SweepInterval)
	go func() {
		defer sweepTicker.Stop()
		for {
			select {
			case <-sweepTicker.C:
				if _, err := shareService.ExpireOverdue(ctx); err != nil {
					log.Error("error during expired shares sweep", zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited properly")
}
