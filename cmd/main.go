package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
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
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"datasethub/internal/auth"
	"datasethub/internal/config"
	"datasethub/internal/handler"
	"datasethub/internal/repository"
	"datasethub/internal/repository/memory"
	"datasethub/internal/service"
	"datasethub/internal/service/blob"
	"datasethub/internal/service/localfs"
	"datasethub/internal/service/s3"
)

func connectWithRetry(cfg *config.DatabaseConfig, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	// Сначала подключаемся к базе postgres (системная база, которая всегда существует)
	pgDB, err := sqlx.Connect("postgres", cfg.GetMaintenanceDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %w", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли база данных
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Name)
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

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg *config.DatabaseConfig) error {
	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://"+cfg.MigrationsPath, cfg.GetMigrateURL())
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
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
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// openRepositories выбирает хранилище метаданных по конфигурации
func openRepositories(cfg *config.DatabaseConfig) (service.UserRepository, service.DatasetRepository, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Println("Using in-memory repositories, data will not survive a restart")
		store := memory.NewStore()
		return store.Users(), store.Datasets(), func() {}, nil
	}

	db, err := connectWithRetry(cfg, 5, time.Second*5)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database after retries: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database connection: %v", err)
		}
	}
	return repository.NewUserRepository(db), repository.NewDatasetRepository(db), closeDB, nil
}

// openStorage выбирает хранилище содержимого версий
func openStorage(cfg *config.StorageConfig) (blob.Storage, error) {
	if cfg.Driver == config.StorageS3 {
		s3Config, err := s3.NewConfig(".s3.env")
		if err != nil {
			return nil, fmt.Errorf("failed to load S3 config: %w", err)
		}
		client, err := s3.NewClient(s3Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return client, nil
	}

	store, err := localfs.NewOSStore(cfg.LocalDir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}

	userRepo, datasetRepo, closeDB, err := openRepositories(&appConfig.Database)
	if err != nil {
		log.Fatalf("Failed to open repositories: %v", err)
	}
	defer closeDB()

	storage, err := openStorage(&appConfig.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	authService, err := auth.NewService(authConfig)
	if err != nil {
		log.Fatalf("Failed to create auth service: %v", err)
	}

	// Токены проверяются локально или внешним сервисом аутентификации
	var validator auth.Validator = authService
	if authConfig.AuthAddr != "" {
		conn, err := grpc.NewClient(authConfig.AuthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("Failed to connect to auth service: %v", err)
		}
		defer conn.Close()

		validator = auth.NewRemoteValidator(conn)
		log.Printf("Validating tokens through auth service at %s", authConfig.AuthAddr)
	}

	// Инициализация сервисов
	userService := service.NewUserService(userRepo, authService, validator)
	datasetService := service.NewDatasetService(datasetRepo, userRepo, storage)
	sweepService := service.NewSweepService(datasetRepo, storage, appConfig.Sweep.GracePeriod)

	// Инициализация хендлеров
	authHandler := handler.NewAuthHandler(userService)
	datasetHandler := handler.NewDatasetHandler(datasetService, userService, appConfig.Server.MaxUploadBytes)

	// Создаем и настраиваем gRPC сервер
	grpcServer := grpc.NewServer()
	auth.RegisterGRPCServer(grpcServer, auth.NewGRPCServer(authService, userService.GetByUsername))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler:           handler.NewRouter(authHandler, datasetHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем gRPC сервер
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", appConfig.Server.GRPCPort))
		if err != nil {
			log.Fatalf("Failed to listen for gRPC: %v", err)
		}
		log.Printf("Starting gRPC server on port %s", appConfig.Server.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Failed to serve gRPC: %v", err)
		}
	}()

	// Запускаем HTTP сервер
	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Запускаем очистку осиротевших объектов
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepService.StartCleanupTask(sweepCtx, appConfig.Sweep.Interval)

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down servers...")
	stopSweep()
	healthServer.Shutdown()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Останавливаем HTTP сервер
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	// Останавливаем gRPC сервер
	grpcServer.GracefulStop()

	log.Println("Server exited properly")
}
