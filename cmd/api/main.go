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

	"city311-api/artifact"
	"city311-api/config"
	"city311-api/handlers"
	"city311-api/models"
	"city311-api/serving"
	"city311-api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("failed to read .env", zap.Error(err))
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gin.SetMode(cfg.Server.Mode)

	// Load the pipeline outputs once; they are read-only from here on.
	store, err := artifact.OpenStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	snapshot, err := serving.Load(ctx, store, logger)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	// Operator features need Postgres; dashboards and predictions do not.
	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Warn("database unavailable, operator routes disabled", zap.Error(err))
	}

	cache, err := services.NewCacheService(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, caching and live runs disabled", zap.Error(err))
	}
	defer cache.Close()

	var auth *services.AuthService
	if db != nil {
		auth = services.NewAuthService(cfg.JWT)
	}

	router := handlers.NewRouter(handlers.Deps{
		Snapshot:    snapshot,
		DB:          db,
		Cache:       cache,
		Auth:        auth,
		CORS:        cfg.CORS,
		RunsChannel: cfg.Redis.RunsChannel,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", server.Addr),
			zap.Bool("chart_data_available", snapshot.ReportAvailable()),
			zap.Bool("ml_model_available", snapshot.ModelAvailable()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.User{}, &models.ModelRun{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
