// Command pipeline cleans a 311 export, trains the completion model and writes
// the dashboard data and model artifact the API serves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"city311-api/artifact"
	"city311-api/config"
	"city311-api/forest"
	"city311-api/pipeline"
	"city311-api/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	envFile := flag.String("env", "", "dotenv file to load (default ./.env if present)")
	csvPath := flag.String("csv", "", "CSV export to process (overrides PIPELINE_CSV_PATH)")
	every := flag.Duration("every", 0, "rerun on this interval instead of exiting after one run")
	offline := flag.Bool("offline", false, "skip Postgres run history and Redis run events")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		logger.Fatal("failed to read env file", zap.Error(err))
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *csvPath != "" {
		cfg.Pipeline.CSVPath = *csvPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := artifact.OpenStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to open artifact store", zap.Error(err))
	}

	runnerOpts := []pipeline.Option{pipeline.WithLogger(logger)}
	if !*offline {
		if rec, closeFn := openRecorder(ctx, cfg.Database, logger); rec != nil {
			defer closeFn()
			runnerOpts = append(runnerOpts, pipeline.WithRecorder(rec))
		}
		cache, err := services.NewCacheService(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, run events will not be published", zap.Error(err))
		} else {
			defer cache.Close()
			runnerOpts = append(runnerOpts, pipeline.WithPublisher(cache, cfg.Redis.RunsChannel))
		}
	}
	runner := pipeline.NewRunner(store, runnerOpts...)

	if cfg.Pipeline.MetricsAddr != "" {
		go serveHTTP(cfg.Pipeline.MetricsAddr, logger)
	}

	opts := optionsFromConfig(cfg.Pipeline)
	logger.Info("pipeline configured",
		zap.String("csv", cfg.Pipeline.CSVPath),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("trees", opts.Training.Params.Trees),
		zap.Int("max_depth", opts.Training.Params.MaxDepth),
		zap.Float64("test_fraction", opts.Training.TestFraction),
		zap.Duration("every", *every),
	)

	// Run first cycle immediately
	_, err = runner.RunFile(ctx, cfg.Pipeline.CSVPath, opts)
	if *every <= 0 {
		if err != nil {
			logger.Fatal("pipeline failed", zap.Error(err))
		}
		return
	}

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Failures are recorded on the run; keep the schedule going.
			_, _ = runner.RunFile(ctx, cfg.Pipeline.CSVPath, opts)
		case <-ctx.Done():
			logger.Info("pipeline shutting down")
			return
		}
	}
}

func optionsFromConfig(cfg config.PipelineConfig) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Training.Seed = uint64(cfg.Seed)
	opts.Training.TestFraction = cfg.TestFraction
	opts.Training.TopN = cfg.TopFeatures
	opts.Training.Params = forest.Params{
		Trees:           cfg.Trees,
		MaxDepth:        cfg.MaxDepth,
		MinSamplesSplit: cfg.MinSamplesSplit,
		MinSamplesLeaf:  cfg.MinSamplesLeaf,
	}
	return opts
}

// openRecorder returns nil when Postgres is unreachable; the run still
// produces its artifacts.
func openRecorder(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pipeline.PGRecorder, func()) {
	pool, err := pgxpool.New(ctx, cfg.GetDSN())
	if err != nil {
		logger.Warn("db pool init failed, run history disabled", zap.Error(err))
		return nil, nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("db ping failed, run history disabled", zap.Error(err))
		pool.Close()
		return nil, nil
	}
	rec := pipeline.NewPGRecorder(pool)
	if err := rec.EnsureSchema(ctx); err != nil {
		logger.Warn("model_runs schema check failed, run history disabled", zap.Error(err))
		pool.Close()
		return nil, nil
	}
	logger.Info("db connected")
	return rec, pool.Close
}

func serveHTTP(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
