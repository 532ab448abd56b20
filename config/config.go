package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Pipeline PipelineConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Port int
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// RunsChannel carries pipeline run events to the live feed.
	RunsChannel string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type CORSConfig struct {
	AllowedOrigins string
}

type PipelineConfig struct {
	CSVPath         string
	Seed            int
	TestFraction    float64
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	TopFeatures     int
	MetricsAddr     string
}

type StorageConfig struct {
	Backend         string
	Dir             string
	Bucket          string
	Prefix          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// LoadDotEnv loads variables from the given files, or from ./.env when none
// are given. A missing default .env is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if len(paths) == 0 && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func LoadConfig() (*Config, error) {
	var cfg Config
	for _, v := range []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"SERVER_PORT", 8080, &cfg.Server.Port},
		{"DB_PORT", 5432, &cfg.Database.Port},
		{"REDIS_PORT", 6379, &cfg.Redis.Port},
		{"REDIS_DB", 0, &cfg.Redis.DB},
		{"JWT_EXPIRY_HOURS", 24, &cfg.JWT.ExpiryHours},
		{"PIPELINE_SEED", 42, &cfg.Pipeline.Seed},
		{"PIPELINE_TREES", 100, &cfg.Pipeline.Trees},
		{"PIPELINE_MAX_DEPTH", 15, &cfg.Pipeline.MaxDepth},
		{"PIPELINE_MIN_SAMPLES_SPLIT", 10, &cfg.Pipeline.MinSamplesSplit},
		{"PIPELINE_MIN_SAMPLES_LEAF", 5, &cfg.Pipeline.MinSamplesLeaf},
		{"PIPELINE_TOP_FEATURES", 10, &cfg.Pipeline.TopFeatures},
	} {
		n, err := getIntEnv(v.key, v.fallback)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.key, err)
		}
		*v.dst = n
	}

	testFraction, err := getFloatEnv("PIPELINE_TEST_FRACTION", 0.3)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_TEST_FRACTION: %w", err)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("invalid PIPELINE_TEST_FRACTION: %v not in (0, 1)", testFraction)
	}
	cfg.Pipeline.TestFraction = testFraction

	cfg.Server.Mode = getEnv("GIN_MODE", "release")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.User = getEnv("DB_USER", "city311")
	cfg.Database.Password = getEnv("DB_PASSWORD", "city311_dev_password")
	cfg.Database.Name = getEnv("DB_NAME", "city311")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.RunsChannel = getEnv("REDIS_RUNS_CHANNEL", "city311:model-runs")
	cfg.JWT.Secret = getEnv("JWT_SECRET", "change-me-in-production")
	cfg.CORS.AllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", "*")
	cfg.Pipeline.CSVPath = getEnv("PIPELINE_CSV_PATH", "data/raw/SR2025.csv")
	cfg.Pipeline.MetricsAddr = getEnv("PIPELINE_METRICS_ADDR", "")

	cfg.Storage = StorageConfig{
		Backend:         getEnv("STORAGE_BACKEND", StorageLocal),
		Dir:             getEnv("STORAGE_DIR", "data/processed"),
		Bucket:          getEnv("S3_BUCKET", ""),
		Prefix:          getEnv("S3_PREFIX", ""),
		Endpoint:        getEnv("S3_ENDPOINT_URL", ""),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
	}
	switch cfg.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if cfg.Storage.Bucket == "" {
			return nil, errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q", cfg.Storage.Backend)
	}

	return &cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}
