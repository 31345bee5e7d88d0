package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, loaded once at startup from
// environment variables. No flags: everything is 12-factor.
type Config struct {
	// Redis pub/sub, used for delta fan-out between adapters and the
	// persistence worker.
	RedisAddr string
	RedisAuth string

	// TickStoreAddr is the tick store's TCP listen address.
	TickStoreAddr string

	// UploadPeriod is how often the archive worker tars, compresses, and
	// uploads the tick-store directory.
	UploadPeriod int

	// DTFDBPath is the tick store's on-disk directory, tarred by the
	// archive worker.
	DTFDBPath string

	// Object storage.
	S3Bucket       string
	S3StorageClass string
	AWSRegion      string

	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// MetricsAddr is where /metrics is served.
	MetricsAddr string

	// LogFilePath is where the rotating file writer persists JSON log lines
	// alongside stdout.
	LogFilePath string
}

// Load loads configuration from environment variables, optionally seeded
// from a .env file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	defaultDBPath := home + "/tectonicdb/target/release/db"

	cfg := &Config{
		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisAuth:          getEnv("REDIS_AUTH", ""),
		TickStoreAddr:      getEnv("DTF_ADDR", "127.0.0.1:9001"),
		UploadPeriod:       getEnvAsInt("UPLOAD_PERIOD", 86400),
		DTFDBPath:          getEnv("DTF_DB_PATH", defaultDBPath),
		S3Bucket:           getEnv("S3_BUCKET", "cuteq"),
		S3StorageClass:     getEnv("S3_STORAGE_CLASS", "STANDARD_IA"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		MetricsAddr:        getEnv("METRICS_ADDR", ":9100"),
		LogFilePath:        getEnv("DTF_LOG_PATH", "./logs/dtfeed.log"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that should be fatal at startup: a config
// error per the error-handling taxonomy is always fatal, never a degraded
// running mode.
func (c *Config) Validate() error {
	if c.UploadPeriod <= 0 {
		return fmt.Errorf("UPLOAD_PERIOD must be positive, got %d", c.UploadPeriod)
	}
	if c.DTFDBPath == "" {
		return fmt.Errorf("DTF_DB_PATH must not be empty")
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET must not be empty")
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}
