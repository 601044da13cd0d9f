package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all configuration values.
type Config struct {
	HTTPAddr string

	// Store
	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotPath  string

	// Keys shared by the API and the worker
	DatasetKey       string
	JobQueueKey      string
	JobStatusKey     string
	JobResultKey     string
	JobEventsChannel string
	DatasetIDField   string

	// Job archive; empty disables it
	DatabaseURL string

	// External data catalog; empty endpoint disables imports
	CatalogEndpoint  string
	CatalogAccessKey string
	CatalogSecretKey string
	CatalogUseSSL    bool

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":5000"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", BackendRedis)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SnapshotPath:  getEnv("SNAPSHOT_PATH", "plotq-snapshot.json"),

		DatasetKey:       getEnv("DATASET_KEY", "raw_data"),
		JobQueueKey:      getEnv("JOB_QUEUE_KEY", "job_queue"),
		JobStatusKey:     getEnv("JOB_STATUS_KEY", "job_status"),
		JobResultKey:     getEnv("JOB_RESULT_KEY", "job_result"),
		JobEventsChannel: getEnv("JOB_EVENTS_CHANNEL", "job_events"),
		DatasetIDField:   getEnv("DATASET_ID_FIELD", "PatientID"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		CatalogEndpoint:  getEnv("CATALOG_ENDPOINT", ""),
		CatalogAccessKey: getEnv("CATALOG_ACCESS_KEY", ""),
		CatalogSecretKey: getEnv("CATALOG_SECRET_KEY", ""),
		CatalogUseSSL:    getEnv("CATALOG_USE_SSL", "false") == "true",

		LogFile:  getEnv("LOG_FILE", "/tmp/plotq.log"),
		LogLevel: parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
}

// LoadDotEnv loads the nearest .env file from the working directory or up to
// four of its parents. Variables already set in the environment win.
func LoadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
