package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pulse/internal/utils"
)

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

type Config struct {
	Port string

	StoreBackend      string
	ProjectID         string
	FirestoreDatabase string
	DatabaseURL       string

	RedisAddr     string
	RedisPassword string

	AMQPURL   string
	AMQPQueue string

	AdminJWTSecret string

	FeedBackfillSize int
	InactiveAfter    time.Duration
	MaxBatchWrites   int
	EventDedupeTTL   time.Duration
	ScheduleHour     int
	FCMEnabled       bool

	LogLevel  string
	LogFormat string

	ScoringConfig string
	Ranking       utils.RankConfig
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading configuration from environment")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendFirestore)),
		ProjectID:         os.Getenv("GOOGLE_CLOUD_PROJECT"),
		FirestoreDatabase: os.Getenv("FIRESTORE_DATABASE"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPQueue:         getEnv("AMQP_QUEUE", "pulse-events"),
		AdminJWTSecret:    os.Getenv("ADMIN_JWT_SECRET"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
		ScoringConfig:     os.Getenv("SCORING_CONFIG"),
		Ranking:           utils.DefaultConfig,
	}

	var err error
	if cfg.FeedBackfillSize, err = getInt("FEED_BACKFILL_SIZE", 20); err != nil {
		return nil, err
	}
	if cfg.MaxBatchWrites, err = getInt("MAX_BATCH_WRITES", 500); err != nil {
		return nil, err
	}
	if cfg.ScheduleHour, err = getInt("SCHEDULE_HOUR", 3); err != nil {
		return nil, err
	}
	if cfg.InactiveAfter, err = getDuration("INACTIVE_AFTER", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EventDedupeTTL, err = getDuration("EVENT_DEDUPE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FCMEnabled, err = getBool("FCM_ENABLED", false); err != nil {
		return nil, err
	}

	if cfg.ScoringConfig != "" {
		if cfg.Ranking, err = LoadRanking(cfg.ScoringConfig); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("config: GOOGLE_CLOUD_PROJECT is required for the firestore backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.FeedBackfillSize < 1 {
		return fmt.Errorf("config: FEED_BACKFILL_SIZE must be positive")
	}
	if c.MaxBatchWrites < 1 || c.MaxBatchWrites > 500 {
		return fmt.Errorf("config: MAX_BATCH_WRITES must be between 1 and 500")
	}
	if c.ScheduleHour < -1 || c.ScheduleHour > 23 {
		return fmt.Errorf("config: SCHEDULE_HOUR must be -1 (disabled) or 0-23")
	}
	if c.InactiveAfter <= 0 {
		return fmt.Errorf("config: INACTIVE_AFTER must be positive")
	}
	return c.Ranking.Validate()
}

// LoadRanking reads scoring weights from a YAML file. Weights missing from
// the file keep their default value.
func LoadRanking(path string) (utils.RankConfig, error) {
	cfg := utils.DefaultConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scoring config: %w", err)
	}
	var file struct {
		Weights utils.RankConfig `yaml:"weights"`
	}
	file.Weights = cfg
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return cfg, fmt.Errorf("parse scoring config %s: %w", path, err)
	}
	if err := file.Weights.Validate(); err != nil {
		return cfg, err
	}
	return file.Weights, nil
}

// SetupLogging installs the default slog logger.
func (c *Config) SetupLogging(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	var h slog.Handler
	if strings.EqualFold(c.LogFormat, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
