package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const dateLayout = "2006-01-02"

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	SQLite    SQLiteConfig
	Diary     DiaryConfig
	Session   SessionConfig
	Stream    StreamConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// StoreConfig selects the backing store: couch, sqlite or memory.
type StoreConfig struct {
	Driver string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", d.User, d.Password, d.Host, d.Port)
}

type SQLiteConfig struct {
	Path string
}

// DiaryConfig holds the write secret and the day-index origin.
// An empty WritePass disables every write.
type DiaryConfig struct {
	WritePass string
	StartDate time.Time
	Location  *time.Location
}

// SessionConfig covers the UI unlock passphrase, which is independent
// of the diary write passphrase even when both carry the same value.
type SessionConfig struct {
	UnlockPass string
	Secret     string
	Expiration time.Duration
}

type StreamConfig struct {
	Interval time.Duration
}

// RateLimitConfig keys buckets on the socket address unless TrustProxy is
// set, in which case X-Forwarded-For and X-Real-IP are believed. Only
// enable it behind a proxy that overwrites those headers.
type RateLimitConfig struct {
	RequestsPerMinute int
	Enabled           bool
	TrustProxy        bool
	IdleTTL           time.Duration
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	godotenv.Load()

	sessionExp, err := getEnvAsDuration("SESSION_EXPIRATION", 720*time.Hour)
	if err != nil {
		return nil, err
	}

	interval, err := getEnvAsDuration("STREAM_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid STREAM_INTERVAL: must be positive, got %s", interval)
	}

	idleTTL, err := getEnvAsDuration("RATE_LIMIT_IDLE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(getEnv("DIARY_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("invalid DIARY_TIMEZONE: %w", err)
	}

	start, err := time.ParseInLocation(dateLayout, getEnv("DIARY_START_DATE", "2025-06-21"), loc)
	if err != nil {
		return nil, fmt.Errorf("invalid DIARY_START_DATE: %w", err)
	}

	driver := getEnv("STORE_DRIVER", "couch")
	if err := ValidateDriver(driver); err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		Store: StoreConfig{
			Driver: driver,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5984"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			Name:     getEnv("DB_NAME", "diary"),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "diary.db"),
		},
		Diary: DiaryConfig{
			WritePass: os.Getenv("DIARY_PASS"),
			StartDate: start,
			Location:  loc,
		},
		Session: SessionConfig{
			UnlockPass: os.Getenv("UNLOCK_PASS"),
			Secret:     os.Getenv("SESSION_SECRET"),
			Expiration: sessionExp,
		},
		Stream: StreamConfig{
			Interval: interval,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			TrustProxy:        getEnvAsBool("RATE_LIMIT_TRUST_PROXY", false),
			IdleTTL:           idleTTL,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,x-pass"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func ValidateDriver(driver string) error {
	switch driver {
	case "couch", "sqlite", "memory":
		return nil
	}
	return fmt.Errorf("invalid STORE_DRIVER %q: want couch, sqlite or memory", driver)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
