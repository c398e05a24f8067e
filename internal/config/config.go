package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"jma-forecast/pkg/database"
)

// Config holds all settings, populated from environment variables
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	JMA      JMAConfig
	Catalog  CatalogConfig
	Cache    CacheConfig
	Kafka    KafkaConfig
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects and tunes the cache database
type DatabaseConfig struct {
	Driver          string
	Path            string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	Level  string
	Format string
}

// JMAConfig points at the JMA bosai API
type JMAConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CatalogConfig locates the area.json hierarchy document
type CatalogConfig struct {
	AreaFile    string
	ForceReload bool
}

// CacheConfig tunes freshness and completion delivery
type CacheConfig struct {
	FreshnessEnabled bool
	TimeZone         string
	DispatchBuffer   int
	FetchWait        time.Duration
}

// KafkaConfig configures the forecast update publisher; no brokers means
// publishing is off
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether forecast updates are published
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// LoadConfig reads an optional .env file (or the given files) and then the
// environment, applying defaults where unset. Variables already set in the
// environment win over file values.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var p parser

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            p.intVar("SERVER_PORT", 8080),
			ReadTimeout:     p.durationVar("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    p.durationVar("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     p.durationVar("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: p.durationVar("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", database.DriverSQLite),
			Path:            getEnv("DB_PATH", "weather.db"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            p.intVar("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "jma_forecast"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    p.intVar("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    p.intVar("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.durationVar("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: p.durationVar("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		JMA: JMAConfig{
			BaseURL: strings.TrimRight(getEnv("JMA_BASE_URL", "https://www.jma.go.jp/bosai"), "/"),
			Timeout: p.durationVar("JMA_TIMEOUT", 10*time.Second),
		},
		Catalog: CatalogConfig{
			AreaFile:    getEnv("AREA_FILE", "area.json"),
			ForceReload: p.boolVar("CATALOG_FORCE_RELOAD", false),
		},
		Cache: CacheConfig{
			FreshnessEnabled: p.boolVar("CACHE_FRESHNESS_ENABLED", true),
			TimeZone:         getEnv("CACHE_TIMEZONE", "Asia/Tokyo"),
			DispatchBuffer:   p.intVar("DISPATCH_BUFFER", 64),
			FetchWait:        p.durationVar("FORECAST_FETCH_WAIT", 5*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "jma-forecast-updates"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Validate rejects settings the binaries cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case database.DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DB_PATH is required for sqlite3")
		}
	case database.DriverPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			return errors.New("DB_HOST and DB_NAME are required for postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q", c.Logging.Format)
	}

	if c.JMA.BaseURL == "" {
		return errors.New("JMA_BASE_URL is required")
	}
	if c.JMA.Timeout <= 0 {
		return errors.New("JMA_TIMEOUT must be positive")
	}
	if c.Cache.DispatchBuffer <= 0 {
		return errors.New("DISPATCH_BUFFER must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}

	return nil
}

// Location resolves the freshness time zone. Asia/Tokyo falls back to a
// fixed +09:00 zone when tzdata is unavailable.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Cache.TimeZone)
	if err == nil {
		return loc, nil
	}
	if c.Cache.TimeZone == "Asia/Tokyo" {
		return time.FixedZone("JST", 9*60*60), nil
	}
	return nil, fmt.Errorf("invalid CACHE_TIMEZONE %q: %w", c.Cache.TimeZone, err)
}

// DatabaseOptions converts the section into the database package config
func (c *Config) DatabaseOptions() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Path:            c.Database.Path,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so LoadConfig reports it once
type parser struct {
	err error
}

func (p *parser) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (p *parser) boolVar(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return b
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
