package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted for the durable store and the client cache.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"

	CacheFile  = "file"
	CacheRedis = "redis"
)

// Config captures file and environment driven configuration for apptstore.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Backend   string          `yaml:"backend"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Cache     CacheConfig     `yaml:"cache"`
	Timezone  string          `yaml:"timezone"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

// CacheConfig selects the client side cache used by CLI commands.
type CacheConfig struct {
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// KafkaConfig enables change notifications when Brokers is non-empty.
type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// TelemetryConfig enables OTLP trace export when Endpoint is non-empty.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendSQLite,
		SQLite:  SQLiteConfig{DSN: "file:appointments.db"},
		Cache: CacheConfig{
			Backend: CacheFile,
			Path:    "data/appointments.json",
			Redis:   RedisConfig{Key: "appointments"},
		},
		Timezone:  "Local",
		Kafka:     KafkaConfig{Topic: "appointments.events"},
		Telemetry: TelemetryConfig{SampleRatio: 1},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty) and APPTSTORE_* environment variables, in that order.
//
// Missing required values and invalid values are each collected and reported
// together with localized messages.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("設定ファイルが見つかりません: %s", path)
			}
			return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("設定ファイルの形式が不正です: %w", err)
		}
	}

	invalid := make([]string, 0, 2)
	applyEnv(&cfg, &invalid)

	missing := make([]string, 0, 1)
	cfg.validate(&missing, &invalid)

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の設定値が指定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("設定値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyEnv(cfg *Config, invalid *[]string) {
	if portValue := env("APPTSTORE_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			*invalid = append(*invalid, "APPTSTORE_HTTP_PORT")
		} else {
			cfg.HTTP.Port = port
		}
	}
	if origins := env("APPTSTORE_CORS_ORIGINS"); origins != "" {
		cfg.HTTP.CORSOrigins = splitList(origins)
	}
	if timeoutValue := env("APPTSTORE_SHUTDOWN_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			*invalid = append(*invalid, "APPTSTORE_SHUTDOWN_TIMEOUT")
		} else {
			cfg.HTTP.ShutdownTimeout = timeout
		}
	}

	if backend := env("APPTSTORE_BACKEND"); backend != "" {
		cfg.Backend = strings.ToLower(backend)
	}
	if dsn := env("APPTSTORE_SQLITE_DSN"); dsn != "" {
		cfg.SQLite.DSN = dsn
	}
	if url := env("APPTSTORE_POSTGRES_URL"); url != "" {
		cfg.Postgres.URL = url
	}

	if backend := env("APPTSTORE_CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = strings.ToLower(backend)
	}
	if path := env("APPTSTORE_CACHE_PATH"); path != "" {
		cfg.Cache.Path = path
	}
	if addr := env("APPTSTORE_REDIS_ADDR"); addr != "" {
		cfg.Cache.Redis.Addr = addr
	}
	if password, ok := os.LookupEnv("APPTSTORE_REDIS_PASSWORD"); ok {
		cfg.Cache.Redis.Password = password
	}
	if dbValue := env("APPTSTORE_REDIS_DB"); dbValue != "" {
		db, err := strconv.Atoi(dbValue)
		if err != nil || db < 0 {
			*invalid = append(*invalid, "APPTSTORE_REDIS_DB")
		} else {
			cfg.Cache.Redis.DB = db
		}
	}
	if key := env("APPTSTORE_REDIS_KEY"); key != "" {
		cfg.Cache.Redis.Key = key
	}

	if tz := env("APPTSTORE_TIMEZONE"); tz != "" {
		cfg.Timezone = tz
	}
	if brokers := env("APPTSTORE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = brokers
	}
	if topic := env("APPTSTORE_KAFKA_TOPIC"); topic != "" {
		cfg.Kafka.Topic = topic
	}
	if endpoint := env("APPTSTORE_OTEL_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}
	if ratioValue := env("APPTSTORE_OTEL_SAMPLE_RATIO"); ratioValue != "" {
		ratio, err := strconv.ParseFloat(ratioValue, 64)
		if err != nil {
			*invalid = append(*invalid, "APPTSTORE_OTEL_SAMPLE_RATIO")
		} else {
			cfg.Telemetry.SampleRatio = ratio
		}
	}
	if level := env("APPTSTORE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := env("APPTSTORE_LOG_FORMAT"); format != "" {
		cfg.Log.Format = strings.ToLower(format)
	}
}

func (c Config) validate(missing, invalid *[]string) {
	switch c.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.SQLite.DSN) == "" {
			*missing = append(*missing, "APPTSTORE_SQLITE_DSN")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Postgres.URL) == "" {
			*missing = append(*missing, "APPTSTORE_POSTGRES_URL")
		}
	case BackendMemory:
	default:
		*invalid = append(*invalid, "APPTSTORE_BACKEND")
	}

	switch c.Cache.Backend {
	case CacheFile:
		if strings.TrimSpace(c.Cache.Path) == "" {
			*missing = append(*missing, "APPTSTORE_CACHE_PATH")
		}
	case CacheRedis:
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			*missing = append(*missing, "APPTSTORE_REDIS_ADDR")
		}
	default:
		*invalid = append(*invalid, "APPTSTORE_CACHE_BACKEND")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		appendOnce(invalid, "APPTSTORE_HTTP_PORT")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		appendOnce(invalid, "APPTSTORE_SHUTDOWN_TIMEOUT")
	}
	if _, err := c.Location(); err != nil {
		*invalid = append(*invalid, "APPTSTORE_TIMEZONE")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		appendOnce(invalid, "APPTSTORE_OTEL_SAMPLE_RATIO")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		*invalid = append(*invalid, "APPTSTORE_LOG_FORMAT")
	}
}

// Location resolves Timezone. "Local" and the empty string mean time.Local.
func (c Config) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Timezone) {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Timezone)
	}
}

// HTTPAddr returns the listen address for the HTTP server.
func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func appendOnce(list *[]string, value string) {
	for _, existing := range *list {
		if existing == value {
			return
		}
	}
	*list = append(*list, value)
}
