// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Redis, Kafka, Analytics, Events, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the brokers and topics for the integration event bus.
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IntegrationEvents string `yaml:"integrationEvents"`
}

// AnalyticsConfig holds the analytics collector endpoint and identity.
type AnalyticsConfig struct {
	CollectorURL string        `yaml:"collectorUrl"`
	AppID        string        `yaml:"appId"`
	Timeout      time.Duration `yaml:"timeout"`
}

// EventsConfig controls the domain event engine: envelope stamping and
// per-sink subscriptions. Kind names and detail types are plain strings here;
// they are parsed and validated against the event taxonomy at startup.
type EventsConfig struct {
	Source         string            `yaml:"source"`
	SchemaVersion  string            `yaml:"schemaVersion"`
	AnalyticsKinds []string          `yaml:"analyticsKinds"`
	Integration    IntegrationConfig `yaml:"integration"`
}

// IntegrationConfig holds the integration bus sink settings: the fixed source
// tag stamped on every outbound message and the event-kind to message
// detail-type mapping that decides which kinds the sink handles.
type IntegrationConfig struct {
	Source      string            `yaml:"source"`
	DetailTypes map[string]string `yaml:"detailTypes"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  25 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "corpuscuration",
			User:            "corpuscuration",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IntegrationEvents: "curation-integration-events",
			},
		},
		Analytics: AnalyticsConfig{
			CollectorURL: "http://localhost:9191/com.corpuscuration/track",
			AppID:        "corpus-curation-api",
			Timeout:      5 * time.Second,
		},
		Events: EventsConfig{
			Source:        "corpus-curation-api",
			SchemaVersion: "1.0.2",
			AnalyticsKinds: []string{
				"ITEM_ADDED",
				"ITEM_UPDATED",
				"ITEM_REMOVED",
				"ITEM_REJECTED",
				"SCHEDULE_ADDED",
				"SCHEDULE_REMOVED",
				"SCHEDULE_RESCHEDULED",
			},
			Integration: IntegrationConfig{
				Source: "corpus-curation",
				DetailTypes: map[string]string{
					"SCHEDULE_ADDED":       "add-scheduled-item",
					"SCHEDULE_REMOVED":     "remove-scheduled-item",
					"SCHEDULE_RESCHEDULED": "update-scheduled-item",
					"ITEM_UPDATED":         "update-approved-item",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads CP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("CP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CP_KAFKA_INTEGRATION_TOPIC"); v != "" {
		cfg.Kafka.Topics.IntegrationEvents = v
	}
	if v := os.Getenv("CP_ANALYTICS_COLLECTOR_URL"); v != "" {
		cfg.Analytics.CollectorURL = v
	}
	if v := os.Getenv("CP_ANALYTICS_APP_ID"); v != "" {
		cfg.Analytics.AppID = v
	}
	if v := os.Getenv("CP_EVENTS_SOURCE"); v != "" {
		cfg.Events.Source = v
	}
	if v := os.Getenv("CP_EVENTS_SCHEMA_VERSION"); v != "" {
		cfg.Events.SchemaVersion = v
	}
	if v := os.Getenv("CP_EVENTS_INTEGRATION_SOURCE"); v != "" {
		cfg.Events.Integration.Source = v
	}
	if v := os.Getenv("CP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
