// Package config loads service settings from the environment, an optional
// .env file and an optional config.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const ServiceName = "chat-core"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Server  Server
	Store   Store
	Auth    Auth
	Events  Events
	Logger  Logger
	Tracing Tracing
}

type Server struct {
	Port           string
	GRPCPort       string
	Environment    string
	RequestTimeout time.Duration
	DebugRoutes    bool
}

type Store struct {
	Driver        string
	DSN           string
	ReadBatchSize int
}

type Auth struct {
	JWTSecret       string
	PrivilegedRoles []string
}

type Events struct {
	AMQPURL           string
	AMQPExchange      string
	AuditRoutingKey   string
	NATSURL           string
	NATSSubjectPrefix string
	QueueSize         int
	Workers           int
	PublishTimeout    time.Duration
}

type Logger struct {
	Level  string
	Format string
}

type Tracing struct {
	OTLPEndpoint string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8083")
	v.SetDefault("grpc_port", "9083")
	v.SetDefault("environment", "development")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("debug_routes", false)
	v.SetDefault("store_driver", StoreDriverPostgres)
	v.SetDefault("db_dsn", "")
	v.SetDefault("read_batch_size", 500)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("privileged_roles", "CEO,ADMIN")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "chat.events")
	v.SetDefault("audit_routing_key", "audit_events")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject_prefix", "chat.")
	v.SetDefault("event_queue_size", 1024)
	v.SetDefault("event_workers", 4)
	v.SetDefault("event_publish_timeout", "5s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("otel_exporter_otlp_endpoint", "")
}

// Load reads .env (if present), then config.yaml from . or ./config (if
// present), with environment variables taking precedence over both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Parse(v)
}

// Parse builds a Config from v, binding every key to its upper-case
// environment variable.
func Parse(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	c := &Config{
		Server: Server{
			Port:           v.GetString("port"),
			GRPCPort:       v.GetString("grpc_port"),
			Environment:    v.GetString("environment"),
			RequestTimeout: v.GetDuration("request_timeout"),
			DebugRoutes:    v.GetBool("debug_routes"),
		},
		Store: Store{
			Driver:        strings.ToLower(v.GetString("store_driver")),
			DSN:           v.GetString("db_dsn"),
			ReadBatchSize: v.GetInt("read_batch_size"),
		},
		Auth: Auth{
			JWTSecret:       v.GetString("jwt_secret"),
			PrivilegedRoles: splitList(v.GetString("privileged_roles")),
		},
		Events: Events{
			AMQPURL:           v.GetString("amqp_url"),
			AMQPExchange:      v.GetString("amqp_exchange"),
			AuditRoutingKey:   v.GetString("audit_routing_key"),
			NATSURL:           v.GetString("nats_url"),
			NATSSubjectPrefix: v.GetString("nats_subject_prefix"),
			QueueSize:         v.GetInt("event_queue_size"),
			Workers:           v.GetInt("event_workers"),
			PublishTimeout:    v.GetDuration("event_publish_timeout"),
		},
		Logger: Logger{
			Level:  strings.ToLower(v.GetString("log_level")),
			Format: strings.ToLower(v.GetString("log_format")),
		},
		Tracing: Tracing{
			OTLPEndpoint: v.GetString("otel_exporter_otlp_endpoint"),
		},
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("config: DB_DSN is required for the postgres store")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	if c.Logger.Format != "json" && c.Logger.Format != "text" {
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.Logger.Format)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
