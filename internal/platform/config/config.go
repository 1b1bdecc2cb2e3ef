package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration sourced from the environment.
// Credential and ticket lifetimes are product constants owned by their
// modules, not tunables, so they do not appear here.
type Server struct {
	Addr                 string
	BaseURL              string
	PostgresDSN          string
	RedisURL             string
	KafkaBrokers         []string
	HistoryTopic         string
	CredentialSigningKey string
	URLSigningKey        string
	AuthSigningKey       string
	SweepInterval        time.Duration
	TxTimeout            time.Duration
}

// RedisConfig tunes the go-redis client used by the blob store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                 envOr("ROLLCALL_ADDR", ":8080"),
		BaseURL:              envOr("ROLLCALL_BASE_URL", "http://localhost:8080"),
		PostgresDSN:          os.Getenv("ROLLCALL_POSTGRES_DSN"),
		RedisURL:             os.Getenv("ROLLCALL_REDIS_URL"),
		HistoryTopic:         envOr("ROLLCALL_HISTORY_TOPIC", "rollcall.usage-history"),
		CredentialSigningKey: os.Getenv("ROLLCALL_CREDENTIAL_KEY"),
		URLSigningKey:        os.Getenv("ROLLCALL_URL_KEY"),
		AuthSigningKey:       os.Getenv("ROLLCALL_AUTH_KEY"),
		SweepInterval:        envDuration("ROLLCALL_SWEEP_INTERVAL", 0),
		TxTimeout:            envDuration("ROLLCALL_TX_TIMEOUT", 5*time.Second),
	}
	if brokers := os.Getenv("ROLLCALL_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if cfg.CredentialSigningKey == "" {
		// Development default - must be overridden in production.
		cfg.CredentialSigningKey = "dev-credential-key-change-in-production"
	}
	if cfg.URLSigningKey == "" {
		cfg.URLSigningKey = cfg.CredentialSigningKey
	}
	if cfg.AuthSigningKey == "" {
		cfg.AuthSigningKey = cfg.CredentialSigningKey
	}
	return cfg
}

// Redis builds the redis client configuration from the environment.
func (s Server) Redis() RedisConfig {
	return RedisConfig{
		URL:          s.RedisURL,
		PoolSize:     envInt("ROLLCALL_REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("ROLLCALL_REDIS_MIN_IDLE", 2),
		DialTimeout:  envDuration("ROLLCALL_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("ROLLCALL_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("ROLLCALL_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
