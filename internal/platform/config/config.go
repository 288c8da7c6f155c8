package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every process-level setting. Built once in main from
// environment variables so the rest of the code never touches os.Getenv.
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Exchange ExchangeConfig
	Inbox    InboxConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr          string
	Domain        string
	JWTSigningKey string
}

// RedisConfig configures the exchange store backend. An empty URL means
// Redis is not configured and the in-memory store is used instead (dev only;
// a multi-instance deployment requires Redis for linearizable consumption).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the inbox credential store. Empty DSN selects
// the in-memory store.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig configures the lifecycle event publisher. Empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ExchangeConfig bounds the ephemeral exchange state.
type ExchangeConfig struct {
	SessionTTL       time.Duration
	ClaimLinkTTL     time.Duration
	ClaimLinkMaxUses int
	ChallengeRetries int
}

// InboxConfig controls universal inbox delivery.
type InboxConfig struct {
	ClaimBaseURL    string
	ExpiresInDays   int
	DeliveryTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: ServerConfig{
			Addr:          getEnv("BOOSTNET_ADDR", ":8080"),
			Domain:        getEnv("BOOSTNET_DOMAIN", "localhost:8080"),
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_EVENTS_TOPIC", "boostnet.lifecycle"),
		},
		Exchange: ExchangeConfig{
			SessionTTL:       getEnvDuration("EXCHANGE_SESSION_TTL", 5*time.Minute),
			ClaimLinkTTL:     getEnvDuration("CLAIM_LINK_TTL", 24*time.Hour),
			ClaimLinkMaxUses: getEnvInt("CLAIM_LINK_MAX_USES", 1),
			ChallengeRetries: getEnvInt("CHALLENGE_COLLISION_RETRIES", 3),
		},
		Inbox: InboxConfig{
			ClaimBaseURL:    getEnv("INBOX_CLAIM_BASE_URL", "https://localhost:8080/inbox/claim"),
			ExpiresInDays:   getEnvInt("INBOX_EXPIRES_IN_DAYS", 30),
			DeliveryTimeout: getEnvDuration("INBOX_DELIVERY_TIMEOUT", 10*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
