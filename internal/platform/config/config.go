package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Values come from environment
// variables so main stays lean; defaults suit local development only.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string

	// ProvisioningToken gates the one-time administrative role promotion.
	// Empty disables provisioning entirely.
	ProvisioningToken string

	Redis RedisConfig
	Kafka KafkaConfig
}

// RedisConfig configures the notification sink queue. An empty URL disables
// notifications (they become no-ops, never failures).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit outbox relay. Empty brokers disable the
// relay; outbox rows then accumulate until a relay is attached.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("LANDREGISTRY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	topic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if topic == "" {
		topic = "landregistry.audit"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:              addr,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSigningKey:     jwtSigningKey,
		ProvisioningToken: os.Getenv("PROVISIONING_TOKEN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    brokers,
			AuditTopic: topic,
		},
	}
}
