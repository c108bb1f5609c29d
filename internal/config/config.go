package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"foodcart"`
	Env         string `envconfig:"ENV" default:"dev"`
	LogFile     string `envconfig:"LOG_FILE" default:""`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://localhost:8000/api"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`

	StripeSecretKey string `envconfig:"STRIPE_SECRET_KEY" default:""`

	CartStore      string `envconfig:"CART_STORE" default:"memory"`
	CartStorageKey string `envconfig:"CART_STORAGE_KEY" default:"cart"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"checkout-events"`

	PaymentPollInterval time.Duration `envconfig:"PAYMENT_POLL_INTERVAL" default:"2s"`
	PaymentPollMaxWait  time.Duration `envconfig:"PAYMENT_POLL_MAX_WAIT" default:"2m"`
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.CartStore = strings.ToLower(strings.TrimSpace(c.CartStore))
	switch c.CartStore {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required when CART_STORE=postgres")
		}
	default:
		return fmt.Errorf("config: unknown CART_STORE %q", c.CartStore)
	}
	if c.BackendURL == "" {
		return errors.New("config: BACKEND_URL is required")
	}
	if c.PaymentPollInterval <= 0 || c.PaymentPollMaxWait < c.PaymentPollInterval {
		return errors.New("config: PAYMENT_POLL_MAX_WAIT must be at least PAYMENT_POLL_INTERVAL")
	}

	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
	return nil
}

// KafkaEnabled reports whether checkout events are relayed to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
