package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL; empty keeps all state in memory" flag:"database-url"`
	Redis       RedisConfig
	Kafka       KafkaConfig
	Payment     PaymentConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// RedisConfig enables notification delivery dedupe.
type RedisConfig struct {
	Addr      string        `usage:"Redis host:port or redis:// URL; empty disables delivery dedupe"`
	DedupeTTL time.Duration `default:"24h" usage:"How long a delivery id is remembered" flag:"redis-dedupe-ttl"`
}

// KafkaConfig enables the notification topic.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers; empty disables the notification topic"`
	Topic   string   `default:"payment-notifications" usage:"Notification topic"`
	GroupID string   `default:"kart-fulfillment" usage:"Consumer group" flag:"kafka-group-id"`
}

// PaymentConfig controls the settlement simulator and failure handling.
type PaymentConfig struct {
	Simulate              bool          `default:"true" usage:"Settle intents with the built-in simulator"`
	Delay                 time.Duration `default:"2s" usage:"Delay before a simulated settlement"`
	FailureProbability    float64       `default:"0.1" usage:"Chance in [0,1] that a simulated settlement fails" flag:"payment-failure-probability"`
	Workers               int           `default:"4" usage:"Simulated settlement workers"`
	ReleaseStockOnFailure bool          `default:"false" usage:"Return reserved stock when a payment fails" flag:"payment-release-stock"`
}

// RateLimitConfig controls the per-client limiter on mutating requests.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max mutating requests per window; 0 disables the limiter"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Payment.FailureProbability < 0 || c.Payment.FailureProbability > 1:
		return errors.Errorf("payment failure probability %v is outside [0,1]", c.Payment.FailureProbability)
	case c.Payment.Workers < 1:
		return errors.Errorf("payment workers must be at least 1, got %d", c.Payment.Workers)
	case c.Payment.Delay < 0:
		return errors.Errorf("payment delay must not be negative, got %s", c.Payment.Delay)
	case c.RateLimit.Max < 0:
		return errors.Errorf("rate limit max must not be negative, got %d", c.RateLimit.Max)
	case c.RateLimit.Max > 0 && c.RateLimit.Window <= 0:
		return errors.New("rate limit window must be positive")
	case len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "":
		return errors.New("kafka topic is required when brokers are set")
	case len(c.Kafka.Brokers) > 0 && c.Kafka.GroupID == "":
		return errors.New("kafka group id is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's KART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
