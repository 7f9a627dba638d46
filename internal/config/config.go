package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort       string `env:"HTTP_PORT,default=8080"`
	HealthGRPCPort string `env:"HEALTH_GRPC_PORT,default=50051"`

	MongoURI      string `env:"MONGO_URI,default=mongodb://localhost:27017"`
	MongoDBName   string `env:"MONGO_DB_NAME,default=storefront"`
	RunMigrations bool   `env:"RUN_MIGRATIONS,default=true"`

	MongoConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT,default=10s"`
	MongoMaxPoolSize    uint64        `env:"MONGO_MAX_POOL_SIZE,default=100"`
	MongoMinPoolSize    uint64        `env:"MONGO_MIN_POOL_SIZE,default=10"`

	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	KafkaBrokers string `env:"KAFKA_BROKERS,default=localhost:9092"`

	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`

	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	MaxRequestBodySize int64         `env:"MAX_REQUEST_BODY_SIZE,default=1048576"` // 1MB

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=40"`
	// Per client IP, applied before token verification.
	IPRateLimitRPS   float64 `env:"IP_RATE_LIMIT_RPS,default=50"`
	IPRateLimitBurst int     `env:"IP_RATE_LIMIT_BURST,default=100"`
}

// Load reads the environment, after merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if len(c.Brokers()) == 0 {
		return errors.New("KAFKA_BROKERS must list at least one broker")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive, got rps=%v burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.IPRateLimitRPS <= 0 || c.IPRateLimitBurst <= 0 {
		return fmt.Errorf("IP rate limit must be positive, got rps=%v burst=%d", c.IPRateLimitRPS, c.IPRateLimitBurst)
	}
	return nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
