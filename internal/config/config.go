package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig
	TigerBeetle TigerBeetleConfig
	Redis       RedisConfig
	Server      ServerConfig
	Engine      EngineConfig
	Clock       ClockConfig
	Traffic     TrafficConfig
	Payments    PaymentsConfig
}

// DatabaseConfig holds PostgreSQL configuration. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

// TigerBeetleConfig holds TigerBeetle configuration. No addresses disables the journal.
type TigerBeetleConfig struct {
	ClusterID uint64
	Addresses []string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int
	Env  string
}

// TickPolicy selects how many eligible payments one engine tick executes.
type TickPolicy string

const (
	TickPolicyOne TickPolicy = "one"
	TickPolicyAll TickPolicy = "all"
)

// EngineConfig holds settlement engine configuration.
type EngineConfig struct {
	TickInterval time.Duration
	TickPolicy   TickPolicy
	LeaseTTL     time.Duration
}

// ClockConfig holds simulated clock configuration.
type ClockConfig struct {
	Epoch                 time.Time
	BaseTick              int64
	ClearingUTCOffsetHour int
}

// TrafficConfig controls the synthetic payment generator.
type TrafficConfig struct {
	Enabled  bool
	Interval time.Duration
}

// PaymentsConfig holds payment API limits.
type PaymentsConfig struct {
	RateLimitPerMinute int
	IdempotencyTTL     time.Duration
}

// DefaultEpoch is the simulated time the clock starts from and resets to.
var DefaultEpoch = time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database
	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.MaxConns = int32(getEnvInt("DATABASE_MAX_CONNS", 10))

	// TigerBeetle
	cfg.TigerBeetle.ClusterID = uint64(getEnvInt("TB_CLUSTER_ID", 0))
	cfg.TigerBeetle.Addresses = parseAddresses(getEnv("TB_ADDRESSES", ""))

	// Redis
	cfg.Redis.URL = getEnv("REDIS_URL", "")

	// Server
	cfg.Server.Port = getEnvInt("API_PORT", 8080)
	cfg.Server.Env = getEnv("ENV", "development")

	// Engine
	cfg.Engine.TickInterval = getEnvDuration("ENGINE_TICK_INTERVAL", time.Second)
	cfg.Engine.TickPolicy = TickPolicy(strings.ToLower(getEnv("ENGINE_TICK_POLICY", string(TickPolicyOne))))
	cfg.Engine.LeaseTTL = getEnvDuration("ENGINE_LEASE_TTL", 5*time.Second)

	// Clock
	epoch := DefaultEpoch
	if raw := getEnv("SIM_EPOCH", ""); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse SIM_EPOCH: %w", err)
		}
		epoch = parsed.UTC()
	}
	cfg.Clock.Epoch = epoch
	cfg.Clock.BaseTick = int64(getEnvInt("CLOCK_BASE_TICK", 1))
	cfg.Clock.ClearingUTCOffsetHour = getEnvInt("CLEARING_UTC_OFFSET_HOURS", 1)

	// Traffic
	cfg.Traffic.Enabled = getEnvBool("AUTO_TRAFFIC", false)
	cfg.Traffic.Interval = getEnvDuration("AUTO_TRAFFIC_INTERVAL", 5*time.Second)

	// Payments
	cfg.Payments.RateLimitPerMinute = getEnvInt("PAYMENT_RATE_LIMIT_PER_MINUTE", 0)
	cfg.Payments.IdempotencyTTL = getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Engine.TickPolicy {
	case TickPolicyOne, TickPolicyAll:
	default:
		return fmt.Errorf("ENGINE_TICK_POLICY must be %q or %q, got %q", TickPolicyOne, TickPolicyAll, c.Engine.TickPolicy)
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("ENGINE_TICK_INTERVAL must be positive")
	}
	if c.Clock.BaseTick < 1 {
		return fmt.Errorf("CLOCK_BASE_TICK must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// ClearingLocation is the fixed zone clearing hours are evaluated in.
func (c ClockConfig) ClearingLocation() *time.Location {
	offset := c.ClearingUTCOffsetHour
	return time.FixedZone(fmt.Sprintf("UTC%+d", offset), offset*3600)
}

// parseAddresses parses comma-separated TigerBeetle addresses.
// Accepts either port numbers (3000,3001,3002) or full addresses (127.0.0.1:3000).
func parseAddresses(s string) []string {
	parts := strings.Split(s, ",")
	addresses := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, ":") {
			p = fmt.Sprintf("127.0.0.1:%s", p)
		}
		addresses = append(addresses, p)
	}
	return addresses
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
