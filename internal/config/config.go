package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// devSigningKey is used only when ENV=development and no key is configured.
const devSigningKey = "medconnect-development-signing-key"

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSigningKey      string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	JWTTTL             time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS       float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `mapstructure:"RATE_LIMIT_BURST"`
	KafkaBrokers       []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string        `mapstructure:"KAFKA_TOPIC"`
	MatchRadiusKm      float64       `mapstructure:"MATCH_RADIUS_KM"`
	MatchVerifiedOnly  bool          `mapstructure:"MATCH_VERIFIED_ONLY"`
	DiscountWindowDays int           `mapstructure:"DISCOUNT_WINDOW_DAYS"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "JWT_TTL", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"MATCH_RADIUS_KM", "MATCH_VERIFIED_ONLY", "DISCOUNT_WINDOW_DAYS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ISSUER", "medconnect")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("KAFKA_TOPIC", "medconnect.notifications")
	v.SetDefault("MATCH_RADIUS_KM", 10)
	v.SetDefault("MATCH_VERIFIED_ONLY", false)
	v.SetDefault("DISCOUNT_WINDOW_DAYS", 90)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"), cfg.CORSOrigins)
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"), cfg.KafkaBrokers)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSigningKey == "" && cfg.IsDev() {
		cfg.JWTSigningKey = devSigningKey
	}

	return cfg, nil
}

// splitList turns a comma separated env value into a trimmed list, keeping
// parsed when the raw value is empty.
func splitList(raw string, parsed []string) []string {
	if raw == "" {
		return parsed
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsingDevSigningKey reports whether tokens are signed with the built-in
// development key.
func (c *Config) UsingDevSigningKey() bool {
	return c.JWTSigningKey == devSigningKey
}

// KafkaEnabled reports whether notifications are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if !c.IsDev() && c.UsingDevSigningKey() {
		return fmt.Errorf("JWT_SIGNING_KEY must not be the development key when ENV=%q", c.Env)
	}
	if c.IsProduction() && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 characters in production")
	}
	if c.IsProduction() {
		for _, o := range c.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must not be \"*\" in production")
			}
		}
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.MatchRadiusKm <= 0 {
		return fmt.Errorf("MATCH_RADIUS_KM must be positive, got %v", c.MatchRadiusKm)
	}
	if c.DiscountWindowDays <= 0 {
		return fmt.Errorf("DISCOUNT_WINDOW_DAYS must be positive, got %d", c.DiscountWindowDays)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.KafkaEnabled() && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
