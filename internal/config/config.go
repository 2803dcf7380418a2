// Package config loads process settings from app.env, .env and the
// environment, and the engine tuning profile from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"routeeta/internal/engine"
)

// Config stores all configuration of the service.
// The values are read by viper from app.env or environment variables.
type Config struct {
	Environment        string        `mapstructure:"ENVIRONMENT"`
	HTTPAddr           string        `mapstructure:"HTTP_ADDR"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMigrate          bool          `mapstructure:"DB_MIGRATE"`
	MigrationsDir      string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	AuthMode           string        `mapstructure:"AUTH_MODE"`
	AuthHMACSecret     string        `mapstructure:"AUTH_HMAC_SECRET"`
	AuthJWKSURL        string        `mapstructure:"AUTH_JWKS_URL"`
	AuthTenantClaim    string        `mapstructure:"AUTH_TENANT_CLAIM"`
	AuthRoleClaim      string        `mapstructure:"AUTH_ROLE_CLAIM"`
	AuthDriverClaim    string        `mapstructure:"AUTH_DRIVER_CLAIM"`
	RateRPS            float64       `mapstructure:"RATE_RPS"`
	RateBurst          int           `mapstructure:"RATE_BURST"`
	TrustedProxies     string        `mapstructure:"TRUSTED_PROXIES"`
	WebhookMaxAttempts int           `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
	EngineProfile      string        `mapstructure:"ENGINE_PROFILE"`
	OpenAPIPath        string        `mapstructure:"OPENAPI_PATH"`
	ShutdownTimeout    time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"ENVIRONMENT":          "production",
	"HTTP_ADDR":            ":8080",
	"LOG_LEVEL":            "info",
	"DATABASE_URL":         "",
	"DB_MIGRATE":           false,
	"MIGRATIONS_DIR":       "db/migrations",
	"REDIS_URL":            "",
	"AUTH_MODE":            "dev",
	"AUTH_HMAC_SECRET":     "",
	"AUTH_JWKS_URL":        "",
	"AUTH_TENANT_CLAIM":    "tenant",
	"AUTH_ROLE_CLAIM":      "role",
	"AUTH_DRIVER_CLAIM":    "driver_id",
	"RATE_RPS":             20.0,
	"RATE_BURST":           40,
	"TRUSTED_PROXIES":      "",
	"WEBHOOK_MAX_ATTEMPTS": 8,
	"ENGINE_PROFILE":       "",
	"OPENAPI_PATH":         "openapi/openapi.yaml",
	"SHUTDOWN_TIMEOUT":     "15s",
}

// LoadConfig reads configuration from path/app.env (optional), a .env file in
// the working directory (optional) and the environment, in increasing priority.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read app.env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.AuthHMACSecret = trimOptionalQuotes(cfg.AuthHMACSecret)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.AuthMode {
	case "dev":
	case "hmac":
		if c.AuthHMACSecret == "" {
			return errors.New("AUTH_HMAC_SECRET is required when AUTH_MODE=hmac")
		}
	case "jwks":
		if c.AuthJWKSURL == "" {
			return errors.New("AUTH_JWKS_URL is required when AUTH_MODE=jwks")
		}
	default:
		return fmt.Errorf("AUTH_MODE %q must be one of dev, hmac, jwks", c.AuthMode)
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return errors.New("RATE_RPS and RATE_BURST must be >= 0")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	if c.WebhookMaxAttempts < 1 {
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be >= 1, got %d", c.WebhookMaxAttempts)
	}
	return nil
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES, a comma separated list of
// CIDRs or single addresses.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, f := range strings.Split(c.TrustedProxies, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if strings.Contains(f, "/") {
			p, err := netip.ParsePrefix(f)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(f)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// Development reports whether human-readable console logs are wanted.
func (c Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

func trimOptionalQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, `'`)
	return s
}

// LoadEngineProfile decodes a YAML engine profile over engine.DefaultOptions.
// An empty path returns the defaults.
func LoadEngineProfile(path string) (engine.Options, error) {
	opts := engine.DefaultOptions()
	if path == "" {
		return opts, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read engine profile: %w", err)
	}
	return ParseEngineProfile(b)
}

// ParseEngineProfile decodes YAML bytes over engine.DefaultOptions. A speeds
// map in the profile overrides individual vehicles; a windows list replaces
// the default windows entirely.
func ParseEngineProfile(b []byte) (engine.Options, error) {
	opts := engine.DefaultOptions()
	speeds := opts.Speeds
	opts.Speeds = nil
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return engine.DefaultOptions(), fmt.Errorf("decode engine profile: %w", err)
	}
	for v, kmh := range opts.Speeds {
		speeds[v] = kmh
	}
	opts.Speeds = speeds
	return opts, nil
}
