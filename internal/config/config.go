// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "CLP"

type Config struct {
	Env     string `envconfig:"ENV" default:"development"`
	Port    int    `envconfig:"PORT" default:"8080"`
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"cloudlicense.db"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	JWTIssuer string `envconfig:"JWT_ISSUER"`

	// AllowedOrigins are host patterns accepted on websocket upgrades. The
	// host of BaseURL is used when empty.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose CF-Connecting-IP and X-Forwarded-For headers are believed.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`

	RateLimitRPS   float64       `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST" default:"10"`
	RateLimitIdle  time.Duration `envconfig:"RATE_LIMIT_IDLE" default:"10m"`

	ValidateTimeout time.Duration `envconfig:"VALIDATE_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// S3-compatible storage for sealed exports. Uploads are disabled unless
	// bucket and both keys are set.
	ArchiveEndpoint  string `envconfig:"ARCHIVE_ENDPOINT"`
	ArchiveBucket    string `envconfig:"ARCHIVE_BUCKET"`
	ArchiveRegion    string `envconfig:"ARCHIVE_REGION" default:"us-east-1"`
	ArchiveAccessKey string `envconfig:"ARCHIVE_ACCESS_KEY"`
	ArchiveSecretKey string `envconfig:"ARCHIVE_SECRET_KEY"`
}

// Load reads an optional .env file and then CLP_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("CLP_DB_DRIVER: unsupported driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return errors.New("CLP_DB_DSN is required")
	}
	if c.JWTSecret == "" {
		if !c.IsDev() {
			return errors.New("CLP_JWT_SECRET is required outside development")
		}
		c.JWTSecret = "dev-secret"
	}
	for _, p := range c.TrustedProxies {
		if _, err := parsePrefix(p); err != nil {
			return fmt.Errorf("CLP_TRUSTED_PROXIES: %w", err)
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive, got rps=%v burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins returns AllowedOrigins, falling back to the host of BaseURL.
func (c *Config) Origins() []string {
	if len(c.AllowedOrigins) > 0 {
		return c.AllowedOrigins
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// TrustedPrefixes returns TrustedProxies as prefixes. A bare address is a
// single-host prefix. Entries that do not parse are skipped; Validate
// rejects them.
func (c *Config) TrustedPrefixes() []netip.Prefix {
	var out []netip.Prefix
	for _, p := range c.TrustedProxies {
		if prefix, err := parsePrefix(p); err == nil {
			out = append(out, prefix)
		}
	}
	return out
}

func parsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid proxy range %q", s)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid proxy address %q", s)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
