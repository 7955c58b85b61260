// ABOUTME: Configuration loading and parsing for warden
// ABOUTME: Supports YAML or TOML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MinSecretLength is the shortest accepted auth.jwt_secret, in bytes.
const MinSecretLength = 32

// Defaults applied by Load when a key is absent.
const (
	DefaultHTTPAddr      = "127.0.0.1:8080"
	DefaultGRPCAddr      = "127.0.0.1:50051"
	DefaultTokenTTL      = 7 * 24 * time.Hour
	DefaultMaxAttempts   = 5
	DefaultLockDuration  = 5 * time.Minute
	DefaultCookieName    = "warden_session"
	DefaultLoginPath     = "/login"
	DefaultSweepInterval = 10 * time.Minute
	DefaultRateLimitRPS  = 1.0
	DefaultRateBurst     = 10
)

// Lockout backends
const (
	LockoutSQLite = "sqlite"
	LockoutRedis  = "redis"
)

// Config represents the complete warden configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Lockout   LockoutConfig   `yaml:"lockout" toml:"lockout"`
	RateLimit RateLimitConfig `yaml:"ratelimit" toml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	SweepInterval    time.Duration `yaml:"-" toml:"-"`
	SweepIntervalRaw string        `yaml:"sweep_interval" toml:"sweep_interval"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve HTTP over tailnet TLS on :443
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds session and credential configuration
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret" toml:"jwt_secret"`
	MaxAttempts   int    `yaml:"max_attempts" toml:"max_attempts"`
	CookieName    string `yaml:"cookie_name" toml:"cookie_name"`
	LoginPath     string `yaml:"login_path" toml:"login_path"`
	SecureCookies bool   `yaml:"secure_cookies" toml:"secure_cookies"`
	PasswordHash  string `yaml:"password_hash" toml:"password_hash"` // bcrypt or argon2id

	TokenTTL     time.Duration `yaml:"-" toml:"-"`
	LockDuration time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TokenTTLRaw     string `yaml:"token_ttl" toml:"token_ttl"`
	LockDurationRaw string `yaml:"lock_duration" toml:"lock_duration"`
}

// LockoutConfig selects where failed-login counters live
type LockoutConfig struct {
	Backend   string `yaml:"backend" toml:"backend"`
	RedisURL  string `yaml:"redis_url" toml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
}

// RateLimitConfig holds the per-IP login throttle
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
	// TrustForwardedFor keys the throttle on X-Forwarded-For instead of the
	// peer address. Enable only behind a reverse proxy.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" toml:"trust_forwarded_for"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes raw config content. It is Load without the file read.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if !c.Tailscale.Enabled {
		if c.Server.HTTPAddr == "" {
			c.Server.HTTPAddr = DefaultHTTPAddr
		}
		if c.Server.GRPCAddr == "" {
			c.Server.GRPCAddr = DefaultGRPCAddr
		}
	}
	if c.Server.SweepInterval == 0 {
		c.Server.SweepInterval = DefaultSweepInterval
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Auth.LockDuration == 0 {
		c.Auth.LockDuration = DefaultLockDuration
	}
	if c.Auth.MaxAttempts == 0 {
		c.Auth.MaxAttempts = DefaultMaxAttempts
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = DefaultCookieName
	}
	if c.Auth.LoginPath == "" {
		c.Auth.LoginPath = DefaultLoginPath
	}
	if c.Auth.PasswordHash == "" {
		c.Auth.PasswordHash = "bcrypt"
	}
	if c.Lockout.Backend == "" {
		c.Lockout.Backend = LockoutSQLite
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = DefaultRateLimitRPS
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = DefaultRateBurst
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// DatabasePathEnv overrides database.path for every command that loads the config.
const DatabasePathEnv = "WARDEN_DB_PATH"

// applyEnvOverrides applies environment variables that replace file values.
func (c *Config) applyEnvOverrides() {
	if envPath := os.Getenv(DatabasePathEnv); envPath != "" {
		c.Database.Path = envPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server addresses are required unless Tailscale is enabled
	if !c.Tailscale.Enabled {
		if c.Server.GRPCAddr == "" {
			return fmt.Errorf("server.grpc_addr is required (or enable tailscale)")
		}
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required (or enable tailscale)")
		}
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Auth.JWTSecret) < MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.LockDuration <= 0 {
		return fmt.Errorf("auth durations must be positive")
	}
	if c.Server.SweepInterval <= 0 {
		return fmt.Errorf("server.sweep_interval must be positive")
	}
	if c.Auth.MaxAttempts < 1 {
		return fmt.Errorf("auth.max_attempts must be at least 1")
	}
	switch c.Auth.PasswordHash {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("auth.password_hash must be bcrypt or argon2id, got %q", c.Auth.PasswordHash)
	}

	switch c.Lockout.Backend {
	case LockoutSQLite:
	case LockoutRedis:
		if c.Lockout.RedisURL == "" {
			return fmt.Errorf("lockout.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("lockout.backend must be sqlite or redis, got %q", c.Lockout.Backend)
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Auth.LockDurationRaw != "" {
		cfg.Auth.LockDuration, err = time.ParseDuration(cfg.Auth.LockDurationRaw)
		if err != nil {
			return fmt.Errorf("parsing lock_duration %q: %w", cfg.Auth.LockDurationRaw, err)
		}
	}

	if cfg.Server.SweepIntervalRaw != "" {
		cfg.Server.SweepInterval, err = time.ParseDuration(cfg.Server.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Server.SweepIntervalRaw, err)
		}
	}

	return nil
}

// DefaultPath returns the config file location: $WARDEN_CONFIG, else
// $XDG_CONFIG_HOME/warden/warden.yaml, else ~/.config/warden/warden.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv("WARDEN_CONFIG"); p != "" {
		return p, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "warden", "warden.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".config", "warden", "warden.yaml"), nil
}
