package edge

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full edge service configuration.
//
// Sources, highest priority first: explicit path, CONFIG_PATH, ./local.yaml,
// environment only. Environment variables always overlay file values.
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Notify    NotifyConfig    `yaml:"notify"`
	Members   MembersConfig   `yaml:"members"`
	Recipes   RecipesConfig   `yaml:"recipes"`
}

// HTTPConfig is the public listener.
type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"0s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string { return net.JoinHostPort(h.Host, h.Port) }

// JWTConfig configures the token codec.
type JWTConfig struct {
	AccessTTL     time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"1h"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"JWT_REFRESH_TTL" env-default:"336h"`
	SigningMethod string        `yaml:"signing_method" env:"JWT_SIGNING_METHOD" env-default:"hs256"`
	Secret        string        `yaml:"secret" env:"JWT_SECRET"`
	PublicKey     string        `yaml:"public_key" env:"JWT_PUBLIC_KEY"`
	Issuer        string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"zipbob-edge"`
	Leeway        time.Duration `yaml:"leeway" env:"JWT_LEEWAY" env-default:"0s"`
}

// RedisConfig is shared by the revocation store, rate limiter, member cache,
// notification stream and recipe feed.
type RedisConfig struct {
	Addr        string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Prefix      string        `yaml:"prefix" env:"REDIS_PREFIX" env-default:"edge"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"3s"`
}

// PostgresConfig holds the primary and read-replica pools. An empty ReplicaDSN
// sends reads to the primary. Flags default to false because cleanenv treats a
// false value in a file as unset.
type PostgresConfig struct {
	PrimaryDSN     string        `yaml:"primary_dsn" env:"POSTGRES_PRIMARY_DSN"`
	ReplicaDSN     string        `yaml:"replica_dsn" env:"POSTGRES_REPLICA_DSN"`
	MaxConns       int32         `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
	SkipMigrations bool          `yaml:"skip_migrations" env:"POSTGRES_SKIP_MIGRATIONS"`
	Timeout        time.Duration `yaml:"timeout" env:"POSTGRES_TIMEOUT" env-default:"5s"`
}

// RateLimitConfig tunes the per-caller throttle.
type RateLimitConfig struct {
	Disabled bool          `yaml:"disabled" env:"RATE_LIMIT_DISABLED"`
	Limit    int           `yaml:"limit" env:"RATE_LIMIT_LIMIT" env-default:"100"`
	Window   time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" env-default:"1s"`
	Prefix   string        `yaml:"prefix" env:"RATE_LIMIT_PREFIX" env-default:"rate_limit"`
	FailOpen bool          `yaml:"fail_open" env:"RATE_LIMIT_FAIL_OPEN" env-default:"false"`
}

// AuthConfig lists the paths each filter skips. Entries match the exact path
// or any sub-path; "/" matches only the root.
type AuthConfig struct {
	PublicPaths      []string `yaml:"public_paths" env:"AUTH_PUBLIC_PATHS" env-separator:"," env-default:"/auth/reissue,/members/nickname-check,/actuator"`
	PropagationSkips []string `yaml:"propagation_skips" env:"AUTH_PROPAGATION_SKIPS" env-separator:"," env-default:"/auth/reissue,/members/nickname-check,/members/test/join,/"`
	IdentityHeader   string   `yaml:"identity_header" env:"AUTH_IDENTITY_HEADER" env-default:"X-Member-Id"`
	RefreshHeader    string   `yaml:"refresh_header" env:"AUTH_REFRESH_HEADER" env-default:"Refresh"`
	RefreshCookie    string   `yaml:"refresh_cookie" env:"AUTH_REFRESH_COOKIE" env-default:"refreshToken"`
}

// NotifyConfig tunes the asynchronous welcome/goodbye dispatcher.
type NotifyConfig struct {
	Disabled   bool   `yaml:"disabled" env:"NOTIFY_DISABLED"`
	Stream     string `yaml:"stream" env:"NOTIFY_STREAM" env-default:"notify:email"`
	BufferSize int    `yaml:"buffer_size" env:"NOTIFY_BUFFER_SIZE" env-default:"1024"`
	MaxLen     int64  `yaml:"max_len" env:"NOTIFY_MAX_LEN" env-default:"10000"`
}

// MembersConfig tunes the member cache.
type MembersConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" env:"MEMBERS_CACHE_TTL" env-default:"10m"`
}

// RecipesConfig configures the recipe SSE relay.
type RecipesConfig struct {
	Channel   string        `yaml:"channel" env:"RECIPES_CHANNEL" env-default:"recipes"`
	Heartbeat time.Duration `yaml:"heartbeat" env:"RECIPES_HEARTBEAT" env-default:"30s"`
}

// DefaultConfig returns the built-in defaults without reading any source. The
// JWT secret is left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		Env: "local",
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			RefreshTTL:    14 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "zipbob-edge",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			Prefix:      "edge",
			DialTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
			Timeout:  5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Limit:  100,
			Window: time.Second,
			Prefix: "rate_limit",
		},
		Auth: AuthConfig{
			PublicPaths:      []string{"/auth/reissue", "/members/nickname-check", "/actuator"},
			PropagationSkips: []string{"/auth/reissue", "/members/nickname-check", "/members/test/join", "/"},
			IdentityHeader:   "X-Member-Id",
			RefreshHeader:    "Refresh",
			RefreshCookie:    "refreshToken",
		},
		Notify: NotifyConfig{
			Stream:     "notify:email",
			BufferSize: 1024,
			MaxLen:     10000,
		},
		Members: MembersConfig{
			CacheTTL: 10 * time.Minute,
		},
		Recipes: RecipesConfig{
			Channel:   "recipes",
			Heartbeat: 30 * time.Second,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Env {
	case "local", "dev", "prod":
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT Secret is required")
	}

	// Redis
	if c.Redis.Addr == "" {
		return errors.New("Redis Addr is required")
	}

	// Rate limit
	if !c.RateLimit.Disabled {
		if c.RateLimit.Limit <= 0 {
			return errors.New("RateLimit Limit must be > 0")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0")
		}
	}

	// Auth
	for _, p := range append(append([]string{}, c.Auth.PublicPaths...), c.Auth.PropagationSkips...) {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("path %q must start with /", p)
		}
	}
	if c.Auth.IdentityHeader == "" || c.Auth.RefreshHeader == "" {
		return errors.New("Auth header names must not be empty")
	}

	// Notify
	if !c.Notify.Disabled && c.Notify.BufferSize <= 0 {
		return errors.New("Notify BufferSize must be > 0")
	}

	return nil
}

// LoadConfig reads configuration following the documented source order and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) error {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	switch {
	case path != "":
		if err := readFile(path); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := readFile(os.Getenv("CONFIG_PATH")); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat("local.yaml"); err == nil {
			if err := readFile("local.yaml"); err != nil {
				return nil, err
			}
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to overlay env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoadConfig is LoadConfig that panics on error.
func MustLoadConfig(path string) *Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
