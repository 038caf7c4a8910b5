package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Event delivery modes.
const (
	DeliveryDirect = "direct"
	DeliveryOutbox = "outbox"
)

// Config holds the askdex configuration shared by every subcommand.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Events    EventsConfig    `yaml:"events"`
	Projector ProjectorConfig `yaml:"projector"`
	Search    SearchConfig    `yaml:"search"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	Reindex   ReindexConfig   `yaml:"reindex"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig selects how bearer JWTs are verified. Exactly one of
// JWTSecret (HS256) and JWKSURL is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWKSURL   string `yaml:"jwks_url"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// CORSConfig holds cross-origin settings for the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// IndexerPort serves /health and /metrics for the indexer and relay processes.
	IndexerPort int `yaml:"indexer_port"`
}

// DatabaseConfig holds Redis connection settings (search index and event channel).
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// PostgresConfig holds system-of-record settings.
type PostgresConfig struct {
	URL              string `yaml:"url"`
	MaxConns         int32  `yaml:"max_conns"`
	MinConns         int32  `yaml:"min_conns"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
	MigrateOnStart   bool   `yaml:"migrate_on_start"`
}

// EventsConfig holds the event channel topology and delivery settings.
type EventsConfig struct {
	Delivery         string      `yaml:"delivery"` // direct (default) | outbox
	StreamPrefix     string      `yaml:"stream_prefix"`
	DeadLetter       string      `yaml:"dead_letter"`
	Partitions       int         `yaml:"partitions"`
	Group            string      `yaml:"group"`
	Consumer         string      `yaml:"consumer"`
	BatchSize        int         `yaml:"batch_size"`
	BlockMS          int         `yaml:"block_ms"`
	ClaimIntervalSec int         `yaml:"claim_interval_sec"`
	ClaimIdleSec     int         `yaml:"claim_idle_sec"`
	PublishTimeoutMS int         `yaml:"publish_timeout_ms"`
	Relay            RelayConfig `yaml:"relay"`
}

// RelayConfig holds outbox relay settings.
type RelayConfig struct {
	Embedded   bool `yaml:"embedded"`
	IntervalMS int  `yaml:"interval_ms"`
	BatchSize  int  `yaml:"batch_size"`
	TimeoutMS  int  `yaml:"timeout_ms"`
}

// ProjectorConfig holds index projection settings.
type ProjectorConfig struct {
	ApplyTimeoutMS  int `yaml:"apply_timeout_ms"`
	RetryInitialMS  int `yaml:"retry_initial_ms"`
	RetryMaxMS      int `yaml:"retry_max_ms"`
	TombstoneTTLSec int `yaml:"tombstone_ttl_sec"`
	LockStripes     int `yaml:"lock_stripes"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	TimeoutMS    int `yaml:"timeout_ms"`
}

// ReindexConfig holds full-rebuild settings.
type ReindexConfig struct {
	PageSize int `yaml:"page_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// An optional .env in the working directory is loaded first; variables
// already set in the process environment win.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands ${VAR} references in data, decodes it and applies defaults
// and validation.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.IndexerPort <= 0 {
		c.HTTP.IndexerPort = 9090
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "askdex:"
	}
	if c.Postgres.ReadinessTimeout <= 0 {
		c.Postgres.ReadinessTimeout = 10
	}

	c.Events.applyDefaults()

	if c.Projector.ApplyTimeoutMS <= 0 {
		c.Projector.ApplyTimeoutMS = 5000
	}
	if c.Projector.RetryInitialMS <= 0 {
		c.Projector.RetryInitialMS = 100
	}
	if c.Projector.RetryMaxMS <= 0 {
		c.Projector.RetryMaxMS = 5000
	}
	if c.Projector.TombstoneTTLSec <= 0 {
		c.Projector.TombstoneTTLSec = 24 * 60 * 60
	}
	if c.Projector.LockStripes <= 0 {
		c.Projector.LockStripes = 256
	}

	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
	if c.Search.TimeoutMS <= 0 {
		c.Search.TimeoutMS = 3000
	}

	if c.Reindex.PageSize <= 0 {
		c.Reindex.PageSize = 500
	}
}

func (e *EventsConfig) applyDefaults() {
	if e.Delivery == "" {
		e.Delivery = DeliveryDirect
	}
	if e.StreamPrefix == "" {
		e.StreamPrefix = "askdex:events:questions:"
	}
	if e.DeadLetter == "" {
		e.DeadLetter = "askdex:events:dead"
	}
	if e.Partitions <= 0 {
		e.Partitions = 8
	}
	if e.Group == "" {
		e.Group = "questions.search"
	}
	if e.Consumer == "" {
		e.Consumer = hostname()
	}
	if e.BatchSize <= 0 {
		e.BatchSize = 32
	}
	if e.BlockMS <= 0 {
		e.BlockMS = 2000
	}
	if e.ClaimIntervalSec <= 0 {
		e.ClaimIntervalSec = 30
	}
	if e.ClaimIdleSec <= 0 {
		e.ClaimIdleSec = 60
	}
	if e.PublishTimeoutMS <= 0 {
		e.PublishTimeoutMS = 2000
	}
	if e.Relay.IntervalMS <= 0 {
		e.Relay.IntervalMS = 1000
	}
	if e.Relay.BatchSize <= 0 {
		e.Relay.BatchSize = 100
	}
	if e.Relay.TimeoutMS <= 0 {
		e.Relay.TimeoutMS = 5000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.IndexerPort <= 0 || c.HTTP.IndexerPort > 65535 {
		return fmt.Errorf("http.indexer_port must be between 1 and 65535, got %d", c.HTTP.IndexerPort)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	if c.Postgres.URL == "" {
		return errors.New("postgres.url is required")
	}
	switch c.Events.Delivery {
	case DeliveryDirect, DeliveryOutbox:
		// ok
	default:
		return fmt.Errorf("events.delivery must be %q or %q, got %q", DeliveryDirect, DeliveryOutbox, c.Events.Delivery)
	}
	if c.Events.Relay.Embedded && c.Events.Delivery != DeliveryOutbox {
		return errors.New("events.relay.embedded requires events.delivery: outbox")
	}
	if c.Auth.JWTSecret != "" && c.Auth.JWKSURL != "" {
		return errors.New("auth.jwt_secret and auth.jwks_url are mutually exclusive")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if c.Projector.RetryInitialMS > c.Projector.RetryMaxMS {
		return fmt.Errorf("projector.retry_initial_ms (%d) exceeds projector.retry_max_ms (%d)",
			c.Projector.RetryInitialMS, c.Projector.RetryMaxMS)
	}
	return nil
}

// AuthEnabled reports whether a token key source is configured.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != "" || c.Auth.JWKSURL != ""
}

// Ms converts a millisecond setting to a duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Sec converts a second setting to a duration.
func Sec(v int) time.Duration { return time.Duration(v) * time.Second }

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "askdex"
	}
	return h
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
