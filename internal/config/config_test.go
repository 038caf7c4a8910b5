package config

import (
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
database:
  addrs: ["localhost:6379"]
postgres:
  url: postgres://askdex@localhost/askdex
`

func validConfig() Config {
	cfg := Config{
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Postgres: PostgresConfig{URL: "postgres://localhost/askdex"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name      string
		got, want any
	}{
		{"http.port", cfg.HTTP.Port, 8080},
		{"events.delivery", cfg.Events.Delivery, DeliveryDirect},
		{"events.partitions", cfg.Events.Partitions, 8},
		{"events.group", cfg.Events.Group, "questions.search"},
		{"events.stream_prefix", cfg.Events.StreamPrefix, "askdex:events:questions:"},
		{"events.dead_letter", cfg.Events.DeadLetter, "askdex:events:dead"},
		{"events.batch_size", cfg.Events.BatchSize, 32},
		{"events.block_ms", cfg.Events.BlockMS, 2000},
		{"events.claim_interval_sec", cfg.Events.ClaimIntervalSec, 30},
		{"events.claim_idle_sec", cfg.Events.ClaimIdleSec, 60},
		{"events.publish_timeout_ms", cfg.Events.PublishTimeoutMS, 2000},
		{"projector.apply_timeout_ms", cfg.Projector.ApplyTimeoutMS, 5000},
		{"projector.retry_initial_ms", cfg.Projector.RetryInitialMS, 100},
		{"projector.retry_max_ms", cfg.Projector.RetryMaxMS, 5000},
		{"search.default_limit", cfg.Search.DefaultLimit, 20},
		{"search.max_limit", cfg.Search.MaxLimit, 100},
		{"search.timeout_ms", cfg.Search.TimeoutMS, 3000},
		{"reindex.page_size", cfg.Reindex.PageSize, 500},
		{"database.key_prefix", cfg.Database.KeyPrefix, "askdex:"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.Events.Consumer == "" {
		t.Error("events.consumer not defaulted")
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ASKDEX_TEST_PG", "postgres://from-env/askdex")
	data := []byte(`
database:
  addrs: ["${ASKDEX_TEST_REDIS:-redis:6379}"]
postgres:
  url: ${ASKDEX_TEST_PG}
auth:
  jwt_secret: ${ASKDEX_TEST_UNSET}
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Addrs[0] != "redis:6379" {
		t.Errorf("addrs = %v", cfg.Database.Addrs)
	}
	if cfg.Postgres.URL != "postgres://from-env/askdex" {
		t.Errorf("postgres.url = %q", cfg.Postgres.URL)
	}
	if cfg.AuthEnabled() {
		t.Error("unset secret enabled auth")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }, "http.port"},
		{"no redis", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"no postgres", func(c *Config) { c.Postgres.URL = "" }, "postgres.url"},
		{"bad delivery", func(c *Config) { c.Events.Delivery = "kafka" }, "events.delivery"},
		{"embedded relay without outbox", func(c *Config) { c.Events.Relay.Embedded = true }, "events.relay.embedded"},
		{"both key sources", func(c *Config) {
			c.Auth.JWTSecret = "s"
			c.Auth.JWKSURL = "https://idp/jwks"
		}, "mutually exclusive"},
		{"default above max", func(c *Config) { c.Search.DefaultLimit = 500 }, "search.default_limit"},
		{"retry initial above max", func(c *Config) { c.Projector.RetryInitialMS = 10000 }, "projector.retry_initial_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_OutboxWithEmbeddedRelay(t *testing.T) {
	cfg := validConfig()
	cfg.Events.Delivery = DeliveryOutbox
	cfg.Events.Relay.Embedded = true
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestDurations(t *testing.T) {
	if Ms(1500) != 1500*time.Millisecond || Sec(2) != 2*time.Second {
		t.Error("duration helpers")
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	got := string(expandEnvVars([]byte("a: ${ASKDEX_NOPE:-fallback}")))
	if got != "a: fallback" {
		t.Errorf("got %q", got)
	}
}
