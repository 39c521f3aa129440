package agentAuth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "max attempts zero invalid",
			mutate: func(c *Config) {
				c.Flow.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "timeout below one second invalid",
			mutate: func(c *Config) {
				c.Flow.Timeout = 500 * time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "concurrency retries zero invalid",
			mutate: func(c *Config) {
				c.Flow.ConcurrencyRetries = 0
			},
			wantValid: false,
		},
		{
			name: "key prefix empty invalid",
			mutate: func(c *Config) {
				c.Storage.KeyPrefix = ""
			},
			wantValid: false,
		},
		{
			name: "key prefix with slash invalid",
			mutate: func(c *Config) {
				c.Storage.KeyPrefix = "bot/auth"
			},
			wantValid: false,
		},
		{
			name: "record ttl shorter than timeout invalid",
			mutate: func(c *Config) {
				c.Storage.RecordTTL = time.Minute
			},
			wantValid: false,
		},
		{
			name: "record ttl covering timeout valid",
			mutate: func(c *Config) {
				c.Storage.RecordTTL = 24 * time.Hour
			},
			wantValid: true,
		},
		{
			name: "audience prefix empty invalid",
			mutate: func(c *Config) {
				c.Exchange.AudiencePrefix = ""
			},
			wantValid: false,
		},
		{
			name: "cache skew negative invalid",
			mutate: func(c *Config) {
				c.Exchange.CacheSkew = -time.Second
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero invalid when enabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency histograms without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("AGENTAUTH_FLOW_MAX_ATTEMPTS", "5")
	t.Setenv("AGENTAUTH_FLOW_TIMEOUT", "2m")
	t.Setenv("AGENTAUTH_STORAGE_KEY_PREFIX", "bot")
	t.Setenv("AGENTAUTH_STORAGE_RECORD_TTL", "1h")
	t.Setenv("AGENTAUTH_REDIS_ADDR", "127.0.0.1:6380")
	t.Setenv("AGENTAUTH_METRICS_ENABLED", "true")
	t.Setenv("AGENTAUTH_METRICS_LATENCY", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if cfg.Flow.MaxAttempts != 5 || cfg.Flow.Timeout != 2*time.Minute {
		t.Fatalf("unexpected flow config: %+v", cfg.Flow)
	}
	if cfg.Storage.KeyPrefix != "bot" || cfg.Storage.RecordTTL != time.Hour || cfg.Storage.RedisAddr != "127.0.0.1:6380" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if !cfg.Metrics.Enabled || !cfg.Metrics.EnableLatencyHistograms {
		t.Fatalf("unexpected metrics config: %+v", cfg.Metrics)
	}
}

func TestLoadConfigFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("AGENTAUTH_FLOW_MAX_ATTEMPTS", "0")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigFromEnvRejectsMalformed(t *testing.T) {
	t.Setenv("AGENTAUTH_FLOW_TIMEOUT", "soon")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatal("expected parse error")
	}
}

const handlerDefinitionsYAML = `
handlers:
  - id: graph
    connection: graph-conn
    oboConnection: graph-obo
    title: Sign in to Microsoft
    scopes: ["api://downstream/.default"]
  - id: github
    connection: github-conn
connections:
  graph-obo:
    tokenURL: https://login.example.com/oauth2/v2.0/token
    clientID: bot-client
    clientSecretEnv: TEST_GRAPH_OBO_SECRET
`

func TestLoadHandlerDefinitions(t *testing.T) {
	defs, err := LoadHandlerDefinitions(strings.NewReader(handlerDefinitionsYAML))
	if err != nil {
		t.Fatalf("LoadHandlerDefinitions failed: %v", err)
	}
	if len(defs.Handlers) != 2 {
		t.Fatalf("expected 2 handlers, got %d", len(defs.Handlers))
	}
	graph := defs.Handlers[0]
	if graph.ID != "graph" || graph.ConnectionName != "graph-conn" || !graph.Exchangeable() {
		t.Fatalf("unexpected graph handler: %+v", graph)
	}
	if len(graph.Scopes) != 1 || graph.Scopes[0] != "api://downstream/.default" {
		t.Fatalf("unexpected scopes: %v", graph.Scopes)
	}
	if defs.Handlers[1].Exchangeable() {
		t.Fatal("expected github handler not to be exchangeable")
	}

	conn := defs.Connections["graph-obo"]
	if conn.Secret() != "" {
		t.Fatal("expected empty secret without env var")
	}
	t.Setenv("TEST_GRAPH_OBO_SECRET", "s3cret")
	if conn.Secret() != "s3cret" {
		t.Fatalf("expected secret from env, got %q", conn.Secret())
	}
}

func TestLoadHandlerDefinitionsErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "empty document",
			yaml: "",
			want: ErrInvalidHandler,
		},
		{
			name: "missing connection",
			yaml: "handlers:\n  - id: graph\n",
			want: ErrInvalidHandler,
		},
		{
			name: "slash in id",
			yaml: "handlers:\n  - id: a/b\n    connection: c\n",
			want: ErrInvalidHandler,
		},
		{
			name: "duplicate id",
			yaml: "handlers:\n  - id: a\n    connection: c\n  - id: a\n    connection: d\n",
			want: ErrDuplicateHandler,
		},
		{
			name: "undefined obo connection",
			yaml: "handlers:\n  - id: a\n    connection: c\n    oboConnection: missing\n",
			want: ErrInvalidHandler,
		},
		{
			name: "obo connection without token url",
			yaml: "handlers:\n  - id: a\n    connection: c\n    oboConnection: o\nconnections:\n  o:\n    clientID: x\n",
			want: ErrInvalidHandler,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadHandlerDefinitions(strings.NewReader(tc.yaml))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadHandlerDefinitionsRejectsUnknownFields(t *testing.T) {
	_, err := LoadHandlerDefinitions(strings.NewReader("handlers:\n  - id: a\n    connection: c\n    colour: blue\n"))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoadHandlerDefinitionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handlers.yaml")
	if err := os.WriteFile(path, []byte(handlerDefinitionsYAML), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	defs, err := LoadHandlerDefinitionsFile(path)
	if err != nil {
		t.Fatalf("LoadHandlerDefinitionsFile failed: %v", err)
	}
	if len(defs.Handlers) != 2 {
		t.Fatalf("expected 2 handlers, got %d", len(defs.Handlers))
	}

	if _, err := LoadHandlerDefinitionsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
