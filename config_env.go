package agentAuth

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// configEnv holds raw env values for Config.
type configEnv struct {
	MaxAttempts        int           `env:"AGENTAUTH_FLOW_MAX_ATTEMPTS"        envDefault:"3"`
	Timeout            time.Duration `env:"AGENTAUTH_FLOW_TIMEOUT"             envDefault:"15m"`
	ConcurrencyRetries int           `env:"AGENTAUTH_FLOW_CONCURRENCY_RETRIES" envDefault:"4"`
	KeyPrefix          string        `env:"AGENTAUTH_STORAGE_KEY_PREFIX"       envDefault:"auth"`
	RecordTTL          time.Duration `env:"AGENTAUTH_STORAGE_RECORD_TTL"       envDefault:"0s"`
	RedisAddr          string        `env:"AGENTAUTH_REDIS_ADDR"`
	AudiencePrefix     string        `env:"AGENTAUTH_EXCHANGE_AUDIENCE_PREFIX" envDefault:"api://"`
	CacheSize          int           `env:"AGENTAUTH_EXCHANGE_CACHE_SIZE"      envDefault:"1024"`
	CacheSkew          time.Duration `env:"AGENTAUTH_EXCHANGE_CACHE_SKEW"      envDefault:"1m"`
	AuditEnabled       bool          `env:"AGENTAUTH_AUDIT_ENABLED"            envDefault:"false"`
	AuditBufferSize    int           `env:"AGENTAUTH_AUDIT_BUFFER_SIZE"        envDefault:"1024"`
	AuditDropIfFull    bool          `env:"AGENTAUTH_AUDIT_DROP_IF_FULL"       envDefault:"true"`
	MetricsEnabled     bool          `env:"AGENTAUTH_METRICS_ENABLED"          envDefault:"false"`
	LatencyHistograms  bool          `env:"AGENTAUTH_METRICS_LATENCY"          envDefault:"false"`
}

// LoadConfigFromEnv builds a Config from AGENTAUTH_* environment variables.
// Unset variables take the DefaultConfig values. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		Flow: FlowConfig{
			MaxAttempts:        raw.MaxAttempts,
			Timeout:            raw.Timeout,
			ConcurrencyRetries: raw.ConcurrencyRetries,
		},
		Storage: StorageConfig{
			KeyPrefix: raw.KeyPrefix,
			RecordTTL: raw.RecordTTL,
			RedisAddr: raw.RedisAddr,
		},
		Exchange: ExchangeConfig{
			AudiencePrefix: raw.AudiencePrefix,
			CacheSize:      raw.CacheSize,
			CacheSkew:      raw.CacheSkew,
		},
		Audit: AuditConfig{
			Enabled:    raw.AuditEnabled,
			BufferSize: raw.AuditBufferSize,
			DropIfFull: raw.AuditDropIfFull,
		},
		Metrics: MetricsConfig{
			Enabled:                 raw.MetricsEnabled,
			EnableLatencyHistograms: raw.LatencyHistograms,
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConnectionDefinition describes how to reach the token endpoint of an
// on-behalf-of connection. ClientSecretEnv names an environment variable
// holding the secret and wins over ClientSecret when set.
type ConnectionDefinition struct {
	TokenURL        string   `yaml:"tokenURL"`
	ClientID        string   `yaml:"clientID"`
	ClientSecret    string   `yaml:"clientSecret,omitempty"`
	ClientSecretEnv string   `yaml:"clientSecretEnv,omitempty"`
	Scopes          []string `yaml:"scopes,omitempty"`
}

// Secret resolves the client secret.
func (c ConnectionDefinition) Secret() string {
	if c.ClientSecretEnv != "" {
		if v, ok := os.LookupEnv(c.ClientSecretEnv); ok {
			return v
		}
	}
	return c.ClientSecret
}

// HandlerDefinitions is the file form of a handler set.
type HandlerDefinitions struct {
	Handlers    []AuthHandler                   `yaml:"handlers"`
	Connections map[string]ConnectionDefinition `yaml:"connections,omitempty"`
}

// LoadHandlerDefinitions decodes YAML handler definitions from r and checks
// that every handler is well formed and that every OBO connection a handler
// names is defined.
func LoadHandlerDefinitions(r io.Reader) (HandlerDefinitions, error) {
	var defs HandlerDefinitions
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil {
		if err == io.EOF {
			return defs, fmt.Errorf("%w: empty handler definitions", ErrInvalidHandler)
		}
		return defs, fmt.Errorf("decode handler definitions: %w", err)
	}

	seen := make(map[string]struct{}, len(defs.Handlers))
	for _, h := range defs.Handlers {
		if err := h.validate(); err != nil {
			return defs, err
		}
		if _, dup := seen[h.ID]; dup {
			return defs, fmt.Errorf("%w: %q", ErrDuplicateHandler, h.ID)
		}
		seen[h.ID] = struct{}{}

		if h.OBOConnectionName == "" {
			continue
		}
		conn, ok := defs.Connections[h.OBOConnectionName]
		if !ok {
			return defs, fmt.Errorf("%w: handler %q references undefined connection %q", ErrInvalidHandler, h.ID, h.OBOConnectionName)
		}
		if conn.TokenURL == "" || conn.ClientID == "" {
			return defs, fmt.Errorf("%w: connection %q needs tokenURL and clientID", ErrInvalidHandler, h.OBOConnectionName)
		}
	}
	return defs, nil
}

// LoadHandlerDefinitionsFile reads handler definitions from a YAML file.
func LoadHandlerDefinitionsFile(path string) (HandlerDefinitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return HandlerDefinitions{}, err
	}
	defer f.Close()
	return LoadHandlerDefinitions(f)
}
