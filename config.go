package agentAuth

import (
	"errors"
	"strings"
	"time"
)

// Config defines the tunables of an [Authorization].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Flow     FlowConfig
	Storage  StorageConfig
	Exchange ExchangeConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
FLOW CONFIG
====================================
*/

// FlowConfig bounds a single sign-in flow.
type FlowConfig struct {
	// MaxAttempts is the number of continuation attempts a flow gets.
	MaxAttempts int
	// Timeout is how long a begun flow stays active.
	Timeout time.Duration
	// ConcurrencyRetries is how many times a read-modify-write cycle is
	// repeated after a conflicting write before giving up.
	ConcurrencyRetries int
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig controls flow record keys and the Redis backend.
type StorageConfig struct {
	KeyPrefix string
	// RecordTTL, when > 0, is applied by RedisStorage to every record.
	RecordTTL time.Duration
	// RedisAddr is only read by the bundled commands and examples.
	RedisAddr string
}

/*
====================================
EXCHANGE CONFIG
====================================
*/

// ExchangeConfig controls on-behalf-of token exchange.
type ExchangeConfig struct {
	// AudiencePrefix marks tokens whose audience is an exchangeable API.
	AudiencePrefix string
	CacheSize      int
	// CacheSkew is subtracted from an exchanged token's lifetime before caching.
	CacheSkew time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Flow: FlowConfig{
			MaxAttempts:        3,
			Timeout:            15 * time.Minute,
			ConcurrencyRetries: 4,
		},
		Storage: StorageConfig{
			KeyPrefix: "auth",
		},
		Exchange: ExchangeConfig{
			AudiencePrefix: "api://",
			CacheSize:      1024,
			CacheSkew:      time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks cfg for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Flow.MaxAttempts <= 0 {
		return errors.New("Flow MaxAttempts must be > 0")
	}
	if c.Flow.Timeout <= 0 {
		return errors.New("Flow Timeout must be > 0")
	}
	if c.Flow.Timeout < time.Second {
		return errors.New("Flow Timeout must be at least 1s")
	}
	if c.Flow.ConcurrencyRetries <= 0 {
		return errors.New("Flow ConcurrencyRetries must be > 0")
	}

	if c.Storage.KeyPrefix == "" {
		return errors.New("Storage KeyPrefix must not be empty")
	}
	if strings.Contains(c.Storage.KeyPrefix, "/") {
		return errors.New("Storage KeyPrefix must not contain '/'")
	}
	if c.Storage.RecordTTL < 0 {
		return errors.New("Storage RecordTTL must be >= 0")
	}
	if c.Storage.RecordTTL > 0 && c.Storage.RecordTTL < c.Flow.Timeout {
		return errors.New("Storage RecordTTL must be >= Flow Timeout")
	}

	if c.Exchange.AudiencePrefix == "" {
		return errors.New("Exchange AudiencePrefix must not be empty")
	}
	if c.Exchange.CacheSize < 0 {
		return errors.New("Exchange CacheSize must be >= 0")
	}
	if c.Exchange.CacheSkew < 0 {
		return errors.New("Exchange CacheSkew must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
