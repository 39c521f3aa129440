package agentAuth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/agentAuth/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type handlerRegistration struct {
	handler AuthHandler
	driver  OAuthFlow
}

// Builder assembles an [Authorization]. A Builder is single-use.
type Builder struct {
	config   Config
	storage  storage.Storage
	handlers []handlerRegistration

	obo            OBOProvider
	auditSink      AuditSink
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	clock          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the flow record backend. Required.
func (b *Builder) WithStorage(s storage.Storage) *Builder {
	b.storage = s
	return b
}

// WithHandler registers a handler and the driver that signs users in to it.
// Handlers are searched for active flows in the order they are added.
func (b *Builder) WithHandler(h AuthHandler, driver OAuthFlow) *Builder {
	b.handlers = append(b.handlers, handlerRegistration{handler: h, driver: driver})
	return b
}

// WithOBOProvider sets the on-behalf-of exchanger used by ExchangeToken.
func (b *Builder) WithOBOProvider(p OBOProvider) *Builder {
	b.obo = p
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTracerProvider sets the OpenTelemetry tracer provider. Defaults to the
// global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration, freezes the handler registry and
// starts the audit dispatcher when auditing is enabled.
func (b *Builder) Build() (*Authorization, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.storage == nil {
		return nil, errors.New("storage required")
	}
	if len(b.handlers) == 0 {
		return nil, errors.New("at least one auth handler required")
	}

	registry := NewHandlerRegistry()
	for _, reg := range b.handlers {
		if err := registry.Register(reg.handler, reg.driver); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	a := &Authorization{
		config:   cfg,
		registry: registry,
		storage:  b.storage,
		obo:      b.obo,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
		tracer:   tp.Tracer(tracerName),
		now:      clock,
	}

	b.built = true
	return a, nil
}
