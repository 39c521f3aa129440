package agentAuth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/flow"
	"github.com/MrEthical07/agentAuth/internal/stores"
	"github.com/MrEthical07/agentAuth/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/agentAuth"

// Authorization runs per-user sign-in flows for a fixed set of handlers.
//
// Flow records live in the configured [storage.Storage]; nothing about a flow
// is kept in process between calls. Concurrent turns for the same user are
// serialized through storage versions, so an Authorization is safe for
// concurrent use and may be shared by any number of replicas.
type Authorization struct {
	config   Config
	registry *HandlerRegistry
	storage  storage.Storage
	obo      OBOProvider
	audit    *auditDispatcher
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	cbMu      sync.RWMutex
	onSuccess []SuccessFunc
	onFailure []FailureFunc
}

// flowHandle is the mutable view of one flow record inside openFlow.
type flowHandle struct {
	handler AuthHandler
	driver  OAuthFlow
	state   *flow.FlowState
	now     time.Time

	effects []func()
}

// after schedules fn to run once the transaction has committed.
func (h *flowHandle) after(fn func()) {
	h.effects = append(h.effects, fn)
}

// Close stops the audit dispatcher after flushing queued events.
func (a *Authorization) Close() {
	if a == nil {
		return
	}
	if a.audit != nil {
		a.audit.Close()
	}
}

// Handlers returns the handler registry. It is frozen.
func (a *Authorization) Handlers() *HandlerRegistry {
	return a.registry
}

func (a *Authorization) AuditDropped() uint64 {
	if a == nil || a.audit == nil {
		return 0
	}
	return a.audit.Dropped()
}

func (a *Authorization) MetricsSnapshot() MetricsSnapshot {
	if a == nil || a.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return a.metrics.Snapshot()
}

// OnSuccess registers fn to run after a flow completes.
func (a *Authorization) OnSuccess(fn SuccessFunc) {
	if fn == nil {
		return
	}
	a.cbMu.Lock()
	a.onSuccess = append(a.onSuccess, fn)
	a.cbMu.Unlock()
}

// OnFailure registers fn to run after a continuation fails.
func (a *Authorization) OnFailure(fn FailureFunc) {
	if fn == nil {
		return
	}
	a.cbMu.Lock()
	a.onFailure = append(a.onFailure, fn)
	a.cbMu.Unlock()
}

func (a *Authorization) fireSuccess(ctx context.Context, tc activity.TurnContext, handlerID string, token *TokenResponse) {
	a.cbMu.RLock()
	fns := a.onSuccess
	a.cbMu.RUnlock()
	for _, fn := range fns {
		fn(ctx, tc, handlerID, token)
	}
}

func (a *Authorization) fireFailure(ctx context.Context, tc activity.TurnContext, handlerID string, failure FlowFailure) {
	a.cbMu.RLock()
	fns := a.onFailure
	a.cbMu.RUnlock()
	for _, fn := range fns {
		fn(ctx, tc, handlerID, failure)
	}
}

func (a *Authorization) recordStore(tc activity.TurnContext) (*stores.FlowRecordStore, error) {
	if tc == nil {
		return nil, ErrInvalidContext
	}
	records, err := stores.NewFlowRecordStore(
		a.storage,
		a.config.Storage.KeyPrefix,
		tc.ChannelID(),
		tc.UserID(),
		a.registry.IDs(),
		a.config.Flow.MaxAttempts,
	)
	if err != nil {
		return nil, mapFlowStoreError(err)
	}
	return records, nil
}

// openFlow runs fn against the refreshed flow record of handlerID and
// commits the result. The whole read, refresh, fn, write cycle is repeated
// when the record changes underneath it. Effects scheduled with
// flowHandle.after run only once a cycle has committed.
func (a *Authorization) openFlow(
	ctx context.Context,
	tc activity.TurnContext,
	handlerID string,
	readonly bool,
	fn func(ctx context.Context, h *flowHandle) error,
) error {
	if a == nil {
		return ErrAuthorizationNotReady
	}
	start := time.Now()
	defer func() {
		a.metrics.Observe(MetricOpenFlowLatency, time.Since(start))
	}()

	handler, driver, err := a.registry.Resolve(handlerID)
	if err != nil {
		return err
	}
	records, err := a.recordStore(tc)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= a.config.Flow.ConcurrencyRetries; attempt++ {
		effects, err := a.runFlow(ctx, records, handler, driver, readonly, fn)
		if errors.Is(err, storage.ErrPreconditionFailed) {
			a.metrics.Inc(MetricFlowConflict)
			a.logger.DebugContext(ctx, "flow record changed concurrently, retrying",
				"handler", handler.ID, "attempt", attempt+1)
			continue
		}
		for _, effect := range effects {
			effect()
		}
		return err
	}

	a.metrics.Inc(MetricConcurrentModification)
	a.logger.WarnContext(ctx, "flow record kept changing, giving up",
		"handler", handler.ID, "channel", tc.ChannelID(), "user", tc.UserID())
	return ErrConcurrentModification
}

// runFlow is one transaction cycle. The commit is deferred so it also runs
// when fn panics; the panic continues after the write attempt.
func (a *Authorization) runFlow(
	ctx context.Context,
	records *stores.FlowRecordStore,
	handler AuthHandler,
	driver OAuthFlow,
	readonly bool,
	fn func(ctx context.Context, h *flowHandle) error,
) (effects []func(), err error) {
	loaded, version, err := records.Read(ctx, handler.ID)
	if err != nil {
		return nil, mapFlowStoreError(err)
	}

	h := &flowHandle{
		handler: handler,
		driver:  driver,
		state:   loaded.Clone(),
		now:     a.now(),
	}
	if h.state.Refresh(h.now) {
		a.logger.DebugContext(ctx, "flow reset", "handler", handler.ID, "tag", loaded.Tag)
	}

	defer func() {
		if readonly || h.state.Equal(loaded) {
			return
		}
		if werr := records.Write(ctx, handler.ID, h.state, version); werr != nil {
			effects = nil
			err = mapFlowStoreError(werr)
		}
	}()

	if err := fn(ctx, h); err != nil {
		return h.effects, err
	}
	return h.effects, nil
}

func mapFlowStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrPreconditionFailed):
		return storage.ErrPreconditionFailed
	case errors.Is(err, stores.ErrFlowRecordContext):
		return ErrInvalidContext
	case errors.Is(err, stores.ErrFlowRecordCorrupt):
		return fmt.Errorf("%w: %w", ErrCorruptFlow, err)
	default:
		return err
	}
}

func (a *Authorization) startSpan(ctx context.Context, name, handlerID string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name, trace.WithAttributes(attrHandler(handlerID)))
}

func attrHandler(id string) attribute.KeyValue {
	return attribute.String("handler", id)
}

func endSpan(span trace.Span, tag flow.Tag, err error) {
	if tag != "" {
		span.SetAttributes(attribute.String("tag", string(tag)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
