package agentAuth

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// next waits for the next event of type eventType, skipping others.
func (s *captureSink) next(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.events:
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected audit event %q", eventType)
		}
	}
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	env := newFlowTestEnv(t, func(c *Config) {
		c.Audit.Enabled = false
	}, withEnvAuditSink(sink))

	if _, err := env.auth.Begin(context.Background(), env.turn("hello"), "graph"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	env.auth.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEnabledSinkReceivesEventWithFields(t *testing.T) {
	sink := newCaptureSink(8)
	env := newFlowTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 16
		c.Audit.DropIfFull = true
	}, withEnvAuditSink(sink))

	ctx := WithRequestID(context.Background(), "req-42")
	if _, err := env.auth.Begin(ctx, env.turn("hello"), "graph"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	ev := sink.next(t, auditEventFlowBegin)
	if ev.ChannelID != "msteams" || ev.UserID != "user-1" {
		t.Fatalf("unexpected identity in event: %+v", ev)
	}
	if ev.HandlerID != "graph" || ev.Tag != "continue" {
		t.Fatalf("unexpected handler/tag in event: %+v", ev)
	}
	if ev.TenantID != "tenant-1" || ev.ConversationID != "conv-1" {
		t.Fatalf("unexpected conversation in event: %+v", ev)
	}
	if ev.RequestID != "req-42" {
		t.Fatalf("expected request id req-42, got %q", ev.RequestID)
	}
	if !ev.Success || ev.Error != "" {
		t.Fatalf("expected successful event, got %+v", ev)
	}
	if !ev.Timestamp.Equal(env.clock().UTC()) {
		t.Fatalf("expected timestamp from injected clock, got %v", ev.Timestamp)
	}
}

func TestAuditFailureCarriesErrorCodeNotMessage(t *testing.T) {
	sink := newCaptureSink(16)
	env := newFlowTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Flow.MaxAttempts = 1
	}, withEnvAuditSink(sink))
	ctx := context.Background()

	env.driver.continueErrs = []error{errProviderRejected}
	if _, err := env.auth.Begin(ctx, env.turn("hello"), "graph"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := env.auth.ContinueFlow(ctx, env.turn("999999"), "graph"); err != nil {
		t.Fatalf("continue failed: %v", err)
	}

	ev := sink.next(t, auditEventFlowFailure)
	if ev.Success {
		t.Fatal("expected failure event")
	}
	if ev.Error != string(auditErrProvider) {
		t.Fatalf("expected error code %q, got %q", auditErrProvider, ev.Error)
	}
	if ev.Metadata["attempts_remaining"] != "0" {
		t.Fatalf("expected attempts_remaining=0, got %v", ev.Metadata)
	}
}

func TestAuditNoTokensInEvents(t *testing.T) {
	const userToken = "user-token-secret"
	const exchanged = "exchanged-token-secret"

	sink := newCaptureSink(32)
	env := newFlowTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 32
		c.Audit.DropIfFull = false
	}, withEnvAuditSink(sink))
	ctx := context.Background()

	env.driver.continueTokens = []*TokenResponse{{Token: userToken}}
	env.driver.userToken = &TokenResponse{Token: exchangeableToken(t, "api://downstream")}
	env.obo.token = &TokenResponse{Token: exchanged}

	if _, err := env.auth.Begin(ctx, env.turn("hello"), "graph"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if _, err := env.auth.ContinueFlow(ctx, env.turn("123456"), "graph"); err != nil {
		t.Fatalf("continue failed: %v", err)
	}
	if _, err := env.auth.ExchangeToken(ctx, env.turn("call api"), nil, "graph"); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if err := env.auth.SignOut(ctx, env.turn("logout"), "graph"); err != nil {
		t.Fatalf("sign out failed: %v", err)
	}
	env.auth.Close()

	needles := []string{userToken, exchanged, env.driver.userToken.Token}
	close(sink.events)
	count := 0
	for ev := range sink.events {
		count++
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("token leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("token leaked in audit metadata: %q", needle)
				}
			}
		}
	}
	if count < 4 {
		t.Fatalf("expected at least 4 audit events, got %d", count)
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink, nil)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink, nil)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventFlowComplete,
		UserID:    "u1",
		HandlerID: "graph",
		Success:   true,
	}
	sink.Emit(context.Background(), event)

	if !buf.Contains("flow_complete") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains("\"user_id\":\"u1\"") {
		t.Fatal("expected JSON log line to contain user id")
	}
	if !buf.Contains("\n") {
		t.Fatal("expected newline-terminated record")
	}
}

func TestAuditSlogSinkWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := SlogSink{Logger: logger, Level: slog.LevelInfo}

	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventSignOut,
		ChannelID: "msteams",
		UserID:    "u1",
		HandlerID: "github",
		Success:   true,
	})

	out := buf.String()
	for _, want := range []string{`"event":"sign_out"`, `"user":"u1"`, `"handler":"github"`, `"success":true`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{}, nil)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
}

func TestAuditDispatcherCloseFlushesQueue(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 64,
		DropIfFull: false,
	}, sink, nil)

	for i := 0; i < 50; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e"})
	}
	dispatcher.Close()

	if sink.Count() != 50 {
		t.Fatalf("expected 50 events after close, got %d", sink.Count())
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrHandlerNotFound, auditErrHandlerNotFound},
		{ErrInvalidContext, auditErrInvalidContext},
		{ErrFlowAlreadyActive, auditErrFlowAlreadyActive},
		{ErrConcurrentModification, auditErrConcurrentModify},
		{ErrExchangeUnavailable, auditErrExchangeUnavailable},
		{context.Canceled, auditErrCanceled},
		{errProviderRejected, auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
