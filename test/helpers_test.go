//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	agentAuth "github.com/MrEthical07/agentAuth"
	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const goodCode = "424242"

// codeDriver completes a sign-in when the user sends goodCode.
type codeDriver struct {
	mu          sync.Mutex
	tokens      map[string]string
	beginCalls  atomic.Int64
	lookupCalls atomic.Int64
}

func newCodeDriver() *codeDriver {
	return &codeDriver{tokens: make(map[string]string)}
}

func (d *codeDriver) BeginFlow(ctx context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	d.beginCalls.Add(1)
	return nil, nil
}

func (d *codeDriver) ContinueFlow(_ context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	if tc.Activity().Text != goodCode {
		return nil, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	tok := "token-" + tc.UserID()
	d.tokens[tc.UserID()] = tok
	return &agentAuth.TokenResponse{Token: tok}, nil
}

func (d *codeDriver) GetUserToken(_ context.Context, tc activity.TurnContext) (*agentAuth.TokenResponse, error) {
	d.lookupCalls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	tok, ok := d.tokens[tc.UserID()]
	if !ok {
		return nil, nil
	}
	return &agentAuth.TokenResponse{Token: tok}, nil
}

func (d *codeDriver) SignOut(_ context.Context, tc activity.TurnContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tokens, tc.UserID())
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type integrationEnv struct {
	auth   *agentAuth.Authorization
	driver *codeDriver
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func newIntegrationEnv(t *testing.T, maxAttempts int) *integrationEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &integrationEnv{
		driver: newCodeDriver(),
		clock:  &testClock{now: time.Unix(1_700_000_000, 0)},
		mr:     mr,
		rdb:    rdb,
	}

	cfg := agentAuth.DefaultConfig()
	cfg.Flow.MaxAttempts = maxAttempts
	cfg.Flow.Timeout = 10 * time.Minute
	cfg.Metrics.Enabled = true

	auth, err := agentAuth.New().
		WithConfig(cfg).
		WithStorage(storage.NewRedisStorage(rdb, storage.WithKeyPrefix("it"))).
		WithHandler(agentAuth.AuthHandler{ID: "graph", ConnectionName: "graph-conn"}, env.driver).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	env.auth = auth

	t.Cleanup(func() {
		auth.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

func userTurn(userID, text string) *activity.Turn {
	return activity.NewTurn(&activity.Activity{
		Type:         activity.TypeMessage,
		ID:           "act-" + text,
		ChannelID:    "msteams",
		From:         activity.ChannelAccount{ID: userID},
		Conversation: activity.ConversationAccount{ID: "conv-" + userID},
		Text:         text,
	}, nil)
}
