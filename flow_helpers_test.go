package agentAuth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/agentAuth/activity"
	"github.com/MrEthical07/agentAuth/storage"
)

var errProviderRejected = errors.New("provider rejected code")

// fakeDriver is a scripted OAuthFlow. Continue results are consumed in order;
// once the script runs out, continuations return no token and no error.
type fakeDriver struct {
	mu sync.Mutex

	beginToken     *TokenResponse
	beginErr       error
	beginHook      func(ctx context.Context)
	continueTokens []*TokenResponse
	continueErrs   []error
	continueHook   func(ctx context.Context)
	userToken      *TokenResponse
	userErr        error
	signOutErr     error

	beginCalls    int
	continueCalls int
	getCalls      int
	signOutCalls  int
}

func (d *fakeDriver) BeginFlow(ctx context.Context, tc activity.TurnContext) (*TokenResponse, error) {
	d.mu.Lock()
	d.beginCalls++
	hook, tok, err := d.beginHook, d.beginToken, d.beginErr
	d.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return tok, err
}

func (d *fakeDriver) ContinueFlow(ctx context.Context, tc activity.TurnContext) (*TokenResponse, error) {
	d.mu.Lock()
	i := d.continueCalls
	d.continueCalls++
	hook := d.continueHook
	var (
		tok *TokenResponse
		err error
	)
	if i < len(d.continueTokens) {
		tok = d.continueTokens[i]
	}
	if i < len(d.continueErrs) {
		err = d.continueErrs[i]
	}
	d.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return tok, err
}

func (d *fakeDriver) GetUserToken(ctx context.Context, tc activity.TurnContext) (*TokenResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.getCalls++
	return d.userToken, d.userErr
}

func (d *fakeDriver) SignOut(ctx context.Context, tc activity.TurnContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signOutCalls++
	return d.signOutErr
}

func (d *fakeDriver) calls() (begin, cont, get, signOut int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.beginCalls, d.continueCalls, d.getCalls, d.signOutCalls
}

type oboCall struct {
	connection string
	scopes     []string
	assertion  string
}

type fakeOBO struct {
	mu    sync.Mutex
	token *TokenResponse
	err   error
	calls []oboCall
}

func (p *fakeOBO) Exchange(ctx context.Context, connectionName string, scopes []string, assertion string) (*TokenResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, oboCall{connection: connectionName, scopes: scopes, assertion: assertion})
	if p.err != nil {
		return nil, p.err
	}
	if p.token == nil {
		return nil, nil
	}
	out := *p.token
	return &out, nil
}

type flowTestEnv struct {
	auth    *Authorization
	store   storage.Storage
	driver  *fakeDriver
	github  *fakeDriver
	obo     *fakeOBO
	channel string
	user    string

	clockMu sync.Mutex
	now     time.Time
}

func (e *flowTestEnv) clock() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	return e.now
}

func (e *flowTestEnv) advance(d time.Duration) {
	e.clockMu.Lock()
	e.now = e.now.Add(d)
	e.clockMu.Unlock()
}

func (e *flowTestEnv) turn(text string) *activity.Turn {
	return activity.NewTurn(&activity.Activity{
		Type:         activity.TypeMessage,
		ID:           "act-" + text,
		ChannelID:    e.channel,
		From:         activity.ChannelAccount{ID: e.user, Name: "Ada"},
		Recipient:    activity.ChannelAccount{ID: "bot"},
		Conversation: activity.ConversationAccount{ID: "conv-1", TenantID: "tenant-1"},
		Text:         text,
	}, nil)
}

type flowEnvOption func(*flowTestEnv, *Builder)

func withEnvStorage(s storage.Storage) flowEnvOption {
	return func(e *flowTestEnv, b *Builder) {
		e.store = s
		b.WithStorage(s)
	}
}

func withEnvAuditSink(sink AuditSink) flowEnvOption {
	return func(_ *flowTestEnv, b *Builder) {
		b.WithAuditSink(sink)
	}
}

// newFlowTestEnv builds an Authorization with two handlers: "graph"
// (exchangeable through "graph-obo") and "github".
func newFlowTestEnv(t *testing.T, mutate func(*Config), opts ...flowEnvOption) *flowTestEnv {
	t.Helper()

	env := &flowTestEnv{
		store:   storage.NewMemoryStorage(),
		driver:  &fakeDriver{},
		github:  &fakeDriver{},
		obo:     &fakeOBO{},
		channel: "msteams",
		user:    "user-1",
		now:     time.Unix(1_700_000_000, 0),
	}

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	b := New().
		WithConfig(cfg).
		WithStorage(env.store).
		WithHandler(AuthHandler{
			ID:                "graph",
			ConnectionName:    "graph-conn",
			OBOConnectionName: "graph-obo",
			Title:             "Sign in to Microsoft Graph",
			Scopes:            []string{"api://downstream/.default"},
		}, env.driver).
		WithHandler(AuthHandler{
			ID:             "github",
			ConnectionName: "github-conn",
		}, env.github).
		WithOBOProvider(env.obo).
		WithClock(env.clock)
	for _, opt := range opts {
		opt(env, b)
	}

	auth, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(auth.Close)
	env.auth = auth
	return env
}
