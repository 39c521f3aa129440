package obo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	agentAuth "github.com/MrEthical07/agentAuth"
	"github.com/MrEthical07/agentAuth/internal/httpclient"
	"github.com/MrEthical07/agentAuth/jwt"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	// maxCacheTTL caps how long any entry stays in the LRU; entries also
	// carry their own expiry.
	maxCacheTTL = time.Hour
)

// ErrUnknownConnection is returned for a connection name that was not configured.
var ErrUnknownConnection = errors.New("obo: unknown connection")

// Connection is one confidential client able to run the JWT-bearer grant.
type Connection struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Scopes are used when Exchange is called without scopes.
	Scopes []string
}

type Option func(*Provider)

// WithHTTPClient sets the client used to reach token endpoints. Defaults to a
// retrying client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithCache sets the exchanged-token cache size and the safety margin
// subtracted from each token's lifetime. A size of 0 disables caching.
func WithCache(size int, skew time.Duration) Option {
	return func(p *Provider) {
		p.cacheSize = size
		p.skew = skew
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithClock overrides time.Now for cache expiry checks.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// Provider exchanges user tokens on behalf of the user. Safe for concurrent use.
type Provider struct {
	connections map[string]Connection
	httpClient  *http.Client
	cacheSize   int
	skew        time.Duration
	cache       *expirable.LRU[string, agentAuth.TokenResponse]
	logger      *slog.Logger
	now         func() time.Time
}

var _ agentAuth.OBOProvider = (*Provider)(nil)

// NewProvider returns a Provider for the given connections.
func NewProvider(connections map[string]Connection, opts ...Option) *Provider {
	p := &Provider{
		connections: make(map[string]Connection, len(connections)),
		cacheSize:   1024,
		skew:        time.Minute,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for name, conn := range connections {
		conn.Scopes = slices.Clone(conn.Scopes)
		p.connections[name] = conn
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.httpClient == nil {
		p.httpClient = httpclient.New(httpclient.WithLogger(p.logger)).StandardClient()
	}
	if p.cacheSize > 0 {
		p.cache = expirable.NewLRU[string, agentAuth.TokenResponse](p.cacheSize, nil, maxCacheTTL)
	}
	return p
}

// FromDefinitions builds a Provider from the connections section of a
// handler definitions file, using cfg for the cache settings.
func FromDefinitions(defs agentAuth.HandlerDefinitions, cfg agentAuth.ExchangeConfig, opts ...Option) *Provider {
	conns := make(map[string]Connection, len(defs.Connections))
	for name, def := range defs.Connections {
		conns[name] = Connection{
			TokenURL:     def.TokenURL,
			ClientID:     def.ClientID,
			ClientSecret: def.Secret(),
			Scopes:       def.Scopes,
		}
	}
	opts = append([]Option{WithCache(cfg.CacheSize, cfg.CacheSkew)}, opts...)
	return NewProvider(conns, opts...)
}

// Exchange trades assertion for a token scoped to scopes through the named
// connection.
func (p *Provider) Exchange(ctx context.Context, connectionName string, scopes []string, assertion string) (*agentAuth.TokenResponse, error) {
	conn, ok := p.connections[connectionName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, connectionName)
	}
	if assertion == "" {
		return nil, errors.New("obo: empty assertion")
	}
	if len(scopes) == 0 {
		scopes = conn.Scopes
	}

	key := cacheKey(connectionName, scopes, assertion)
	if tok, ok := p.cached(key); ok {
		return &tok, nil
	}

	cc := clientcredentials.Config{
		ClientID:     conn.ClientID,
		ClientSecret: conn.ClientSecret,
		TokenURL:     conn.TokenURL,
		Scopes:       scopes,
		EndpointParams: url.Values{
			"grant_type":          {grantTypeJWTBearer},
			"assertion":           {assertion},
			"requested_token_use": {"on_behalf_of"},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("obo: exchange via %q: %w", connectionName, err)
	}

	out := agentAuth.TokenResponse{
		Token:          tok.AccessToken,
		ConnectionName: connectionName,
		Expiration:     tok.Expiry,
	}
	if out.Expiration.IsZero() {
		if exp, ok := jwt.ExpiresAt(tok.AccessToken); ok {
			out.Expiration = exp
		}
	}
	p.store(key, out)

	p.logger.DebugContext(ctx, "obo token exchanged", "connection", connectionName, "scopes", strings.Join(scopes, " "))
	return &out, nil
}

func (p *Provider) cached(key string) (agentAuth.TokenResponse, bool) {
	if p.cache == nil {
		return agentAuth.TokenResponse{}, false
	}
	tok, ok := p.cache.Get(key)
	if !ok {
		return agentAuth.TokenResponse{}, false
	}
	if !p.now().Before(tok.Expiration.Add(-p.skew)) {
		p.cache.Remove(key)
		return agentAuth.TokenResponse{}, false
	}
	return tok, true
}

// store caches tokens that outlive the skew. Tokens without a known expiry
// are never cached.
func (p *Provider) store(key string, tok agentAuth.TokenResponse) {
	if p.cache == nil || tok.Expiration.IsZero() {
		return
	}
	if !p.now().Before(tok.Expiration.Add(-p.skew)) {
		return
	}
	p.cache.Add(key, tok)
}

// Purge drops every cached token.
func (p *Provider) Purge() {
	if p.cache != nil {
		p.cache.Purge()
	}
}

func cacheKey(connection string, scopes []string, assertion string) string {
	sorted := slices.Clone(scopes)
	slices.Sort(sorted)
	sum := sha256.Sum256([]byte(assertion))
	return connection + "\x00" + strings.Join(sorted, " ") + "\x00" + hex.EncodeToString(sum[:])
}
