package tokenservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/agentAuth/internal/httpclient"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	pathGetToken          = "/api/usertoken/GetToken"
	pathExchange          = "/api/usertoken/exchange"
	pathSignOut           = "/api/usertoken/SignOut"
	pathGetSignInResource = "/api/botsignin/GetSignInResource"

	maxErrorBody = 64 << 10
)

type Option func(*Client)

// WithTokenSource authenticates every request with the bot's app token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

// WithAppCredentials authenticates with a client-credentials app token.
func WithAppCredentials(tokenURL, clientID, clientSecret string, scopes ...string) Option {
	return func(c *Client) {
		c.appCredentials = &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		}
	}
}

// WithHTTPOptions configures the underlying retrying client.
func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(c *Client) {
		c.httpOptions = append(c.httpOptions, opts...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to one token service endpoint. Safe for concurrent use.
type Client struct {
	baseURL        *url.URL
	http           *retryablehttp.Client
	httpOptions    []httpclient.Option
	tokenSource    oauth2.TokenSource
	appCredentials *clientcredentials.Config
	logger         *slog.Logger
}

// NewClient returns a Client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("token service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("token service url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL: u,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = httpclient.New(append([]httpclient.Option{httpclient.WithLogger(c.logger)}, c.httpOptions...)...)
	if c.tokenSource == nil && c.appCredentials != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.http.StandardClient())
		c.tokenSource = c.appCredentials.TokenSource(ctx)
	}
	return c, nil
}

// GetUserToken returns the user's stored token for connectionName, redeeming
// magicCode first when it is non-empty. A user without a token yields nil.
func (c *Client) GetUserToken(ctx context.Context, userID, connectionName, channelID, magicCode string) (*TokenResponse, error) {
	q := url.Values{
		"userId":         {userID},
		"connectionName": {connectionName},
		"channelId":      {channelID},
	}
	if magicCode != "" {
		q.Set("code", magicCode)
	}

	var out TokenResponse
	found, err := c.do(ctx, http.MethodGet, pathGetToken, q, nil, &out)
	if err != nil || !found {
		return nil, err
	}
	if out.Token == "" {
		return nil, nil
	}
	return &out, nil
}

// GetSignInResource returns the sign-in link for state.
func (c *Client) GetSignInResource(ctx context.Context, state SignInState) (*SignInResource, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	q := url.Values{"state": {base64.StdEncoding.EncodeToString(raw)}}

	var out SignInResource
	found, err := c.do(ctx, http.MethodGet, pathGetSignInResource, q, nil, &out)
	if err != nil {
		return nil, err
	}
	if !found || out.SignInLink == "" {
		return nil, errors.New("token service: no sign-in link for connection " + state.ConnectionName)
	}
	return &out, nil
}

// ExchangeToken trades an SSO token for the user's token on connectionName.
// A token the service cannot exchange yields nil.
func (c *Client) ExchangeToken(ctx context.Context, userID, connectionName, channelID string, req ExchangeRequest) (*TokenResponse, error) {
	q := url.Values{
		"userId":         {userID},
		"connectionName": {connectionName},
		"channelId":      {channelID},
	}

	var out TokenResponse
	found, err := c.do(ctx, http.MethodPost, pathExchange, q, req, &out)
	if err != nil || !found {
		return nil, err
	}
	if out.Token == "" {
		return nil, nil
	}
	return &out, nil
}

// SignOut removes the user's token for connectionName. An empty
// connectionName signs the user out of every connection.
func (c *Client) SignOut(ctx context.Context, userID, connectionName, channelID string) error {
	q := url.Values{
		"userId":    {userID},
		"channelId": {channelID},
	}
	if connectionName != "" {
		q.Set("connectionName", connectionName)
	}
	_, err := c.do(ctx, http.MethodDelete, pathSignOut, q, nil, nil)
	return err
}

// do performs one call. found is false for 404 responses, which the service
// uses for "no token".
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) (found bool, err error) {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return false, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokenSource != nil {
		tok, err := c.tokenSource.Token()
		if err != nil {
			return false, fmt.Errorf("token service: app token: %w", err)
		}
		tok.SetAuthHeader(req.Request)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("token service: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, statusError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return true, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("token service: decode %s: %w", path, err)
	}
	return true, nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
		se.Code = body.Error.Code
		se.Message = body.Error.Message
	}
	return se
}
