// Package httpclient builds the retrying HTTP client shared by the token
// service client and the on-behalf-of provider.
package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// leveledSlog adapts slog to retryablehttp. Intermediate failures are
// retried, so errors are logged at WARN.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l leveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

func (l leveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type Option func(*retryablehttp.Client)

func WithMaxRetries(n int) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = n
	}
}

// WithRetryWait bounds the backoff between attempts.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *retryablehttp.Client) {
		c.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: logger})
	}
}

// WithTransport replaces the traced pooled transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *retryablehttp.Client) {
		c.HTTPClient.Transport = transport
	}
}

// New returns a retryablehttp client that retries connection errors and 5xx
// responses (except 501), but not 429. Each attempt is traced.
func New(options ...Option) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	c.HTTPClient.Timeout = 30 * time.Second
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: slog.Default().With("subsystem", "agentauth-http")})
	c.CheckRetry = RetryPolicy

	for _, option := range options {
		option(c)
	}
	return c
}

// RetryPolicy wraps retryablehttp.DefaultRetryPolicy and leaves 429 to the
// caller.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
