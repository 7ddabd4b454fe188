// Package fetch downloads source units over HTTP and splits them into records.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/book-harvester/internal/core/domain"
	coreerrors "github.com/lueurxax/book-harvester/internal/core/errors"
	"github.com/lueurxax/book-harvester/internal/platform/observability"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = time.Second
	delayMultiplier   = 2
	maxRedirects      = 10
	maxBodyBytes      = 20 * 1024 * 1024

	// DefaultUserAgent is sent when neither the source nor the process configures one.
	DefaultUserAgent = "BookHarvester/1.0"

	placeholderID   = "{id}"
	placeholderPage = "{page}"

	headerUserAgent = "User-Agent"
	headerAccept    = "Accept"
)

var errTooManyRedirects = errors.New("too many redirects")

// statusError is an unexpected HTTP status.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// Client fetches units for any number of sources. Each source gets its own
// HTTP client and rate limiter, created on first use.
type Client struct {
	logger    *zerolog.Logger
	userAgent string
	transport http.RoundTripper

	mu      sync.Mutex
	sources map[string]*sourceClient
}

type sourceClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTransport sets the base transport. TLS settings of a source are applied
// only when the transport is an *http.Transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// New creates a fetch client.
func New(logger *zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		logger:    logger,
		userAgent: DefaultUserAgent,
		sources:   make(map[string]*sourceClient),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// URL builds the request URL of an address.
func URL(cfg *domain.SourceConfig, address int64) string {
	n := strconv.FormatInt(address, 10)

	path := cfg.PathTemplate
	if path == "" && cfg.Mode() == domain.AddressByID {
		path = placeholderID
	}

	path = strings.ReplaceAll(path, placeholderID, n)
	path = strings.ReplaceAll(path, placeholderPage, n)

	base := cfg.BaseURL
	if path == "" {
		return base
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	if strings.HasPrefix(path, "?") {
		return base + path
	}

	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func addressed(cfg *domain.SourceConfig) bool {
	return strings.Contains(cfg.PathTemplate, placeholderID) || strings.Contains(cfg.PathTemplate, placeholderPage)
}

// Fetch downloads the unit at address and splits it into records. Network
// errors, 429 and 5xx responses are retried with exponential backoff.
func (c *Client) Fetch(ctx context.Context, cfg *domain.SourceConfig, address int64) Outcome {
	start := time.Now()
	out := c.fetch(ctx, cfg, address)

	observability.FetchDuration.WithLabelValues(cfg.Name).Observe(time.Since(start).Seconds())
	observability.UnitsFetched.WithLabelValues(cfg.Name, out.Result()).Inc()

	return out
}

func (c *Client) fetch(ctx context.Context, cfg *domain.SourceConfig, address int64) Outcome {
	if cfg.Mode() == domain.AddressByPage && address > 1 && !addressed(cfg) {
		// a single-document source has only page 1
		return EndOfData{}
	}

	target := URL(cfg, address)
	sc := c.clientFor(cfg)

	maxRetries := cfg.HTTP.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	delay := cfg.HTTP.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Transient{Err: fmt.Errorf("retry interrupted: %w", ctx.Err()), Status: lastStatus, Attempts: attempts}
			case <-time.After(delay):
				delay *= delayMultiplier
			}
		}

		attempts++

		body, status, err := c.get(ctx, sc, cfg, target)
		lastStatus = status

		switch {
		case err == nil:
			return c.decode(cfg, address, target, body, status)
		case status == http.StatusNotFound || status == http.StatusGone:
			if cfg.Mode() == domain.AddressByPage {
				return EndOfData{Status: status}
			}

			return Missing{Status: status}
		case !retryable(ctx, status):
			return Transient{Err: fmt.Errorf("%w: %w", coreerrors.ErrFetchFailed, err), Status: status, Attempts: attempts}
		}

		lastErr = err

		observability.FetchRetries.WithLabelValues(cfg.Name, statusLabel(status)).Inc()

		c.logger.Debug().
			Err(err).
			Str("source", cfg.Name).
			Int64("address", address).
			Int("attempt", attempts).
			Msg("fetch failed, retrying")
	}

	return Transient{Err: fmt.Errorf("%w: %w", coreerrors.ErrFetchFailed, lastErr), Status: lastStatus, Attempts: attempts}
}

func retryable(ctx context.Context, status int) bool {
	if ctx.Err() != nil {
		return false
	}

	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func statusLabel(status int) string {
	if status == 0 {
		return "network"
	}

	return strconv.Itoa(status)
}

func (c *Client) get(ctx context.Context, sc *sourceClient, cfg *domain.SourceConfig, target string) ([]byte, int, error) {
	if err := sc.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("create request: %w", err)
	}

	c.setHeaders(req, cfg)

	resp, err := sc.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)) //nolint:errcheck // draining for connection reuse

		return nil, resp.StatusCode, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}

	return body, resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request, cfg *domain.SourceConfig) {
	ua := cfg.HTTP.UserAgent
	if ua == "" {
		ua = c.userAgent
	}

	req.Header.Set(headerUserAgent, ua)

	switch cfg.Kind {
	case domain.SourceKindCrawler:
		req.Header.Set(headerAccept, "text/html,application/xhtml+xml")
	case domain.SourceKindFeed:
		req.Header.Set(headerAccept, "application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8")
	default:
		req.Header.Set(headerAccept, "application/json")
	}

	for k, v := range cfg.HTTP.Headers {
		req.Header.Set(k, v)
	}

	if cfg.HTTP.AuthToken != "" {
		header := cfg.HTTP.AuthHeader
		if header == "" {
			header = "Authorization"
		}

		req.Header.Set(header, cfg.HTTP.AuthToken)
	}
}

func (c *Client) clientFor(cfg *domain.SourceConfig) *sourceClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sc, ok := c.sources[cfg.Name]; ok {
		return sc
	}

	sc := &sourceClient{
		http:    c.newHTTPClient(cfg.HTTP),
		limiter: newLimiter(cfg.HTTP.RateLimitRPS),
	}
	c.sources[cfg.Name] = sc

	return sc
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) newHTTPClient(cfg domain.HTTPConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := c.transport

	if transport == nil {
		base, _ := http.DefaultTransport.(*http.Transport) //nolint:errcheck // the default is always *http.Transport
		transport = base.Clone()
	}

	if t, ok := transport.(*http.Transport); ok && !cfg.VerifySSL {
		t = t.Clone()
		if t.TLSClientConfig == nil {
			t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		t.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in per source
		transport = t
	}

	follow := cfg.FollowRedirects

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if !follow {
				return http.ErrUseLastResponse
			}

			if len(via) >= maxRedirects {
				return errTooManyRedirects
			}

			return nil
		},
	}
}
