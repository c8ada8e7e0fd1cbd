// Package lacus is a client for Lacus, a capture service that renders web
// pages in a remote browser and keeps the artifacts around for a while.
//
// A Client holds no mutable state after NewClient returns, so one instance can
// be shared between goroutines.
package lacus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lacus-client/internal/retry"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/xerrors"
)

const Version = "1.0.0"

const probeTimeout = 2 * time.Second

type Config struct {
	// UserAgent is sent to Lacus itself, it is not passed to the captures.
	UserAgent string
	// Proxy is used to reach Lacus, not the proxy given to the capture.
	Proxy *url.URL
	// Timeout bounds every call except IsUp, which always uses two seconds.
	Timeout time.Duration

	MaxRetries      uint
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	// RetryOn is a comma separated list understood by retry.NewRetryOnFromString.
	// Empty means 500, 502, 503, 504 and connect failures.
	RetryOn string

	// Transport is the innermost RoundTripper, http.DefaultTransport if nil.
	Transport      http.RoundTripper
	Logger         *slog.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func DefaultConfig() Config {
	return Config{
		UserAgent:       fmt.Sprintf("lacus-client/%s", Version),
		Timeout:         30 * time.Second,
		MaxRetries:      5,
		RetryBackoff:    100 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
	}
}

type Client struct {
	rootURL          *url.URL
	userAgent        string
	httpClient       *http.Client
	probeClient      *http.Client
	logger           *slog.Logger
	requestsDuration metric.Int64Histogram
}

// ResponseError is returned when Lacus answers with a non 2xx status, after
// the retry policy gave up.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

var ErrEmptyIdentifier = errors.New("lacus returned an empty capture identifier")

// NewClient creates a client for the instance at rootURL. A missing scheme
// defaults to http.
func NewClient(rootURL string, config Config) (*Client, error) {
	if rootURL == "" {
		return nil, xerrors.New("root URL is required")
	}
	if !strings.Contains(rootURL, "://") {
		rootURL = "http://" + rootURL
	}
	if !strings.HasSuffix(rootURL, "/") {
		rootURL += "/"
	}
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse root URL %s: %w", rootURL, err)
	}
	if u.Host == "" {
		return nil, xerrors.Errorf("root URL %s has no host", rootURL)
	}

	retryOn := retry.NewDefaultRetryOn()
	if config.RetryOn != "" {
		retryOn, err = retry.NewRetryOnFromString(config.RetryOn)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse retry policy: %w", err)
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meterProvider := config.MeterProvider
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	tracerProvider := config.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}

	base := config.Transport
	if base == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if config.Proxy != nil {
			transport.Proxy = http.ProxyURL(config.Proxy)
		}
		base = transport
	}
	instrumented := otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(tracerProvider),
		otelhttp.WithMeterProvider(meterProvider),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("lacus %s %s", r.Method, r.URL.Path)
		}),
	)

	var strategy retry.Strategy = retry.NewNever()
	if config.MaxRetries > 0 {
		strategy = retry.NewExponentialBackOff(config.RetryBackoff, config.RetryBackoffMax, config.MaxRetries, nil)
	}

	requestsDuration, err := meterProvider.Meter("lacus-client").Int64Histogram(
		"lacus_client_requests_duration_micro_seconds",
		metric.WithDescription("Duration of calls to the Lacus API, retries included"),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = DefaultConfig().UserAgent
	}

	return &Client{
		rootURL:   u,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &retry.Transport{
				Base:          instrumented,
				RetryStrategy: strategy,
				RetryOn:       retryOn,
				Logger:        logger,
			},
		},
		probeClient: &http.Client{
			Timeout:   probeTimeout,
			Transport: instrumented,
		},
		logger:           logger,
		requestsDuration: requestsDuration,
	}, nil
}

func (c *Client) RootURL() string {
	return c.rootURL.String()
}

// IsUp reports whether the instance answers HEAD / with 200. Connection
// failures are reported as false, never as an error.
func (c *Client) IsUp(ctx context.Context) bool {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, c.rootURL.String(), nil)
	if err != nil {
		return false
	}
	request.Header.Set("User-Agent", c.userAgent)

	response, err := c.probeClient.Do(request)
	if err != nil {
		c.logger.Debug("lacus is not reachable", "url", c.rootURL.String(), "error", err)
		return false
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	return response.StatusCode == http.StatusOK
}

// RedisUp returns the liveness of the Redis instance backing Lacus, as
// reported by Lacus: a boolean, or an object on some versions.
func (c *Client) RedisUp(ctx context.Context) (any, error) {
	var up any
	if err := c.get(ctx, "redis_up", nil, &up, "redis_up"); err != nil {
		return nil, err
	}
	return up, nil
}

func (c *Client) endpoint(query url.Values, elem ...string) string {
	escaped := make([]string, 0, len(elem))
	for _, e := range elem {
		escaped = append(escaped, url.PathEscape(e))
	}
	u := c.rootURL.JoinPath(escaped...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any, operation string, elem ...string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(query, append([]string{path}, elem...)...), nil)
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	return c.do(request, out, operation)
}

func (c *Client) post(ctx context.Context, path string, in any, out any, operation string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return xerrors.Errorf("failed to marshal request body: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(nil, path), bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	return c.do(request, out, operation)
}

func (c *Client) do(request *http.Request, out any, operation string) error {
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept", "application/json")

	now := time.Now()
	defer func() {
		c.requestsDuration.Record(request.Context(), time.Since(now).Microseconds(), metric.WithAttributes(
			attribute.Key("method").String(request.Method),
			attribute.Key("operation").String(operation),
		))
	}()

	c.logger.Debug("calling lacus", "method", request.Method, "url", request.URL.String())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return xerrors.Errorf("failed to send request: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1<<10))
		return &ResponseError{
			Method:     request.Method,
			URL:        request.URL.String(),
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return xerrors.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}
