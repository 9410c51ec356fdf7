// Package upstream talks to the two payment processors: POSTing a
// payment and GETing their health endpoint, each under a per-processor
// timeout and a shared concurrency limit that protects them from burst
// overload.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"paydispatch/internal/payment"
)

// ErrUnavailable covers both transport failures and the upstream
// returning any status other than 200 — the dispatcher treats both as
// "this attempt failed, try again or fall back".
var ErrUnavailable = errors.New("upstream unavailable")

// HTTPStatusError records a non-200 status so callers can log the exact
// code without losing the ErrUnavailable classification (it still
// unwraps to ErrUnavailable).
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

func (e *HTTPStatusError) Unwrap() error { return ErrUnavailable }

// HealthState is the latest known liveness/latency snapshot for one
// processor.
type HealthState struct {
	Failing         bool
	MinResponseTime int
	SampledAt       time.Time
}

type healthWire struct {
	Failing         bool `json:"failing"`
	MinResponseTime int  `json:"minResponseTime"`
}

type paymentWire struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
	RequestedAt   string  `json:"requestedAt"`
}

// Client posts payments and probes health for both processors. It holds
// two independent connection pools — one for dispatch traffic, one for
// the health sampler — so sampler probes never contend with payment
// traffic for sockets.
type Client struct {
	dispatchHTTP *http.Client
	samplerHTTP  *http.Client
	sem          *semaphore.Weighted

	defaultURL  string
	fallbackURL string

	defaultTimeout  time.Duration
	fallbackTimeout time.Duration
}

// Config configures a Client.
type Config struct {
	DefaultURL       string
	FallbackURL      string
	DefaultTimeout   time.Duration
	FallbackTimeout  time.Duration
	Concurrency      int64
	TelemetryEnabled bool
}

// New builds a Client with two independently-pooled http.Clients, each
// with bounded idle conns, a short dial timeout, and connection reuse.
// When telemetry is enabled each pool's transport is wrapped with
// otelhttp.
func New(cfg Config) *Client {
	newPool := func() *http.Client {
		var transport http.RoundTripper = &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   2 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 256,
			IdleConnTimeout:     90 * time.Second,
		}
		if cfg.TelemetryEnabled {
			transport = otelhttp.NewTransport(transport)
		}
		return &http.Client{Transport: transport}
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 64
	}

	return &Client{
		dispatchHTTP:    newPool(),
		samplerHTTP:     newPool(),
		sem:             semaphore.NewWeighted(concurrency),
		defaultURL:      cfg.DefaultURL,
		fallbackURL:     cfg.FallbackURL,
		defaultTimeout:  orDefault(cfg.DefaultTimeout, time.Second),
		fallbackTimeout: orDefault(cfg.FallbackTimeout, 10*time.Second),
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (c *Client) urlFor(p payment.Processor) string {
	if p == payment.Default {
		return c.defaultURL
	}
	return c.fallbackURL
}

// TimeoutFor returns the configured per-attempt timeout for p.
func (c *Client) TimeoutFor(p payment.Processor) time.Duration {
	if p == payment.Default {
		return c.defaultTimeout
	}
	return c.fallbackTimeout
}

// Post sends one payment attempt to processor p. Success is HTTP 200
// exactly — any other 2xx is treated as failure. The shared semaphore
// bounds simultaneous in-flight upstream requests across every
// concurrent dispatcher invocation.
func (c *Client) Post(ctx context.Context, p payment.Processor, req payment.Request) error {
	tracer := otel.Tracer("upstream")
	ctx, span := tracer.Start(ctx, "upstream.post", trace.WithAttributes(
		attribute.String("processor", string(p)),
		attribute.String("correlation_id", req.CorrelationID),
	))
	defer span.End()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: semaphore acquire: %v", ErrUnavailable, err)
	}
	defer c.sem.Release(1)

	body, err := sonic.ConfigFastest.Marshal(paymentWire{
		CorrelationID: req.CorrelationID,
		Amount:        req.Amount,
		RequestedAt:   req.RequestedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("encode payload: %w", err)
	}

	timeout := c.TimeoutFor(p)
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.urlFor(p)+"/payments", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.dispatchHTTP.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := &HTTPStatusError{Status: resp.StatusCode}
		span.RecordError(err)
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		span.SetStatus(codes.Error, "non-200 response")
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Health probes processor p's service-health endpoint on the sampler's
// dedicated pool. A 429 is treated as "don't know yet" rather than
// failing, by returning errRateLimited so the sampler can leave the
// prior snapshot untouched.
func (c *Client) Health(ctx context.Context, p payment.Processor) (HealthState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.urlFor(p)+"/payments/service-health", nil)
	if err != nil {
		return HealthState{}, err
	}

	resp, err := c.samplerHTTP.Do(req)
	if err != nil {
		return HealthState{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return HealthState{}, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return HealthState{}, &HTTPStatusError{Status: resp.StatusCode}
	}

	var wire healthWire
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return HealthState{}, fmt.Errorf("decode health response: %w", err)
	}

	return HealthState{
		Failing:         wire.Failing,
		MinResponseTime: wire.MinResponseTime,
		SampledAt:       time.Now().UTC(),
	}, nil
}

// errRateLimited signals Health's caller to keep the previous snapshot.
var errRateLimited = errors.New("health check rate limited")

// IsRateLimited reports whether err is the rate-limited sentinel from Health.
func IsRateLimited(err error) bool { return errors.Is(err, errRateLimited) }

// Close releases idle connections on both connection pools.
func (c *Client) Close() {
	c.dispatchHTTP.CloseIdleConnections()
	c.samplerHTTP.CloseIdleConnections()
}
