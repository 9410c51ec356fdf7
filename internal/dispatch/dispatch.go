// Package dispatch implements the retry/fallback policy that turns one
// accepted payment request into either a persisted Payment record or a
// re-enqueue signal: up to three attempts against the default processor,
// one attempt against the fallback, a fixed sleep between attempts.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"paydispatch/internal/payment"
	"paydispatch/internal/upstream"
)

// ErrBothProcessorsUnavailable is returned when every attempt against
// both processors failed. The caller is expected to re-enqueue the
// original request.
var ErrBothProcessorsUnavailable = errors.New("both processors unavailable")

const (
	defaultAttempts   = 3
	fallbackAttempts  = 1
	interAttemptSleep = 100 * time.Millisecond
)

// Poster is the subset of upstream.Client the policy needs.
type Poster interface {
	Post(ctx context.Context, p payment.Processor, req payment.Request) error
}

// Snapshotter is the subset of health.Sampler the policy reads, only when
// health-awareness is enabled, to decide whether to skip the default
// processor.
type Snapshotter interface {
	Snapshot(p payment.Processor) *upstream.HealthState
}

// Store is the subset of store.Store the policy needs to persist a
// successfully-dispatched payment.
type Store interface {
	IndexPayment(ctx context.Context, p payment.Processor, recordBytes []byte, score float64) error
}

// Policy runs the dispatch algorithm for one request.
type Policy struct {
	poster       Poster
	store        Store
	snapshotter  Snapshotter
	logger       *slog.Logger
	healthAware  bool
	attemptSleep time.Duration
}

// Option configures a Policy.
type Option func(*Policy)

// WithHealthAwareness makes the policy skip a default processor known to
// be failing and go straight to fallback, instead of the health-blind
// reference behavior. Disabled by default.
func WithHealthAwareness() Option {
	return func(p *Policy) { p.healthAware = true }
}

// WithAttemptSleep overrides the fixed inter-attempt sleep, for tests.
func WithAttemptSleep(d time.Duration) Option {
	return func(p *Policy) { p.attemptSleep = d }
}

// New builds a Policy.
func New(poster Poster, store Store, snapshotter Snapshotter, logger *slog.Logger, opts ...Option) *Policy {
	p := &Policy{
		poster:       poster,
		store:        store,
		snapshotter:  snapshotter,
		logger:       logger,
		attemptSleep: interAttemptSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the dispatch algorithm for req: stamp requested_at, try
// the default processor up to three times, then the fallback processor
// once, and persist the resulting Payment on the first success. If every
// attempt fails it returns ErrBothProcessorsUnavailable and the caller
// must re-enqueue the original request.
func (p *Policy) Run(ctx context.Context, req payment.Request) (payment.Payment, error) {
	req.RequestedAt = time.Now().UTC()

	tracer := otel.Tracer("dispatch")
	ctx, span := tracer.Start(ctx, "dispatch.run", trace.WithAttributes(
		attribute.String("correlation_id", req.CorrelationID),
	))
	defer span.End()

	order := p.processorOrder()

	for _, proc := range order {
		attempts := defaultAttempts
		if proc == payment.Fallback {
			attempts = fallbackAttempts
		}

		for attempt := 1; attempt <= attempts; attempt++ {
			start := time.Now()
			err := p.poster.Post(ctx, proc, req)
			elapsed := time.Since(start)

			if err == nil {
				p.logger.Info("dispatch attempt succeeded",
					"correlation_id", req.CorrelationID,
					"processor", proc,
					"attempt", attempt,
					"elapsed_ms", elapsed.Milliseconds(),
				)
				span.SetStatus(codes.Ok, "")
				return p.persist(ctx, req, proc)
			}

			p.logger.Warn("dispatch attempt failed",
				"correlation_id", req.CorrelationID,
				"processor", proc,
				"attempt", attempt,
				"elapsed_ms", elapsed.Milliseconds(),
				"error", err,
			)
			span.RecordError(err)

			if attempt < attempts {
				select {
				case <-ctx.Done():
					return payment.Payment{}, ctx.Err()
				case <-time.After(p.attemptSleep):
				}
			}
		}
	}

	span.SetStatus(codes.Error, "both processors unavailable")
	return payment.Payment{}, ErrBothProcessorsUnavailable
}

func (p *Policy) processorOrder() []payment.Processor {
	if p.healthAware && p.snapshotter != nil {
		if state := p.snapshotter.Snapshot(payment.Default); state != nil && state.Failing {
			return []payment.Processor{payment.Fallback}
		}
	}
	return []payment.Processor{payment.Default, payment.Fallback}
}

func (p *Policy) persist(ctx context.Context, req payment.Request, proc payment.Processor) (payment.Payment, error) {
	rec := payment.New(req, proc)
	data, err := rec.Encode()
	if err != nil {
		return payment.Payment{}, err
	}
	score := float64(rec.RequestedAt.UnixNano()) / 1e9
	if err := p.store.IndexPayment(ctx, proc, data, score); err != nil {
		return payment.Payment{}, err
	}
	return rec, nil
}
