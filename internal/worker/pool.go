// Package worker runs the pool of goroutines that drain the ingest
// queue and invoke the dispatch policy. A failed dispatch is
// re-enqueued immediately onto the same unbounded queue rather than
// going through a delayed-retry heap — the only backoff in this system
// lives in the dispatcher's fixed inter-attempt sleep.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"paydispatch/internal/payment"
	"paydispatch/internal/queue"
)

// Dispatcher is the subset of dispatch.Policy the pool needs.
type Dispatcher interface {
	Run(ctx context.Context, req payment.Request) (payment.Payment, error)
}

// Pool owns N worker goroutines pulling from an ingest queue.
type Pool struct {
	queue      *queue.Queue
	dispatcher Dispatcher
	logger     *slog.Logger
	size       int

	grp *pool.Pool
}

// New builds a Pool of size workers. Size <= 0 is clamped to 1.
func New(q *queue.Queue, dispatcher Dispatcher, logger *slog.Logger, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		queue:      q,
		dispatcher: dispatcher,
		logger:     logger,
		size:       size,
	}
}

// Start launches the workers. Each one runs until it dequeues a Stop
// item. Panics inside a worker are caught by conc and re-raised when
// Wait is called, rather than crashing the process silently.
func (p *Pool) Start(ctx context.Context) {
	p.grp = pool.New().WithMaxGoroutines(p.size)
	for i := 0; i < p.size; i++ {
		p.grp.Go(func() {
			p.run(ctx)
		})
	}
}

// Wait blocks until every worker has exited, and re-raises any panic a
// worker suffered.
func (p *Pool) Wait() {
	p.grp.Wait()
}

func (p *Pool) run(ctx context.Context) {
	for {
		item := p.queue.Get()
		if item.Stop {
			return
		}
		p.process(ctx, item.Request)
	}
}

func (p *Pool) process(ctx context.Context, req payment.Request) {
	_, err := p.dispatcher.Run(ctx, req)
	if err == nil {
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.logger.Warn("dispatch abandoned on shutdown", "correlation_id", req.CorrelationID, "error", err)
		return
	}

	p.logger.Warn("dispatch exhausted, re-enqueuing", "correlation_id", req.CorrelationID, "error", err)
	req.RequestedAt = time.Time{}
	req.RetryCount++
	p.queue.Put(req)
}
