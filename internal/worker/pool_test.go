package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydispatch/internal/payment"
	"paydispatch/internal/queue"
)

type fakeDispatcher struct {
	run func(ctx context.Context, req payment.Request) (payment.Payment, error)
}

func (f *fakeDispatcher) Run(ctx context.Context, req payment.Request) (payment.Payment, error) {
	return f.run(ctx, req)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolProcessesAndStopsCleanly(t *testing.T) {
	var processed int32
	dispatcher := &fakeDispatcher{run: func(ctx context.Context, req payment.Request) (payment.Payment, error) {
		atomic.AddInt32(&processed, 1)
		return payment.Payment{CorrelationID: req.CorrelationID}, nil
	}}

	q := queue.New()
	p := New(q, dispatcher, discardLogger(), 2)
	p.Start(context.Background())

	for i := 0; i < 10; i++ {
		q.Put(payment.Request{CorrelationID: "c"})
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 10
	}, time.Second, 5*time.Millisecond)

	q.PutStop()
	q.PutStop()
	p.Wait()
}

func TestPoolReenqueuesOnDispatchFailure(t *testing.T) {
	var attempts int32
	dispatcher := &fakeDispatcher{run: func(ctx context.Context, req payment.Request) (payment.Payment, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return payment.Payment{}, errors.New("unavailable")
		}
		return payment.Payment{CorrelationID: req.CorrelationID}, nil
	}}

	q := queue.New()
	p := New(q, dispatcher, discardLogger(), 1)
	p.Start(context.Background())

	q.Put(payment.Request{CorrelationID: "retry-me"})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 3
	}, time.Second, 5*time.Millisecond)

	q.PutStop()
	p.Wait()
}

func TestPoolDoesNotReenqueueOnContextCancellation(t *testing.T) {
	var attempts int32
	dispatcher := &fakeDispatcher{run: func(ctx context.Context, req payment.Request) (payment.Payment, error) {
		atomic.AddInt32(&attempts, 1)
		return payment.Payment{}, context.Canceled
	}}

	q := queue.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := New(q, dispatcher, discardLogger(), 1)
	p.Start(ctx)

	q.Put(payment.Request{CorrelationID: "one-shot"})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))

	q.PutStop()
	p.Wait()
}
