package health

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydispatch/internal/payment"
	"paydispatch/internal/upstream"
)

type fakeProber struct {
	calls int32
	state upstream.HealthState
	err   error
}

func (f *fakeProber) Health(ctx context.Context, p payment.Processor) (upstream.HealthState, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.state, f.err
}

type fakeStore struct {
	sets int32
}

func (f *fakeStore) SetHealth(ctx context.Context, data []byte) error {
	atomic.AddInt32(&f.sets, 1)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshotNilBeforeFirstSample(t *testing.T) {
	s := New(&fakeProber{}, &fakeStore{}, discardLogger(), time.Hour)
	assert.Nil(t, s.Snapshot(payment.Default))
	assert.Nil(t, s.Snapshot(payment.Fallback))
}

func TestSampleAllPopulatesBothSlots(t *testing.T) {
	prober := &fakeProber{state: upstream.HealthState{Failing: false, MinResponseTime: 42}}
	store := &fakeStore{}
	s := New(prober, store, discardLogger(), time.Hour)

	s.sampleAll(context.Background())

	def := s.Snapshot(payment.Default)
	require.NotNil(t, def)
	assert.Equal(t, 42, def.MinResponseTime)

	fb := s.Snapshot(payment.Fallback)
	require.NotNil(t, fb)

	assert.EqualValues(t, 2, atomic.LoadInt32(&prober.calls))
	assert.EqualValues(t, 2, atomic.LoadInt32(&store.sets))
}

func TestSampleOneKeepsPriorSnapshotOnError(t *testing.T) {
	prober := &fakeProber{state: upstream.HealthState{MinResponseTime: 5}}
	s := New(prober, &fakeStore{}, discardLogger(), time.Hour)
	s.sampleAll(context.Background())

	prober.err = errors.New("boom")
	s.sampleAll(context.Background())

	def := s.Snapshot(payment.Default)
	require.NotNil(t, def)
	assert.Equal(t, 5, def.MinResponseTime)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := New(&fakeProber{}, &fakeStore{}, discardLogger(), 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
