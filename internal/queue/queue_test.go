package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydispatch/internal/payment"
)

func TestPutGetFIFO(t *testing.T) {
	q := New()
	q.Put(payment.Request{CorrelationID: "a"})
	q.Put(payment.Request{CorrelationID: "b"})

	first := q.Get()
	second := q.Get()

	assert.Equal(t, "a", first.Request.CorrelationID)
	assert.Equal(t, "b", second.Request.CorrelationID)
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := New()

	done := make(chan Item, 1)
	go func() {
		done <- q.Get()
	}()

	select {
	case <-done:
		t.Fatal("Get returned before any item was put")
	case <-time.After(50 * time.Millisecond):
	}

	q.Put(payment.Request{CorrelationID: "late"})

	select {
	case item := <-done:
		assert.Equal(t, "late", item.Request.CorrelationID)
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Put")
	}
}

func TestPutStopDeliversToExactlyOneWorker(t *testing.T) {
	q := New()
	const workers = 4
	for i := 0; i < workers; i++ {
		q.PutStop()
	}

	var wg sync.WaitGroup
	stops := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stops[i] = q.Get().Stop
		}(i)
	}
	wg.Wait()

	for i, stopped := range stops {
		assert.True(t, stopped, "worker %d did not receive a stop marker", i)
	}
}

func TestLenTracksQueueDepth(t *testing.T) {
	q := New()
	require.Equal(t, 0, q.Len())
	q.Put(payment.Request{CorrelationID: "a"})
	q.Put(payment.Request{CorrelationID: "b"})
	assert.Equal(t, 2, q.Len())
	q.Get()
	assert.Equal(t, 1, q.Len())
}
