package loop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

func TestPostDispatchesEventually(t *testing.T) {
	defer leaktest.Check(t)()
	l := New()
	defer l.Close()

	var ran int32
	done := make(chan struct{})
	l.Post(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event never dispatched")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestDrainRunsNormalBeforeLow(t *testing.T) {
	l := New()
	var order []string
	// Queue directly, bypassing Post/PostLow, so the background
	// goroutine never starts and Drain's ordering is deterministic.
	l.low <- func() { order = append(order, "low") }
	l.normal <- func() { order = append(order, "normal") }
	l.Drain()
	assert.Equal(t, []string{"normal", "low"}, order)
}

func TestDrainRunsPendingEventsSynchronously(t *testing.T) {
	l := New()
	var count int32
	for i := 0; i < 5; i++ {
		l.PostLow(func() {
			atomic.AddInt32(&count, 1)
		})
	}
	l.Drain()
	assert.Equal(t, int32(5), atomic.LoadInt32(&count))
}
