package pubsub

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversInPublishOrder(t *testing.T) {
	h := NewHub[string, int]()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	unsub := h.Subscribe("esc-1", func(v int) {
		mu.Lock()
		got = append(got, v)
		n := len(got)
		mu.Unlock()
		if n == 100 {
			close(done)
		}
	})
	defer unsub()

	for i := range 100 {
		h.Publish("esc-1", i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestHub_KeysAreIsolated(t *testing.T) {
	h := NewHub[string, string]()
	var other atomic.Int32
	unsub := h.Subscribe("b", func(string) { other.Add(1) })
	defer unsub()

	received := make(chan string, 1)
	unsubA := h.Subscribe("a", func(v string) { received <- v })
	defer unsubA()

	h.Publish("a", "hello")
	assert.Equal(t, "hello", <-received)
	assert.Equal(t, int32(0), other.Load())
}

func TestHub_NoCallbackAfterUnsubscribeReturns(t *testing.T) {
	h := NewHub[string, int]()

	var afterUnsub atomic.Bool
	var calledAfter atomic.Int32
	unsub := h.Subscribe("k", func(int) {
		if afterUnsub.Load() {
			calledAfter.Add(1)
		}
		time.Sleep(100 * time.Microsecond)
	})

	for i := range 1000 {
		h.Publish("k", i)
	}
	unsub()
	afterUnsub.Store(true)

	for i := range 100 {
		h.Publish("k", i)
	}
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), calledAfter.Load())
	assert.Equal(t, 0, h.Subscribers("k"))
	unsub() // idempotent
}
