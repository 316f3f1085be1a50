// Package pubsub fans values out to keyed, cancellable subscriptions.
//
// Contract:
//   - Publish never blocks on a subscriber; each subscription has its own
//     unbounded FIFO and delivery goroutine, so values for one subscription
//     arrive in publish order.
//   - Once the function returned by Subscribe returns, the handler is never
//     invoked again. A handler call already in progress finishes first.
//   - Unsubscribe must not be called from inside the handler itself.
package pubsub

import (
	"sync"
	"sync/atomic"
)

// Hub routes values published under a key to that key's subscribers.
type Hub[K comparable, V any] struct {
	mu   sync.RWMutex
	subs map[K]map[uint64]*subscriber[V]
	seq  atomic.Uint64
}

type subscriber[V any] struct {
	fn func(V)

	qmu    sync.Mutex
	queue  []V
	signal chan struct{}
	done   chan struct{}

	// mu is held for the duration of every handler call.
	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func NewHub[K comparable, V any]() *Hub[K, V] {
	return &Hub[K, V]{subs: make(map[K]map[uint64]*subscriber[V])}
}

// Subscribe registers fn for values published under key and returns an
// idempotent unsubscribe function.
func (h *Hub[K, V]) Subscribe(key K, fn func(V)) func() {
	s := &subscriber[V]{
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	id := h.seq.Add(1)

	h.mu.Lock()
	m, ok := h.subs[key]
	if !ok {
		m = make(map[uint64]*subscriber[V])
		h.subs[key] = m
	}
	m[id] = s
	h.mu.Unlock()

	go s.run()

	return func() {
		s.once.Do(func() {
			h.mu.Lock()
			if m, ok := h.subs[key]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()

			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			close(s.done)
		})
	}
}

// Publish enqueues v for every current subscriber of key.
func (h *Hub[K, V]) Publish(key K, v V) {
	h.mu.RLock()
	targets := make([]*subscriber[V], 0, len(h.subs[key]))
	for _, s := range h.subs[key] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(v)
	}
}

// Subscribers returns the number of live subscriptions for key.
func (h *Hub[K, V]) Subscribers(key K) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

func (s *subscriber[V]) enqueue(v V) {
	s.qmu.Lock()
	s.queue = append(s.queue, v)
	s.qmu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber[V]) drain() []V {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

func (s *subscriber[V]) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for _, v := range s.drain() {
			if !s.deliver(v) {
				return
			}
		}
	}
}

func (s *subscriber[V]) deliver(v V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.fn(v)
	return true
}
