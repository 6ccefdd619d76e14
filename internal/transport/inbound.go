package transport

import (
	"sync"
)

// datagram is a single opaque ciphertext packet handed in by the ICE
// recv callback.
type datagram struct {
	data      []byte
	remote    string
	recvStamp int64 // unix nanos, stamped on arrival
}

// inboundBuffer is the bounded-only-by-consumption-rate FIFO described in
// spec.md §3/§4.4: producer is the ICE recv callback goroutine, consumer
// is the Session Driver (directly in COOKIE, and indirectly through the
// shim's pull/pull_timeout adapters once a dtls.Conn exists).
//
// It never backpressures the producer (spec.md §3 invariant): Push never
// blocks and never drops, by design choice for SIP-sized message bursts.
type inboundBuffer struct {
	mu   sync.Mutex
	q    []datagram
	wake chan struct{} // capacity 1, shared with outbound + state-change signals
}

func newInboundBuffer(wake chan struct{}) *inboundBuffer {
	return &inboundBuffer{wake: wake}
}

// Push appends a datagram and signals the wake channel. Called from the
// ICE recv callback's goroutine; must never block.
func (b *inboundBuffer) Push(data []byte, remote string, recvStamp int64) {
	cp := make([]byte, len(data))
	copy(cp, data)

	b.mu.Lock()
	b.q = append(b.q, datagram{data: cp, remote: remote, recvStamp: recvStamp})
	b.mu.Unlock()

	notify(b.wake)
}

// PushFront re-queues a datagram at the head. Used exactly once, by the
// cookie gate, to hand the already-validated ClientHello back to the
// handshake engine after our own anti-amplification check consumed it.
func (b *inboundBuffer) PushFront(d datagram) {
	b.mu.Lock()
	b.q = append([]datagram{d}, b.q...)
	b.mu.Unlock()
	notify(b.wake)
}

// Pop removes and returns the head datagram, if any.
func (b *inboundBuffer) Pop() (datagram, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.q) == 0 {
		return datagram{}, false
	}
	d := b.q[0]
	b.q = b.q[1:]
	return d, true
}

// Len reports the current queue depth.
func (b *inboundBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.q)
}

// notify performs a non-blocking send on a capacity-1 channel, collapsing
// any number of simultaneous wake reasons (inbound arrival, outbound
// enqueue, state transition) into a single pending wakeup — the
// idiomatic-Go analogue of spec.md §5's "single shared condition variable
// broadcasts on any of...".
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
