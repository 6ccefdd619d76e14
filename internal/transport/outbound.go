package transport

import (
	"fmt"
	"sync"
	"time"
)

// dataMTU is the fixed DTLS record-layer MTU, matching spec.md §4.3:
// chosen for typical ICE media framing with headroom.
const dataMTU = 3200

// SendResult is delivered exactly once to a SendRequest's Callback,
// regardless of how the entry finishes (spec.md §3 invariant).
type SendResult struct {
	Kind      Kind
	BytesSent int
	Err       error
}

// SendRequest is the outbound entry tuple of spec.md §3: an operation
// key, an optional deadline, and the plaintext payload.
type SendRequest struct {
	// OpKey identifies this logical operation so a caller can detect
	// whether a previous send on the same key is still pending
	// (spec.md §4.3: "Rejects with INVALID if the entry already has a
	// pending op").
	OpKey string
	// Payload is the plaintext SIP message bytes.
	Payload []byte
	// RemoteAddr is the destination, validated against IPv4/IPv6
	// address shapes.
	RemoteAddr string
	// IsRequest marks a SIP REQUEST method; when true and Deadline is
	// zero, the queue applies the configured transaction deadline.
	IsRequest bool
	// Deadline is the wall-clock point past which the entry is failed
	// with TIMEOUT instead of being sent.
	Deadline time.Time
	// Callback receives the terminal SendResult exactly once.
	Callback func(SendResult)
}

type outboundEntry struct {
	req       SendRequest
	callbacks func(SendResult)
}

// outboundQueue is the FIFO described in spec.md §3/§4.3. Producer is any
// caller goroutine via Send; consumer is the Session Driver's
// flushOutputBuff, invoked only while ESTABLISHED.
type outboundQueue struct {
	mu          sync.Mutex
	q           []*outboundEntry
	pending     map[string]bool
	wake        chan struct{}
	txnDeadline time.Duration
}

func newOutboundQueue(wake chan struct{}, txnDeadline time.Duration) *outboundQueue {
	return &outboundQueue{
		pending:     make(map[string]bool),
		wake:        wake,
		txnDeadline: txnDeadline,
	}
}

// Send validates and enqueues req, returning ErrPendingOperation if
// req.OpKey already has an outstanding entry. It never blocks on the
// drive loop: it only appends and signals.
func (q *outboundQueue) Send(req SendRequest) error {
	if err := validateRemoteAddr(req.RemoteAddr); err != nil {
		return err
	}
	if req.Callback == nil {
		req.Callback = func(SendResult) {}
	}

	q.mu.Lock()
	if req.OpKey != "" && q.pending[req.OpKey] {
		q.mu.Unlock()
		return ErrPendingOperation
	}
	if req.IsRequest && req.Deadline.IsZero() && q.txnDeadline > 0 {
		req.Deadline = time.Now().Add(q.txnDeadline)
	}
	if req.OpKey != "" {
		q.pending[req.OpKey] = true
	}
	q.q = append(q.q, &outboundEntry{req: req, callbacks: req.Callback})
	q.mu.Unlock()

	notify(q.wake)
	return nil
}

func (q *outboundQueue) dequeue() (*outboundEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.q) == 0 {
		return nil, false
	}
	e := q.q[0]
	q.q = q.q[1:]
	return e, true
}

func (q *outboundQueue) clearPending(opKey string) {
	if opKey == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, opKey)
	q.mu.Unlock()
}

func (q *outboundQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.q)
}

// drainAll empties the queue, invoking every entry's callback with
// NOT_CONNECTED. Used by clean() during teardown (spec.md §4.1).
func (q *outboundQueue) drainAll() {
	for {
		e, ok := q.dequeue()
		if !ok {
			return
		}
		q.clearPending(e.req.OpKey)
		e.callbacks(SendResult{Kind: KindNotConnected, Err: ErrSessionDisconnected})
	}
}

// recordWriter is the minimal surface flushOutputBuff needs from the
// established DTLS connection: successive record_send calls.
type recordWriter interface {
	Write(p []byte) (int, error)
}

// flushOutputBuff is the driver's outbound drain, spec.md §4.3. It does
// not check the session state itself: the caller must already have
// confirmed state == ESTABLISHED, and callers besides the driver must not
// invoke it.
func flushOutputBuff(q *outboundQueue, w recordWriter, mtu int) {
	for {
		e, ok := q.dequeue()
		if !ok {
			return
		}

		if !e.req.Deadline.IsZero() && time.Now().After(e.req.Deadline) {
			// spec.md §9 open question: the original drops this entry
			// silently. We invoke the callback with TIMEOUT per the
			// spec's own recommendation, so no pending transaction
			// notification is ever leaked to the caller.
			q.clearPending(e.req.OpKey)
			e.callbacks(SendResult{Kind: KindTimeout, Err: newError(KindTimeout, "deadline exceeded before send", nil)})
			continue
		}

		n, err := trySend(w, e.req.Payload, mtu)
		q.clearPending(e.req.OpKey)
		if err != nil {
			e.callbacks(SendResult{Kind: classifyHandshakeErr(err), BytesSent: n, Err: err})
			if isFatalWriteErr(err) {
				return
			}
			continue
		}
		e.callbacks(SendResult{Kind: KindOK, BytesSent: n})
	}
}

// trySend fragments payload into mtu-sized chunks and submits successive
// record_send calls, matching spec.md §4.3 scenario 5 (MTU fragmentation):
// each call advances totalWritten; a non-positive return aborts the
// entry with the mapped error.
func trySend(w recordWriter, payload []byte, mtu int) (int, error) {
	if mtu <= 0 {
		mtu = dataMTU
	}
	totalWritten := 0
	for totalWritten < len(payload) {
		end := totalWritten + mtu
		if end > len(payload) {
			end = len(payload)
		}
		n, err := w.Write(payload[totalWritten:end])
		if n <= 0 && err == nil {
			err = fmt.Errorf("record_send returned non-positive result with no error")
		}
		if err != nil {
			return totalWritten, err
		}
		totalWritten += n
	}
	return totalWritten, nil
}

func isFatalWriteErr(err error) bool {
	k := classifyHandshakeErr(err)
	return k == KindFatal || k == KindNotConnected
}
