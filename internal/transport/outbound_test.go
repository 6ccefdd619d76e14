package transport

import (
	"fmt"
	"testing"
	"time"
)

type recordingWriter struct {
	writes [][]byte
	err    error
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	w.writes = append(w.writes, cp)
	return len(p), nil
}

func TestOutboundQueueSendRejectsDuplicatePendingOpKey(t *testing.T) {
	q := newOutboundQueue(make(chan struct{}, 1), time.Second)
	req := SendRequest{OpKey: "txn-1", RemoteAddr: "127.0.0.1:5060", Payload: []byte("x")}
	if err := q.Send(req); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := q.Send(req); err != ErrPendingOperation {
		t.Fatalf("second Send with same op key = %v, want ErrPendingOperation", err)
	}
}

func TestOutboundQueueSendRejectsInvalidAddress(t *testing.T) {
	q := newOutboundQueue(make(chan struct{}, 1), time.Second)
	err := q.Send(SendRequest{RemoteAddr: "not-an-address", Payload: []byte("x")})
	if err == nil {
		t.Fatal("expected error for invalid remote address")
	}
}

func TestFlushOutputBuffExactlyOnceCallback(t *testing.T) {
	q := newOutboundQueue(make(chan struct{}, 1), 0)
	calls := 0
	var result SendResult
	err := q.Send(SendRequest{
		RemoteAddr: "127.0.0.1:5060",
		Payload:    []byte("hello"),
		Callback: func(r SendResult) {
			calls++
			result = r
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	w := &recordingWriter{}
	flushOutputBuff(q, w, dataMTU)

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want exactly 1", calls)
	}
	if result.Kind != KindOK {
		t.Fatalf("result.Kind = %v, want KindOK", result.Kind)
	}
	if result.BytesSent != len("hello") {
		t.Fatalf("result.BytesSent = %d, want %d", result.BytesSent, len("hello"))
	}
}

func TestFlushOutputBuffDeadlineDropReportsTimeout(t *testing.T) {
	q := newOutboundQueue(make(chan struct{}, 1), 0)
	calls := 0
	var result SendResult
	err := q.Send(SendRequest{
		RemoteAddr: "127.0.0.1:5060",
		Payload:    []byte("hello"),
		Deadline:   time.Now().Add(-time.Second),
		Callback: func(r SendResult) {
			calls++
			result = r
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	w := &recordingWriter{}
	flushOutputBuff(q, w, dataMTU)

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want exactly 1", calls)
	}
	if result.Kind != KindTimeout {
		t.Fatalf("result.Kind = %v, want KindTimeout", result.Kind)
	}
	if len(w.writes) != 0 {
		t.Fatalf("expected no writes for an expired entry, got %d", len(w.writes))
	}
}

func TestFlushOutputBuffClearsPendingOpKeyAfterCompletion(t *testing.T) {
	q := newOutboundQueue(make(chan struct{}, 1), 0)
	opKey := "txn-2"
	if err := q.Send(SendRequest{OpKey: opKey, RemoteAddr: "127.0.0.1:5060", Payload: []byte("x")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	flushOutputBuff(q, &recordingWriter{}, dataMTU)

	if err := q.Send(SendRequest{OpKey: opKey, RemoteAddr: "127.0.0.1:5060", Payload: []byte("y")}); err != nil {
		t.Fatalf("Send after completion should succeed, got: %v", err)
	}
}

func TestTrySendFragmentsAcrossMTU(t *testing.T) {
	w := &recordingWriter{}
	payload := make([]byte, 6400)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := trySend(w, payload, 3200)
	if err != nil {
		t.Fatalf("trySend: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("trySend returned %d, want %d", n, len(payload))
	}
	if len(w.writes) != 2 {
		t.Fatalf("expected exactly 2 record_send calls for a 6400-byte payload at MTU 3200, got %d", len(w.writes))
	}
	if len(w.writes[0]) != 3200 || len(w.writes[1]) != 3200 {
		t.Fatalf("expected two 3200-byte fragments, got %d and %d", len(w.writes[0]), len(w.writes[1]))
	}
}

func TestTrySendAbortsOnWriteError(t *testing.T) {
	w := &recordingWriter{err: fmt.Errorf("boom")}
	_, err := trySend(w, []byte("hello"), dataMTU)
	if err == nil {
		t.Fatal("expected error from trySend when Write fails")
	}
}

func TestDrainAllFailsPendingEntriesWithNotConnected(t *testing.T) {
	q := newOutboundQueue(make(chan struct{}, 1), 0)
	var results []SendResult
	for i := 0; i < 3; i++ {
		opKey := fmt.Sprintf("txn-%d", i)
		if err := q.Send(SendRequest{
			OpKey:      opKey,
			RemoteAddr: "127.0.0.1:5060",
			Payload:    []byte("x"),
			Callback:   func(r SendResult) { results = append(results, r) },
		}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	q.drainAll()

	if len(results) != 3 {
		t.Fatalf("got %d callback invocations, want 3", len(results))
	}
	for _, r := range results {
		if r.Kind != KindNotConnected {
			t.Errorf("result.Kind = %v, want KindNotConnected", r.Kind)
		}
	}
	if q.len() != 0 {
		t.Fatalf("queue not empty after drainAll: %d", q.len())
	}
}
