package transport

import "testing"

func TestInboundBufferPushPopFIFOOrder(t *testing.T) {
	wake := make(chan struct{}, 1)
	b := newInboundBuffer(wake)

	b.Push([]byte("first"), "10.0.0.1:1", 1)
	b.Push([]byte("second"), "10.0.0.1:1", 2)

	d1, ok := b.Pop()
	if !ok || string(d1.data) != "first" {
		t.Fatalf("first Pop = %q, ok=%v; want %q, true", d1.data, ok, "first")
	}
	d2, ok := b.Pop()
	if !ok || string(d2.data) != "second" {
		t.Fatalf("second Pop = %q, ok=%v; want %q, true", d2.data, ok, "second")
	}
	if _, ok := b.Pop(); ok {
		t.Fatal("Pop on empty buffer returned ok=true")
	}
}

func TestInboundBufferPushFrontReQueuesAtHead(t *testing.T) {
	wake := make(chan struct{}, 1)
	b := newInboundBuffer(wake)

	b.Push([]byte("second"), "10.0.0.1:1", 1)
	d, ok := b.Pop()
	if !ok {
		t.Fatal("expected a datagram")
	}
	b.Push([]byte("third"), "10.0.0.1:1", 2)
	b.PushFront(d)

	first, ok := b.Pop()
	if !ok || string(first.data) != "second" {
		t.Fatalf("after PushFront, first Pop = %q, want %q", first.data, "second")
	}
	second, ok := b.Pop()
	if !ok || string(second.data) != "third" {
		t.Fatalf("after PushFront, second Pop = %q, want %q", second.data, "third")
	}
}

func TestInboundBufferPushSignalsWake(t *testing.T) {
	wake := make(chan struct{}, 1)
	b := newInboundBuffer(wake)
	b.Push([]byte("x"), "10.0.0.1:1", 1)

	select {
	case <-wake:
	default:
		t.Fatal("expected a pending wake signal after Push")
	}
}

func TestInboundBufferPushCopiesData(t *testing.T) {
	wake := make(chan struct{}, 1)
	b := newInboundBuffer(wake)

	src := []byte("mutate-me")
	b.Push(src, "10.0.0.1:1", 1)
	src[0] = 'X'

	d, ok := b.Pop()
	if !ok {
		t.Fatal("expected a datagram")
	}
	if string(d.data) != "mutate-me" {
		t.Fatalf("buffered datagram was affected by mutating the source slice: %q", d.data)
	}
}

func TestInboundBufferLen(t *testing.T) {
	wake := make(chan struct{}, 1)
	b := newInboundBuffer(wake)
	if b.Len() != 0 {
		t.Fatalf("Len() on empty buffer = %d, want 0", b.Len())
	}
	b.Push([]byte("a"), "r", 1)
	b.Push([]byte("b"), "r", 2)
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestNotifyCollapsesMultipleSignals(t *testing.T) {
	ch := make(chan struct{}, 1)
	notify(ch)
	notify(ch)
	notify(ch)

	select {
	case <-ch:
	default:
		t.Fatal("expected exactly one pending signal")
	}
	select {
	case <-ch:
		t.Fatal("expected no second pending signal")
	default:
	}
}
