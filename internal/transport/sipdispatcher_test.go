package transport

import "testing"

func TestSimpleSIPDispatcherExtractsCompleteMessage(t *testing.T) {
	var got []byte
	d := &SimpleSIPDispatcher{OnMessage: func(msg []byte) { got = msg }}

	msg := "REGISTER sip:example.com SIP/2.0\r\nVia: SIP/2.0/UDP host\r\n\r\n"
	eaten := d.ReceivePacket([]byte(msg))

	if eaten != len(msg) {
		t.Fatalf("eaten = %d, want %d", eaten, len(msg))
	}
	if string(got) != msg {
		t.Fatalf("dispatched message = %q, want %q", got, msg)
	}
}

func TestSimpleSIPDispatcherHoldsIncompleteMessage(t *testing.T) {
	called := false
	d := &SimpleSIPDispatcher{OnMessage: func(msg []byte) { called = true }}

	partial := "INVITE sip:bob@example.com SIP/2.0\r\nVia: SIP/2.0/UDP host\r\n"
	eaten := d.ReceivePacket([]byte(partial))

	if eaten != 0 {
		t.Fatalf("eaten = %d, want 0 for an incomplete message", eaten)
	}
	if called {
		t.Fatal("OnMessage should not fire for an incomplete message")
	}
}

func TestSimpleSIPDispatcherExtractsMultipleMessagesInOneBuffer(t *testing.T) {
	var messages []string
	d := &SimpleSIPDispatcher{OnMessage: func(msg []byte) { messages = append(messages, string(msg)) }}

	m1 := "OPTIONS sip:a SIP/2.0\r\n\r\n"
	m2 := "BYE sip:b SIP/2.0\r\n\r\n"
	eaten := d.ReceivePacket([]byte(m1 + m2))

	if eaten != len(m1)+len(m2) {
		t.Fatalf("eaten = %d, want %d", eaten, len(m1)+len(m2))
	}
	if len(messages) != 2 || messages[0] != m1 || messages[1] != m2 {
		t.Fatalf("messages = %v, want [%q, %q]", messages, m1, m2)
	}
}

func TestSimpleSIPDispatcherRejectsNonSIPData(t *testing.T) {
	called := false
	d := &SimpleSIPDispatcher{OnMessage: func(msg []byte) { called = true }}

	eaten := d.ReceivePacket([]byte("not a sip message at all\r\n\r\n"))
	if eaten != 0 {
		t.Fatalf("eaten = %d, want 0 for non-SIP data", eaten)
	}
	if called {
		t.Fatal("OnMessage should not fire for non-SIP data")
	}
}

func TestSimpleSIPDispatcherRecognizesSIPVersionPrefix(t *testing.T) {
	d := &SimpleSIPDispatcher{}
	resp := "SIP/2.0 200 OK\r\nVia: SIP/2.0/UDP host\r\n\r\n"
	eaten := d.ReceivePacket([]byte(resp))
	if eaten != len(resp) {
		t.Fatalf("eaten = %d, want %d for a SIP response", eaten, len(resp))
	}
}
