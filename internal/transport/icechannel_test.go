package transport

import (
	"testing"
	"time"
)

func TestUDPICEChannelSendReceiveRoundTrip(t *testing.T) {
	server, err := DialUDPICEChannel("127.0.0.1:0", "", false)
	if err != nil {
		t.Fatalf("DialUDPICEChannel (server): %v", err)
	}
	defer server.Close()

	client, err := DialUDPICEChannel("127.0.0.1:0", server.LocalAddress(0), true)
	if err != nil {
		t.Fatalf("DialUDPICEChannel (client): %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	server.SetOnRecv(0, func(buf []byte) int {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		received <- cp
		return len(buf)
	})

	if _, err := client.Send(0, []byte("hello")); err != nil {
		t.Fatalf("client.Send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "hello" {
			t.Fatalf("received %q, want %q", got, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive datagram")
	}

	if !client.IsInitiator() {
		t.Error("client.IsInitiator() = false, want true")
	}
	if server.IsInitiator() {
		t.Error("server.IsInitiator() = true, want false")
	}
}

func TestUDPICEChannelSendWithoutPeerFails(t *testing.T) {
	ch, err := DialUDPICEChannel("127.0.0.1:0", "", false)
	if err != nil {
		t.Fatalf("DialUDPICEChannel: %v", err)
	}
	defer ch.Close()

	if _, err := ch.Send(0, []byte("x")); err == nil {
		t.Fatal("expected an error sending before any peer is known")
	}
}

func TestUDPICEChannelLearnsRemoteFromFirstDatagram(t *testing.T) {
	server, err := DialUDPICEChannel("127.0.0.1:0", "", false)
	if err != nil {
		t.Fatalf("DialUDPICEChannel (server): %v", err)
	}
	defer server.Close()

	client, err := DialUDPICEChannel("127.0.0.1:0", server.LocalAddress(0), true)
	if err != nil {
		t.Fatalf("DialUDPICEChannel (client): %v", err)
	}
	defer client.Close()

	done := make(chan struct{})
	server.SetOnRecv(0, func(buf []byte) int {
		close(done)
		return len(buf)
	})

	if _, err := client.Send(0, []byte("ping")); err != nil {
		t.Fatalf("client.Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the client's datagram")
	}

	if server.RemoteAddress(0) == "" {
		t.Fatal("server did not learn its remote address from the first datagram")
	}
}
