package transport

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// ICEChannel is the connectivity collaborator this package consumes but
// never constructs (spec.md §6: ICE channel construction is out of
// scope). A real implementation is backed by an established ICE
// component; tests and demos use the loopback UDP implementation in
// icechannel.go.
type ICEChannel interface {
	// SetOnRecv installs the callback the channel invokes with each
	// inbound datagram on the given component. The callback must not
	// block; it returns the number of bytes it accepted.
	SetOnRecv(component int, fn func(buf []byte) int)
	// Send submits buf for transmission on component, returning the
	// number of bytes accepted, or a non-nil error on failure.
	Send(component int, buf []byte) (int, error)
	IsRunning() bool
	IsInitiator() bool
	LocalAddress(component int) string
	RemoteAddress(component int) string
	DefaultLocalAddress() string
}

// iceConn adapts an inboundBuffer plus an ICEChannel's send primitive
// into a net.Conn, the shape pion/dtls/v3 expects as its underlying
// transport. This is the Datagram Shim of spec.md §4.4: push maps to
// the ICE recv callback driving inboundBuffer.Push, pull/pull_timeout
// map to Read honoring a deadline, and Write maps straight through to
// the ICE send primitive.
type iceConn struct {
	component int
	ice       ICEChannel
	in        *inboundBuffer
	wake      chan struct{}

	readDeadline  time.Time
	writeDeadline time.Time
}

func newICEConn(component int, ice ICEChannel, in *inboundBuffer, wake chan struct{}) *iceConn {
	return &iceConn{component: component, ice: ice, in: in, wake: wake}
}

// Read implements the pull/pull_timeout contract: exactly one queued
// datagram is consumed and copied into p per call, regardless of its
// size relative to len(p) — a datagram is always wholly accepted or
// wholly reported too-large, matching spec.md §4.4's "entire head is
// consumed regardless of size".
func (c *iceConn) Read(p []byte) (int, error) {
	for {
		if d, ok := c.in.Pop(); ok {
			if len(d.data) > len(p) {
				return 0, fmt.Errorf("iceConn: read buffer too small for %d-byte datagram", len(d.data))
			}
			return copy(p, d.data), nil
		}

		wait := time.Until(c.readDeadline)
		if !c.readDeadline.IsZero() && wait <= 0 {
			return 0, timeoutError{}
		}

		var timer *time.Timer
		var timeoutCh <-chan time.Time
		if !c.readDeadline.IsZero() {
			timer = time.NewTimer(wait)
			timeoutCh = timer.C
		}

		select {
		case <-c.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timeoutCh:
			return 0, timeoutError{}
		}
	}
}

// Write pushes the datagram pion/dtls hands it (already-encrypted DTLS
// record data) straight to the ICE send primitive. Plaintext is split
// into dataMTU-sized pieces above the DTLS layer, in trySend; a single
// Write call here is always one wire-level send.
func (c *iceConn) Write(p []byte) (int, error) {
	if !c.writeDeadline.IsZero() && time.Now().After(c.writeDeadline) {
		return 0, timeoutError{}
	}
	n, err := c.ice.Send(c.component, p)
	if err != nil {
		return n, err
	}
	if n <= 0 {
		return n, fmt.Errorf("iceConn: ice send returned non-positive result")
	}
	return n, nil
}

func (c *iceConn) Close() error { return nil }

func (c *iceConn) LocalAddr() net.Addr  { return strAddr(c.ice.LocalAddress(c.component)) }
func (c *iceConn) RemoteAddr() net.Addr { return strAddr(c.ice.RemoteAddress(c.component)) }

func (c *iceConn) SetDeadline(t time.Time) error {
	c.readDeadline = t
	c.writeDeadline = t
	return nil
}

func (c *iceConn) SetReadDeadline(t time.Time) error {
	c.readDeadline = t
	notify(c.wake) // unblock a pending Read so it can re-evaluate the new deadline
	return nil
}

func (c *iceConn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline = t
	return nil
}

// timeoutError satisfies net.Error with Timeout() == true, the signal
// pion/dtls's retransmission logic and our own drain loops use to mean
// "nothing pending right now", i.e. EAGAIN.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// strAddr is a net.Addr wrapper around an opaque ICE-reported address
// string; ICE addresses are not necessarily conventional host:port pairs
// once relayed candidates are involved, so we don't attempt to parse them.
type strAddr string

func (a strAddr) Network() string { return "ice" }
func (a strAddr) String() string  { return string(a) }

// validateRemoteAddr rejects a destination that isn't a parseable IPv4
// or IPv6 host[:port], the Go analogue of spec.md §4.3's sockaddr
// length check against sockaddr_in/sockaddr_in6.
func validateRemoteAddr(addr string) error {
	if addr == "" {
		return newError(KindInvalid, "remote address is empty", nil)
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if _, err := netip.ParseAddr(host); err != nil {
		return newError(KindInvalid, fmt.Sprintf("remote address %q is not a valid IPv4/IPv6 endpoint", addr), err)
	}
	return nil
}
