package transport

import (
	"fmt"
	"net"
	"sync"
)

// UDPICEChannel is a minimal ICEChannel backed by a bound UDP socket,
// standing in for a real negotiated ICE component in tests and demo
// binaries (ICE channel construction itself is out of scope per
// spec.md §1). It supports exactly one component index and one peer.
type UDPICEChannel struct {
	conn        *net.UDPConn
	initiator   bool
	remote      *net.UDPAddr
	defaultAddr string

	mu    sync.Mutex
	onRecv func(buf []byte) int
	stop   chan struct{}
}

// DialUDPICEChannel opens a UDP socket on localAddr and targets remote,
// starting a background read loop that invokes the installed recv
// callback. Pass remote == "" for a server that learns its peer from
// the first received datagram.
func DialUDPICEChannel(localAddr, remote string, initiator bool) (*UDPICEChannel, error) {
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve local ICE addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen ICE addr: %w", err)
	}

	c := &UDPICEChannel{
		conn:        conn,
		initiator:   initiator,
		defaultAddr: conn.LocalAddr().String(),
		stop:        make(chan struct{}),
	}

	if remote != "" {
		raddr, err := net.ResolveUDPAddr("udp", remote)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("transport: resolve remote ICE addr: %w", err)
		}
		c.remote = raddr
	}

	go c.readLoop()
	return c, nil
}

func (c *UDPICEChannel) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		c.mu.Lock()
		if c.remote == nil {
			c.remote = from
		}
		fn := c.onRecv
		c.mu.Unlock()
		if fn != nil {
			fn(buf[:n])
		}
	}
}

func (c *UDPICEChannel) SetOnRecv(component int, fn func(buf []byte) int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRecv = fn
}

func (c *UDPICEChannel) Send(component int, buf []byte) (int, error) {
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	if remote == nil {
		return 0, fmt.Errorf("transport: ICE channel has no peer yet")
	}
	return c.conn.WriteToUDP(buf, remote)
}

func (c *UDPICEChannel) IsRunning() bool    { return true }
func (c *UDPICEChannel) IsInitiator() bool  { return c.initiator }

func (c *UDPICEChannel) LocalAddress(component int) string { return c.conn.LocalAddr().String() }

func (c *UDPICEChannel) RemoteAddress(component int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return ""
	}
	return c.remote.String()
}

func (c *UDPICEChannel) DefaultLocalAddress() string { return c.defaultAddr }

func (c *UDPICEChannel) Close() error {
	close(c.stop)
	return c.conn.Close()
}
