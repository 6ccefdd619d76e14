package transport

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Manager is the upstream SIP transport manager collaborator of
// spec.md §6: it owns registered transports, routes outbound messages,
// parses inbound byte streams into SIP messages, and is notified of
// lifecycle state changes. Construction of the manager and its SIP
// message parsing policy are out of scope for this package; Manager
// only describes the boundary a Session talks across.
type Manager interface {
	Register(f *Facade) error
	AddRef(f *Facade)
	DecRef(f *Facade)
	Shutdown(f *Facade)
	ReceivePacket(f *Facade, rx []byte) (eaten int)
	StateChanged(f *Facade, state ConnectionState, info string)
}

// InMemoryManager is a minimal Manager implementation for tests and
// demo binaries: it keeps a reference count per Facade and a
// caller-supplied Dispatcher for ReceivePacket, without registering
// transports anywhere outside this process.
type InMemoryManager struct {
	mu         sync.Mutex
	refs       map[*Facade]int
	onState    func(f *Facade, state ConnectionState, info string)
	dispatcher Dispatcher
}

// NewInMemoryManager builds a Manager whose ReceivePacket delegates to
// dispatcher and whose state notifications are reported to onState
// (nil is accepted, discarding notifications).
func NewInMemoryManager(dispatcher Dispatcher, onState func(f *Facade, state ConnectionState, info string)) *InMemoryManager {
	return &InMemoryManager{
		refs:       make(map[*Facade]int),
		onState:    onState,
		dispatcher: dispatcher,
	}
}

func (m *InMemoryManager) Register(f *Facade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.refs[f]; exists {
		return fmt.Errorf("transport: facade already registered")
	}
	m.refs[f] = 1
	return nil
}

func (m *InMemoryManager) AddRef(f *Facade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[f]++
}

func (m *InMemoryManager) DecRef(f *Facade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[f] <= 1 {
		delete(m.refs, f)
		return
	}
	m.refs[f]--
}

func (m *InMemoryManager) Shutdown(f *Facade) {
	m.mu.Lock()
	delete(m.refs, f)
	m.mu.Unlock()
}

func (m *InMemoryManager) ReceivePacket(f *Facade, rx []byte) int {
	if m.dispatcher == nil {
		return 0
	}
	return m.dispatcher.ReceivePacket(rx)
}

func (m *InMemoryManager) StateChanged(f *Facade, state ConnectionState, info string) {
	if m.onState != nil {
		m.onState(f, state, info)
	}
}

// ShutdownAll concurrently calls Stop on every session behind the given
// facades and waits for all of their drivers to unwind, returning the
// first error any facade's do_shutdown reported.
func ShutdownAll(ctx context.Context, facades []*Facade) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range facades {
		f := f
		g.Go(func() error {
			return f.DoShutdown(ctx)
		})
	}
	return g.Wait()
}
