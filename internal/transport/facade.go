package transport

import (
	"context"
	"fmt"

	"github.com/dalbodeule/sip-dtls-transport/internal/certview"
)

// TransportTypeID is the secure-transport type identifier of this
// session (spec.md §4.7). Manager.Register takes only the facade, so
// this identifier is not passed to the manager.
const TransportTypeID = "DTLS"

// ProtocolID is the wire protocol identifier GetInfo reports, matching
// spec.md §6's wire-format statement.
const ProtocolID = "DTLS 1.0"

// CertificateInfoView is the subset of certview.Info GetInfo exposes;
// kept distinct from certview.Info so callers outside this package
// don't need to import certview just to read a snapshot.
type CertificateInfoView struct {
	IssuerDN, IssuerCN   string
	SubjectDN, SubjectCN string
	SerialHex            string
}

// Info is the getInfo snapshot of spec.md §4.7.
type Info struct {
	Established  bool
	ProtocolID   string
	LocalAddr    string
	RemoteAddr   string
	CipherSuite  string
	LocalCert    *CertificateInfoView
	RemoteCert   *CertificateInfoView
	VerifyStatus string
	LastNativeErr error
}

// Facade is the Transport Facade of spec.md §4.7: the adapter a session
// registers with the upstream SIP transport manager, routing that
// manager's send_msg/do_shutdown/destroy operations onto the Session.
// The session owns the facade; the manager only ever holds a borrowed,
// refcounted handle to it (spec.md §9 "transport-manager back-reference").
type Facade struct {
	session *Session
	manager Manager
}

func newFacade(s *Session, m Manager) *Facade {
	return &Facade{session: s, manager: m}
}

// Register installs this facade with its manager and starts the
// session's driver goroutine (Session.Run) under ctx.
func (f *Facade) Register(ctx context.Context) error {
	if err := f.manager.Register(f); err != nil {
		return fmt.Errorf("transport: register facade: %w", err)
	}
	go f.session.Run(ctx)
	return nil
}

// SendMsg forwards to the session's outbound queue (spec.md §4.3/§4.7).
func (f *Facade) SendMsg(req SendRequest) error {
	return f.session.outbound.Send(req)
}

// DoShutdown triggers reset: state -> DISCONNECTED, driver stopped, and
// waits for the driver to finish unwinding through clean().
func (f *Facade) DoShutdown(ctx context.Context) error {
	f.session.Stop()
	select {
	case <-f.session.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Destroy is the final deletion after the manager has released its last
// reference; it is a no-op beyond dropping the manager's refcount, since
// Go's GC reclaims the Session once nothing references it.
func (f *Facade) Destroy() {
	f.manager.DecRef(f)
}

// GetInfo returns the facade's current snapshot (spec.md §4.7). Two
// calls in the same ConnectionState return equal results for every
// field except LastNativeErr, which tracks the most recently observed
// native error (spec.md §8 round-trip property).
func (f *Facade) GetInfo() Info {
	s := f.session
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		Established:  s.state == StateEstablished,
		ProtocolID:   ProtocolID,
		LocalAddr:    s.ice.LocalAddress(s.params.Component),
		RemoteAddr:   s.ice.RemoteAddress(s.params.Component),
		VerifyStatus: s.verifyStatus,
	}
	if s.lastErr != nil {
		info.LastNativeErr = s.lastErr
	}
	if s.dtlsConn != nil && s.state == StateEstablished {
		info.CipherSuite = CipherSuiteName(s.dtlsConn.ConnectionState().CipherSuiteID)
	}
	if s.localCert != nil {
		info.LocalCert = certInfoView(s.localCert)
	}
	if s.remoteCert != nil {
		info.RemoteCert = certInfoView(s.remoteCert)
	}
	return info
}

func certInfoView(info *certview.Info) *CertificateInfoView {
	return &CertificateInfoView{
		IssuerDN:  info.IssuerDN,
		IssuerCN:  info.IssuerCN,
		SubjectDN: info.SubjectDN,
		SubjectCN: info.SubjectCN,
		SerialHex: info.SerialHex,
	}
}
