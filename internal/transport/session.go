// Package transport implements the DTLS-over-ICE signaling session core:
// a state machine that drives a DTLS handshake whose record I/O is bound
// to an ICE datagram channel instead of a kernel socket, feeds decrypted
// records to an upstream SIP dispatcher, and accepts outbound SIP
// messages from arbitrary caller goroutines.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/dtls/v3"

	"github.com/dalbodeule/sip-dtls-transport/internal/certview"
	"github.com/dalbodeule/sip-dtls-transport/internal/config"
	applog "github.com/dalbodeule/sip-dtls-transport/internal/logging"
)

// Role is which side of the handshake a Session plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Dispatcher is the upstream SIP packet boundary-finder spec.md §6 calls
// receive_packet: given the currently assembled prefix, it reports how
// many leading bytes form complete SIP messages.
type Dispatcher interface {
	ReceivePacket(buf []byte) (eaten int)
}

// PeerVerifier is the caller-supplied cert_check hook of spec.md §6/§4.5.
// Returning a non-nil error fails the handshake with KindCert.
type PeerVerifier func(chain []*x509.Certificate) error

// Params bundles everything a Session needs at construction beyond its
// ICE/manager/dispatcher collaborators.
type Params struct {
	Role       Role
	Component  int
	ICE        ICEChannel
	Dispatcher Dispatcher
	Manager    Manager

	TLS      config.TLSParams
	CertHook PeerVerifier

	Logger     applog.Logger
	Metrics    *Metrics
	AuditStore *certview.AuditStore
}

// Session is the top-level entity of spec.md §3: one ICE component,
// one DTLS session, one Session Driver goroutine.
type Session struct {
	id   string
	role Role

	params Params
	logger applog.Logger

	mu             sync.Mutex
	state          ConnectionState
	handshakeStart time.Time
	lastErr        *Error
	verifyStatus   string

	localCert  *certview.Info
	remoteCert *certview.Info
	certCache  *certview.Cache

	wake     chan struct{}
	inbound  *inboundBuffer
	outbound *outboundQueue
	assembly *packetAssembly
	cookie   *cookieGate

	ice      ICEChannel
	shim     *iceConn
	dtlsConn *dtls.Conn

	facade *Facade

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewSession constructs a Session in its initial state (COOKIE for a
// server, HANDSHAKING for a client) but does not start its driver
// goroutine; call Run for that. Construction failures are returned so a
// caller never holds a half-initialized Session (spec.md §9
// "exception-for-construction").
func NewSession(p Params) (*Session, error) {
	if p.ICE == nil {
		return nil, fmt.Errorf("transport: ICE channel is required")
	}
	if p.Dispatcher == nil {
		return nil, fmt.Errorf("transport: dispatcher is required")
	}
	if p.Logger == nil {
		p.Logger = applog.NewStdJSONLogger("sip-dtls-transport")
	}
	if p.TLS.HandshakeTimeout <= 0 {
		p.TLS.HandshakeTimeout = 30 * time.Second
	}

	wake := make(chan struct{}, 1)
	s := &Session{
		id:       uuid.NewString(),
		role:     p.Role,
		params:   p,
		wake:     wake,
		inbound:  newInboundBuffer(wake),
		outbound: newOutboundQueue(wake, p.TLS.TransactionDeadline),
		assembly: newPacketAssembly(),
		ice:      p.ICE,
		stopped:  make(chan struct{}),
	}
	s.logger = p.Logger.With(applog.Fields{"session_id": s.id})
	s.certCache = certview.NewCache()
	s.shim = newICEConn(p.Component, p.ICE, s.inbound, s.wake)
	s.ice.SetOnRecv(p.Component, func(buf []byte) int {
		s.inbound.Push(buf, s.ice.RemoteAddress(p.Component), time.Now().UnixNano())
		return len(buf)
	})

	switch p.Role {
	case RoleServer:
		gate, err := newCookieGate()
		if err != nil {
			return nil, fmt.Errorf("transport: init cookie gate: %w", err)
		}
		s.cookie = gate
		s.state = StateCookie
	case RoleClient:
		s.state = StateHandshaking
		s.handshakeStart = time.Now()
	default:
		return nil, fmt.Errorf("transport: unknown role %v", p.Role)
	}

	s.facade = newFacade(s, p.Manager)
	return s, nil
}

// ID is the session's stable identifier, used as the audit-store key and
// in log correlation.
func (s *Session) ID() string { return s.id }

// Facade returns the Transport Facade bound to this session, for
// registering with the SIP transport manager and driving send/shutdown.
func (s *Session) Facade() *Facade { return s.facade }

func (s *Session) getState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to to, enforcing canTransition, and
// signals the wake channel so the driver loop reconsiders immediately.
func (s *Session) transition(to ConnectionState) bool {
	s.mu.Lock()
	ok := canTransition(s.state, to)
	if ok {
		s.state = to
	}
	s.mu.Unlock()
	if ok {
		if s.params.Metrics != nil {
			s.params.Metrics.StateTransitions.WithLabelValues(to.String()).Inc()
		}
		notify(s.wake)
	}
	return ok
}

func (s *Session) setLastErr(e *Error) {
	s.mu.Lock()
	s.lastErr = e
	s.mu.Unlock()
}

// Run is the Session Driver: setup, then loop until DISCONNECTED, then
// clean. It blocks until the session is torn down or ctx is canceled.
func (s *Session) Run(ctx context.Context) {
	defer s.stopOnce.Do(func() { close(s.stopped) })

	if s.role == RoleClient {
		if err := s.beginHandshake(ctx); err != nil {
			s.logger.Error("failed to start client handshake", applog.Fields{"error": err.Error()})
			s.transition(StateDisconnected)
		}
	}

	var handshakeResult chan handshakeOutcome

	for {
		if s.getState() == StateDisconnected {
			s.clean()
			return
		}

		select {
		case <-ctx.Done():
			s.transition(StateDisconnected)
			continue
		case <-s.wake:
		case <-time.After(200 * time.Millisecond):
			// periodic tick so COOKIE/HANDSHAKING deadlines are checked
			// even with no fresh signal.
		}

		switch s.getState() {
		case StateCookie:
			s.stepCookie(ctx)

		case StateHandshaking:
			if handshakeResult == nil {
				handshakeResult = s.runHandshakeAsync(ctx)
			}
			s.stepHandshaking(handshakeResult)
			if s.getState() != StateHandshaking {
				handshakeResult = nil
			}

		case StateEstablished:
			s.stepEstablished()
		}
	}
}

// Stop requests teardown; idempotent (spec.md §8 "reset() is idempotent").
func (s *Session) Stop() {
	s.transition(StateDisconnected)
}

// Done reports the channel closed once Run has fully unwound through clean().
func (s *Session) Done() <-chan struct{} { return s.stopped }

// stepCookie implements spec.md §4.1's COOKIE phase.
func (s *Session) stepCookie(ctx context.Context) {
	d, ok := s.inbound.Pop()
	if !ok {
		return
	}

	info, parsed := parseClientHello(d.data)
	if !parsed {
		s.logger.Debug("dropping non-ClientHello datagram during cookie phase", nil)
		return
	}

	if s.cookie.verify(d.remote, info) {
		s.inbound.PushFront(d)
		s.transition(StateHandshaking)
		s.handshakeStart = time.Now()
		if err := s.beginHandshake(ctx); err != nil {
			s.logger.Error("failed to start server handshake after cookie verify", applog.Fields{"error": err.Error()})
			s.transition(StateDisconnected)
		}
		return
	}

	cookie := s.cookie.computeCookie(d.remote, info.random)
	hvr := buildHelloVerifyRequest(0, 1, cookie)
	if _, err := s.ice.Send(s.params.Component, hvr); err != nil {
		s.logger.Warn("failed to send HelloVerifyRequest", applog.Fields{"error": err.Error()})
	}
	// ClientHello without a valid cookie is dropped; no session state
	// was allocated, matching the anti-amplification intent.
}

type handshakeOutcome struct {
	conn *dtls.Conn
	err  error
}

// runHandshakeAsync drives pion/dtls's blocking Client/Server call on its
// own goroutine, observed by the driver loop via a channel — the
// idiomatic-Go rendering of spec.md §4.1's non-blocking "invoke DTLS
// handshake, non-fatal again/interrupted -> stay" stepping, since
// pion/dtls exposes only a single blocking call rather than a
// resumable state machine.
func (s *Session) runHandshakeAsync(ctx context.Context) chan handshakeOutcome {
	result := make(chan handshakeOutcome, 1)
	cfg, err := s.buildDTLSConfig()
	if err != nil {
		result <- handshakeOutcome{err: err}
		return result
	}

	hsCtx, cancel := context.WithTimeout(ctx, s.params.TLS.HandshakeTimeout)
	go func() {
		defer cancel()
		var conn *dtls.Conn
		var herr error
		if s.role == RoleServer {
			conn, herr = dtls.Server(hsCtx, s.shim, cfg)
		} else {
			conn, herr = dtls.Client(hsCtx, s.shim, cfg)
		}
		result <- handshakeOutcome{conn: conn, err: herr}
	}()
	return result
}

func (s *Session) beginHandshake(ctx context.Context) error {
	_, err := s.buildDTLSConfig()
	return err
}

func (s *Session) stepHandshaking(result chan handshakeOutcome) {
	if time.Since(s.handshakeStart) > s.params.TLS.HandshakeTimeout {
		s.onHandshakeComplete(nil, newError(KindTimeout, "handshake deadline exceeded", nil))
		return
	}

	select {
	case outcome := <-result:
		s.onHandshakeComplete(outcome.conn, outcome.err)
	default:
		// still running; stay in HANDSHAKING and re-poll on next wake.
	}
}

func (s *Session) onHandshakeComplete(conn *dtls.Conn, err error) {
	if err != nil {
		kind := classifyHandshakeErr(err)
		s.setLastErr(newError(kind, "handshake failed", err))
		if s.params.Metrics != nil {
			s.params.Metrics.HandshakeFailuresTotal.Inc()
		}
		if s.role == RoleServer {
			// Server handshake failure is destroyed silently per spec.md
			// §6: no CONNECTED/DISCONNECTED notification, matching the
			// anti-probe policy.
			s.transition(StateDisconnected)
			return
		}
		s.params.Manager.StateChanged(s.facade, StateDisconnected, err.Error())
		s.transition(StateDisconnected)
		return
	}

	s.dtlsConn = conn
	s.extractCertificates(conn)
	s.transition(StateEstablished)
	if s.params.Metrics != nil {
		s.params.Metrics.HandshakeDuration.Observe(time.Since(s.handshakeStart).Seconds())
	}
	s.params.Manager.StateChanged(s.facade, StateEstablished, "")
}

// stepEstablished implements spec.md §4.1's ESTABLISHED phase: drain all
// presently-available inbound records before considering outbound
// transmission, preventing starvation of the dispatcher under send
// pressure.
func (s *Session) stepEstablished() {
	s.drainInbound()
	if s.getState() != StateEstablished {
		return
	}
	flushOutputBuff(s.outbound, s.dtlsConn, dataMTU)
}

// drainInbound implements spec.md §4.2's inbound record pump. Each Read
// is given an already-expired deadline so it never blocks waiting for a
// record that hasn't arrived yet: pion/dtls's Conn.Read blocks on its
// internal decrypted-record channel until either data or the read
// deadline fires, and with no deadline ever set that channel never
// closes on its own.
func (s *Session) drainInbound() {
	for {
		if err := s.dtlsConn.SetReadDeadline(time.Now()); err != nil {
			s.logger.Warn("failed to set read deadline, resetting session", applog.Fields{"error": err.Error()})
			s.transition(StateDisconnected)
			return
		}

		room := s.assembly.room()
		n, err := s.dtlsConn.Read(room)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return // EAGAIN-equivalent: queue drained for now
			}
			kind := classifyHandshakeErr(err)
			s.setLastErr(newError(kind, "record recv failed", err))
			s.logger.Warn("fatal record recv error, resetting session", applog.Fields{"error": err.Error()})
			s.transition(StateDisconnected)
			return
		}
		if n == 0 {
			s.transition(StateDisconnected)
			return
		}

		s.assembly.advance(n)
		eaten := s.params.Manager.ReceivePacket(s.facade, s.assembly.bytes())
		s.assembly.compact(eaten)
	}
}

// extractCertificates implements spec.md §4.6.
func (s *Session) extractCertificates(conn *dtls.Conn) {
	state := conn.ConnectionState()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range state.PeerCertificates {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		s.remoteCert = s.certCache.Get(cert)
		break
	}

	if len(s.params.TLS.LocalCertFile) > 0 {
		if certPEM, err := tlsCertificateFromFiles(s.params.TLS.LocalCertFile, s.params.TLS.LocalKeyFile); err == nil {
			if leaf, err := x509.ParseCertificate(certPEM.Certificate[0]); err == nil {
				s.localCert = s.certCache.Get(leaf)
			}
		}
	}

	s.verifyStatus = "OK"
	if s.remoteCert != nil {
		s.remoteCert.VerifyStatus = s.verifyStatus
	}

	s.recordAudit(s.remoteCert)
}

// recordAudit persists the peer's CertificateInfo to the audit store, if
// one is configured, keyed by session UUID per spec.md §11. Runs on its
// own goroutine so a slow or unreachable database never stalls the
// Session Driver loop.
func (s *Session) recordAudit(info *certview.Info) {
	if s.params.AuditStore == nil || info == nil {
		return
	}
	store := s.params.AuditStore
	sessionID := s.id
	logger := s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Record(ctx, sessionID, info); err != nil {
			logger.Warn("failed to record peer certificate audit entry", applog.Fields{"error": err.Error()})
		}
	}()
}

// clean implements spec.md §4.1's teardown phase.
func (s *Session) clean() {
	s.outbound.drainAll()
	if s.dtlsConn != nil {
		_ = s.dtlsConn.Close()
	}
	// A client whose handshake failed was already notified of DISCONNECTED
	// by onHandshakeComplete; it is not notified a second time here.
	clientFailureNotified := s.role == RoleClient && s.dtlsConn == nil && s.lastErr != nil
	if (s.role != RoleServer || s.dtlsConn != nil) && !clientFailureNotified {
		// Only notify the manager if the session ever reached a state
		// visible to it (i.e. not a server that failed during COOKIE or
		// HANDSHAKING before ever notifying CONNECTED).
		s.params.Manager.StateChanged(s.facade, StateDisconnected, "")
	}
	s.params.Manager.Shutdown(s.facade)
}

func (s *Session) buildDTLSConfig() (*dtls.Config, error) {
	cfg := &dtls.Config{
		MTU:                  dataMTU,
		InsecureSkipVerify:   s.params.TLS.InsecureSkipVerify,
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
		LoggerFactory:        newLoggerFactory(s.logger),
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), s.params.TLS.HandshakeTimeout)
		},
	}

	if s.role == RoleServer {
		cfg.ClientCAs = x509.NewCertPool()
		cfg.ClientAuth = dtls.RequireAnyClientCert
	} else {
		cfg.RootCAs = x509.NewCertPool()
	}

	if s.params.TLS.CABundleFile != "" {
		pool, err := loadCertPool(s.params.TLS.CABundleFile)
		if err != nil {
			return nil, fmt.Errorf("transport: load CA bundle: %w", err)
		}
		if s.role == RoleServer {
			cfg.ClientCAs = pool
		} else {
			cfg.RootCAs = pool
		}
	}

	cert, err := s.loadLocalIdentity()
	if err != nil {
		return nil, err
	}
	cfg.Certificates = []tls.Certificate{*cert}

	if s.params.CertHook != nil {
		hook := s.params.CertHook
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			chain := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				c, err := x509.ParseCertificate(raw)
				if err != nil {
					return fmt.Errorf("transport: parse peer certificate: %w", err)
				}
				chain = append(chain, c)
			}
			if err := hook(chain); err != nil {
				s.mu.Lock()
				s.verifyStatus = "FAILED"
				s.mu.Unlock()
				return err
			}
			return nil
		}
	}

	return cfg, nil
}

func (s *Session) loadLocalIdentity() (*tls.Certificate, error) {
	if s.params.TLS.LocalCertFile != "" && s.params.TLS.LocalKeyFile != "" {
		return tlsCertificateFromFiles(s.params.TLS.LocalCertFile, s.params.TLS.LocalKeyFile)
	}
	// spec.md §12: fall back to an ephemeral self-signed identity rather
	// than fail construction, generalized from the teacher's
	// localhost-only self-signed generator.
	return certview.GenerateEphemeralIdentity(certview.IdentityParams{
		CommonName: s.id,
	})
}

func tlsCertificateFromFiles(certFile, keyFile string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load identity: %w", err)
	}
	return &cert, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transport: read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
