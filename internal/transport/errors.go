package transport

import (
	"errors"
	"fmt"

	"github.com/pion/dtls/v3/pkg/protocol/alert"
)

// Kind is the abstract error taxonomy the session reports to callers and
// upstream collaborators. It deliberately mirrors the coarse categories a
// GnuTLS-based implementation would map its native error codes onto,
// rather than leaking pion/dtls's own error types across the package
// boundary.
type Kind int

const (
	// KindOK is success.
	KindOK Kind = iota
	// KindPending means the operation did not finish; retry on the next
	// wake signal (handshake in progress, rehandshake, interrupted read).
	KindPending
	// KindTimeout is a handshake or outbound-entry deadline expiring.
	KindTimeout
	// KindInvalid is a protocol-level illegal parameter or message.
	KindInvalid
	// KindUnsupported is a requested algorithm/feature unavailable.
	KindUnsupported
	// KindNotConnected marks an outbound entry failed during teardown drain.
	KindNotConnected
	// KindCert is a certificate-not-found or verification failure.
	KindCert
	// KindMemory is an allocation failure.
	KindMemory
	// KindFatal is any other fatal, session-ending error.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindPending:
		return "PENDING"
	case KindTimeout:
		return "TIMEOUT"
	case KindInvalid:
		return "INVALID"
	case KindUnsupported:
		return "UNSUPPORTED"
	case KindNotConnected:
		return "NOT_CONNECTED"
	case KindCert:
		return "CERT"
	case KindMemory:
		return "MEMORY"
	case KindFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Error wraps a Kind with the originating native error, if any.
type Error struct {
	Kind    Kind
	Native  error
	Message string
}

func (e *Error) Error() string {
	if e.Native != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Native)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Native }

func newError(kind Kind, msg string, native error) *Error {
	return &Error{Kind: kind, Message: msg, Native: native}
}

// ErrSessionDisconnected is returned by operations attempted after the
// session has reached DISCONNECTED.
var ErrSessionDisconnected = newError(KindNotConnected, "session is disconnected", nil)

// ErrPendingOperation is returned by Send when the entry's op-key already
// has an outstanding operation (spec.md §4.3: "rejects with INVALID if the
// entry already has a pending op").
var ErrPendingOperation = newError(KindInvalid, "operation key already pending", nil)

// classifyHandshakeErr maps an error surfaced from pion/dtls's Client/Server
// handshake call into our taxonomy. pion/dtls does not expose the same
// again/interrupted/rehandshake trio GnuTLS does (its handshake call is
// blocking and returns only on completion or fatal failure), so "pending"
// here only ever arises from our own context-deadline plumbing signaling
// "handshake still running" to the driver loop, never from this function.
// An *Error of this package (such as the driver's own handshake-deadline
// TIMEOUT) keeps its Kind.
func classifyHandshakeErr(err error) Kind {
	if err == nil {
		return KindOK
	}
	var alertErr *alert.Error
	if errors.As(err, &alertErr) {
		return classifyAlert(alertErr.Description)
	}
	var ownErr *Error
	if errors.As(err, &ownErr) {
		return ownErr.Kind
	}
	if errors.Is(err, errHandshakeTimeout) {
		return KindTimeout
	}
	return KindFatal
}

func classifyAlert(desc alert.Description) Kind {
	switch desc {
	case alert.BadCertificate, alert.UnsupportedCertificate, alert.CertificateExpired,
		alert.CertificateRevoked, alert.CertificateUnknown, alert.UnknownCA,
		alert.AccessDenied:
		return KindCert
	case alert.HandshakeFailure, alert.ProtocolVersion, alert.InsufficientSecurity,
		alert.IllegalParameter, alert.DecodeError, alert.DecryptError,
		alert.UnexpectedMessage:
		return KindInvalid
	case alert.UnsupportedExtension, alert.NoApplicationProtocol:
		return KindUnsupported
	default:
		return KindFatal
	}
}

var errHandshakeTimeout = errors.New("dtls handshake timed out")
