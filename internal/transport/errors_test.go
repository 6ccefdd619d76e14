package transport

import (
	"testing"

	"github.com/pion/dtls/v3/pkg/protocol/alert"
)

func TestClassifyHandshakeErrNilIsOK(t *testing.T) {
	if got := classifyHandshakeErr(nil); got != KindOK {
		t.Fatalf("classifyHandshakeErr(nil) = %v, want KindOK", got)
	}
}

func TestClassifyAlertGroupings(t *testing.T) {
	cases := []struct {
		desc alert.Description
		want Kind
	}{
		{alert.BadCertificate, KindCert},
		{alert.CertificateExpired, KindCert},
		{alert.UnknownCA, KindCert},
		{alert.HandshakeFailure, KindInvalid},
		{alert.IllegalParameter, KindInvalid},
		{alert.UnsupportedExtension, KindUnsupported},
		{alert.NoApplicationProtocol, KindUnsupported},
		{alert.CloseNotify, KindFatal},
	}
	for _, c := range cases {
		if got := classifyAlert(c.desc); got != c.want {
			t.Errorf("classifyAlert(%v) = %v, want %v", c.desc, got, c.want)
		}
	}
}

func TestErrorUnwrapReturnsNative(t *testing.T) {
	native := &Error{Kind: KindFatal, Message: "inner"}
	wrapped := newError(KindFatal, "outer", native)
	if wrapped.Unwrap() != error(native) {
		t.Fatal("Unwrap did not return the native error")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindOK:           "OK",
		KindPending:      "PENDING",
		KindTimeout:      "TIMEOUT",
		KindInvalid:      "INVALID",
		KindUnsupported:  "UNSUPPORTED",
		KindNotConnected: "NOT_CONNECTED",
		KindCert:         "CERT",
		KindMemory:       "MEMORY",
		KindFatal:        "FATAL",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
