package transport

import (
	"testing"

	"github.com/pion/dtls/v3"
)

func TestCipherSuiteNameKnownSuite(t *testing.T) {
	got := CipherSuiteName(dtls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256)
	want := "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256"
	if got != want {
		t.Errorf("CipherSuiteName = %q, want %q", got, want)
	}
}

func TestCipherSuiteNameUnknownSuiteFallsBackToHex(t *testing.T) {
	got := CipherSuiteName(dtls.CipherSuiteID(0xBEEF))
	want := "TLS_UNKNOWN_0xbeef"
	if got != want {
		t.Errorf("CipherSuiteName = %q, want %q", got, want)
	}
}

func TestCipherSuiteNameZeroID(t *testing.T) {
	got := CipherSuiteName(dtls.CipherSuiteID(0))
	want := "TLS_UNKNOWN_0x0000"
	if got != want {
		t.Errorf("CipherSuiteName = %q, want %q", got, want)
	}
}
