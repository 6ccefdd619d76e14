package transport

import "github.com/pion/dtls/v3"

// cipherSuiteNames maps the IANA cipher suite IDs pion/dtls offers by
// default to their registry names, so GetInfo can report a human-readable
// suite without round-tripping through pion's internal suite registry
// (which is not exported in a form we can query by ID alone).
var cipherSuiteNames = map[dtls.CipherSuiteID]string{
	dtls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
	dtls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	dtls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA:    "TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA",
	dtls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA:      "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA",
	dtls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256",
	dtls.TLS_PSK_WITH_AES_128_CCM_8:              "TLS_PSK_WITH_AES_128_CCM_8",
	dtls.TLS_PSK_WITH_AES_128_GCM_SHA256:         "TLS_PSK_WITH_AES_128_GCM_SHA256",
}

// CipherSuiteName returns the registry name for id, or a numeric fallback
// for a suite this build doesn't negotiate but might still observe in a
// ConnectionState read from a future pion/dtls version.
func CipherSuiteName(id dtls.CipherSuiteID) string {
	if name, ok := cipherSuiteNames[id]; ok {
		return name
	}
	return unknownSuiteLabel(id)
}

func unknownSuiteLabel(id dtls.CipherSuiteID) string {
	const hexDigits = "0123456789abcdef"
	b := []byte("TLS_UNKNOWN_0x0000")
	v := uint16(id)
	for i := len(b) - 1; i >= len(b)-4; i-- {
		b[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(b)
}
