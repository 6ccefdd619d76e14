// Package certview extracts and caches the peer-identity view spec.md
// §4.6 calls "Certificate View": a read-only snapshot of the certificate
// a DTLS session authenticated with, derived from the x509.Certificate
// chain pion/dtls hands back at the end of a handshake.
package certview

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// SANKind classifies a subjectAltName entry the way spec.md §3 enumerates
// them for CertificateInfo.
type SANKind int

const (
	SANUnknown SANKind = iota
	SANDNS
	SANIP
	SANURI
	SANRFC822
)

func (k SANKind) String() string {
	switch k {
	case SANDNS:
		return "DNS"
	case SANIP:
		return "IP"
	case SANURI:
		return "URI"
	case SANRFC822:
		return "RFC822"
	default:
		return "UNKNOWN"
	}
}

// SubjectAltName is one alternate-name entry.
type SubjectAltName struct {
	Kind  SANKind
	Value string
}

// Info is the CertificateInfo data model of spec.md §3: a flattened,
// serialization-friendly view of an x509.Certificate, built once per
// distinct (issuer, serial) pair and reused across re-extraction calls
// that see the same peer certificate again (spec.md §4.6 cache-elision).
type Info struct {
	Version      int
	IssuerDN     string
	IssuerCN     string
	SubjectDN    string
	SubjectCN    string
	SerialHex    string // fixed-width, left-padded with '0'
	NotBefore    time.Time
	NotAfter     time.Time
	SANs         []SubjectAltName
	VerifyStatus string
}

// serialHexWidth is wide enough for a 20-byte (160-bit) serial, the
// largest CAs commonly issue, left-padded so lexical and numeric
// ordering agree for audit-log sorting.
const serialHexWidth = 40

// Extract builds an Info from cert. It never performs chain validation
// itself — that is the handshake hook's job (session.go's
// VerifyPeerCertificate callback) — this only flattens fields for
// display/audit.
func Extract(cert *x509.Certificate) *Info {
	info := &Info{
		Version:   cert.Version,
		IssuerDN:  cert.Issuer.String(),
		IssuerCN:  cert.Issuer.CommonName,
		SubjectDN: cert.Subject.String(),
		SubjectCN: cert.Subject.CommonName,
		SerialHex: formatSerialHex(cert.SerialNumber.Bytes()),
		NotBefore: cert.NotBefore.UTC(),
		NotAfter:  cert.NotAfter.UTC(),
	}

	// SANs only apply from X.509v3 onward (the wire encoding is 0-indexed,
	// but the stdlib reports v3 certs as Version == 3).
	if cert.Version >= 3 {
		for _, d := range cert.DNSNames {
			info.SANs = append(info.SANs, SubjectAltName{Kind: SANDNS, Value: d})
		}
		for _, ip := range cert.IPAddresses {
			info.SANs = append(info.SANs, SubjectAltName{Kind: SANIP, Value: ip.String()})
		}
		for _, u := range cert.URIs {
			info.SANs = append(info.SANs, SubjectAltName{Kind: SANURI, Value: u.String()})
		}
		for _, e := range cert.EmailAddresses {
			info.SANs = append(info.SANs, SubjectAltName{Kind: SANRFC822, Value: e})
		}
	}

	return info
}

func formatSerialHex(b []byte) string {
	s := fmt.Sprintf("%x", b)
	if len(s) >= serialHexWidth {
		return s
	}
	return strings.Repeat("0", serialHexWidth-len(s)) + s
}

// cacheKey identifies a certificate for the Extract cache-elision rule
// without hashing the whole DER: (issuer DN, serial) is unique enough
// for a single CA's issuance policy, matching spec.md §4.6.
type cacheKey struct {
	issuerDN  string
	serialHex string
}

// Cache memoizes Extract results by (issuer, serial), avoiding repeated
// subject-DN string-building and SAN walks when a session's peer
// certificate is re-queried (GetInfo, audit logging) without having
// actually changed.
type Cache struct {
	entries map[cacheKey]*Info
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*Info)}
}

// Get returns a cached Info for cert if one exists, else extracts,
// caches, and returns a fresh one.
func (c *Cache) Get(cert *x509.Certificate) *Info {
	key := cacheKey{issuerDN: cert.Issuer.String(), serialHex: formatSerialHex(cert.SerialNumber.Bytes())}
	if cached, ok := c.entries[key]; ok {
		return cached
	}
	info := Extract(cert)
	c.entries[key] = info
	return info
}
