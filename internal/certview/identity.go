package certview

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// IdentityParams generalizes the teacher's hardcoded-localhost self-signed
// generator (internal/dtls/selfsigned.go) into the ephemeral-identity
// fallback spec.md §4.5/§12 calls for when no configured local
// certificate is supplied: a session still needs something to present.
type IdentityParams struct {
	CommonName  string
	DNSNames    []string
	IPAddresses []net.IP
	Validity    time.Duration // defaults to 365 days if zero
}

// GenerateEphemeralIdentity produces a self-signed RSA-2048 certificate
// for p, in the same shape the teacher built for its localhost test
// identity, generalized to arbitrary CN/SANs.
func GenerateEphemeralIdentity(p IdentityParams) (*tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("certview: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, fmt.Errorf("certview: generate serial: %w", err)
	}

	validity := p.Validity
	if validity <= 0 {
		validity = 365 * 24 * time.Hour
	}
	notBefore := time.Now().Add(-1 * time.Hour)
	notAfter := notBefore.Add(validity)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: p.CommonName,
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,

		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,

		DNSNames:    p.DNSNames,
		IPAddresses: p.IPAddresses,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("certview: create certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{derBytes},
		PrivateKey:  priv,
	}, nil
}
