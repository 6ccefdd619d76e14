package certview

import (
	"crypto/x509"
	"net"
	"testing"
	"time"
)

func generateTestCert(t *testing.T, cn string, dnsNames []string, ips []net.IP) *x509.Certificate {
	t.Helper()
	tlsCert, err := GenerateEphemeralIdentity(IdentityParams{
		CommonName:  cn,
		DNSNames:    dnsNames,
		IPAddresses: ips,
		Validity:    24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("GenerateEphemeralIdentity: %v", err)
	}
	cert, err := x509.ParseCertificate(tlsCert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert
}

func TestExtractFlattensDNAndCN(t *testing.T) {
	cert := generateTestCert(t, "peer.example.com", nil, nil)
	info := Extract(cert)

	if info.SubjectCN != "peer.example.com" {
		t.Errorf("SubjectCN = %q, want %q", info.SubjectCN, "peer.example.com")
	}
	if info.IssuerCN != "peer.example.com" {
		t.Errorf("IssuerCN = %q, want %q (self-signed)", info.IssuerCN, "peer.example.com")
	}
	if len(info.SerialHex) != serialHexWidth {
		t.Errorf("SerialHex length = %d, want %d", len(info.SerialHex), serialHexWidth)
	}
}

func TestExtractEnumeratesSANsByKind(t *testing.T) {
	cert := generateTestCert(t, "peer", []string{"alt.example.com"}, []net.IP{net.ParseIP("10.0.0.5")})
	info := Extract(cert)

	var sawDNS, sawIP bool
	for _, san := range info.SANs {
		switch san.Kind {
		case SANDNS:
			if san.Value == "alt.example.com" {
				sawDNS = true
			}
		case SANIP:
			if san.Value == "10.0.0.5" {
				sawIP = true
			}
		}
	}
	if !sawDNS {
		t.Error("expected a DNS SAN entry for alt.example.com")
	}
	if !sawIP {
		t.Error("expected an IP SAN entry for 10.0.0.5")
	}
}

func TestCacheSkipsReExtractionForSameIssuerAndSerial(t *testing.T) {
	cert := generateTestCert(t, "cached-peer", nil, nil)
	cache := NewCache()

	first := cache.Get(cert)
	second := cache.Get(cert)

	if first != second {
		t.Fatal("Cache.Get returned a different *Info for the same (issuer, serial) pair")
	}
}

func TestCacheDistinguishesDifferentCertificates(t *testing.T) {
	certA := generateTestCert(t, "peer-a", nil, nil)
	certB := generateTestCert(t, "peer-b", nil, nil)
	cache := NewCache()

	infoA := cache.Get(certA)
	infoB := cache.Get(certB)

	if infoA == infoB {
		t.Fatal("Cache.Get returned the same *Info for two distinct certificates")
	}
	if infoA.SubjectCN == infoB.SubjectCN {
		t.Fatal("expected distinct SubjectCN between independently generated certificates")
	}
}

func TestSANKindString(t *testing.T) {
	cases := map[SANKind]string{
		SANDNS:    "DNS",
		SANIP:     "IP",
		SANURI:    "URI",
		SANRFC822: "RFC822",
		SANUnknown: "UNKNOWN",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
