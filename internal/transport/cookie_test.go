package transport

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildClientHelloRecord constructs a minimal but well-formed DTLS
// ClientHello record carrying the given cookie, mirroring the wire shape
// parseClientHello expects.
func buildClientHelloRecord(random []byte, cookie []byte) []byte {
	body := make([]byte, 0, 2+32+1+1+len(cookie))
	body = append(body, 0xfe, 0xfd) // client_version
	body = append(body, random...)  // random (32 bytes)
	body = append(body, 0)          // session_id_len = 0
	body = append(body, byte(len(cookie)))
	body = append(body, cookie...)

	hs := make([]byte, handshakeHeaderLen+len(body))
	hs[0] = handshakeTypeClientHello
	hs[1] = byte(len(body) >> 16)
	hs[2] = byte(len(body) >> 8)
	hs[3] = byte(len(body))
	hs[9] = byte(len(body) >> 16)
	hs[10] = byte(len(body) >> 8)
	hs[11] = byte(len(body))
	copy(hs[handshakeHeaderLen:], body)

	record := make([]byte, recordHeaderLen+len(hs))
	record[0] = contentTypeHandshake
	record[1] = dtlsRecordVersion[0]
	record[2] = dtlsRecordVersion[1]
	binary.BigEndian.PutUint16(record[11:13], uint16(len(hs)))
	copy(record[recordHeaderLen:], hs)
	return record
}

func fixedRandom(b byte) []byte {
	r := make([]byte, 32)
	for i := range r {
		r[i] = b
	}
	return r
}

func TestParseClientHelloRoundTrip(t *testing.T) {
	random := fixedRandom(0x42)
	cookie := []byte{1, 2, 3, 4}
	record := buildClientHelloRecord(random, cookie)

	info, ok := parseClientHello(record)
	if !ok {
		t.Fatal("parseClientHello returned ok=false for a well-formed record")
	}
	if !bytes.Equal(info.random, random) {
		t.Errorf("parsed random = %x, want %x", info.random, random)
	}
	if !bytes.Equal(info.cookie, cookie) {
		t.Errorf("parsed cookie = %x, want %x", info.cookie, cookie)
	}
}

func TestParseClientHelloRejectsTruncatedRecord(t *testing.T) {
	if _, ok := parseClientHello([]byte{1, 2, 3}); ok {
		t.Fatal("expected ok=false for a too-short record")
	}
}

func TestParseClientHelloRejectsNonHandshakeContentType(t *testing.T) {
	record := buildClientHelloRecord(fixedRandom(1), nil)
	record[0] = 23 // application_data, not handshake
	if _, ok := parseClientHello(record); ok {
		t.Fatal("expected ok=false for a non-handshake content type")
	}
}

func TestCookieGateVerifyRejectsMissingCookie(t *testing.T) {
	gate, err := newCookieGate()
	if err != nil {
		t.Fatalf("newCookieGate: %v", err)
	}
	info := clientHelloInfo{random: fixedRandom(9)}
	if gate.verify("127.0.0.1:40000", info) {
		t.Fatal("verify succeeded with no cookie present")
	}
}

func TestCookieGateVerifyAcceptsOwnComputedCookie(t *testing.T) {
	gate, err := newCookieGate()
	if err != nil {
		t.Fatalf("newCookieGate: %v", err)
	}
	remote := "127.0.0.1:40000"
	random := fixedRandom(7)
	cookie := gate.computeCookie(remote, random)

	info := clientHelloInfo{random: random, cookie: cookie}
	if !gate.verify(remote, info) {
		t.Fatal("verify rejected a correctly computed cookie")
	}
}

func TestCookieGateVerifyRejectsCookieForDifferentRemote(t *testing.T) {
	gate, err := newCookieGate()
	if err != nil {
		t.Fatalf("newCookieGate: %v", err)
	}
	random := fixedRandom(7)
	cookie := gate.computeCookie("127.0.0.1:40000", random)

	info := clientHelloInfo{random: random, cookie: cookie}
	if gate.verify("127.0.0.1:50000", info) {
		t.Fatal("verify accepted a cookie computed for a different remote address")
	}
}

func TestBuildHelloVerifyRequestCarriesCookie(t *testing.T) {
	cookie := []byte{0xaa, 0xbb, 0xcc}
	hvr := buildHelloVerifyRequest(0, 1, cookie)

	if hvr[0] != contentTypeHandshake {
		t.Fatalf("record content type = %d, want %d", hvr[0], contentTypeHandshake)
	}
	hs := hvr[recordHeaderLen:]
	if hs[0] != handshakeTypeHelloVerifyReq {
		t.Fatalf("handshake type = %d, want %d", hs[0], handshakeTypeHelloVerifyReq)
	}
	body := hs[handshakeHeaderLen:]
	cookieLen := int(body[2])
	gotCookie := body[3 : 3+cookieLen]
	if !bytes.Equal(gotCookie, cookie) {
		t.Errorf("HelloVerifyRequest cookie = %x, want %x", gotCookie, cookie)
	}
}
