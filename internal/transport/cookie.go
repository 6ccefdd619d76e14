package transport

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// DTLS 1.2 record and handshake header layout (RFC 6347 §4.1, §4.2.2).
const (
	recordHeaderLen    = 13
	handshakeHeaderLen = 12

	contentTypeHandshake = 22

	handshakeTypeClientHello       = 1
	handshakeTypeHelloVerifyReq    = 3
	helloVerifyRequestCookieMaxLen = 32
)

var dtlsRecordVersion = [2]byte{0xfe, 0xfd} // DTLS 1.2, wire-negative encoding

// cookieGate implements the server-only stateless return-routability
// check of spec.md §4.1/§4.2: it never allocates DTLS session state
// until a client has echoed back an HMAC cookie keyed off its own
// ClientHello, defeating source-spoofed amplification.
//
// pion/dtls/v3's Server() call does not expose this as a standalone
// step, so it is hand-rolled directly against the wire format here,
// matching the level of protocol-level work spec.md §1 calls for.
type cookieGate struct {
	secret []byte
}

func newCookieGate() (*cookieGate, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("cookie gate: generate secret: %w", err)
	}
	return &cookieGate{secret: secret}, nil
}

func (g *cookieGate) computeCookie(remote string, clientRandom []byte) []byte {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(remote))
	mac.Write(clientRandom)
	return mac.Sum(nil)[:helloVerifyRequestCookieMaxLen]
}

// clientHelloInfo is the subset of a parsed ClientHello this gate needs.
type clientHelloInfo struct {
	random []byte // 32 bytes
	cookie []byte
}

// parseClientHello walks a raw DTLS record looking for a ClientHello
// handshake message, returning its random and (possibly empty) cookie.
// Anything that doesn't parse as a well-formed ClientHello record
// returns ok == false so the caller silently drops it and stays in
// COOKIE, rather than erroring the session over a stray packet.
func parseClientHello(raw []byte) (info clientHelloInfo, ok bool) {
	if len(raw) < recordHeaderLen {
		return clientHelloInfo{}, false
	}
	if raw[0] != contentTypeHandshake {
		return clientHelloInfo{}, false
	}
	recordLen := int(binary.BigEndian.Uint16(raw[11:13]))
	body := raw[recordHeaderLen:]
	if len(body) < recordLen || len(body) < handshakeHeaderLen {
		return clientHelloInfo{}, false
	}

	if body[0] != handshakeTypeClientHello {
		return clientHelloInfo{}, false
	}
	hs := body[handshakeHeaderLen:]

	// ClientHello body: client_version(2) random(32) session_id_len(1)
	// session_id(var) cookie_len(1) cookie(var) ...
	const versionLen = 2
	const randomLen = 32
	if len(hs) < versionLen+randomLen+1 {
		return clientHelloInfo{}, false
	}
	off := versionLen
	random := hs[off : off+randomLen]
	off += randomLen

	sessionIDLen := int(hs[off])
	off++
	if len(hs) < off+sessionIDLen+1 {
		return clientHelloInfo{}, false
	}
	off += sessionIDLen

	cookieLen := int(hs[off])
	off++
	if len(hs) < off+cookieLen {
		return clientHelloInfo{}, false
	}
	cookie := hs[off : off+cookieLen]

	return clientHelloInfo{random: append([]byte(nil), random...), cookie: append([]byte(nil), cookie...)}, true
}

// verify reports whether info carries a cookie matching the one this
// gate would compute for remote.
func (g *cookieGate) verify(remote string, info clientHelloInfo) bool {
	if len(info.cookie) == 0 {
		return false
	}
	expected := g.computeCookie(remote, info.random)
	return hmac.Equal(expected, info.cookie)
}

// buildHelloVerifyRequest constructs the datagram sent back to a client
// whose ClientHello carried no (or a stale) cookie: a single DTLS
// record containing one HelloVerifyRequest handshake message.
func buildHelloVerifyRequest(epoch uint16, seq uint64, cookie []byte) []byte {
	body := make([]byte, 0, 2+1+len(cookie))
	body = append(body, dtlsRecordVersion[0], dtlsRecordVersion[1])
	body = append(body, byte(len(cookie)))
	body = append(body, cookie...)

	hs := make([]byte, handshakeHeaderLen+len(body))
	hs[0] = handshakeTypeHelloVerifyReq
	hs[1] = byte(len(body) >> 16)
	hs[2] = byte(len(body) >> 8)
	hs[3] = byte(len(body))
	// message_seq = 0, fragment_offset = 0, fragment_length = len(body)
	hs[9] = byte(len(body) >> 16)
	hs[10] = byte(len(body) >> 8)
	hs[11] = byte(len(body))
	copy(hs[handshakeHeaderLen:], body)

	record := make([]byte, recordHeaderLen+len(hs))
	record[0] = contentTypeHandshake
	record[1] = dtlsRecordVersion[0]
	record[2] = dtlsRecordVersion[1]
	binary.BigEndian.PutUint16(record[3:5], epoch)
	putUint48(record[5:11], seq)
	binary.BigEndian.PutUint16(record[11:13], uint16(len(hs)))
	copy(record[recordHeaderLen:], hs)
	return record
}

func putUint48(dst []byte, v uint64) {
	dst[0] = byte(v >> 40)
	dst[1] = byte(v >> 32)
	dst[2] = byte(v >> 24)
	dst[3] = byte(v >> 16)
	dst[4] = byte(v >> 8)
	dst[5] = byte(v)
}
