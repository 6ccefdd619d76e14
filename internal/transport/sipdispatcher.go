package transport

import (
	"bytes"
	"strconv"
)

var sipMethods = [][]byte{
	[]byte("INVITE"), []byte("ACK"), []byte("BYE"), []byte("CANCEL"),
	[]byte("REGISTER"), []byte("OPTIONS"), []byte("PRACK"), []byte("SUBSCRIBE"),
	[]byte("NOTIFY"), []byte("PUBLISH"), []byte("INFO"), []byte("REFER"),
	[]byte("MESSAGE"), []byte("UPDATE"),
}

var sipVersion = []byte("SIP/2.0")

// SimpleSIPDispatcher is a minimal Dispatcher that finds SIP message
// boundaries at the blank line terminating the header block plus the
// number of body bytes a Content-Length header announces (compact "l:"
// headers are not recognized). It's the demo/test-weight analogue of the
// upstream SIP transport manager's receive_packet, which spec.md §1
// treats as an external collaborator rather than something this package
// implements in full.
type SimpleSIPDispatcher struct {
	// OnMessage, if set, receives each complete SIP message (its header
	// block, terminating blank line, and Content-Length body).
	OnMessage func(msg []byte)
}

func (d *SimpleSIPDispatcher) ReceivePacket(buf []byte) int {
	if !looksLikeSIP(buf) {
		return 0
	}

	eaten := 0
	for {
		rest := buf[eaten:]
		end := bytes.Index(rest, []byte("\r\n\r\n"))
		if end == -1 {
			return eaten
		}
		bodyLen := 0
		for _, line := range bytes.Split(rest[:end], []byte("\r\n")) {
			name, value, ok := bytes.Cut(line, []byte(":"))
			if ok && bytes.EqualFold(bytes.TrimSpace(name), []byte("Content-Length")) {
				if n, err := strconv.Atoi(string(bytes.TrimSpace(value))); err == nil && n > 0 {
					bodyLen = n
				}
			}
		}
		msgEnd := end + 4 + bodyLen
		if msgEnd > len(rest) {
			return eaten
		}
		if d.OnMessage != nil {
			msg := make([]byte, msgEnd)
			copy(msg, rest[:msgEnd])
			d.OnMessage(msg)
		}
		eaten += msgEnd
	}
}

func looksLikeSIP(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.HasPrefix(data, sipVersion) {
		return true
	}
	for _, method := range sipMethods {
		if bytes.HasPrefix(data, method) && len(data) > len(method) && data[len(method)] == ' ' {
			return true
		}
	}
	return false
}
