package transport

import "testing"

func TestValidateRemoteAddrAcceptsIPv4AndIPv6(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:5060", "[::1]:5060", "10.0.0.5:1"} {
		if err := validateRemoteAddr(addr); err != nil {
			t.Errorf("validateRemoteAddr(%q) = %v, want nil", addr, err)
		}
	}
}

func TestValidateRemoteAddrRejectsEmptyAndGarbage(t *testing.T) {
	for _, addr := range []string{"", "not-an-address", "example.com:5060"} {
		if err := validateRemoteAddr(addr); err == nil {
			t.Errorf("validateRemoteAddr(%q) = nil, want an error", addr)
		}
	}
}

func TestTimeoutErrorImplementsNetError(t *testing.T) {
	var err error = timeoutError{}
	if err.Error() == "" {
		t.Fatal("timeoutError.Error() returned empty string")
	}
	ne, ok := err.(interface{ Timeout() bool })
	if !ok || !ne.Timeout() {
		t.Fatal("timeoutError should report Timeout() == true")
	}
}

func TestStrAddrImplementsNetAddr(t *testing.T) {
	a := strAddr("10.0.0.1:5060")
	if a.String() != "10.0.0.1:5060" {
		t.Errorf("String() = %q, want %q", a.String(), "10.0.0.1:5060")
	}
	if a.Network() == "" {
		t.Error("Network() should not be empty")
	}
}
