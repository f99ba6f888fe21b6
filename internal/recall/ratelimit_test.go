package recall

import "testing"

// TestAddressLimiterAllowsBurstThenBlocks checks the token-bucket shape:
// up to `burst` requests succeed immediately, the next is rejected.
func TestAddressLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := newAddressLimiter()
	for i := 0; i < burst; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if l.allow("1.2.3.4") {
		t.Error("expected the request beyond burst capacity to be rejected")
	}
}

// TestAddressLimiterIsPerAddress checks that one address being
// rate-limited does not affect another.
func TestAddressLimiterIsPerAddress(t *testing.T) {
	l := newAddressLimiter()
	for i := 0; i < burst; i++ {
		l.allow("1.1.1.1")
	}
	if !l.allow("2.2.2.2") {
		t.Error("expected a distinct address to have its own budget")
	}
}
