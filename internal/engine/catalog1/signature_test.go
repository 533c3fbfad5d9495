package catalog1

import "testing"

func TestSignIsDeterministic(t *testing.T) {
	data := []byte("The quick brown fox jumps over 13 lazy dogs.")
	a, err := Sign(data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := Sign(data)
	if err != nil {
		t.Fatalf("Sign (again): %v", err)
	}
	if len(a) != NumPerms || len(b) != NumPerms {
		t.Fatalf("signature length = %d/%d, want %d", len(a), len(b), NumPerms)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Sign is not deterministic at index %d: %d != %d", i, a[i], b[i])
		}
	}
}

func TestSignRejectsShortInput(t *testing.T) {
	if _, err := Sign([]byte{0x01, 0x02, 0x03}); err != ErrDataTooShort {
		t.Fatalf("Sign([3 bytes]) error = %v, want ErrDataTooShort", err)
	}
}

func TestSignAcceptsExactlyOneWindow(t *testing.T) {
	sig, err := Sign([]byte{0x01, 0x02, 0x03, 0x04})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != NumPerms {
		t.Fatalf("signature length = %d, want %d", len(sig), NumPerms)
	}
}

func TestPermIsWithinWordRange(t *testing.T) {
	// perm must always stay within uint32 range; this is really a
	// compile-time guarantee in Go, but exercising a spread of inputs here
	// documents the expectation and catches an accidental type widening.
	for _, p := range []int{0, 1, 63} {
		for _, x := range []uint32{0, 1, 0xFFFFFFFF, 0x80000000} {
			_ = perm(p, x) // must not panic
		}
	}
}
