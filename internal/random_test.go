package internal

import (
	"testing"
)

func TestNewNumericCodeShape(t *testing.T) {
	for _, digits := range []int{MinCodeDigits, 6, 8, MaxCodeDigits} {
		code, err := NewNumericCode(digits)
		if err != nil {
			t.Fatalf("NewNumericCode(%d) failed: %v", digits, err)
		}
		if !IsNumericCode(code, digits) {
			t.Fatalf("NewNumericCode(%d) returned %q", digits, code)
		}
	}
}

func TestNewNumericCodeRejectsDigitsOutOfRange(t *testing.T) {
	for _, digits := range []int{0, MinCodeDigits - 1, MaxCodeDigits + 1} {
		if _, err := NewNumericCode(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestIsNumericCode(t *testing.T) {
	tests := []struct {
		code   string
		digits int
		want   bool
	}{
		{"123456", 6, true},
		{"000000", 6, true},
		{"12345", 6, false},
		{"1234567", 6, false},
		{"12a456", 6, false},
		{" 23456", 6, false},
		{"", 6, false},
	}
	for _, tc := range tests {
		if got := IsNumericCode(tc.code, tc.digits); got != tc.want {
			t.Fatalf("IsNumericCode(%q, %d) = %v, want %v", tc.code, tc.digits, got, tc.want)
		}
	}
}

func TestCodeDigestBindsOwnerAndPurpose(t *testing.T) {
	base := CodeDigest("login-otp", "acct-1", "123456")
	if base != CodeDigest("login-otp", "acct-1", "123456") {
		t.Fatal("expected digest to be deterministic")
	}
	if base == CodeDigest("password-reset", "acct-1", "123456") {
		t.Fatal("expected purpose to change digest")
	}
	if base == CodeDigest("login-otp", "acct-2", "123456") {
		t.Fatal("expected account to change digest")
	}
	// separator prevents "ab"+"c" colliding with "a"+"bc"
	if CodeDigest("p", "ab", "c1") == CodeDigest("p", "a", "bc1") {
		t.Fatal("expected field boundaries to be unambiguous")
	}
}

func FuzzIsNumericCode(f *testing.F) {
	f.Add("123456")
	f.Add("")
	f.Add("12345\x00")
	f.Add("１２３４５６")

	f.Fuzz(func(t *testing.T, input string) {
		if !IsNumericCode(input, 6) {
			return
		}
		if len(input) != 6 {
			t.Fatalf("accepted %q with length %d", input, len(input))
		}
		for _, r := range input {
			if r < '0' || r > '9' {
				t.Fatalf("accepted non-digit rune %q in %q", r, input)
			}
		}
	})
}
