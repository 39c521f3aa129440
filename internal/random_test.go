package internal

import (
	"regexp"
	"testing"
)

func TestNewMagicCode(t *testing.T) {
	six := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 100; i++ {
		code, err := NewMagicCode(6)
		if err != nil {
			t.Fatalf("NewMagicCode failed: %v", err)
		}
		if !six.MatchString(code) {
			t.Fatalf("expected six digits, got %q", code)
		}
	}
}

func TestNewMagicCodeRejectsLength(t *testing.T) {
	for _, n := range []int{0, 5, 11} {
		if _, err := NewMagicCode(n); err == nil {
			t.Fatalf("expected error for %d digits", n)
		}
	}
}
