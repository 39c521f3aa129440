package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// FuzzInspect feeds arbitrary strings to the unverified claim decoder and the
// verifying parser. Neither may panic, and Verify must never accept a token
// Inspect rejects.
func FuzzInspect(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	iss, err := NewIssuer(IssuerConfig{
		TTL:           5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := iss.Issue("user-1", "api://graph")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("opaque-token")
	f.Add("eyJhbGciOiJFZERTQSJ9.eyJ1aWQiOiJ0ZXN0In0.invalid")
	f.Add("eyJhbGciOiJub25lIn0.eyJhdWQiOiJhcGk6Ly94In0.")

	f.Fuzz(func(t *testing.T, input string) {
		_, inspectErr := Inspect(input)
		_ = IsExchangeable(input, "api://")
		claims, err := iss.Verify(input, "")
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("Verify returned nil claims without error")
		}
		if inspectErr != nil {
			t.Fatalf("Verify accepted a token Inspect rejected: %v", inspectErr)
		}
	})
}
