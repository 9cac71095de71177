package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestVerify_S256(t *testing.T) {
	verifier := "abc"
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	if !Verify(challenge, MethodS256, verifier) {
		t.Fatalf("expected S256 verifier to match its own challenge")
	}
	if Verify(challenge, MethodS256, "abd") {
		t.Fatalf("wrong verifier must not match")
	}
	if Verify(challenge, MethodS256, "") {
		t.Fatalf("empty verifier must not match")
	}
}

func TestVerify_Plain(t *testing.T) {
	if !Verify("abc", MethodPlain, "abc") {
		t.Fatalf("plain: identical verifier must match")
	}
	if Verify("abc", MethodPlain, "abd") {
		t.Fatalf("plain: different verifier must not match")
	}
}

func TestVerify_UnknownMethodFailsClosed(t *testing.T) {
	if Verify("abc", "S512", "abc") {
		t.Fatalf("unknown method must be rejected")
	}
	if Verify("abc", "", "abc") {
		t.Fatalf("empty method must be rejected")
	}
}
