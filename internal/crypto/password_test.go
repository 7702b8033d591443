package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestRandBytes_Length(t *testing.T) {
	t.Parallel()

	a, err := RandBytes(SaltLen)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	b, err := RandBytes(SaltLen)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if len(a) != SaltLen || len(b) != SaltLen {
		t.Fatalf("len=%d/%d, want=%d", len(a), len(b), SaltLen)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two salts are equal")
	}
}

func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	pw := []byte("hunter22")
	salt := []byte("0123456789abcdef")
	hash := HashPassword(pw, salt)

	if !bytes.Equal(hash, HashPassword(pw, salt)) {
		t.Fatalf("hash not deterministic")
	}
	if !VerifyPassword(pw, salt, hash) {
		t.Fatalf("correct password rejected")
	}
	if VerifyPassword([]byte("hunter23"), salt, hash) {
		t.Fatalf("wrong password accepted")
	}
	if VerifyPassword(pw, []byte("fedcba9876543210"), hash) {
		t.Fatalf("wrong salt accepted")
	}
}

func TestNewResetToken(t *testing.T) {
	t.Parallel()

	raw, digest, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	dec, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(dec) != tokenLen {
		t.Fatalf("token not url-safe base64 of %d bytes: %v", tokenLen, err)
	}
	if !bytes.Equal(digest, TokenDigest(raw)) {
		t.Fatalf("digest mismatch")
	}
	raw2, _, _ := NewResetToken()
	if raw == raw2 {
		t.Fatalf("tokens repeat")
	}
}
