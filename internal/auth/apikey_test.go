package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestKeyCheckerPlainKey(t *testing.T) {
	checker := NewKeyChecker("s3cret", "")
	if !checker.Configured() {
		t.Fatal("expected checker to be configured")
	}
	if err := checker.Verify("s3cret"); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}
	if err := checker.Verify("s3cret "); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if err := checker.Verify(""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestKeyCheckerHashedKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	checker := NewKeyChecker("ignored-when-hash-set", string(hash))

	if err := checker.Verify("s3cret"); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}
	if err := checker.Verify("ignored-when-hash-set"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected hash to take precedence, got %v", err)
	}
}

func TestKeyCheckerNotConfigured(t *testing.T) {
	for _, checker := range []*KeyChecker{nil, NewKeyChecker("", "")} {
		if checker.Configured() {
			t.Fatal("expected checker to be unconfigured")
		}
		if err := checker.Verify("anything"); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
	}
}

func TestHashKeyRoundTrip(t *testing.T) {
	hash, err := HashKey("rotate-me")
	if err != nil {
		t.Fatalf("HashKey: %v", err)
	}
	if err := NewKeyChecker("", hash).Verify("rotate-me"); err != nil {
		t.Fatalf("expected hash to verify, got %v", err)
	}
	if _, err := HashKey(""); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey for empty key, got %v", err)
	}
}
