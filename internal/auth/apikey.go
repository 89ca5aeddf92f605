// Package auth checks the shared admin API key sent as a bearer token.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingKey    = errors.New("missing api key")
	ErrInvalidKey    = errors.New("invalid api key")
	ErrNotConfigured = errors.New("admin api key not configured")
)

// KeyChecker verifies a presented key against either a plain key or a
// bcrypt hash of it. The hash wins when both are configured.
type KeyChecker struct {
	digest []byte
	hash   []byte
}

func NewKeyChecker(plainKey, bcryptHash string) *KeyChecker {
	checker := &KeyChecker{}
	if bcryptHash != "" {
		checker.hash = []byte(bcryptHash)
	} else if plainKey != "" {
		checker.digest = digest(plainKey)
	}
	return checker
}

func (k *KeyChecker) Configured() bool {
	return k != nil && (len(k.hash) > 0 || len(k.digest) > 0)
}

func (k *KeyChecker) Verify(key string) error {
	if !k.Configured() {
		return ErrNotConfigured
	}
	if key == "" {
		return ErrMissingKey
	}
	if len(k.hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(k.hash, []byte(key)); err != nil {
			return ErrInvalidKey
		}
		return nil
	}
	if !hmac.Equal(digest(key), k.digest) {
		return ErrInvalidKey
	}
	return nil
}

// HashKey produces a value suitable for ADMIN_API_KEY_HASH.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

// digest gives fixed length inputs to the constant time compare.
func digest(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}
