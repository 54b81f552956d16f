// Package auth guards the HTTP API with a shared bearer token.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// TokenPrefix marks generated API tokens.
const TokenPrefix = "psk_"

// GenerateToken returns a new random API token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

// hashToken returns the SHA-256 digest of a token.
func hashToken(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(token))
}

// Validator checks presented tokens against the configured one. Only the
// digest is kept so comparison time does not depend on token length.
type Validator struct {
	hash    [sha256.Size]byte
	enabled bool
}

// NewValidator creates a validator for token. An empty token rejects
// every request.
func NewValidator(token string) *Validator {
	if token == "" {
		return &Validator{}
	}
	return &Validator{hash: hashToken(token), enabled: true}
}

// Validate reports whether presented matches the configured token.
func (v *Validator) Validate(presented string) bool {
	if !v.enabled || presented == "" {
		return false
	}
	h := hashToken(presented)
	return subtle.ConstantTimeCompare(h[:], v.hash[:]) == 1
}
