package internal

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns the hex SHA-256 of a raw refresh or legacy access token.
// Cache keys and durable rows only ever carry this value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashCode returns the SHA-256 of a one-time code.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// FingerprintMatches compares a stored device fingerprint with the one derived
// from the current request in constant time.
func FingerprintMatches(stored, current string) bool {
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(current))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
