package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const unknownAgent = "unknown"

// Fingerprint identifies a browser by its User-Agent: SHA-256 hex of the
// trimmed value, with a blank agent treated as "unknown".
func Fingerprint(userAgent string) string {
	ua := strings.TrimSpace(userAgent)
	if ua == "" {
		ua = unknownAgent
	}
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

// HashToken is the at-rest form of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two strings without leaking where they differ.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
