package rotation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const rawTokenBytes = 32

// HashToken returns the hex SHA-256 digest of a raw refresh token. The
// digest is deterministic on purpose: it is the database lookup key, so the
// raw value itself never has to be stored.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// NewRawToken generates a 256-bit random token, base64url encoded.
func NewRawToken() (string, error) {
	b := make([]byte, rawTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
