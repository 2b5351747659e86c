package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SessionTokenPrefix marks admin session tokens so they are recognisable in logs and
	// secret scanners.
	SessionTokenPrefix = "sth_"

	// sessionTokenBytes is the amount of random material in a session token.
	sessionTokenBytes = 32
)

// GenerateSessionToken returns a new opaque session token. The raw value is handed to
// the client once; only HashToken(token) is ever persisted.
func GenerateSessionToken() (string, error) {
	randomBytes := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return SessionTokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken returns the lower-case hex SHA-256 digest used as the session lookup key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ExtractSessionToken normalises a token taken from a header or cookie.
// A leading "Bearer " is tolerated so the token can also travel in Authorization.
func ExtractSessionToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		value = strings.TrimSpace(value[7:])
	}
	return value
}
