package identity

import (
	"crypto/rand"
	"encoding/base64"
)

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
