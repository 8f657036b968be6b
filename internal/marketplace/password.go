package marketplace

import (
	"crypto/sha256"
	"encoding/base64"
)

// HashPassword encodes a plain password the way the login handshake expects it
func HashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.StdEncoding.EncodeToString(sum[:])
}
