package actor

import (
	"crypto/sha256"
	"encoding/hex"
)

// Address derives the stable actor address for an interactive element on a
// message: the first 16 bytes of SHA-256("<message id>-<identifier>") in
// lowercase hex.
func Address(messageID, identifier string) string {
	sum := sha256.Sum256([]byte(messageID + "-" + identifier))
	return hex.EncodeToString(sum[:16])
}

// ValidAddress reports whether s has the shape Address produces.
func ValidAddress(s string) bool {
	if len(s) != 32 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
