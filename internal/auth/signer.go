package auth

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Sign computes the HMAC-SHA256 tag over message with the provided secret.
func Sign(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)
}

// Verify reports whether tag matches the recomputed tag for message.
// Comparison is constant time.
func Verify(secret, message, tag []byte) bool {
	return hmac.Equal(Sign(secret, message), tag)
}
