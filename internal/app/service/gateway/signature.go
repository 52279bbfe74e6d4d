package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// checksum returns the hex HMAC-SHA256 of body under the gateway secret.
func checksum(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature compares a provider signature header against the recomputed
// HMAC in constant time.
func verifySignature(secret string, body []byte, got string) bool {
	want := checksum(secret, body)
	return hmac.Equal([]byte(want), []byte(got))
}

// fingerprint derives a stable event id from the raw payload for providers
// that do not send one.
func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
