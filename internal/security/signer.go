package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignWebhookBody implements spec.md §4.8/§6: signature header is lowercase
// hex HMAC-SHA256 over the exact UTF-8 bytes of the request body, prefixed
// "sha256=".
func SignWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature recomputes the signature and compares in constant
// time, per §8 invariant 8 (HMAC verifiability).
func VerifyWebhookSignature(secret string, body []byte, signature string) bool {
	expected := SignWebhookBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
