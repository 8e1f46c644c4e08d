package executor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SignatureHeader carries the HMAC-SHA256 signature of the request body.
// Both directions of the executor contract use it: outbound dispatches and
// inbound status updates.
const SignatureHeader = "X-Signature-256"

// MarshalSigned marshals a payload for signing. Kept separate so signer and
// verifier agree on the exact bytes.
func MarshalSigned(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Sign computes the HMAC-SHA256 signature of a payload.
func Sign(payload []byte, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header against a payload in constant
// time. An empty key disables verification.
func VerifySignature(payload []byte, key, signature string) bool {
	if key == "" {
		return true
	}
	expected := Sign(payload, key)
	return hmac.Equal([]byte(expected), []byte(signature))
}
