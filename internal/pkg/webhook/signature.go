package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the exact body bytes.
// The header is omitted for registrations without a secret.
const SignatureHeader = "X-Webhook-Signature"

// CanonicalBody builds the delivery body with a deterministic key order.
// encoding/json sorts map keys, so signing the same logical event always
// yields the same bytes regardless of how the payload map was assembled.
// Timestamps are RFC3339 in UTC for the same reason.
func CanonicalBody(eventType string, data map[string]interface{}, timestamp time.Time, webhookID string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"event":     eventType,
		"data":      data,
		"timestamp": timestamp.UTC().Format(time.RFC3339),
		"webhookId": webhookID,
	})
}

// Sign computes the hex HMAC-SHA256 signature over the exact body bytes.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the body, for
// receivers and tests.
func VerifySignature(body []byte, signature, secret string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
