package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks an HMAC-SHA256 signature over the raw payload bytes.
// The header value may be bare hex or prefixed with "sha256=". Comparison is
// constant time.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	if secret == "" {
		return false
	}
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign computes the hex HMAC-SHA256 signature for a payload. Used by tests
// and by provider simulators.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
