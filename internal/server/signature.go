package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	SignaturePrefix = "sha256="
)

// VerifySignature verifies the HMAC-SHA256 signature of a GitHub webhook
// payload. It only looks at the raw bytes; the payload does not need to be
// valid JSON. Any missing or malformed signature yields false.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	// Signature format: "sha256=<hex_digest>"
	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}

	received, err := hex.DecodeString(strings.TrimPrefix(signature, SignaturePrefix))
	if err != nil || len(received) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal(mac.Sum(nil), received)
}
