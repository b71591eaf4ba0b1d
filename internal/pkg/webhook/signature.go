package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the provider's signature of the raw body.
const SignatureHeader = "intuit-signature"

// VerifySignature checks the HMAC-SHA256 of payload keyed with secret against
// signatureHeader. The provider sends base64; hex digests are accepted too.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}

	expected := computeMAC(payload, secret)
	if decoded, err := base64.StdEncoding.DecodeString(sig); err == nil && hmac.Equal(decoded, expected) {
		return true
	}
	if decoded, err := hex.DecodeString(strings.ToLower(sig)); err == nil && hmac.Equal(decoded, expected) {
		return true
	}
	return false
}

// ComputeSignature returns the base64 signature the provider would send.
func ComputeSignature(payload []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(computeMAC(payload, strings.TrimSpace(secret)))
}

func computeMAC(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
