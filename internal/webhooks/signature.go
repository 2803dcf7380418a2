package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignHMAC returns lowercase hex of HMAC-SHA256 over body, sent as X-Signature.
func SignHMAC(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}

// VerifyHMAC checks an X-Signature value against body. A "sha256=" prefix is accepted.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(strings.TrimPrefix(provided, "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(mac(secret, body), b)
}

func mac(secret string, body []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return m.Sum(nil)
}
