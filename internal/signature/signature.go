package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

// HeaderNames lists the request headers a provider may carry its signature in,
// in lookup order.
var HeaderNames = []string{"Sign", "Signature", "X-Signature", "X-Webhook-Signature"}

// FieldNames lists body fields that may carry the signature when no header is set.
var FieldNames = []string{"signature", "sign"}

const prefix = "sha256="

// Enabled reports whether a secret is configured. An empty secret means the
// deployment runs in insecure mode and every body is accepted.
func Enabled(secret string) bool {
	return secret != ""
}

// Verify checks signature against HMAC-SHA256(rawBody, secret). The presented
// value may be the lowercase hex or the standard base64 form, optionally
// prefixed with "sha256=" in any case. The value itself is compared exactly.
func Verify(rawBody []byte, signature, secret string) bool {
	if !Enabled(secret) {
		return true
	}

	sig := strings.TrimSpace(signature)
	if len(sig) >= len(prefix) && strings.EqualFold(sig[:len(prefix)], prefix) {
		sig = strings.TrimSpace(sig[len(prefix):])
	}
	if sig == "" {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(rawBody)
	sum := h.Sum(nil)

	wantHex := []byte(hex.EncodeToString(sum))
	wantB64 := []byte(base64.StdEncoding.EncodeToString(sum))

	// both comparisons always run
	hexOK := hmac.Equal(wantHex, []byte(sig))
	b64OK := hmac.Equal(wantB64, []byte(sig))
	return hexOK || b64OK
}

// FromHeader returns the first non-blank signature header.
func FromHeader(h http.Header) string {
	for _, name := range HeaderNames {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
