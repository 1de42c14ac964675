// Package linktoken builds and verifies the signed order tokens embedded in
// payment links. A token binds a chat user id to a subscription duration:
//
//	swb:<uid>:<days>:<hex hmac-sha256("<uid>:<days>", link secret)>
//
// Verification is stateless. Any defect in a presented token is reported as
// "no token" so that callers can fall through to other reconciliation paths.
package linktoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

const Prefix = "swb"

// Claims is the (user, duration) pair carried by a valid token.
type Claims struct {
	UserID int64
	Days   int
}

// Build returns the token for userID and days signed with secret.
func Build(userID int64, days int, secret string) string {
	payload := signedPayload(userID, days)
	return Prefix + ":" + payload + ":" + mac(payload, secret)
}

// Parse verifies token against secret. The second return value is false for
// malformed input, an empty secret or a mac mismatch.
func Parse(token, secret string) (Claims, bool) {
	if secret == "" {
		return Claims{}, false
	}

	t := strings.TrimSpace(token)
	if t == "" {
		return Claims{}, false
	}
	// one level of percent-encoding is tolerated
	if decoded, err := url.QueryUnescape(t); err == nil {
		t = decoded
	}

	parts := strings.Split(t, ":")
	if len(parts) != 4 || parts[0] != Prefix {
		return Claims{}, false
	}

	uid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || uid <= 0 {
		return Claims{}, false
	}
	days, err := strconv.Atoi(parts[2])
	if err != nil || days <= 0 {
		return Claims{}, false
	}

	payload := signedPayload(uid, days)
	if payload != parts[1]+":"+parts[2] {
		// non-canonical numbers such as "0123" never come out of Build
		return Claims{}, false
	}

	if !hmac.Equal([]byte(mac(payload, secret)), []byte(parts[3])) {
		return Claims{}, false
	}

	return Claims{UserID: uid, Days: days}, true
}

func signedPayload(userID int64, days int) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.Itoa(days)
}

func mac(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
