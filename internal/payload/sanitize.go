package payload

import (
	"strings"
	"unicode"
)

const redacted = "[redacted]"

var sensitiveSegments = map[string]struct{}{
	"phone":     {},
	"tel":       {},
	"telephone": {},
	"mobile":    {},
	"email":     {},
	"mail":      {},
	"card":      {},
	"pan":       {},
	"cvv":       {},
	"cvc":       {},
	"passport":  {},
}

// Sanitize returns a copy of f safe for logs: values of personal or card
// fields are replaced, everything else is kept as is.
func Sanitize(f Fields) map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		if isSensitive(k) && v != "" {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitive(key string) bool {
	segments := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, s := range segments {
		if _, ok := sensitiveSegments[s]; ok {
			return true
		}
	}
	return false
}
