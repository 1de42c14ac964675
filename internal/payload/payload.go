// Package payload turns a provider webhook body into a flat field map.
//
// Form bodies (application/x-www-form-urlencoded) and JSON bodies are both
// supported. Nested structure is flattened into dotted paths, so the JSON
// {"products":[{"price":"1299"}]} and the form key products[0][price] both
// resolve to "products.0.price". Everything the provider sent is kept.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	apperrors "subscription-bridge/internal/errors"
)

// Fields is the flattened view of a webhook body.
type Fields map[string]string

// Get returns the trimmed value stored under key.
func (f Fields) Get(key string) string {
	return strings.TrimSpace(f[key])
}

// First returns the first key among keys holding a non-blank value.
func (f Fields) First(keys ...string) (key, value string) {
	for _, k := range keys {
		if v := f.Get(k); v != "" {
			return k, v
		}
	}
	return "", ""
}

// Has reports whether key is present, even with an empty value.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

var percentEscape = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// IsJSON reports whether contentType names a JSON media type.
func IsJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json") || mt == "text/json"
}

// Resolve decodes raw according to contentType. Anything that is not
// declared as JSON is parsed as a form body.
func Resolve(raw []byte, contentType string) (Fields, error) {
	if IsJSON(contentType) {
		return resolveJSON(raw)
	}
	return resolveForm(string(raw)), nil
}

func resolveForm(body string) Fields {
	out := Fields{}
	for _, pair := range strings.Split(body, "&") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key := normalizeKey(decodeForm(k))
		if key == "" {
			continue
		}
		if _, dup := out[key]; dup {
			continue
		}
		out[key] = decodeForm(v)
	}
	return out
}

func resolveJSON(raw []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, apperrors.Validation("payload.resolve", fmt.Errorf("decode json body: %w", err))
	}

	switch doc.(type) {
	case map[string]any, []any:
	default:
		return nil, apperrors.Validationf("payload.resolve", "json body is %T, want object or array", doc)
	}

	out := Fields{}
	flatten(out, "", doc)
	return out, nil
}

func flatten(out Fields, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flatten(out, join(prefix, k), child)
		}
	case []any:
		for i, child := range t {
			flatten(out, join(prefix, strconv.Itoa(i)), child)
		}
	case string:
		out[prefix] = decodeEscapes(t, 2)
	case json.Number:
		out[prefix] = t.String()
	case bool:
		out[prefix] = strconv.FormatBool(t)
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(t)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// decodeForm undoes form encoding and then at most one more level of
// percent-encoding applied by the provider.
func decodeForm(s string) string {
	d, err := url.QueryUnescape(s)
	if err != nil {
		return decodeEscapes(s, 2)
	}
	return decodeEscapes(d, 1)
}

// decodeEscapes removes up to levels layers of %XX escapes. A plus sign is
// left alone here.
func decodeEscapes(s string, levels int) string {
	for i := 0; i < levels && percentEscape.MatchString(s); i++ {
		d, err := url.PathUnescape(s)
		if err != nil {
			break
		}
		s = d
	}
	return s
}

// normalizeKey rewrites bracket paths like products[0][price] to products.0.price.
func normalizeKey(k string) string {
	k = strings.TrimSpace(k)
	if !strings.Contains(k, "[") {
		return k
	}
	k = strings.ReplaceAll(k, "][", ".")
	k = strings.ReplaceAll(k, "[", ".")
	k = strings.ReplaceAll(k, "]", "")
	return strings.Trim(k, ".")
}

// WithoutJSONField re-encodes a JSON object with field removed and keys
// sorted. Providers that put the signature inside the body sign this form.
func WithoutJSONField(raw []byte, field string) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, apperrors.Validation("payload.canonical", err)
	}
	delete(obj, field)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return nil, apperrors.Validation("payload.canonical", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
