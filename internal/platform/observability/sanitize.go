package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// clip drops control characters and truncates to limit runes so client input cannot forge log lines.
func clip(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute bounds a route pattern for logs and span attributes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return clip(route, 180)
}

func SanitizeMethod(method string) string {
	return strings.ToUpper(clip(method, 10))
}

func SanitizeUserID(uid string) string {
	return clip(strings.TrimSpace(uid), 64)
}

// FingerprintKey returns a short digest of a client supplied key (Idempotency-Key) so retries
// can be correlated in logs without recording the raw value.
func FingerprintKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}
