package audit

import "strings"

// redactedValue replaces scrubbed payload values. The key survives so
// auditors can see a field existed without seeing its content.
const redactedValue = "[REDACTED]"

// sensitiveFragments is the denylist of payload key fragments that must
// never reach durable audit storage. Matching is case-insensitive and by
// substring, so "card_number" and "CardNumberLast4" both hit "card_number"
// and "cardnumber" respectively via normalization.
var sensitiveFragments = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"private_key",
	"card_number",
	"cardnumber",
	"cvv",
	"cvc",
	"iban",
	"ssn",
	"national_id",
}

// Scrub returns a copy of payload with sensitive fields redacted. The input
// map is never mutated. The second return reports whether anything was
// redacted so the writer can flag the hit.
func Scrub(payload map[string]string) (map[string]string, bool) {
	if len(payload) == 0 {
		return map[string]string{}, false
	}
	out := make(map[string]string, len(payload))
	hit := false
	for k, v := range payload {
		if isSensitiveKey(k) {
			out[k] = redactedValue
			hit = true
			continue
		}
		out[k] = v
	}
	return out, hit
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(key)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}
