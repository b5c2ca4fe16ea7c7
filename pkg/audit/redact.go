package audit

import "strings"

// Redacted replaces secret values in audit output.
const Redacted = "[REDACTED]"

// Param keys whose values are credential-like and must never be logged.
var secretKeyFragments = []string{
	"api_key",
	"apikey",
	"token",
	"secret",
	"password",
	"passwd",
	"authorization",
	"credential",
	"private_key",
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range secretKeyFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// RedactParams returns a deep copy of params with credential-like values
// replaced. The input is never mutated.
func RedactParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if isSecretKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
