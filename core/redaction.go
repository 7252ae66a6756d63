package core

import (
	"slices"
	"strings"
)

const RedactedValue = "[REDACTED]"

var sensitiveKeyTokens = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"access_key",
	"refresh",
	"credential",
	"bearer",
	"signature",
}

// traceableKeys stay visible even when a sensitive token matches their
// name, token_type and grant_type being the usual cases.
var traceableKeys = map[string]struct{}{
	"principal_id": {},
	"resource_id":  {},
	"batch_id":     {},
	"account_id":   {},
	"token_type":   {},
	"grant_type":   {},
	"event":        {},
	"source":       {},
	"kind":         {},
	"trace_id":     {},
	"request_id":   {},
}

// RedactSensitiveMap strips secret material from metadata before it reaches
// logs. Bearer and refresh secrets move through every operation here, so the
// broker never logs a field whose key smells like one.
func RedactSensitiveMap(metadata map[string]any) map[string]any {
	redacted, _ := redactValue(metadata).(map[string]any)
	if redacted == nil {
		return map[string]any{}
	}
	return redacted
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, nested := range typed {
			if shouldRedactKey(key) {
				out[key] = RedactedValue
				continue
			}
			out[key] = redactValue(nested)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := traceableKeys[key]; ok {
		return false
	}
	return slices.ContainsFunc(sensitiveKeyTokens, func(token string) bool {
		return strings.Contains(key, token)
	})
}
