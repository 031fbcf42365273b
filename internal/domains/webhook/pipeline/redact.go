package pipeline

import (
	"strings"

	"payhook/internal/domains/webhook/model"
)

// RedactPayload returns a deep copy of the payload with every value
// whose key contains a redact key (case-insensitive) replaced by the
// placeholder. The original map is never touched; the raw bytes stay
// intact for signature verification.
func RedactPayload(payload map[string]interface{}, redactKeys []string) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if isRedactedKey(key, redactKeys) {
			out[key] = model.RedactedPlaceholder
			continue
		}
		out[key] = redactValue(value, redactKeys)
	}
	return out
}

func redactValue(value interface{}, redactKeys []string) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return RedactPayload(v, redactKeys)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = redactValue(item, redactKeys)
		}
		return out
	}
	return value
}

func isRedactedKey(key string, redactKeys []string) bool {
	lower := strings.ToLower(key)
	for _, rk := range redactKeys {
		if rk != "" && strings.Contains(lower, strings.ToLower(rk)) {
			return true
		}
	}
	return false
}

// RedactHeaders copies the (already lowercased) header map, masking
// the always-sensitive ones
func RedactHeaders(headers map[string]string) map[string]interface{} {
	if headers == nil {
		return nil
	}
	out := make(map[string]interface{}, len(headers))
	for key, value := range headers {
		if isSensitiveHeader(key) {
			out[key] = model.RedactedPlaceholder
			continue
		}
		out[key] = value
	}
	return out
}

func isSensitiveHeader(key string) bool {
	for _, h := range model.SensitiveHeaders {
		if key == h {
			return true
		}
	}
	return false
}
