package adapter

import (
	"fmt"
	"time"
)

// Helpers for walking decoded JSON trees. Adapters are the only code
// that reads provider payload shapes.

// GetMap descends a path of nested objects, returning nil when any
// hop is missing or not an object
func GetMap(payload map[string]interface{}, path ...string) map[string]interface{} {
	current := payload
	for _, key := range path {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// GetString returns the string at key, or ""
func GetString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// GetInt64 returns the number at key truncated to int64.
// JSON numbers decode as float64.
func GetInt64(m map[string]interface{}, key string) int64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// GetFloat returns the number at key as float64
func GetFloat(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	f, _ := m[key].(float64)
	return f
}

// NumberKey renders a numeric id for idempotency keys without the
// float64 formatting artifacts
func NumberKey(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case float64:
		return fmt.Sprintf("%.0f", v)
	case string:
		return v
	}
	return ""
}

// ParseTime tries the layouts providers actually send
func ParseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
