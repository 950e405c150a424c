package logger

import (
	"strings"
)

// RedactedValue replaces sensitive values in log output
const RedactedValue = "***REDACTED***"

var sensitiveKeyParts = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"key",
	"credential",
	"auth",
}

// IsSensitiveKey reports whether a parameter name looks like it holds a secret
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// Redact returns a copy of params that is safe to log. Nested maps are
// redacted recursively; the input is never modified.
func Redact(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if IsSensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = Redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}
