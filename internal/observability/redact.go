package observability

import (
	"encoding/json"
	"net/http"
	"strings"
)

// sensitiveKeys are key names (and substrings of key names) whose values
// never reach a log line, in either JSON bodies or headers.
var sensitiveKeys = []string{
	"api_key", "apikey", "x-api-key", "authorization", "auth",
	"token", "access_token", "refresh_token", "password", "secret",
	"bearer", "cookie", "ssh_key",
}

const redactedPlaceholder = "[REDACTED]"

// RedactJSON returns raw with every sensitive value replaced by a
// placeholder. Payloads that fail to parse are returned untouched; the
// caller decides whether unparseable bodies are loggable at all.
func RedactJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	b, err := json.Marshal(redactValue(v))
	if err != nil {
		return raw
	}
	return b
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, vv := range val {
			if isSensitiveKey(k) {
				val[k] = redactedPlaceholder
			} else {
				val[k] = redactValue(vv)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = redactValue(val[i])
		}
		return val
	default:
		return v
	}
}

// MaskHeaders copies h with sensitive header values replaced, for request
// logging. The original header map is never mutated.
func MaskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
		} else {
			out[k] = vals[0]
		}
	}
	return out
}

func isSensitiveKey(k string) bool {
	low := strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}
