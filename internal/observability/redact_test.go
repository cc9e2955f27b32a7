package observability

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactJSON_NestedStructures(t *testing.T) {
	in := map[string]any{
		"api_key": "secret123",
		"user": map[string]any{
			"name":     "alice",
			"password": "hunter2",
		},
		"items": []any{
			map[string]any{"token": "tok"},
			"plain",
		},
		"note": "keepme",
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(RedactJSON(b), &m))

	assert.Equal(t, "[REDACTED]", m["api_key"])
	assert.Equal(t, "[REDACTED]", m["user"].(map[string]any)["password"])
	assert.Equal(t, "[REDACTED]", m["items"].([]any)[0].(map[string]any)["token"])
	assert.Equal(t, "keepme", m["note"])
}

func TestRedactJSON_EmptyAndInvalidPassThrough(t *testing.T) {
	assert.Nil(t, RedactJSON(nil))
	assert.Equal(t, "notjson", string(RedactJSON(json.RawMessage("notjson"))))
}

func TestMaskHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("X-Api-Key", "k-123")
	h.Set("Content-Type", "application/json")

	masked := MaskHeaders(h)
	assert.Equal(t, "[REDACTED]", masked["Authorization"])
	assert.Equal(t, "[REDACTED]", masked["X-Api-Key"])
	assert.Equal(t, "application/json", masked["Content-Type"])
	assert.Equal(t, "Bearer abc", h.Get("Authorization"))
}
