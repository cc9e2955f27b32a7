package parser

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"materialscat/internal/config"
)

// fakeChatServer stands in for the chat-completions endpoint, returning a
// single forced tool call whose arguments come from the test case.
func fakeChatServer(t *testing.T, argsJSON string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role": "assistant",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      toolName,
									"arguments": argsJSON,
								},
							},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestParse_ExtractsStructuredFields(t *testing.T) {
	srv := fakeChatServer(t, `{"parsed_unit":"кг","unit_coefficient":25,"color":"белый"}`)
	defer srv.Close()

	p := New(config.EmbeddingConfig{BaseURL: srv.URL, ParserModel: "gpt-4o-mini", Timeout: 5 * time.Second}, zerolog.Nop())
	out, err := p.Parse(t.Context(), "Цемент белый 25кг мешок", "")
	require.NoError(t, err)
	assert.Equal(t, "кг", out.ParsedUnit)
	assert.Equal(t, 25.0, out.UnitCoefficient)
	assert.Equal(t, "белый", out.Color)
}

func TestParse_DefaultsCoefficientToOne(t *testing.T) {
	srv := fakeChatServer(t, `{"parsed_unit":"шт"}`)
	defer srv.Close()

	p := New(config.EmbeddingConfig{BaseURL: srv.URL, ParserModel: "gpt-4o-mini"}, zerolog.Nop())
	out, err := p.Parse(t.Context(), "Саморез", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.UnitCoefficient)
	assert.Empty(t, out.Color)
}
