package observability

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestWithHeaders_InjectsWithoutOverriding(t *testing.T) {
	var seen http.Header
	base := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = req.Header
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	})}

	c := WithHeaders(base, map[string]string{"X-Correlation-ID": "c-1", "X-Existing": "override"})
	req, err := http.NewRequest(http.MethodGet, "http://example.test", nil)
	require.NoError(t, err)
	req.Header.Set("X-Existing", "keep")

	_, err = c.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "c-1", seen.Get("X-Correlation-ID"))
	assert.Equal(t, "keep", seen.Get("X-Existing"))
}

func TestNewHTTPClient_WrapsTransport(t *testing.T) {
	c := NewHTTPClient(nil)
	require.NotNil(t, c)
	assert.NotNil(t, c.Transport)
}
