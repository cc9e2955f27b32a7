package envelope

import (
	"bytes"
	"io"
	"net/http"
)

// maxCachedBody is the body-cache stage's ceiling ("never
// buffers >64 KiB").
const maxCachedBody = 64 * 1024

// bodyCache is stage 3. It reads up to maxCachedBody bytes of the request
// body into the context for later stages (security pattern checks,
// correlation/logging payload capture) and reconstructs r.Body so the
// handler still sees the full, unconsumed stream.
func bodyCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}

		limited := io.LimitReader(r.Body, maxCachedBody+1)
		cached, err := io.ReadAll(limited)
		if err != nil {
			WriteError(w, err)
			return
		}

		truncated := len(cached) > maxCachedBody
		forContext := cached
		if truncated {
			forContext = cached[:maxCachedBody]
		}

		r = r.WithContext(withCachedBody(r.Context(), forContext))
		r.Body = struct {
			io.Reader
			io.Closer
		}{
			Reader: io.MultiReader(bytes.NewReader(cached), r.Body),
			Closer: r.Body,
		}
		next.ServeHTTP(w, r)
	})
}
