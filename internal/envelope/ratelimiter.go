package envelope

import (
	"net"
	"net/http"
	"strconv"

	"materialscat/internal/apierrors"
	"materialscat/internal/ratelimit"
)

// ClassifyFunc maps a request to its rate-limit endpoint class (e.g.
// "search", "ingestion"), table-driven by the route the caller registers.
type ClassifyFunc func(r *http.Request) string

// rateLimiter is stage 6: keys the sliding window on (client_id,
// endpoint_class), where client_id is the API key header if present, else
// the source IP.
func rateLimiter(limiter ratelimit.Limiter, classify ClassifyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientID := clientIdentifier(r)
			class := ""
			if classify != nil {
				class = classify(r)
			}

			decision, err := limiter.Check(r.Context(), clientID, class)
			if err != nil {
				WriteError(w, err)
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
				WriteError(w, apierrors.New(apierrors.CodeRateLimited, "rate limit exceeded for "+class))
				return
			}

			r = r.WithContext(withClientID(r.Context(), clientID))
			next.ServeHTTP(w, r)
		})
	}
}

func clientIdentifier(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return sourceIP(r)
}

func sourceIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
