package envelope

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"materialscat/internal/config"
	"materialscat/internal/ratelimit"
)

// Middleware wraps a handler with one envelope stage.
type Middleware func(http.Handler) http.Handler

// Options configures the seven-stage chain.
type Options struct {
	Config      config.EnvelopeConfig
	Limiter     ratelimit.Limiter
	Classify    ClassifyFunc
	Logger      zerolog.Logger
	ExemptPaths map[string]bool
}

// Build assembles the ordered seven-stage chain around final, returning a
// single http.Handler. Stage 1 (error boundary) is outermost: it is the
// first to see the request and the last to see the response or a panic.
func Build(final http.Handler, opts Options) http.Handler {
	exempt := opts.ExemptPaths
	if exempt == nil {
		exempt = map[string]bool{}
	}

	inner := bodyCache(
		compression(
			security(securityOptions{Production: opts.Config.Production, MaxBodyBytes: opts.Config.MaxBodyBytes})(
				rateLimiter(opts.Limiter, opts.Classify)(
					correlation(correlationOptions{
						Logger:         opts.Logger,
						LogPayloads:    opts.Config.LogPayloads,
						MaxLoggedBytes: opts.Config.MaxLoggedBytes,
					})(final),
				),
			),
		),
	)

	withActivation := conditionalActivation(exempt, final)(inner)
	return errorBoundary(withActivation)
}

// conditionalActivation is stage 2: exempted paths (health checks, docs)
// bypass every inner stage and go straight to the final handler.
func conditionalActivation(exempt map[string]bool, final http.Handler) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				final.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout bounds the request context at request_timeout (default
// 30s), applied by the caller around Build's result.
func WithTimeout(next http.Handler, d time.Duration) http.Handler {
	if d <= 0 {
		d = 30 * time.Second
	}
	return http.TimeoutHandler(next, d, `{"code":"timeout","message":"request timeout"}`)
}
