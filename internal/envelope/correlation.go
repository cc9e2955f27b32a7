package envelope

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"materialscat/internal/observability"
)

const correlationHeader = "X-Correlation-ID"

// correlationOptions configures stage 7.
type correlationOptions struct {
	Logger         zerolog.Logger
	LogPayloads    bool
	MaxLoggedBytes int
}

// correlation is stage 7: assigns (or propagates) a correlation id,
// attaches it to the response and downstream context, and logs exactly one
// start/end line per request.
func correlation(opts correlationOptions) Middleware {
	maxLogged := opts.MaxLoggedBytes
	if maxLogged <= 0 {
		maxLogged = maxCachedBody
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(correlationHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(correlationHeader, id)
			r = r.WithContext(withCorrelationID(r.Context(), id))

			log := opts.Logger.With().Str("correlation_id", id).Logger()
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			event := log.Info().Str("method", r.Method).Str("path", r.URL.Path).Str("client_id", ClientID(r.Context()))
			if opts.LogPayloads {
				event = event.Interface("headers", observability.MaskHeaders(r.Header))
				if body, ok := CachedBody(r.Context()); ok && len(body) <= maxLogged {
					event = event.RawJSON("body", observability.RedactJSON(body))
				}
			}
			event.Msg("request start")

			next.ServeHTTP(rec, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("client_id", ClientID(r.Context())).
				Int("status", rec.status).
				Dur("duration_ms", time.Since(start)).
				Msg("request end")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.wroteHeader {
		return
	}
	s.status = status
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(p)
}
