package envelope

import (
	"encoding/json"
	"errors"
	"net/http"

	"materialscat/internal/apierrors"
)

// errorResponse is the shape every error exits the envelope as.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusForCode maps the typed error taxonomy to an HTTP status.
func statusForCode(code apierrors.Code) int {
	switch code {
	case apierrors.CodeValidation, apierrors.CodeInvalidCursor, apierrors.CodeUnitUnknown, apierrors.CodeColorUnknown:
		return http.StatusBadRequest
	case apierrors.CodeNotFound:
		return http.StatusNotFound
	case apierrors.CodeConflict:
		return http.StatusConflict
	case apierrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case apierrors.CodeBackpressure:
		return http.StatusServiceUnavailable
	case apierrors.CodeBackendsUnavailable, apierrors.CodeEmbeddingUnavailable:
		return http.StatusServiceUnavailable
	case apierrors.CodeEmbeddingShape:
		return http.StatusUnprocessableEntity
	case apierrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as the envelope's standard error response. Handlers
// may call it directly; the error-boundary stage also calls it for panics.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierrors.New(apierrors.CodeInternal, err.Error())
	}
	writeJSON(w, statusForCode(apiErr.Code), errorResponse{
		Code:    string(apiErr.Code),
		Message: apiErr.Message,
		Field:   apiErr.Field,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBoundary is stage 1: it is the outermost stage, so it is the last to
// see a response and the first to see a panic unwinding from any inner
// stage or the handler itself.
func errorBoundary(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err, ok := rec.(error)
				if !ok {
					err = apierrors.New(apierrors.CodeInternal, "internal error")
				}
				WriteError(w, err)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
