package apierrors

import "net/http"

// HTTPStatus maps a Code to the status code the envelope's error boundary
// should write for it.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidCursor, CodeUnitUnknown, CodeColorUnknown:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBackpressure:
		return http.StatusServiceUnavailable
	case CodeEmbeddingUnavailable, CodeBackendsUnavailable:
		return http.StatusServiceUnavailable
	case CodeEmbeddingShape:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
