package dto

import "net/http"

// Error code constants.
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"

	ErrCodeBadRequest  = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	ErrCodeValidation  = "ERR_VALIDATION"

	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeForbidden        = "ERR_FORBIDDEN"
	ErrCodeTokenExpired     = "ERR_TOKEN_EXPIRED"
	ErrCodeInvalidSignature = "ERR_INVALID_SIGNATURE"

	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"

	ErrCodeRateLimited      = "ERR_RATE_LIMITED"
	ErrCodeConnectThrottled = "ERR_CONNECT_THROTTLED"
	ErrCodeUpstreamFailed   = "ERR_UPSTREAM_FAILED"
	ErrCodeUpstreamAuth     = "ERR_UPSTREAM_AUTH"
	ErrCodeNoAdapters       = "ERR_NO_ADAPTERS"
)

// statusByCode maps error codes to HTTP status codes.
var statusByCode = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeInvalidJSON: http.StatusBadRequest,
	ErrCodeValidation:  http.StatusBadRequest,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeRateLimited:      http.StatusTooManyRequests,
	ErrCodeConnectThrottled: http.StatusTooManyRequests,
	ErrCodeUpstreamFailed:   http.StatusBadGateway,
	ErrCodeUpstreamAuth:     http.StatusUnprocessableEntity,
	ErrCodeNoAdapters:       http.StatusNotFound,
}

// GetHTTPStatus returns the HTTP status code for an error code, defaulting
// to 500 for codes it does not recognize.
func GetHTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
