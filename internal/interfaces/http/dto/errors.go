package dto

import "net/http"

// HTTP error codes
const (
	ErrCodeInvalidAPIVersion    = "INVALID_API_VERSION"
	ErrCodeMissingAuthorization = "MISSING_AUTHORIZATION"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeAccessDenied         = "ACCESS_DENIED"
	ErrCodeInvalidJSON          = "INVALID_JSON"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeRequestTooLarge      = "REQUEST_TOO_LARGE"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeDuplicateRequest     = "DUPLICATE_REQUEST"
	ErrCodeProcessingFailed     = "PROCESSING_FAILED"
	ErrCodePostingFailed        = "POSTING_FAILED"
	ErrCodePostingTimeout       = "POSTING_TIMEOUT"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInvalidAPIVersion:    http.StatusBadRequest,
	ErrCodeMissingAuthorization: http.StatusUnauthorized,
	ErrCodeInvalidToken:         http.StatusUnauthorized,
	ErrCodeAccessDenied:         http.StatusForbidden,
	ErrCodeInvalidJSON:          http.StatusBadRequest,
	ErrCodeInvalidInput:         http.StatusBadRequest,
	ErrCodeRequestTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeValidationFailed:     http.StatusBadRequest,
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeDuplicateRequest:     http.StatusConflict,
	ErrCodeProcessingFailed:     http.StatusUnprocessableEntity,
	ErrCodePostingFailed:        http.StatusServiceUnavailable,
	ErrCodePostingTimeout:       http.StatusGatewayTimeout,
	ErrCodeInternal:             http.StatusInternalServerError,
}

// GetHTTPStatus returns the status for code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
