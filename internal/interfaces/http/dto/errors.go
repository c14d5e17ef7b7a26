package dto

import (
	"net/http"

	"github.com/storegen/backend/internal/domain/shared"
)

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
)

// ErrorCodeHTTPStatus maps domain error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,

	// Submission-time failures -> 4xx
	shared.ErrCodeValidation:       http.StatusBadRequest,
	"INVALID_INPUT":                http.StatusBadRequest,
	"NOT_FOUND":                    http.StatusNotFound,
	"ALREADY_EXISTS":               http.StatusConflict,
	"INVALID_STATE":                http.StatusUnprocessableEntity,
	shared.ErrCodeTemplateNotFound: http.StatusNotFound,

	// Capacity and timing
	shared.ErrCodeQueueFull: http.StatusServiceUnavailable,
	shared.ErrCodeTimeout:   http.StatusGatewayTimeout,

	// Pipeline failures surfaced through job records; if one escapes to
	// the API boundary it is a server-side fault.
	shared.ErrCodeAggregation:        http.StatusBadGateway,
	shared.ErrCodeTemplateValidation: http.StatusUnprocessableEntity,
	shared.ErrCodeAssetProcessing:    http.StatusBadGateway,
	shared.ErrCodeDeployment:         http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status for an error code, defaulting
// to 500 for unmapped codes.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
