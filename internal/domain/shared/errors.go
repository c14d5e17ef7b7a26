package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState  = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrTimeout       = NewDomainError("TIMEOUT", "Operation exceeded its time budget")
)

// Pipeline error codes shared across stages
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeAggregation        = "AGGREGATION_ERROR"
	ErrCodeTemplateNotFound   = "TEMPLATE_NOT_FOUND"
	ErrCodeTemplateValidation = "TEMPLATE_VALIDATION_ERROR"
	ErrCodeAssetProcessing    = "ASSET_PROCESSING_ERROR"
	ErrCodeDeployment         = "DEPLOYMENT_ERROR"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeQueueFull          = "QUEUE_FULL"
)

// Retryable reports whether an error code identifies a transient failure
// that may succeed on a later attempt. Template and validation failures
// require operator intervention and are never retried.
func Retryable(code string) bool {
	switch code {
	case ErrCodeAggregation, ErrCodeTimeout, ErrCodeAssetProcessing, ErrCodeDeployment:
		return true
	default:
		return false
	}
}
