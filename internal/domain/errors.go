package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeCancelled  = "CANCELLED"
	ErrCodeBackend    = "BACKEND_ERROR"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeInternal   = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyBaseName       = NewDomainError(ErrCodeValidation, "knowledge base name cannot be empty")
	ErrInvalidSource       = NewDomainError(ErrCodeValidation, "invalid knowledge source")
	ErrInvalidScope        = NewDomainError(ErrCodeValidation, "invalid ownership scope")
	ErrMissingCollectionID = NewDomainError(ErrCodeValidation, "collection id could not be resolved")
	ErrMalformedFloorRange = NewDomainError(ErrCodeValidation, "malformed floor range")
	ErrEmptyQuery          = NewDomainError(ErrCodeValidation, "query text cannot be empty")
)

// Not found errors
var (
	ErrBaseNotFound       = NewDomainError(ErrCodeNotFound, "knowledge base not found")
	ErrCheckpointNotFound = NewDomainError(ErrCodeNotFound, "ingestion checkpoint not found")
	ErrJobNotFound        = NewDomainError(ErrCodeNotFound, "ingestion job not found")
)

// Cancellation is surfaced distinctly from backend failures so callers can
// keep user-initiated aborts out of the failure path.
var ErrIngestionCancelled = NewDomainError(ErrCodeCancelled, "ingestion cancelled")

// Backend errors
var (
	ErrEmbeddingFailed   = NewDomainError(ErrCodeBackend, "embedding service request failed")
	ErrVectorStoreFailed = NewDomainError(ErrCodeBackend, "vector backend request failed")
	ErrPurgeFailed       = NewDomainError(ErrCodeBackend, "collection purge failed, record retained")
)

// Conflict errors
var ErrArchiveInProgress = NewDomainError(ErrCodeConflict, "a condensation run is already in progress")
