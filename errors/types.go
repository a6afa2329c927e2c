package errors

import (
	"net/http"
)

// NewError creates an APIError with full control over its fields. Prefer the
// specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "session store unavailable", 500, "req_123", nil, storeErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *APIError {
	return &APIError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a 400 error for rejected input such as an empty
// essay, an empty topic or an essay under the minimum word count.
//
// Example:
//
//	err := NewValidationError("req_123", "Essay must have at least 150 words", map[string]interface{}{
//	    "field": "essay",
//	    "kind":  "too_short",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *APIError {
	return &APIError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewBadRequestError creates a 400 error for requests that could not be
// decoded at all.
func NewBadRequestError(requestID, message string, err error) *APIError {
	return &APIError{
		Type:      BadRequestError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		err:       err,
	}
}

// NewFileFormatError creates a 400 error for a rejected topic file.
func NewFileFormatError(requestID, message string, err error) *APIError {
	return &APIError{
		Type:      FileFormatError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		err:       err,
		Details: map[string]interface{}{
			"expected": `[{"id": "...", "topic": "...", "type": "report|essay"}]`,
		},
	}
}

// NewRateLimitError creates a 429 error carrying the retry hint in seconds.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *APIError {
	return &APIError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewProviderError creates a 502 error for a failed completion call. The
// message is what the user sees; details carries the upstream body when the
// endpoint returned one.
//
// Example:
//
//	err := NewProviderError("req_123", "Error: network down", map[string]interface{}{"details": body}, callErr)
func NewProviderError(requestID string, message string, details map[string]interface{}, err error) *APIError {
	return &APIError{
		Type:      ProviderError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewConflictError creates a 409 error, used when a submission is already
// in flight for the session.
func NewConflictError(requestID, message string) *APIError {
	return &APIError{
		Type:      ConflictError,
		Message:   message,
		Code:      http.StatusConflict,
		RequestID: requestID,
	}
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(requestID, message string) *APIError {
	return &APIError{
		Type:      NotFoundError,
		Message:   message,
		Code:      http.StatusNotFound,
		RequestID: requestID,
	}
}

// NewInternalError creates a 500 error for anything not covered above, such
// as panics.
//
// Example:
//
//	err := NewInternalError("req_123", encodeErr)
func NewInternalError(requestID string, err error) *APIError {
	return &APIError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
