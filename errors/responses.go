package errors

import (
	"errors"
)

// ErrorResponse is the JSON shape clients receive for any error. It mirrors
// the serialized fields of APIError and is what tests and clients decode into.
type ErrorResponse struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// As is a wrapper around errors.As so callers need not import both packages.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
