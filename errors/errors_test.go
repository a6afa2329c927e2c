package errors

import (
	"errors"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "basic error without wrapped error",
			err: &APIError{
				Type:    ValidationError,
				Message: "invalid input",
			},
			want: "validation_error: invalid input",
		},
		{
			name: "error with wrapped error",
			err: &APIError{
				Type:    ProviderError,
				Message: "scoring failed",
				err:     errors.New("network down"),
			},
			want: "provider_error: scoring failed: network down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("APIError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	err1 := &APIError{Type: FileFormatError, Message: "test1"}
	err2 := &APIError{Type: FileFormatError, Message: "test2"}
	err3 := &APIError{Type: ValidationError, Message: "test3"}

	if !err1.Is(err2) {
		t.Error("Expected err1.Is(err2) to be true for same error type")
	}
	if err1.Is(err3) {
		t.Error("Expected err1.Is(err3) to be false for different error types")
	}
	if !errors.Is(err1, &APIError{Type: FileFormatError}) {
		t.Error("Expected errors.Is to match on type")
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	err := &APIError{
		Type:    InternalError,
		Message: "outer error",
		err:     innerErr,
	}

	if unwrapped := err.Unwrap(); unwrapped != innerErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, innerErr)
	}
	if !errors.Is(err, innerErr) {
		t.Error("Expected errors.Is to reach the wrapped error")
	}
}
