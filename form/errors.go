package form

import (
	"encoding/json"
	"errors"
)

// Kind classifies a form error.
type Kind int

const (
	KindEmptyEssay Kind = iota + 1
	KindEmptyTopic
	KindTooShort
	KindBusy
	KindCompletion
	KindFileFormat
	KindUnknownTopic
)

func (k Kind) String() string {
	switch k {
	case KindEmptyEssay:
		return "empty_essay"
	case KindEmptyTopic:
		return "empty_topic"
	case KindTooShort:
		return "too_short"
	case KindBusy:
		return "busy"
	case KindCompletion:
		return "completion"
	case KindFileFormat:
		return "file_format"
	case KindUnknownTopic:
		return "unknown_topic"
	default:
		return "unknown"
	}
}

// Error is returned by Controller operations. Message is already localized
// and ready for display.
type Error struct {
	Kind    Kind
	Message string

	// Details carries the upstream error body for failed completions.
	Details json.RawMessage

	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a form error of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}
