// Package validation decodes and validates the JSON bodies accepted by the
// API, turning validator failures into structured error details.
package validation

// FormUpdate sets any subset of the form fields. Nil fields are left alone.
type FormUpdate struct {
	Essay            *string `json:"essay,omitempty"`
	Topic            *string `json:"topic,omitempty"`
	TaskType         *string `json:"task_type,omitempty" validate:"omitempty,oneof=report essay task1 task2"`
	ResponseLanguage *string `json:"response_language,omitempty" validate:"omitempty,oneof=vi en"`
	UILanguage       *string `json:"ui_language,omitempty" validate:"omitempty,oneof=vi en"`
	TopicMode        *string `json:"topic_mode,omitempty" validate:"omitempty,oneof=manual file"`
}

// ScoreRequest may carry form fields that are applied before submitting.
type ScoreRequest struct {
	FormUpdate
}

// TipsRequest may carry the essay to analyse.
type TipsRequest struct {
	Essay *string `json:"essay,omitempty"`
}

// SelectTopicRequest picks an imported topic by id.
type SelectTopicRequest struct {
	ID string `json:"id" validate:"required"`
}

// WordCountRequest asks for the word count of arbitrary text.
type WordCountRequest struct {
	Text string `json:"text"`
}

// ErrorDetail describes one rejected field.
type ErrorDetail struct {
	Field   string `json:"field"`           // The field that failed validation
	Message string `json:"message"`         // Human-readable error message
	Code    string `json:"code"`            // Machine-readable error code
	Value   string `json:"value,omitempty"` // The invalid value (if safe to return)
}
