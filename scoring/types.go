// Package scoring talks to the chat-completion endpoint that grades IELTS
// writing. It builds the fixed grading and tips prompts, performs exactly one
// upstream call per operation and folds every outcome into a Result.
package scoring

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TaskType distinguishes the two IELTS writing tasks.
type TaskType string

const (
	// TaskReport is Task 1: describing a chart, table or process.
	TaskReport TaskType = "report"
	// TaskEssay is Task 2: an argumentative essay.
	TaskEssay TaskType = "essay"
)

// ParseTaskType accepts "report" and "essay" as well as the "task1"/"task2"
// names used by older topic files.
func ParseTaskType(s string) (TaskType, error) {
	switch strings.TrimSpace(s) {
	case "report", "task1":
		return TaskReport, nil
	case "essay", "task2":
		return TaskEssay, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Language selects the language of the model's feedback.
type Language string

const (
	Vietnamese Language = "vi"
	English    Language = "en"
)

// ParseLanguage accepts "vi" and "en".
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.TrimSpace(s)) {
	case Vietnamese:
		return Vietnamese, nil
	case English:
		return English, nil
	}
	return "", fmt.Errorf("unknown language %q", s)
}

// SubmissionRequest is what gets sent for scoring. It is built once per
// submission and not modified afterwards.
type SubmissionRequest struct {
	EssayText string
	TopicText string
	TaskType  TaskType
	Language  Language
}

// withDefaults fills an empty task type with essay and an empty language
// with Vietnamese.
func (r SubmissionRequest) withDefaults() SubmissionRequest {
	if r.TaskType == "" {
		r.TaskType = TaskEssay
	}
	if r.Language == "" {
		r.Language = Vietnamese
	}
	return r
}

// Result is the uniform outcome of a completion call. Data is set only on
// success; Error only on failure. Details carries the upstream error body (or
// a fallback string) and RawResponse the full upstream payload; only the
// scoring operation fills them.
type Result struct {
	Success     bool            `json:"success"`
	Data        string          `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(data string, raw json.RawMessage) Result {
	return Result{Success: true, Data: data, RawResponse: raw}
}

// Failed builds a failed Result.
func Failed(message string, details json.RawMessage) Result {
	return Result{Success: false, Error: message, Details: details}
}

// DetailsText renders Details for display: JSON strings are unquoted, any
// other JSON value is returned as-is.
func (r Result) DetailsText() string {
	if len(r.Details) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Details, &s); err == nil {
		return s
	}
	return string(r.Details)
}

// stringDetails encodes s as a JSON string value.
func stringDetails(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
