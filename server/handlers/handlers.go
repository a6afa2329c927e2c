// Package handlers provides the HTTP handlers for the LumiVerse server: the
// form page, the form state API, scoring, writing tips and topic import.
//
// Every handler works on the caller's form controller, which the session
// middleware places in the request context. Errors are written with the
// errors package so clients always receive the same JSON error shape.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lumiverse/lumiverse/errors"
	"github.com/lumiverse/lumiverse/form"
	"github.com/lumiverse/lumiverse/scoring"
	"github.com/lumiverse/lumiverse/server/metrics"
	"github.com/lumiverse/lumiverse/server/middleware"
	"github.com/lumiverse/lumiverse/server/session"
	"github.com/lumiverse/lumiverse/server/validation"
	"go.uber.org/zap"
)

// Handler serves the form API.
type Handler struct {
	logger       *zap.Logger
	metrics      *metrics.Metrics
	maxFileBytes int64
}

// New creates a Handler. m may be nil.
func New(logger *zap.Logger, m *metrics.Metrics, maxFileBytes int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFileBytes <= 0 {
		maxFileBytes = form.DefaultMaxFileBytes
	}
	return &Handler{logger: logger, metrics: m, maxFileBytes: maxFileBytes}
}

// ScoreResponse is returned by a successful scoring request.
type ScoreResponse struct {
	Success bool   `json:"success"`
	Data    string `json:"data"`
}

// TopicsResponse lists the imported topics.
type TopicsResponse struct {
	Topics          []form.Topic `json:"topics"`
	SelectedTopicID string       `json:"selected_topic_id,omitempty"`
}

// WordCountResponse carries a word count.
type WordCountResponse struct {
	WordCount int `json:"word_count"`
}

// State returns the session's form snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, r, http.StatusOK, ctrl.State())
}

// UpdateForm applies the supplied fields to the form.
func (h *Handler) UpdateForm(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req validation.FormUpdate
	if apiErr := validation.DecodeJSON(r, middleware.GetRequestID(r.Context()), &req); apiErr != nil {
		errors.WriteError(w, apiErr)
		return
	}
	applyUpdate(ctrl, req)
	h.writeJSON(w, r, http.StatusOK, ctrl.State())
}

// Score applies any form fields in the body, then submits the form.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req validation.ScoreRequest
	if apiErr := validation.DecodeJSON(r, middleware.GetRequestID(r.Context()), &req); apiErr != nil {
		errors.WriteError(w, apiErr)
		return
	}
	applyUpdate(ctrl, req.FormUpdate)

	logger := middleware.LoggerFrom(r.Context(), h.logger)
	start := time.Now()
	text, err := ctrl.Submit(r.Context())
	h.observe("score", start, err)
	if err != nil {
		logger.Info("submission not scored", zap.Error(err))
		h.writeFormError(w, r, err)
		return
	}

	logger.Info("essay scored", zap.Int("result_length", len(text)))
	h.writeJSON(w, r, http.StatusOK, ScoreResponse{Success: true, Data: text})
}

// Tips returns writing tips for the session essay, or for the essay in the
// body when one is given.
func (h *Handler) Tips(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req validation.TipsRequest
	if apiErr := validation.DecodeJSON(r, middleware.GetRequestID(r.Context()), &req); apiErr != nil {
		errors.WriteError(w, apiErr)
		return
	}
	if req.Essay != nil {
		ctrl.SetEssay(*req.Essay)
	}

	start := time.Now()
	text, err := ctrl.Tips(r.Context())
	h.observe("tips", start, err)
	if err != nil {
		h.writeFormError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ScoreResponse{Success: true, Data: text})
}

// WordCount counts the words of the supplied text.
func (h *Handler) WordCount(w http.ResponseWriter, r *http.Request) {
	var req validation.WordCountRequest
	if apiErr := validation.DecodeJSON(r, middleware.GetRequestID(r.Context()), &req); apiErr != nil {
		errors.WriteError(w, apiErr)
		return
	}
	h.writeJSON(w, r, http.StatusOK, WordCountResponse{WordCount: form.WordCount(req.Text)})
}

// controller fetches the session controller; it writes an internal error
// when the session middleware did not run.
func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (*form.Controller, bool) {
	ctrl, ok := session.FromContext(r.Context())
	if !ok {
		errors.WriteError(w, errors.NewInternalError(
			middleware.GetRequestID(r.Context()),
			fmt.Errorf("no session in request context"),
		))
		return nil, false
	}
	return ctrl, true
}

// applyUpdate copies validated fields onto the controller. Values were
// checked by validation.DecodeJSON, so parse errors cannot occur here.
func applyUpdate(ctrl *form.Controller, u validation.FormUpdate) {
	if u.Essay != nil {
		ctrl.SetEssay(*u.Essay)
	}
	if u.Topic != nil {
		ctrl.SetTopic(*u.Topic)
	}
	if u.TaskType != nil {
		if tt, err := scoring.ParseTaskType(*u.TaskType); err == nil {
			ctrl.SetTaskType(tt)
		}
	}
	if u.ResponseLanguage != nil {
		if lang, err := scoring.ParseLanguage(*u.ResponseLanguage); err == nil {
			ctrl.SetResponseLanguage(lang)
		}
	}
	if u.UILanguage != nil {
		if lang, err := scoring.ParseLanguage(*u.UILanguage); err == nil {
			ctrl.SetUILanguage(lang)
		}
	}
	if u.TopicMode != nil {
		ctrl.SetTopicMode(form.TopicMode(*u.TopicMode))
	}
}

// observe records the outcome of a submit or tips call.
func (h *Handler) observe(op string, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	var fe *form.Error
	switch {
	case err == nil:
		h.metrics.CompletionsTotal.WithLabelValues(op, "success").Inc()
		h.metrics.CompletionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	case stderrors.As(err, &fe) && fe.Kind == form.KindCompletion:
		h.metrics.CompletionsTotal.WithLabelValues(op, "failure").Inc()
		h.metrics.CompletionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	case stderrors.As(err, &fe):
		h.metrics.ValidationFailures.WithLabelValues(fe.Kind.String()).Inc()
	}
}

// writeFormError maps a form error onto the API error types. Failed
// completions and internal errors are logged; input errors are not.
func (h *Handler) writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	logger := middleware.LoggerFrom(r.Context(), h.logger)

	var fe *form.Error
	if !stderrors.As(err, &fe) {
		apiErr := errors.NewInternalError(requestID, err)
		errors.LogError(logger, apiErr, requestID)
		errors.WriteError(w, apiErr)
		return
	}

	switch fe.Kind {
	case form.KindEmptyEssay:
		errors.WriteError(w, errors.NewValidationError(requestID, fe.Message, map[string]interface{}{
			"field": "essay",
			"kind":  fe.Kind.String(),
		}))
	case form.KindEmptyTopic:
		errors.WriteError(w, errors.NewValidationError(requestID, fe.Message, map[string]interface{}{
			"field": "topic",
			"kind":  fe.Kind.String(),
		}))
	case form.KindTooShort:
		errors.WriteError(w, errors.NewValidationError(requestID, fe.Message, map[string]interface{}{
			"field":     "essay",
			"kind":      fe.Kind.String(),
			"min_words": form.MinWords,
		}))
	case form.KindBusy:
		errors.WriteError(w, errors.NewConflictError(requestID, fe.Message))
	case form.KindCompletion:
		var details map[string]interface{}
		if len(fe.Details) > 0 {
			details = map[string]interface{}{"details": fe.Details}
		}
		apiErr := errors.NewProviderError(requestID, fe.Message, details, fe.Err)
		errors.LogError(logger, apiErr, requestID)
		errors.WriteError(w, apiErr)
	case form.KindFileFormat:
		errors.WriteError(w, errors.NewFileFormatError(requestID, fe.Message, fe.Err))
	case form.KindUnknownTopic:
		errors.WriteError(w, errors.NewNotFoundError(requestID, fe.Message))
	default:
		apiErr := errors.NewInternalError(requestID, err)
		errors.LogError(logger, apiErr, requestID)
		errors.WriteError(w, apiErr)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		middleware.LoggerFrom(r.Context(), h.logger).Error("Failed to encode response", zap.Error(err))
	}
}
