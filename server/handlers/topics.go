package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/lumiverse/lumiverse/errors"
	"github.com/lumiverse/lumiverse/server/middleware"
	"github.com/lumiverse/lumiverse/server/validation"
	"go.uber.org/zap"
)

// multipartOverhead is allowed on top of the file limit for the multipart
// envelope.
const multipartOverhead = 64 << 10

// ImportTopics accepts a multipart upload with the topic file in the "file"
// field.
func (h *Handler) ImportTopics(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxFileBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.countImport("rejected")
			h.writeFormError(w, r, ctrl.RejectOversizedFile(err))
			return
		}
		errors.WriteError(w, errors.NewBadRequestError(requestID, "Expected a multipart upload with a \"file\" field", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteError(w, errors.NewBadRequestError(requestID, "Expected a multipart upload with a \"file\" field", err))
		return
	}
	defer file.Close()

	topics, err := ctrl.ImportTopics(header.Filename, header.Size, file)
	if err != nil {
		h.countImport("rejected")
		h.writeFormError(w, r, err)
		return
	}

	h.countImport("accepted")
	middleware.LoggerFrom(r.Context(), h.logger).Info("topics imported",
		zap.String("file", header.Filename),
		zap.Int("count", len(topics)),
	)
	_, selected := ctrl.Topics()
	h.writeJSON(w, r, http.StatusOK, TopicsResponse{Topics: topics, SelectedTopicID: selected})
}

// ListTopics returns the imported topics and the current selection.
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	topics, selected := ctrl.Topics()
	h.writeJSON(w, r, http.StatusOK, TopicsResponse{Topics: topics, SelectedTopicID: selected})
}

// SelectTopic makes an imported topic current.
func (h *Handler) SelectTopic(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())

	var req validation.SelectTopicRequest
	if apiErr := validation.DecodeJSON(r, requestID, &req); apiErr != nil {
		errors.WriteError(w, apiErr)
		return
	}
	if details := validation.Struct(req); len(details) > 0 {
		// an empty body skips decoding, so the required id is checked here
		errors.WriteError(w, errors.NewValidationError(requestID, "Request validation failed", map[string]interface{}{
			"errors": details,
		}))
		return
	}

	if _, err := ctrl.SelectTopic(req.ID); err != nil {
		h.writeFormError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ctrl.State())
}

func (h *Handler) countImport(outcome string) {
	if h.metrics != nil {
		h.metrics.TopicImports.WithLabelValues(outcome).Inc()
	}
}
