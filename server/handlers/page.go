package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/lumiverse/lumiverse/errors"
	"github.com/lumiverse/lumiverse/form"
	"github.com/lumiverse/lumiverse/scoring"
	"github.com/lumiverse/lumiverse/server/middleware"
	"go.uber.org/zap"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Labels are the static texts of the form page.
type Labels struct {
	Title            string
	Subtitle         string
	TaskType         string
	Task1            string
	Task2            string
	Topic            string
	TopicPlaceholder string
	TopicFile        string
	Essay            string
	EssayPlaceholder string
	Words            string
	ResponseLanguage string
	ScoreButton      string
	TipsButton       string
	Scoring          string
	Result           string
	Tips             string
	Instructions     string
	Steps            []string
}

var labels = map[scoring.Language]Labels{
	scoring.Vietnamese: {
		Title:            "LumiVerse",
		Subtitle:         "Chấm điểm tự động với AI",
		TaskType:         "Loại bài thi",
		Task1:            "Task 1 (Report)",
		Task2:            "Task 2 (Essay)",
		Topic:            "Đề bài",
		TopicPlaceholder: "Nhập đề bài IELTS Writing ở đây...",
		TopicFile:        "Nhập đề bài từ tệp JSON",
		Essay:            "Bài viết của bạn",
		EssayPlaceholder: "Nhập bài viết IELTS của bạn ở đây...",
		Words:            "từ",
		ResponseLanguage: "Ngôn ngữ phản hồi",
		ScoreButton:      "Chấm điểm bài viết",
		TipsButton:       "Gợi ý cải thiện",
		Scoring:          "Đang chấm điểm...",
		Result:           "📊 Kết quả chấm điểm",
		Tips:             "💡 Gợi ý",
		Instructions:     "📋 Hướng dẫn sử dụng",
		Steps: []string{
			"Chọn loại bài (Task 1 hoặc Task 2)",
			"Nhập đề bài IELTS Writing",
			"Chọn ngôn ngữ cho phản hồi",
			"Viết bài viết (tối thiểu 150 từ)",
			"Nhấn \"Chấm điểm\" để nhận kết quả",
		},
	},
	scoring.English: {
		Title:            "LumiVerse",
		Subtitle:         "Automatic AI Scoring",
		TaskType:         "Task Type",
		Task1:            "Task 1 (Report)",
		Task2:            "Task 2 (Essay)",
		Topic:            "Topic",
		TopicPlaceholder: "Enter your IELTS Writing topic here...",
		TopicFile:        "Import topics from a JSON file",
		Essay:            "Your Essay",
		EssayPlaceholder: "Enter your IELTS essay here...",
		Words:            "words",
		ResponseLanguage: "Response Language",
		ScoreButton:      "Score Essay",
		TipsButton:       "Writing Tips",
		Scoring:          "Scoring...",
		Result:           "📊 Scoring Results",
		Tips:             "💡 Tips",
		Instructions:     "📋 Instructions",
		Steps: []string{
			"Choose task type (Task 1 or Task 2)",
			"Enter IELTS Writing topic",
			"Choose response language",
			"Write your essay (minimum 150 words)",
			"Click \"Score\" to get results",
		},
	},
}

// LabelsFor returns the page texts for lang, falling back to Vietnamese.
func LabelsFor(lang scoring.Language) Labels {
	if l, ok := labels[lang]; ok {
		return l
	}
	return labels[scoring.Vietnamese]
}

type pageData struct {
	L     Labels
	State form.State
}

// Page renders the form for the session.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	st := ctrl.State()

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{L: LabelsFor(st.UILanguage), State: st}); err != nil {
		middleware.LoggerFrom(r.Context(), h.logger).Error("Failed to render page", zap.Error(err))
		errors.WriteError(w, errors.NewInternalError(middleware.GetRequestID(r.Context()), err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		middleware.LoggerFrom(r.Context(), h.logger).Debug("page write interrupted", zap.Error(err))
	}
}
