package form

import "github.com/lumiverse/lumiverse/scoring"

// Messages holds the user-facing text for one UI language.
type Messages struct {
	EmptyEssay   string
	EmptyTopic   string
	TooShort     string
	ErrorPrefix  string
	Busy         string
	UnknownTopic string

	// topic file import
	NeedJSONFile   string
	FileTooLarge   string
	NeedArray      string
	NeedFields     string
	CannotReadJSON string
	ReadFailed     string
}

var catalog = map[scoring.Language]Messages{
	scoring.Vietnamese: {
		EmptyEssay:     "Vui lòng nhập bài viết của bạn",
		EmptyTopic:     "Vui lòng nhập đề bài",
		TooShort:       "Bài viết phải có ít nhất 150 từ",
		ErrorPrefix:    "Lỗi: ",
		Busy:           "Bài viết đang được chấm, vui lòng chờ",
		UnknownTopic:   "Không tìm thấy đề bài",
		NeedJSONFile:   "Vui lòng chọn file JSON",
		FileTooLarge:   "File quá lớn (tối đa 1MB)",
		NeedArray:      "Format không đúng: cần array",
		NeedFields:     "Format không đúng: cần {id, topic, type}",
		CannotReadJSON: "Không thể đọc file JSON",
		ReadFailed:     "Lỗi khi đọc file",
	},
	scoring.English: {
		EmptyEssay:     "Please enter your essay",
		EmptyTopic:     "Please enter the topic",
		TooShort:       "Essay must have at least 150 words",
		ErrorPrefix:    "Error: ",
		Busy:           "Your essay is already being scored, please wait",
		UnknownTopic:   "Topic not found",
		NeedJSONFile:   "Please choose a JSON file",
		FileTooLarge:   "File too large (max 1MB)",
		NeedArray:      "Invalid format: expected an array",
		NeedFields:     "Invalid format: expected {id, topic, type}",
		CannotReadJSON: "Cannot read JSON file",
		ReadFailed:     "Error reading file",
	},
}

// MessagesFor returns the messages for lang, falling back to Vietnamese.
func MessagesFor(lang scoring.Language) Messages {
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog[scoring.Vietnamese]
}
