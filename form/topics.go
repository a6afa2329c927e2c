package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lumiverse/lumiverse/scoring"
	"go.uber.org/zap"
)

// DefaultMaxFileBytes is the topic file size limit (1 MiB).
const DefaultMaxFileBytes int64 = 1 << 20

// Topic is one entry of an imported topic file.
type Topic struct {
	ID    string           `json:"id"`
	Topic string           `json:"topic"`
	Type  scoring.TaskType `json:"type"`
}

// topicEntry is the on-disk shape, validated before conversion.
type topicEntry struct {
	ID    string `json:"id" validate:"required"`
	Topic string `json:"topic" validate:"required"`
	Type  string `json:"type" validate:"required,oneof=report essay task1 task2"`
}

type topicFile struct {
	Entries []topicEntry `validate:"unique=ID,dive"`
}

var topicValidator = validator.New()

// ImportTopics reads a topic file and, if it is valid, replaces the topic
// set and selects the first entry. On any failure the current topics and
// selection are kept and the localized reason is recorded as the file error.
func (c *Controller) ImportTopics(name string, size int64, r io.Reader) ([]Topic, error) {
	c.mu.Lock()
	msgs := MessagesFor(c.uiLanguage)
	c.fileErr = ""
	limit := c.maxFileBytes
	c.mu.Unlock()

	topics, ferr := parseTopicFile(msgs, limit, name, size, r)
	if ferr != nil {
		return nil, c.rejectImport(name, size, ferr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = topics
	if len(topics) == 0 {
		// nothing left to select; the topic text stays as typed
		c.selectedID = ""
	} else {
		c.selectedID = topics[0].ID
		c.topic = topics[0].Topic
		c.taskType = topics[0].Type
		c.topicMode = TopicModeFile
	}

	out := make([]Topic, len(topics))
	copy(out, topics)
	return out, nil
}

// RejectOversizedFile records a topic upload that was cut off before it
// could be read, for example by a request body limit. Topics and selection
// are left as they are.
func (c *Controller) RejectOversizedFile(cause error) error {
	return c.rejectImport("", -1, fileError(c.Messages().FileTooLarge, cause))
}

func (c *Controller) rejectImport(name string, size int64, ferr *Error) *Error {
	c.mu.Lock()
	c.fileErr = ferr.Message
	c.mu.Unlock()
	c.logger.Info("topic file rejected",
		zap.String("file", name),
		zap.Int64("size", size),
		zap.Error(ferr.Err),
	)
	return ferr
}

// SelectTopic makes the imported topic with the given id current, copying
// its text and task type into the form.
func (c *Controller) SelectTopic(id string) (Topic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.topics {
		if t.ID == id {
			c.selectedID = t.ID
			c.topic = t.Topic
			c.taskType = t.Type
			return t, nil
		}
	}
	return Topic{}, &Error{
		Kind:    KindUnknownTopic,
		Message: MessagesFor(c.uiLanguage).UnknownTopic,
		Err:     fmt.Errorf("topic %q not imported", id),
	}
}

// Topics returns the imported topics and the selected id.
func (c *Controller) Topics() ([]Topic, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Topic, len(c.topics))
	copy(out, c.topics)
	return out, c.selectedID
}

func fileError(message string, err error) *Error {
	return &Error{Kind: KindFileFormat, Message: message, Err: err}
}

func parseTopicFile(msgs Messages, limit int64, name string, size int64, r io.Reader) ([]Topic, *Error) {
	if !strings.HasSuffix(name, ".json") {
		return nil, fileError(msgs.NeedJSONFile, fmt.Errorf("file %q is not .json", name))
	}
	if size > limit {
		return nil, fileError(msgs.FileTooLarge, fmt.Errorf("file is %d bytes, limit %d", size, limit))
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fileError(msgs.ReadFailed, err)
	}
	if int64(len(data)) > limit {
		return nil, fileError(msgs.FileTooLarge, fmt.Errorf("file exceeds %d bytes", limit))
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !json.Valid(data) {
		return nil, fileError(msgs.CannotReadJSON, fmt.Errorf("invalid JSON"))
	}

	var raw []json.RawMessage
	if trimmed := bytes.TrimSpace(data); trimmed[0] != '[' {
		return nil, fileError(msgs.NeedArray, fmt.Errorf("top-level value is not an array"))
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fileError(msgs.NeedArray, err)
	}

	file := topicFile{Entries: make([]topicEntry, len(raw))}
	for i, item := range raw {
		if err := json.Unmarshal(item, &file.Entries[i]); err != nil {
			return nil, fileError(msgs.NeedFields, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	if err := topicValidator.Struct(file); err != nil {
		return nil, fileError(msgs.NeedFields, err)
	}

	topics := make([]Topic, len(file.Entries))
	for i, e := range file.Entries {
		tt, err := scoring.ParseTaskType(e.Type)
		if err != nil {
			return nil, fileError(msgs.NeedFields, err)
		}
		topics[i] = Topic{ID: e.ID, Topic: e.Topic, Type: tt}
	}
	return topics, nil
}
