// Package form holds the per-session state of the essay scoring form and the
// rules applied before anything is sent for scoring.
package form

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/lumiverse/lumiverse/scoring"
	"go.uber.org/zap"
)

// MinWords is the minimum essay length accepted for scoring.
const MinWords = 150

// Scorer performs the completion calls. *scoring.Client implements it.
type Scorer interface {
	ScoreEssay(ctx context.Context, req scoring.SubmissionRequest) scoring.Result
	GetWritingTips(ctx context.Context, essay string) scoring.Result
}

// TopicMode is how the topic text is supplied.
type TopicMode string

const (
	TopicModeManual TopicMode = "manual"
	TopicModeFile   TopicMode = "file"
)

// State is a snapshot of everything the form displays.
type State struct {
	Essay            string           `json:"essay"`
	Topic            string           `json:"topic"`
	TaskType         scoring.TaskType `json:"task_type"`
	ResponseLanguage scoring.Language `json:"response_language"`
	UILanguage       scoring.Language `json:"ui_language"`
	TopicMode        TopicMode        `json:"topic_mode"`
	Topics           []Topic          `json:"topics"`
	SelectedTopicID  string           `json:"selected_topic_id,omitempty"`
	Loading          bool             `json:"loading"`
	Error            string           `json:"error,omitempty"`
	FileError        string           `json:"file_error,omitempty"`
	Result           string           `json:"result,omitempty"`
	Tips             string           `json:"tips,omitempty"`
	WordCount        int              `json:"word_count"`
}

// Controller owns one form. All methods are safe for concurrent use; the
// lock is never held across a completion call.
type Controller struct {
	scorer       Scorer
	maxFileBytes int64
	logger       *zap.Logger

	mu               sync.Mutex
	essay            string
	topic            string
	taskType         scoring.TaskType
	responseLanguage scoring.Language
	uiLanguage       scoring.Language
	topicMode        TopicMode
	topics           []Topic
	selectedID       string
	loading          bool
	errText          string
	fileErr          string
	result           string
	tips             string
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxFileBytes overrides the topic file size limit.
func WithMaxFileBytes(n int64) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxFileBytes = n
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController returns a form with the initial selections: essay task,
// Vietnamese feedback and Vietnamese UI.
func NewController(scorer Scorer, opts ...Option) *Controller {
	c := &Controller{
		scorer:           scorer,
		maxFileBytes:     DefaultMaxFileBytes,
		logger:           zap.NewNop(),
		taskType:         scoring.TaskEssay,
		responseLanguage: scoring.Vietnamese,
		uiLanguage:       scoring.Vietnamese,
		topicMode:        TopicModeManual,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WordCount counts whitespace-delimited words, ignoring empty tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func (c *Controller) SetEssay(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.essay = text
}

func (c *Controller) SetTopic(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = text
}

func (c *Controller) SetTaskType(t scoring.TaskType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taskType = t
}

func (c *Controller) SetResponseLanguage(lang scoring.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseLanguage = lang
}

// SetUILanguage switches the language of every message the controller
// produces from now on.
func (c *Controller) SetUILanguage(lang scoring.Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uiLanguage = lang
}

func (c *Controller) SetTopicMode(mode TopicMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topicMode = mode
}

// Messages returns the messages for the current UI language.
func (c *Controller) Messages() Messages {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MessagesFor(c.uiLanguage)
}

// State returns a snapshot of the form.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]Topic, len(c.topics))
	copy(topics, c.topics)
	return State{
		Essay:            c.essay,
		Topic:            c.topic,
		TaskType:         c.taskType,
		ResponseLanguage: c.responseLanguage,
		UILanguage:       c.uiLanguage,
		TopicMode:        c.topicMode,
		Topics:           topics,
		SelectedTopicID:  c.selectedID,
		Loading:          c.loading,
		Error:            c.errText,
		FileError:        c.fileErr,
		Result:           c.result,
		Tips:             c.tips,
		WordCount:        WordCount(c.essay),
	}
}

// validate checks the essay and topic in order and returns the first
// failure. Callers hold c.mu.
func (c *Controller) validate(msgs Messages, needTopic bool) *Error {
	if strings.TrimSpace(c.essay) == "" {
		return &Error{Kind: KindEmptyEssay, Message: msgs.EmptyEssay}
	}
	if !needTopic {
		return nil
	}
	if strings.TrimSpace(c.topic) == "" {
		return &Error{Kind: KindEmptyTopic, Message: msgs.EmptyTopic}
	}
	if WordCount(c.essay) < MinWords {
		return &Error{Kind: KindTooShort, Message: msgs.TooShort}
	}
	return nil
}

// Submit validates the form and sends it for scoring. On success the model's
// text is stored and returned. Validation failures never reach the network.
// While a submission is outstanding further calls fail with KindBusy.
func (c *Controller) Submit(ctx context.Context) (string, error) {
	c.mu.Lock()
	msgs := MessagesFor(c.uiLanguage)
	if c.loading {
		c.mu.Unlock()
		return "", &Error{Kind: KindBusy, Message: msgs.Busy}
	}
	if verr := c.validate(msgs, true); verr != nil {
		c.errText = verr.Message
		c.mu.Unlock()
		return "", verr
	}

	req := scoring.SubmissionRequest{
		EssayText: c.essay,
		TopicText: c.topic,
		TaskType:  c.taskType,
		Language:  c.responseLanguage,
	}
	c.loading = true
	c.errText = ""
	c.result = ""
	c.mu.Unlock()

	res := c.scorer.ScoreEssay(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if res.Success {
		c.result = res.Data
		return res.Data, nil
	}

	cerr := completionError(msgs, res)
	c.errText = cerr.Message
	c.logger.Warn("scoring failed",
		zap.String("task_type", string(req.TaskType)),
		zap.Int("word_count", WordCount(req.EssayText)),
		zap.String("error", res.Error),
	)
	return "", cerr
}

// Tips asks for writing tips on the current essay. Only the essay presence
// check applies. The stored score result is left alone.
func (c *Controller) Tips(ctx context.Context) (string, error) {
	c.mu.Lock()
	msgs := MessagesFor(c.uiLanguage)
	if c.loading {
		c.mu.Unlock()
		return "", &Error{Kind: KindBusy, Message: msgs.Busy}
	}
	if verr := c.validate(msgs, false); verr != nil {
		c.errText = verr.Message
		c.mu.Unlock()
		return "", verr
	}
	essay := c.essay
	c.loading = true
	c.errText = ""
	c.tips = ""
	c.mu.Unlock()

	res := c.scorer.GetWritingTips(ctx, essay)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if res.Success {
		c.tips = res.Data
		return res.Data, nil
	}

	cerr := completionError(msgs, res)
	c.errText = cerr.Message
	c.logger.Warn("writing tips failed", zap.String("error", res.Error))
	return "", cerr
}

// completionError formats a failed result as the prefixed message shown to
// the user, preferring the error text over the details.
func completionError(msgs Messages, res scoring.Result) *Error {
	reason := res.Error
	if reason == "" {
		reason = res.DetailsText()
	}
	return &Error{
		Kind:    KindCompletion,
		Message: msgs.ErrorPrefix + reason,
		Details: res.Details,
		Err:     errors.New(reason),
	}
}
