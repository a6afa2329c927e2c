package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lumiverse/lumiverse/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// FallbackDetails is reported as the scoring failure details when the
// endpoint gave no response body.
const FallbackDetails = "Failed to score essay"

// Executor runs a call under some protection policy, typically a circuit
// breaker. The function's error must be returned unchanged.
type Executor interface {
	Execute(f func() error) error
}

// Tokenizer estimates how many tokens a prompt will consume.
type Tokenizer interface {
	Count(text string) int
}

// Client issues chat-completion requests for scoring and tips. It is safe for
// concurrent use.
type Client struct {
	cfg        config.LLMConfig
	api        openai.Client
	httpClient *http.Client
	breaker    Executor
	tokenizer  Tokenizer
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBreaker routes every upstream call through e.
func WithBreaker(e Executor) Option {
	return func(c *Client) { c.breaker = e }
}

// WithTokenizer enables prompt size logging.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Client) { c.tokenizer = t }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client for the endpoint described by cfg.
func NewClient(cfg config.LLMConfig, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// The breaker decides when to try again, so the SDK must not.
	c.api = openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	return c
}

// CallError describes a failed completion call. Message is the user-facing
// text; Body holds the upstream response body when there was one.
type CallError struct {
	Message    string
	StatusCode int
	Body       json.RawMessage
	Err        error
}

func (e *CallError) Error() string { return e.Message }

func (e *CallError) Unwrap() error { return e.Err }

type completion struct {
	content string
	raw     json.RawMessage
}

// ScoreEssay asks the model to grade one submission. The returned Result
// carries the model's text and full payload on success, or the error message
// and upstream details on failure. It never returns a Go error; every
// failure is folded into the Result.
func (c *Client) ScoreEssay(ctx context.Context, req SubmissionRequest) Result {
	prompt, err := BuildScorePrompt(req)
	if err != nil {
		return Failed(err.Error(), stringDetails(FallbackDetails))
	}

	comp, err := c.complete(ctx, "score", prompt, c.cfg.MaxTokens)
	if err != nil {
		details := stringDetails(FallbackDetails)
		var callErr *CallError
		if errors.As(err, &callErr) && len(callErr.Body) > 0 {
			details = callErr.Body
		}
		return Failed(err.Error(), details)
	}
	return Succeeded(comp.content, comp.raw)
}

// GetWritingTips asks the model for five improvement tips. Failures carry
// only the error message.
func (c *Client) GetWritingTips(ctx context.Context, essay string) Result {
	prompt, err := BuildTipsPrompt(essay)
	if err != nil {
		return Failed(err.Error(), nil)
	}

	comp, err := c.complete(ctx, "tips", prompt, c.cfg.TipsMaxTokens)
	if err != nil {
		return Failed(err.Error(), nil)
	}
	return Result{Success: true, Data: comp.content}
}

// complete performs exactly one POST to the completions endpoint.
func (c *Client) complete(ctx context.Context, op, prompt string, maxTokens int) (*completion, error) {
	if c.tokenizer != nil {
		c.logger.Debug("prompt prepared",
			zap.String("operation", op),
			zap.Int("prompt_tokens", c.tokenizer.Count(prompt)),
			zap.Int("max_tokens", maxTokens),
		)
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.cfg.Model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(c.cfg.Temperature),
	}

	start := time.Now()
	var comp *completion
	call := func() error {
		var callErr error
		comp, callErr = c.post(ctx, params)
		return callErr
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}

	if err != nil {
		var callErr *CallError
		if !errors.As(err, &callErr) {
			// rejected by the breaker before any request was made
			callErr = &CallError{Message: err.Error(), Err: err}
		}
		c.logger.Error("completion request failed",
			zap.String("operation", op),
			zap.Int("status", callErr.StatusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Error(callErr.Err),
		)
		return nil, callErr
	}

	c.logger.Debug("completion request succeeded",
		zap.String("operation", op),
		zap.Duration("duration", time.Since(start)),
	)
	return comp, nil
}

func (c *Client) post(ctx context.Context, params openai.ChatCompletionNewParams) (*completion, error) {
	var (
		resp    *http.Response
		payload []byte
	)
	_, err := c.api.Chat.Completions.New(ctx, params,
		option.WithResponseInto(&resp),
		option.WithResponseBodyInto(&payload),
	)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, statusError(apierr.StatusCode, apierr.Response, err)
		}
		// error bodies the SDK could not decode still carry a status
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			return nil, statusError(resp.StatusCode, resp, err)
		}
		return nil, &CallError{Message: transportMessage(err), Err: err}
	}

	var parsed openai.ChatCompletion
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &CallError{
			Message:    "invalid completion response: " + err.Error(),
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}
	if len(parsed.Choices) == 0 {
		err := errors.New("completion response contained no choices")
		return nil, &CallError{Message: err.Error(), StatusCode: resp.StatusCode, Err: err}
	}

	return &completion{
		content: parsed.Choices[0].Message.Content,
		raw:     json.RawMessage(bytes.TrimSpace(payload)),
	}, nil
}

func statusError(status int, resp *http.Response, err error) *CallError {
	var payload []byte
	if resp != nil && resp.Body != nil {
		payload, _ = io.ReadAll(resp.Body)
	}
	return &CallError{
		Message:    fmt.Sprintf("request failed with status code %d", status),
		StatusCode: status,
		Body:       bodyDetails(payload),
		Err:        err,
	}
}

// transportMessage strips the method and URL that net/http prefixes to
// transport errors.
func transportMessage(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}

// bodyDetails keeps a JSON body as-is and wraps anything else in a JSON
// string. An empty body yields nil.
func bodyDetails(payload []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	return stringDetails(string(payload))
}
