package scoring

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/lumiverse/lumiverse/server/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testSubmission() SubmissionRequest {
	return SubmissionRequest{
		EssayText: "Some people believe that technology has made our lives more complicated.",
		TopicText: "Has technology made life more complicated?",
		TaskType:  TaskEssay,
		Language:  English,
	}
}

func TestScoreEssaySuccess(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyWith("Overall Band Score: 7.0"))
	defer upstream.Close()

	client := NewClient(upstream.LLMConfig())
	sub := testSubmission()
	res := client.ScoreEssay(context.Background(), sub)

	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	assert.Equal(t, "Overall Band Score: 7.0", res.Data)
	assert.Empty(t, res.Error)
	assert.JSONEq(t, mocks.CompletionBody("Overall Band Score: 7.0"), string(res.RawResponse))

	reqs := upstream.Requests()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/chat/completions", got.Path)
	assert.Equal(t, "Bearer test-key", got.Authorization)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, "lumiverse", got.Body.Model)
	assert.Equal(t, 2000, got.Body.MaxTokens)
	assert.InDelta(t, 0.7, got.Body.Temperature, 1e-9)

	wantPrompt, err := BuildScorePrompt(sub)
	require.NoError(t, err)
	require.Len(t, got.Body.Messages, 1)
	assert.Equal(t, "user", got.Body.Messages[0].Role)
	assert.Equal(t, wantPrompt, got.Body.Messages[0].Content)
}

func TestScoreEssayFailures(t *testing.T) {
	tests := []struct {
		name        string
		respond     mocks.Responder
		wantError   string
		wantDetails string
		jsonDetails bool
	}{
		{
			name:        "json error body",
			respond:     mocks.ReplyRaw(http.StatusUnauthorized, `{"error":{"message":"invalid api key"}}`),
			wantError:   "request failed with status code 401",
			wantDetails: `{"error":{"message":"invalid api key"}}`,
			jsonDetails: true,
		},
		{
			name:        "plain text error body",
			respond:     mocks.ReplyRaw(http.StatusInternalServerError, "upstream exploded"),
			wantError:   "request failed with status code 500",
			wantDetails: "upstream exploded",
		},
		{
			name:        "empty error body",
			respond:     mocks.ReplyRaw(http.StatusServiceUnavailable, ""),
			wantError:   "request failed with status code 503",
			wantDetails: FallbackDetails,
		},
		{
			name:        "no choices",
			respond:     mocks.ReplyRaw(http.StatusOK, `{"choices":[]}`),
			wantError:   "completion response contained no choices",
			wantDetails: FallbackDetails,
		},
		{
			name:        "malformed success body",
			respond:     mocks.ReplyRaw(http.StatusOK, `not json`),
			wantError:   "invalid completion response",
			wantDetails: FallbackDetails,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := mocks.NewMockUpstream(tt.respond)
			defer upstream.Close()

			res := NewClient(upstream.LLMConfig()).ScoreEssay(context.Background(), testSubmission())

			assert.False(t, res.Success)
			assert.Empty(t, res.Data)
			assert.Nil(t, res.RawResponse)
			assert.Contains(t, res.Error, tt.wantError)
			assert.Len(t, upstream.Requests(), 1, "failed calls are not retried by the client")
			if tt.jsonDetails {
				assert.JSONEq(t, tt.wantDetails, string(res.Details))
			} else {
				assert.Equal(t, tt.wantDetails, res.DetailsText())
			}
		})
	}
}

func TestScoreEssayTransportError(t *testing.T) {
	upstream := mocks.NewMockUpstream(nil)
	defer upstream.Close()

	client := NewClient(upstream.LLMConfig(), WithHTTPClient(&http.Client{
		Transport: mocks.FailingTransport{Err: errors.New("network down")},
	}))

	res := client.ScoreEssay(context.Background(), testSubmission())
	assert.False(t, res.Success)
	assert.Equal(t, "network down", res.Error)
	assert.Equal(t, FallbackDetails, res.DetailsText())
	assert.Empty(t, upstream.Requests())
}

func TestScoreEssayCanceledContext(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyWith("never seen"))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewClient(upstream.LLMConfig()).ScoreEssay(ctx, testSubmission())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "context canceled")
}

func TestGetWritingTips(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyWith("1. Vary your vocabulary"))
	defer upstream.Close()

	client := NewClient(upstream.LLMConfig())
	res := client.GetWritingTips(context.Background(), "My essay text.")

	require.True(t, res.Success)
	assert.Equal(t, "1. Vary your vocabulary", res.Data)
	assert.Nil(t, res.RawResponse, "tips results do not carry the raw payload")

	reqs := upstream.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 1000, reqs[0].Body.MaxTokens)
	assert.Equal(t, "lumiverse", reqs[0].Body.Model)
	require.Len(t, reqs[0].Body.Messages, 1)
	assert.Equal(t,
		"As an IELTS Writing expert, provide 5 specific tips to improve this essay. Focus on vocabulary, grammar, and structure:\n\nEssay:\nMy essay text.",
		reqs[0].Body.Messages[0].Content)
}

func TestGetWritingTipsFailureHasNoDetails(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyRaw(http.StatusTooManyRequests, `{"error":"slow down"}`))
	defer upstream.Close()

	res := NewClient(upstream.LLMConfig()).GetWritingTips(context.Background(), "essay")
	assert.False(t, res.Success)
	assert.Equal(t, "request failed with status code 429", res.Error)
	assert.Nil(t, res.Details)
}

type countingExecutor struct {
	mu    sync.Mutex
	calls int
	open  bool
}

func (e *countingExecutor) Execute(f func() error) error {
	e.mu.Lock()
	e.calls++
	open := e.open
	e.mu.Unlock()
	if open {
		return errors.New("circuit breaker is open")
	}
	return f()
}

func TestClientUsesBreaker(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyWith("ok"))
	defer upstream.Close()

	breaker := &countingExecutor{}
	client := NewClient(upstream.LLMConfig(), WithBreaker(breaker))

	res := client.ScoreEssay(context.Background(), testSubmission())
	assert.True(t, res.Success)
	assert.Equal(t, 1, breaker.calls)

	breaker.open = true
	res = client.ScoreEssay(context.Background(), testSubmission())
	assert.False(t, res.Success)
	assert.Equal(t, "circuit breaker is open", res.Error)
	assert.Equal(t, FallbackDetails, res.DetailsText())
	assert.Len(t, upstream.Requests(), 1, "an open breaker must not reach the upstream")
}

type fixedTokenizer int

func (f fixedTokenizer) Count(string) int { return int(f) }

func TestClientLogsPromptTokens(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyWith("ok"))
	defer upstream.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := NewClient(upstream.LLMConfig(),
		WithTokenizer(fixedTokenizer(321)),
		WithLogger(zap.New(core)),
	)

	res := client.GetWritingTips(context.Background(), "essay")
	require.True(t, res.Success)

	entries := logs.FilterMessage("prompt prepared").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(321), fields["prompt_tokens"])
	assert.Equal(t, "tips", fields["operation"])
	assert.Equal(t, int64(1000), fields["max_tokens"])
}

func TestClientLogsFailures(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyRaw(http.StatusBadGateway, "bad gateway"))
	defer upstream.Close()

	core, logs := observer.New(zapcore.ErrorLevel)
	client := NewClient(upstream.LLMConfig(), WithLogger(zap.New(core)))
	client.ScoreEssay(context.Background(), testSubmission())

	entries := logs.FilterMessage("completion request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusBadGateway), entries[0].ContextMap()["status"])
}

func TestClientConcurrentCalls(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyWith("ok"))
	defer upstream.Close()

	client := NewClient(upstream.LLMConfig())

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			res := client.ScoreEssay(context.Background(), testSubmission())
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	assert.Len(t, upstream.Requests(), n, "every call reaches the upstream exactly once")
}

func TestTrailingSlashBaseURL(t *testing.T) {
	upstream := mocks.NewMockUpstream(mocks.ReplyWith("ok"))
	defer upstream.Close()

	cfg := upstream.LLMConfig()
	cfg.BaseURL += "/"
	NewClient(cfg).GetWritingTips(context.Background(), "essay")

	reqs := upstream.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/chat/completions", reqs[0].Path)
}
