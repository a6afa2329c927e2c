package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/lumiverse/lumiverse/config"
)

// ChatMessage mirrors one entry of a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the decoded body of a request received by MockUpstream.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// RecordedRequest captures what the client sent.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	ContentType   string
	Body          ChatRequest
	RawBody       []byte
}

// Responder writes the upstream's answer for a recorded request.
type Responder func(w http.ResponseWriter, r *http.Request, req RecordedRequest)

// MockUpstream is a fake chat-completion endpoint backed by httptest.
//
// Example usage:
//
//	upstream := NewMockUpstream(ReplyWith("Band 7.0"))
//	defer upstream.Close()
//	client := scoring.NewClient(upstream.LLMConfig())
type MockUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	respond  Responder
	requests []RecordedRequest
}

// NewMockUpstream starts a fake endpoint. A nil responder replies with an
// empty successful completion.
func NewMockUpstream(respond Responder) *MockUpstream {
	if respond == nil {
		respond = ReplyWith("")
	}
	m := &MockUpstream{respond: respond}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

func (m *MockUpstream) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	rec := RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		RawBody:       raw,
	}
	_ = json.Unmarshal(raw, &rec.Body)

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	respond := m.respond
	m.mu.Unlock()

	respond(w, r, rec)
}

// SetResponder swaps the responder for subsequent requests.
func (m *MockUpstream) SetResponder(respond Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = respond
}

// Requests returns a copy of everything received so far.
func (m *MockUpstream) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LLMConfig returns the default LLM settings pointed at this upstream.
func (m *MockUpstream) LLMConfig() config.LLMConfig {
	cfg := config.DefaultConfig().LLM
	cfg.BaseURL = m.URL
	cfg.APIKey = "test-key"
	return cfg
}

// CompletionBody builds a minimal chat-completion payload with one choice.
func CompletionBody(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       ChatMessage{Role: "assistant", Content: content},
				"finish_reason": "stop",
			},
		},
	})
	return string(b)
}

// ReplyWith answers every request with a successful completion of content.
func ReplyWith(content string) Responder {
	return ReplyRaw(http.StatusOK, CompletionBody(content))
}

// ReplyRaw answers with a fixed status and body.
func ReplyRaw(status int, body string) Responder {
	return func(w http.ResponseWriter, r *http.Request, req RecordedRequest) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}
}

// FailingTransport is an http.RoundTripper that never reaches the network.
type FailingTransport struct {
	Err error
}

// RoundTrip implements http.RoundTripper.
func (f FailingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, f.Err
}
