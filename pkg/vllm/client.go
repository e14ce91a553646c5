// Package vllm performs chat completions against an OpenAI-compatible
// endpoint, typically a local vLLM server.
package vllm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/literature-agent/internal/resilience"
)

const (
	defaultBaseURL = "http://localhost:8000/v1"
	defaultModel   = "meta-llama/Llama-3.1-8B-Instruct"
)

// Client performs chat completions against the endpoint.
type Client interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
	GenerateWithSystem(ctx context.Context, system, user string, opts ...GenerateOption) (string, error)
	Model() string
}

// ChatCompletionRequest is the request body for POST /chat/completions.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Message represents a single message in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the response from POST /chat/completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *httpClient) {
		c.model = model
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

// WithDefaults sets the sampling parameters applied when a request leaves
// them unset.
func WithDefaults(temperature float64, maxTokens int) Option {
	return func(c *httpClient) {
		c.temperature = temperature
		c.maxTokens = maxTokens
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// GenerateOption overrides sampling parameters for a single generation.
type GenerateOption func(*ChatCompletionRequest)

// Temperature overrides the sampling temperature for one call.
func Temperature(t float64) GenerateOption {
	return func(req *ChatCompletionRequest) {
		req.Temperature = &t
	}
}

// MaxTokens overrides the completion budget for one call.
func MaxTokens(n int) GenerateOption {
	return func(req *ChatCompletionRequest) {
		req.MaxTokens = &n
	}
}

type httpClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	http        *http.Client
	retry       resilience.RetryConfig
}

// NewClient creates a chat client. apiKey may be a dummy value for local
// vLLM servers, which require the header but ignore it.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		temperature: 0.3,
		maxTokens:   1024,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Model() string {
	return c.model
}

func (c *httpClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Temperature == nil {
		t := c.temperature
		req.Temperature = &t
	}
	if req.MaxTokens == nil {
		n := c.maxTokens
		req.MaxTokens = &n
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "vllm: marshal request")
	}

	return resilience.DoVal(ctx, c.retry, "vllm.chat_completion",
		func(ctx context.Context) (*ChatCompletionResponse, error) {
			return c.post(ctx, body)
		})
}

func (c *httpClient) post(ctx context.Context, body []byte) (*ChatCompletionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "vllm: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "vllm: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "vllm: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("vllm: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "vllm: unmarshal response")
	}
	return &result, nil
}

// GenerateWithSystem sends a system+user message pair and returns the first
// choice's content.
func (c *httpClient) GenerateWithSystem(ctx context.Context, system, user string, opts ...GenerateOption) (string, error) {
	req := ChatCompletionRequest{
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	for _, o := range opts {
		o(&req)
	}

	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("vllm: response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
