package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"chat-relay/internal/retry"
)

const (
	DefaultURL          = "https://api.deepseek.com/v1/chat/completions"
	DefaultModel        = "deepseek-chat"
	DefaultTemperature  = 0.7
	DefaultSystemPrompt = "You are a helpful assistant."

	maxErrorBody    = 64 << 10
	maxResponseBody = 4 << 20
)

// ErrAPIKey marks failures to obtain the bearer token; no request was sent.
var ErrAPIKey = errors.New("chatapi: API key unavailable")

// tokenPayload is the JSON shape accepted for API keys stored in SSM.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Response is one upstream reply read in full. A non-2xx status is still a
// Response; only transport failures surface as errors from Complete.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client calls an OpenAI-compatible chat-completion endpoint through a retry
// executor.
type Client struct {
	url          string
	model        string
	temperature  float32
	systemPrompt string
	httpClient   *http.Client
	retrier      *retry.Executor

	getter   Getter
	keyParam string
	keyMu    sync.Mutex
	apiKey   string
}

type Option func(*Client)

func WithURL(url string) Option {
	return func(c *Client) {
		if url = strings.TrimSpace(url); url != "" {
			c.url = url
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		c.systemPrompt = strings.TrimSpace(prompt)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets a static bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithParamStoreKey resolves the bearer token from a parameter store the
// first time it is needed. A static key set with WithAPIKey takes precedence.
func WithParamStoreKey(getter Getter, name string) Option {
	return func(c *Client) {
		c.getter = getter
		c.keyParam = strings.TrimSpace(name)
	}
}

// NewClient creates a Client. Exactly one key source must be configured.
func NewClient(retrier *retry.Executor, opts ...Option) (*Client, error) {
	if retrier == nil {
		return nil, errors.New("chatapi: retry executor must not be nil")
	}
	c := &Client{
		url:          DefaultURL,
		model:        DefaultModel,
		temperature:  DefaultTemperature,
		systemPrompt: DefaultSystemPrompt,
		httpClient:   &http.Client{},
		retrier:      retrier,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" && (c.getter == nil || c.keyParam == "") {
		return nil, errors.New("chatapi: an API key or a parameter store key source is required")
	}
	return c, nil
}

// Complete sends message as the single user turn and returns the upstream
// reply. Transport failures are retried by the executor; timeouts are not.
func (c *Client) Complete(ctx context.Context, message string) (*Response, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(c.buildRequest(message))
	if err != nil {
		return nil, fmt.Errorf("chatapi: marshal request: %w", err)
	}

	return retry.Do(ctx, c.retrier, func(attemptCtx context.Context) (*Response, error) {
		return c.roundTrip(attemptCtx, apiKey, body)
	})
}

func (c *Client) buildRequest(message string) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		Stream:      false,
	}
}

// roundTrip performs one attempt and reads the body before returning so the
// attempt's deadline also covers the download.
func (c *Client) roundTrip(ctx context.Context, apiKey string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chatapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	limit := int64(maxResponseBody)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		limit = maxErrorBody
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		// A response arrived, so this is not retried.
		return nil, retry.Permanent(fmt.Errorf("chatapi: read response body (status %d): %w", res.StatusCode, err))
	}

	slog.Debug("upstream responded", "status", res.StatusCode, "bytes", len(buf))
	return &Response{StatusCode: res.StatusCode, Body: buf}, nil
}

// Completion extracts the first choice's message content from a success body.
func (r *Response) Completion() (string, error) {
	var payload openai.ChatCompletionResponse
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return "", fmt.Errorf("chatapi: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("chatapi: no choices in response")
	}
	content := payload.Choices[0].Message.Content
	if content == "" {
		return "", errors.New("chatapi: empty completion content")
	}
	return content, nil
}

// ErrorMessage returns the upstream-provided error message, or "" when the
// body does not carry one.
func (r *Response) ErrorMessage() string {
	var payload openai.ErrorResponse
	if err := json.Unmarshal(r.Body, &payload); err != nil || payload.Error == nil {
		return ""
	}
	return strings.TrimSpace(payload.Error.Message)
}

// resolveAPIKey returns the cached key or looks it up once. The lookup holds
// keyMu, so it is bounded by the per-attempt timeout.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, c.retrier.AttemptTimeout())
	defer cancel()
	key, err := fetchAPIKeyFromParamStore(lookupCtx, c.getter, c.keyParam)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAPIKey, err)
	}
	c.apiKey = key
	return key, nil
}

// fetchAPIKeyFromParamStore accepts either a bare token or {"token":"..."}.
func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("chatapi: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("chatapi: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("chatapi: fetch token from paramstore: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("chatapi: unmarshal paramstore token value as JSON: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("chatapi: API token is empty")
	}
	return raw, nil
}
