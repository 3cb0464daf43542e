package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/internal/retry"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicDefaultModel   = "claude-3-5-haiku-latest"
	anthropicMaxTokensFloor = 1024
)

// AnthropicProvider implements text generation against the Anthropic
// Messages API. Anthropic offers no embedding endpoint, so this provider is
// a TextGenerator only; pair it with the hugot or OpenAI embedder.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	policy     retry.Policy
	httpClient *http.Client
}

// AnthropicOption is a functional option for AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicModel sets the Claude model.
func WithAnthropicModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithAnthropicBaseURL overrides the API base URL.
func WithAnthropicBaseURL(baseURL string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithAnthropicRetryPolicy overrides the retry policy.
func WithAnthropicRetryPolicy(policy retry.Policy) AnthropicOption {
	return func(p *AnthropicProvider) { p.policy = policy }
}

// WithAnthropicHTTPClient replaces the underlying HTTP client.
func WithAnthropicHTTPClient(client *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.httpClient = client }
}

// NewAnthropicProvider creates a provider for the given API key.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:     apiKey,
		baseURL:    anthropicDefaultBaseURL,
		model:      anthropicDefaultModel,
		policy:     retry.DefaultPolicy(),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"top_p,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string           `json:"model"`
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
	Error   *anthropicError  `json:"error,omitempty"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Generate runs a messages call. System-role turns map to the request's
// system field; the rest alternate as user/assistant messages.
func (p *AnthropicProvider) Generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	apiReq := anthropicRequest{
		Model:       p.model,
		MaxTokens:   req.MaxTokens(),
		Temperature: req.Temperature(),
		TopP:        req.TopP(),
	}
	if apiReq.MaxTokens <= 0 {
		apiReq.MaxTokens = anthropicMaxTokensFloor
	}
	for _, m := range req.Messages() {
		if m.Role() == RoleSystem {
			if apiReq.System != "" {
				apiReq.System += "\n\n"
			}
			apiReq.System += m.Content()
			continue
		}
		apiReq.Messages = append(apiReq.Messages, anthropicMessage{Role: m.Role(), Content: m.Content()})
	}

	resp, err := retry.DoResult(ctx, p.policy, func(ctx context.Context) (anthropicResponse, error) {
		return p.doRequest(ctx, apiReq)
	})
	if err != nil {
		return ChatResponse{}, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	usage := NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, 0)
	return NewChatResponse(text, resp.Model, usage), nil
}

// Stream satisfies TextGenerator by emitting the full response as a single
// delta. The Messages API supports server-sent events, but the service
// streams through the OpenAI-compatible path; this provider backs batch
// generation (documentation sections, summaries).
func (p *AnthropicProvider) Stream(ctx context.Context, req ChatRequest, emit StreamFunc) (ChatResponse, error) {
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return ChatResponse{}, err
	}
	if emit != nil && resp.Content() != "" {
		if emitErr := emit(resp.Content()); emitErr != nil {
			return ChatResponse{}, emitErr
		}
	}
	return resp, nil
}

func (p *AnthropicProvider) doRequest(ctx context.Context, apiReq anthropicRequest) (anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return anthropicResponse{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return anthropicResponse{}, classifyError("anthropic messages", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return anthropicResponse{}, classifyError("anthropic messages", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		kind := classifyHTTPStatus(httpResp.StatusCode)
		msg := fmt.Sprintf("status %d", httpResp.StatusCode)
		var apiResp anthropicResponse
		if json.Unmarshal(respBody, &apiResp) == nil && apiResp.Error != nil {
			msg = fmt.Sprintf("status %d: %s", httpResp.StatusCode, apiResp.Error.Message)
		}
		classified := fault.New(kind, "anthropic messages: "+msg)
		if kind == fault.KindRateLimited {
			if secs, parseErr := strconv.Atoi(httpResp.Header.Get("Retry-After")); parseErr == nil && secs > 0 {
				classified = classified.WithRetryAfter(time.Duration(secs) * time.Second)
			}
		}
		return anthropicResponse{}, classified
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return anthropicResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return apiResp, nil
}

var _ TextGenerator = (*AnthropicProvider)(nil)
