package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codelore/codelore/internal/retry"
)

// DefaultEmbeddingBatch is the largest batch one embedding call carries.
const DefaultEmbeddingBatch = 8

// errEmbeddingCountMismatch indicates the API returned fewer embedding
// vectors than requested. Retryable: transient upstream issues can produce
// partial responses behind a 200 status.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// OpenAIProvider implements text generation, streaming, and embeddings
// against the OpenAI API or any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	baseURL        string
	httpClient     *http.Client
	policy         retry.Policy
	batchSize      int
}

// OpenAIOption is a functional option for OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithChatModel sets the chat completion model.
func WithChatModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.chatModel = model
		}
	}
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.embeddingModel = model
		}
	}
}

// WithRetryPolicy overrides the retry policy for provider calls.
func WithRetryPolicy(policy retry.Policy) OpenAIOption {
	return func(p *OpenAIProvider) { p.policy = policy }
}

// WithEmbeddingBatchSize caps how many texts one embedding call carries.
func WithEmbeddingBatchSize(n int) OpenAIOption {
	return func(p *OpenAIProvider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// WithHTTPClient replaces the underlying HTTP client. Useful for tests and
// for the caching transport.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.httpClient = client }
}

// NewOpenAIProvider creates a provider for the given API key.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		chatModel:      openai.GPT4oMini,
		embeddingModel: string(openai.SmallEmbedding3),
		policy:         retry.DefaultPolicy(),
		batchSize:      DefaultEmbeddingBatch,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := openai.DefaultConfig(apiKey)
	if p.baseURL != "" {
		cfg.BaseURL = p.baseURL
	}
	if p.httpClient != nil {
		cfg.HTTPClient = p.httpClient
	}
	p.client = openai.NewClientWithConfig(cfg)
	return p
}

// Generate runs a chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	apiReq := p.chatRequest(req)

	resp, err := retry.DoResult(ctx, p.policy, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		r, callErr := p.client.CreateChatCompletion(ctx, apiReq)
		if callErr != nil {
			return openai.ChatCompletionResponse{}, classifyError("chat completion", callErr)
		}
		return r, nil
	})
	if err != nil {
		return ChatResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("chat completion: response has no choices")
	}

	usage := NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return NewChatResponse(resp.Choices[0].Message.Content, resp.Model, usage), nil
}

// Stream runs a chat completion delivering deltas through emit. The retry
// policy applies only to opening the stream; once deltas flow, a failure
// surfaces to the caller rather than replaying partial output.
func (p *OpenAIProvider) Stream(ctx context.Context, req ChatRequest, emit StreamFunc) (ChatResponse, error) {
	apiReq := p.chatRequest(req)
	apiReq.Stream = true

	stream, err := retry.DoResult(ctx, p.policy, func(ctx context.Context) (*openai.ChatCompletionStream, error) {
		s, callErr := p.client.CreateChatCompletionStream(ctx, apiReq)
		if callErr != nil {
			return nil, classifyError("chat stream", callErr)
		}
		return s, nil
	})
	if err != nil {
		return ChatResponse{}, err
	}
	defer stream.Close()

	var content strings.Builder
	model := apiReq.Model
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return ChatResponse{}, classifyError("chat stream recv", recvErr)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if emit != nil {
			if emitErr := emit(delta); emitErr != nil {
				return ChatResponse{}, emitErr
			}
		}
	}

	// Streaming responses carry no usage block; estimate from text length.
	text := content.String()
	usage := NewUsage(estimateTokens(promptText(req)), estimateTokens(text), 0)
	return NewChatResponse(text, model, usage), nil
}

// Embed generates embedding vectors for the given texts, batching calls at
// the configured batch size. Implements search.Embedder.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := retry.DoResult(ctx, p.policy, func(ctx context.Context) ([][]float64, error) {
			return p.embedBatch(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.embeddingModel),
	})
	if err != nil {
		return nil, classifyError("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, classifyError("embeddings",
			fmt.Errorf("%w: want %d, got %d", errEmbeddingCountMismatch, len(texts), len(resp.Data)))
	}

	vectors := make([][]float64, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float64, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (p *OpenAIProvider) chatRequest(req ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages()))
	for _, m := range req.Messages() {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role(),
			Content: m.Content(),
		})
	}
	return openai.ChatCompletionRequest{
		Model:       p.chatModel,
		Messages:    messages,
		Temperature: float32(req.Temperature()),
		TopP:        float32(req.TopP()),
		MaxTokens:   req.MaxTokens(),
	}
}

func promptText(req ChatRequest) string {
	var b strings.Builder
	for _, m := range req.Messages() {
		b.WriteString(m.Content())
		b.WriteByte('\n')
	}
	return b.String()
}

// estimateTokens approximates token count at four characters per token,
// matching the budget arithmetic used by prompt assembly.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

var _ TextGenerator = (*OpenAIProvider)(nil)
