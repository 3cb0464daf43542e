package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, Jitter: 0}
}

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"id":    "chatcmpl-1",
		"model": "test-model",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("hello there"))
	}))
	defer server.Close()

	p := NewOpenAIProvider("key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))

	resp, err := p.Generate(context.Background(), NewChatRequest(UserMessage("hi")).WithTemperature(0.3))
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content())
	assert.Equal(t, 15, resp.Usage().TotalTokens())
}

func TestOpenAIGenerateRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("eventually"))
	}))
	defer server.Close()

	p := NewOpenAIProvider("key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))

	resp, err := p.Generate(context.Background(), NewChatRequest(UserMessage("hi")))
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Content())
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIGenerateSurfacesPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider("key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))

	_, err := p.Generate(context.Background(), NewChatRequest(UserMessage("hi")))
	require.Error(t, err)
	assert.Equal(t, fault.KindPermanentDependency, fault.KindOf(err))
	assert.Equal(t, int32(1), calls.Load(), "permanent failures must not retry")
}

func TestOpenAIEmbedBatches(t *testing.T) {
	var batches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		batches.Add(1)

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float64{float64(i), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "model": "embed-test"})
	}))
	defer server.Close()

	p := NewOpenAIProvider("key",
		WithBaseURL(server.URL),
		WithRetryPolicy(fastPolicy()),
		WithEmbeddingBatchSize(2),
	)

	vectors, err := p.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, int32(3), batches.Load())
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"hel", "lo"} {
			fmt.Fprintf(w, "data: {\"model\":\"test-model\",\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAIProvider("key", WithBaseURL(server.URL), WithRetryPolicy(fastPolicy()))

	var deltas []string
	resp, err := p.Stream(context.Background(), NewChatRequest(UserMessage("hi")), func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content())
	assert.Equal(t, []string{"hel", "lo"}, deltas)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounded by prose", `Sure! {"a":{"b":2}} Hope that helps.`, `{"a":{"b":2}}`},
		{"braces in strings", `{"a":"}{"}`, `{"a":"}{"}`},
		{"no object", "no json here", ""},
		{"unclosed", `{"a":1`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}
