// Package provider implements the LLM and embedding capability contracts:
// an OpenAI-compatible chat/embedding client, an Anthropic chat client, and
// a local hugot embedder. All providers classify failures through the fault
// taxonomy and retry transient errors internally, so callers see at most
// one terminal error per call.
package provider

import (
	"context"
	"strings"
)

// Roles for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	role    string
	content string
}

// NewChatMessage creates a chat message.
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{role: role, content: content}
}

// SystemMessage creates a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{role: RoleSystem, content: content}
}

// UserMessage creates a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{role: RoleUser, content: content}
}

// AssistantMessage creates an assistant-role message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{role: RoleAssistant, content: content}
}

// Role returns the message role.
func (m ChatMessage) Role() string { return m.role }

// Content returns the message content.
func (m ChatMessage) Content() string { return m.content }

// ChatRequest is a chat completion request.
type ChatRequest struct {
	messages    []ChatMessage
	temperature float64
	topP        float64
	maxTokens   int
}

// NewChatRequest creates a chat request with the given messages.
func NewChatRequest(messages ...ChatMessage) ChatRequest {
	msgs := make([]ChatMessage, len(messages))
	copy(msgs, messages)
	return ChatRequest{messages: msgs}
}

// Messages returns the request messages in order.
func (r ChatRequest) Messages() []ChatMessage {
	msgs := make([]ChatMessage, len(r.messages))
	copy(msgs, r.messages)
	return msgs
}

// Temperature returns the sampling temperature.
func (r ChatRequest) Temperature() float64 { return r.temperature }

// TopP returns the nucleus sampling parameter.
func (r ChatRequest) TopP() float64 { return r.topP }

// MaxTokens returns the response token limit (0 means provider default).
func (r ChatRequest) MaxTokens() int { return r.maxTokens }

// WithTemperature returns a copy with the sampling temperature set.
func (r ChatRequest) WithTemperature(t float64) ChatRequest {
	r.temperature = t
	return r
}

// WithTopP returns a copy with the nucleus sampling parameter set.
func (r ChatRequest) WithTopP(p float64) ChatRequest {
	r.topP = p
	return r
}

// WithMaxTokens returns a copy with the response token limit set.
func (r ChatRequest) WithMaxTokens(n int) ChatRequest {
	if n > 0 {
		r.maxTokens = n
	}
	return r
}

// Usage reports token consumption for one provider call.
type Usage struct {
	promptTokens     int
	completionTokens int
	totalTokens      int
}

// NewUsage creates a usage record.
func NewUsage(prompt, completion, total int) Usage {
	if total == 0 {
		total = prompt + completion
	}
	return Usage{promptTokens: prompt, completionTokens: completion, totalTokens: total}
}

// PromptTokens returns the prompt token count.
func (u Usage) PromptTokens() int { return u.promptTokens }

// CompletionTokens returns the completion token count.
func (u Usage) CompletionTokens() int { return u.completionTokens }

// TotalTokens returns the total token count.
func (u Usage) TotalTokens() int { return u.totalTokens }

// ChatResponse is the result of a chat completion.
type ChatResponse struct {
	content string
	model   string
	usage   Usage
}

// NewChatResponse creates a chat response.
func NewChatResponse(content, model string, usage Usage) ChatResponse {
	return ChatResponse{content: content, model: model, usage: usage}
}

// Content returns the generated text.
func (r ChatResponse) Content() string { return r.content }

// Model returns the model that produced the response.
func (r ChatResponse) Model() string { return r.model }

// Usage returns token consumption for the call.
func (r ChatResponse) Usage() Usage { return r.usage }

// StreamFunc receives one content delta of a streamed completion. Returning
// an error aborts the stream.
type StreamFunc func(delta string) error

// TextGenerator produces chat completions. Stream delivers content deltas
// through emit as they arrive and returns the assembled response.
type TextGenerator interface {
	Generate(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Stream(ctx context.Context, req ChatRequest, emit StreamFunc) (ChatResponse, error)
}

// ExtractJSON returns the first JSON object embedded in an LLM response,
// tolerating markdown code fences and surrounding prose. The empty string
// means no object was found.
func ExtractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
