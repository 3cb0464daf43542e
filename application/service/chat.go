package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codelore/codelore/domain/conversation"
	"github.com/codelore/codelore/domain/event"
	"github.com/codelore/codelore/domain/fault"
	"github.com/codelore/codelore/domain/search"
	"github.com/codelore/codelore/infrastructure/provider"
	"github.com/codelore/codelore/internal/config"
)

// Message metadata keys written by the chat service.
const (
	metaIntent        = "intent"
	metaModel         = "model"
	metaTotalTokens   = "total_tokens"
	metaCorrelationID = "correlation_id"
	metaResponseTime  = "response_time_seconds"
)

const intentPrompt = `Classify the intent of a question about a code repository.

Choose exactly one intent from this list:
%s

Also list the code identifiers (functions, types, files, packages) the
question mentions. Respond with a JSON object only:
{"intent": "<intent>", "confidence": <0.0-1.0>, "entities": ["..."]}

Question: %s`

const answerSystemPrompt = `You are a code assistant answering questions about indexed repositories.
Ground every claim in the provided context. When you reference code, cite
the file path. If the context does not contain the answer, say so instead
of guessing.`

const summaryPrompt = `Summarize the following conversation about a code repository in at most
five sentences. Keep file paths and identifiers verbatim.

%s`

const entityExtractionPrompt = `Extract the code identifiers (functions, types, files, packages) that the
following text refers to. Respond with a JSON object only:
{"entities": ["..."]}

Text: %s`

const followUpPrompt = `Given this conversation about a code repository, suggest %d short
follow-up questions the user is likely to ask next. Respond with a JSON
object only:
{"questions": ["..."]}

%s`

// Chat answers repository questions over a conversation. Each query is
// classified, grounded with retrieved evidence, and answered by the text
// generator; streamed responses publish deltas on the event bus.
type Chat struct {
	conversations *Conversations
	retrieval     *Retrieval
	generator     provider.TextGenerator
	bus           event.Publisher
	cfg           config.ChatConfig
	logger        *slog.Logger
}

// NewChat creates a Chat service.
func NewChat(
	conversations *Conversations,
	retrieval *Retrieval,
	generator provider.TextGenerator,
	bus event.Publisher,
	cfg config.ChatConfig,
	logger *slog.Logger,
) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chat{
		conversations: conversations,
		retrieval:     retrieval,
		generator:     generator,
		bus:           bus,
		cfg:           cfg,
		logger:        logger,
	}
}

// AnalyzeQueryIntent classifies a query and extracts the code entities it
// mentions. Classification failures and confidence below the configured
// floor both fall back to the default intent rather than failing the
// query; extracted entities survive the fallback.
func (s *Chat) AnalyzeQueryIntent(ctx context.Context, query string) (search.Intent, float64, []string) {
	labels := make([]string, 0, len(search.Intents()))
	for _, intent := range search.Intents() {
		labels = append(labels, "- "+intent.String())
	}

	req := provider.NewChatRequest(
		provider.UserMessage(fmt.Sprintf(intentPrompt, strings.Join(labels, "\n"), query)),
	).WithTemperature(0)

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("intent classification failed",
			slog.String("error", err.Error()),
		)
		return search.FallbackIntent, 0, nil
	}

	var parsed struct {
		Intent     string   `json:"intent"`
		Confidence float64  `json:"confidence"`
		Entities   []string `json:"entities"`
	}
	raw := provider.ExtractJSON(resp.Content())
	if raw == "" || json.Unmarshal([]byte(raw), &parsed) != nil {
		return search.FallbackIntent, 0, nil
	}

	intent, ok := search.ParseIntent(parsed.Intent)
	if !ok || parsed.Confidence < s.cfg.MinIntentConfidence() {
		return search.FallbackIntent, parsed.Confidence, parsed.Entities
	}
	return intent, parsed.Confidence, parsed.Entities
}

// CodeReference points at the code a response drew on.
type CodeReference struct {
	RepositoryID int64
	Path         string
	StartLine    int
	EndLine      int
}

// QueryResponse is the full outcome of answering one query: the persisted
// assistant message plus the evidence, suggestions, and timing around it.
type QueryResponse struct {
	Message             conversation.Message
	Intent              search.Intent
	CodeReferences      []CodeReference
	FollowUps           []string
	ResponseTimeSeconds float64
}

// Ask answers a query within a conversation. The user message and the
// response are both persisted. On generation failure a system message
// with a correlation id is recorded so the conversation shows what
// happened, and the error is returned with the same id.
func (s *Chat) Ask(ctx context.Context, conversationID, query string) (QueryResponse, error) {
	return s.answer(ctx, conversationID, query, nil)
}

// AskStream answers a query like Ask, additionally publishing each
// content delta and a final completion event on the event bus as the
// response streams in.
func (s *Chat) AskStream(ctx context.Context, conversationID, query string) (QueryResponse, error) {
	messageID := uuid.New().String()
	emit := func(delta string) error {
		s.bus.Publish(ctx, event.NewMessageDelta(conversationID, messageID, delta))
		return nil
	}
	resp, err := s.answer(ctx, conversationID, query, &streamTarget{messageID: messageID, emit: emit})
	if err == nil {
		s.bus.Publish(ctx, event.NewMessageComplete(conversationID, messageID))
	}
	return resp, err
}

type streamTarget struct {
	messageID string
	emit      provider.StreamFunc
}

func (s *Chat) answer(ctx context.Context, conversationID, query string, stream *streamTarget) (QueryResponse, error) {
	start := time.Now()

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return QueryResponse{}, err
	}

	userMsg, err := conversation.NewMessage(conversation.MessageTypeUserQuery, query)
	if err != nil {
		return QueryResponse{}, err
	}
	if _, err := s.conversations.Append(ctx, conversationID, userMsg); err != nil {
		return QueryResponse{}, fmt.Errorf("append user message: %w", err)
	}

	intent, confidence, entities := s.AnalyzeQueryIntent(ctx, query)
	s.logger.Debug("query classified",
		slog.String("conversation_id", conversationID),
		slog.String("intent", intent.String()),
		slog.Float64("confidence", confidence),
		slog.Int("entities", len(entities)),
	)

	searchText := s.expandQuery(ctx, conv, query, entities)
	evidence, err := s.retrieval.Retrieve(ctx, searchText, intent, conv.Context(), s.cfg.MaxContextItems())
	if err != nil {
		return s.recordFailure(ctx, conversationID, "retrieval failed", err)
	}

	messages := s.BuildPrompt(conv, evidence, query)
	req := provider.NewChatRequest(messages...).
		WithTemperature(s.cfg.Temperature()).
		WithTopP(s.cfg.TopP())

	var resp provider.ChatResponse
	if stream != nil {
		resp, err = s.generator.Stream(ctx, req, stream.emit)
	} else {
		resp, err = s.generator.Generate(ctx, req)
	}
	if err != nil {
		return s.recordFailure(ctx, conversationID, "response generation failed", err)
	}

	elapsed := time.Since(start).Seconds()
	reply := s.buildReply(resp, intent, stream, userMsg.ID(), elapsed)
	if _, err := s.conversations.Append(ctx, conversationID, reply); err != nil {
		return QueryResponse{}, fmt.Errorf("append response: %w", err)
	}

	followUps, err := s.GenerateFollowUpQuestions(ctx, conversationID)
	if err != nil {
		// Follow-up suggestions are decoration; the answer stands without
		// them.
		s.logger.Warn("follow-up generation failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		followUps = nil
	}

	return QueryResponse{
		Message:             reply,
		Intent:              intent,
		CodeReferences:      referencesFrom(evidence),
		FollowUps:           followUps,
		ResponseTimeSeconds: elapsed,
	}, nil
}

// expandQuery widens the retrieval text with the entities the classifier
// extracted and, once the conversation runs long, a summary of it.
func (s *Chat) expandQuery(ctx context.Context, conv conversation.Conversation, query string, entities []string) string {
	parts := []string{query}
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" && !strings.Contains(query, e) {
			parts = append(parts, e)
		}
	}

	if len(promptTurns(conv, s.cfg.MaxConversationHistory())) > s.cfg.SummaryAfterTurns() {
		summary, err := s.summarize(ctx, conv)
		if err != nil {
			s.logger.Warn("conversation summary unavailable for query expansion",
				slog.String("error", err.Error()),
			)
		} else if summary != "" {
			parts = append(parts, summary)
		}
	}
	return strings.Join(parts, "\n")
}

func referencesFrom(evidence []search.RankedResult) []CodeReference {
	refs := make([]CodeReference, 0, len(evidence))
	for _, item := range evidence {
		doc := item.Document()
		if doc.Path() == "" {
			continue
		}
		refs = append(refs, CodeReference{
			RepositoryID: doc.RepositoryID(),
			Path:         doc.Path(),
			StartLine:    doc.StartLine(),
			EndLine:      doc.EndLine(),
		})
	}
	return refs
}

func (s *Chat) buildReply(resp provider.ChatResponse, intent search.Intent, stream *streamTarget, parentID string, elapsed float64) conversation.Message {
	metadata := map[string]string{
		metaIntent:       intent.String(),
		metaModel:        resp.Model(),
		metaTotalTokens:  strconv.Itoa(resp.Usage().TotalTokens()),
		metaResponseTime: strconv.FormatFloat(elapsed, 'f', 3, 64),
	}
	if stream != nil {
		return conversation.ReconstructMessage(
			stream.messageID, "", conversation.MessageTypeAIResponse,
			resp.Content(), time.Time{}, nil, parentID, false, metadata,
		)
	}
	msg, err := conversation.NewMessage(conversation.MessageTypeAIResponse, resp.Content())
	if err != nil {
		// Empty completions are legal for the provider; keep the turn
		// visible rather than dropping it.
		msg, _ = conversation.NewMessage(conversation.MessageTypeAIResponse, "(empty response)")
	}
	msg = msg.WithParent(parentID)
	for k, v := range metadata {
		msg = msg.WithMetadata(k, v)
	}
	return msg
}

// recordFailure appends a system message carrying a correlation id so the
// user sees the failure in the conversation, then returns an error
// referencing the same id.
func (s *Chat) recordFailure(ctx context.Context, conversationID, what string, cause error) (QueryResponse, error) {
	correlationID := uuid.New().String()
	s.logger.Error(what,
		slog.String("conversation_id", conversationID),
		slog.String("correlation_id", correlationID),
		slog.String("error", cause.Error()),
	)

	notice, err := conversation.NewMessage(conversation.MessageTypeSystemMessage,
		fmt.Sprintf("The assistant could not answer this query (reference %s). Please try again.", correlationID))
	if err == nil {
		notice = notice.WithMetadata(metaCorrelationID, correlationID)
		if _, appendErr := s.conversations.Append(ctx, conversationID, notice); appendErr != nil {
			s.logger.Error("failed to record failure notice",
				slog.String("conversation_id", conversationID),
				slog.String("error", appendErr.Error()),
			)
		}
	}

	return QueryResponse{}, fault.Wrap(fault.KindOf(cause),
		fmt.Sprintf("%s (reference %s)", what, correlationID), cause)
}

// BuildPrompt assembles the chat completion request: a system prompt with
// retrieved evidence, recent conversation turns, and the query. The
// assembled prompt stays within the configured token budget; oldest turns
// are dropped first, then the lowest-scored evidence.
func (s *Chat) BuildPrompt(conv conversation.Conversation, evidence []search.RankedResult, query string) []provider.ChatMessage {
	turns := promptTurns(conv, s.cfg.MaxConversationHistory())
	evidence = capEvidence(evidence, s.cfg.MaxContextItems(), s.cfg.MaxContextTokens())

	for {
		messages := assemblePrompt(evidence, turns, query)
		if promptTokens(messages) <= s.cfg.MaxPromptTokens() {
			return messages
		}
		if len(turns) > 0 {
			turns = turns[1:]
			continue
		}
		if len(evidence) > 0 {
			evidence = evidence[:len(evidence)-1]
			continue
		}
		return messages
	}
}

// SummarizeConversation produces a short summary of the conversation so
// far.
func (s *Chat) SummarizeConversation(ctx context.Context, conversationID string) (string, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return s.summarize(ctx, conv)
}

func (s *Chat) summarize(ctx context.Context, conv conversation.Conversation) (string, error) {
	transcript := renderTranscript(conv, s.cfg.MaxConversationHistory())
	if transcript == "" {
		return "", fault.Validation("conversation has no messages to summarize")
	}

	req := provider.NewChatRequest(
		provider.UserMessage(fmt.Sprintf(summaryPrompt, transcript)),
	).WithTemperature(0.3)

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return strings.TrimSpace(resp.Content()), nil
}

// ExtractEntities pulls code identifiers out of free text.
func (s *Chat) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	req := provider.NewChatRequest(
		provider.UserMessage(fmt.Sprintf(entityExtractionPrompt, text)),
	).WithTemperature(0)

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}

	var parsed struct {
		Entities []string `json:"entities"`
	}
	raw := provider.ExtractJSON(resp.Content())
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fault.Wrap(fault.KindPermanentDependency, "malformed entity extraction response", err)
	}
	return parsed.Entities, nil
}

// GenerateFollowUpQuestions suggests the configured number of follow-up
// questions for a conversation.
func (s *Chat) GenerateFollowUpQuestions(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	transcript := renderTranscript(conv, s.cfg.MaxConversationHistory())
	req := provider.NewChatRequest(
		provider.UserMessage(fmt.Sprintf(followUpPrompt, s.cfg.FollowUpQuestions(), transcript)),
	).WithTemperature(s.cfg.Temperature())

	resp, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate follow-up questions: %w", err)
	}

	var parsed struct {
		Questions []string `json:"questions"`
	}
	raw := provider.ExtractJSON(resp.Content())
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fault.Wrap(fault.KindPermanentDependency, "malformed follow-up response", err)
	}
	if len(parsed.Questions) > s.cfg.FollowUpQuestions() {
		parsed.Questions = parsed.Questions[:s.cfg.FollowUpQuestions()]
	}
	return parsed.Questions, nil
}

// promptTurns returns the most recent user and assistant turns, oldest
// first, skipping system notices.
func promptTurns(conv conversation.Conversation, limit int) []conversation.Message {
	var turns []conversation.Message
	for _, msg := range conv.Messages() {
		switch msg.Type() {
		case conversation.MessageTypeUserQuery, conversation.MessageTypeAIResponse:
			turns = append(turns, msg)
		}
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}

func capEvidence(evidence []search.RankedResult, maxItems, maxTokens int) []search.RankedResult {
	if len(evidence) > maxItems {
		evidence = evidence[:maxItems]
	}
	used := 0
	for i, item := range evidence {
		tokens := search.EstimateTokens(item.Document().Content())
		if used+tokens > maxTokens {
			return evidence[:i]
		}
		used += tokens
	}
	return evidence
}

func assemblePrompt(evidence []search.RankedResult, turns []conversation.Message, query string) []provider.ChatMessage {
	var system strings.Builder
	system.WriteString(answerSystemPrompt)
	if len(evidence) > 0 {
		system.WriteString("\n\nContext:\n")
		for _, item := range evidence {
			doc := item.Document()
			label := doc.Path()
			if label == "" {
				label = doc.Title()
			}
			if doc.StartLine() > 0 {
				label = fmt.Sprintf("%s:%d-%d", label, doc.StartLine(), doc.EndLine())
			}
			fmt.Fprintf(&system, "\n--- %s ---\n%s\n", label, doc.Content())
		}
	}

	messages := []provider.ChatMessage{provider.SystemMessage(system.String())}
	for _, turn := range turns {
		if turn.Type() == conversation.MessageTypeAIResponse {
			messages = append(messages, provider.AssistantMessage(turn.Content()))
		} else {
			messages = append(messages, provider.UserMessage(turn.Content()))
		}
	}
	return append(messages, provider.UserMessage(query))
}

func promptTokens(messages []provider.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += search.EstimateTokens(m.Content())
	}
	return total
}

func renderTranscript(conv conversation.Conversation, limit int) string {
	var b strings.Builder
	for _, msg := range promptTurns(conv, limit) {
		role := "User"
		if msg.Type() == conversation.MessageTypeAIResponse {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, msg.Content())
	}
	return strings.TrimRight(b.String(), "\n")
}
