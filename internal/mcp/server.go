// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/codelore/codelore/application/service"
	"github.com/codelore/codelore/domain/conversation"
	"github.com/codelore/codelore/domain/docs"
	"github.com/codelore/codelore/domain/repo"
	"github.com/codelore/codelore/domain/search"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Retriever runs intent-aware hybrid retrieval for MCP tools.
type Retriever interface {
	Retrieve(ctx context.Context, text string, intent search.Intent, scope conversation.Context, maxResults int) ([]search.RankedResult, error)
}

// Asker answers a question inside a conversation.
type Asker interface {
	Ask(ctx context.Context, conversationID, query string) (service.QueryResponse, error)
}

// ConversationCreator opens conversations for ask invocations that do not
// carry one.
type ConversationCreator interface {
	Create(ctx context.Context, userID, title string, scope conversation.Context) (conversation.Conversation, error)
}

// RepositoryLister lists connected repositories.
type RepositoryLister interface {
	List(ctx context.Context, options ...repo.Option) ([]repo.Repository, error)
}

// DocsLookup retrieves generated documentation for a repository.
type DocsLookup interface {
	Get(ctx context.Context, repositoryID int64) (docs.Documentation, error)
}

// Server wraps the MCP server with codelore-specific tools.
type Server struct {
	mcpServer     *server.MCPServer
	retrieval     Retriever
	chat          Asker
	conversations ConversationCreator
	repositories  RepositoryLister
	docs          DocsLookup
	logger        *slog.Logger
}

// NewServer creates a new MCP server with the given dependencies. The
// chat and conversations dependencies may be nil when no text provider is
// configured; the ask tool is registered only when both are present.
func NewServer(
	retrieval Retriever,
	chat Asker,
	conversations ConversationCreator,
	repositories RepositoryLister,
	docsLookup DocsLookup,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		retrieval:     retrieval,
		chat:          chat,
		conversations: conversations,
		repositories:  repositories,
		docs:          docsLookup,
		logger:        logger,
	}

	mcpServer := server.NewMCPServer(
		"codelore",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

// registerTools registers all codelore tools with the MCP server.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	searchTool := mcp.NewTool("search",
		mcp.WithDescription("Search indexed repository knowledge using hybrid lexical and vector retrieval"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Number of results to return (default: 10)"),
		),
		mcp.WithString("intent",
			mcp.Description("Query intent, e.g. explain_concept or find_implementation"),
		),
		mcp.WithNumber("repository_id",
			mcp.Description("Restrict results to a single repository"),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	listTool := mcp.NewTool("list_repositories",
		mcp.WithDescription("List connected repositories with their indexing status"),
	)
	mcpServer.AddTool(listTool, s.handleListRepositories)

	docsTool := mcp.NewTool("get_documentation",
		mcp.WithDescription("Get the generated documentation for a repository"),
		mcp.WithNumber("repository_id",
			mcp.Required(),
			mcp.Description("The numeric repository ID"),
		),
	)
	mcpServer.AddTool(docsTool, s.handleGetDocumentation)

	if s.chat == nil || s.conversations == nil {
		return
	}

	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Ask a question about the indexed repositories and get a grounded answer"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Continue an existing conversation; a new one is opened when omitted"),
		),
		mcp.WithNumber("repository_id",
			mcp.Description("Scope the answer to a single repository"),
		),
	)
	mcpServer.AddTool(askTool, s.handleAsk)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}

	maxResults := request.GetInt("max_results", 10)

	intent := search.FallbackIntent
	if label := request.GetString("intent", ""); label != "" {
		parsed, ok := search.ParseIntent(label)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown intent: %s", label)), nil
		}
		intent = parsed
	}

	var scope conversation.Context
	if repoID := request.GetInt("repository_id", 0); repoID > 0 {
		scope.RepositoryIDs = []int64{int64(repoID)}
	}

	ranked, err := s.retrieval.Retrieve(ctx, query, intent, scope, maxResults)
	if err != nil {
		s.logger.Error("search failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	type searchResult struct {
		ID           string  `json:"id"`
		RepositoryID int64   `json:"repository_id"`
		Kind         string  `json:"kind"`
		Title        string  `json:"title,omitempty"`
		URI          string  `json:"uri,omitempty"`
		Content      string  `json:"content"`
		Score        float64 `json:"score"`
	}

	results := make([]searchResult, len(ranked))
	for i, r := range ranked {
		doc := r.Document()
		results[i] = searchResult{
			ID:           doc.ID(),
			RepositoryID: doc.RepositoryID(),
			Kind:         string(doc.Kind()),
			Title:        doc.Title(),
			URI:          documentURI(doc),
			Content:      doc.Content(),
			Score:        r.RelevanceScore(),
		}
	}

	jsonBytes, err := json.Marshal(results)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question is required"), nil
	}

	conversationID := request.GetString("conversation_id", "")
	if conversationID == "" {
		var scope conversation.Context
		if repoID := request.GetInt("repository_id", 0); repoID > 0 {
			scope.RepositoryIDs = []int64{int64(repoID)}
		}
		conv, err := s.conversations.Create(ctx, "mcp", truncateTitle(question), scope)
		if err != nil {
			s.logger.Error("failed to open conversation", slog.Any("error", err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to open conversation: %v", err)), nil
		}
		conversationID = conv.ID()
	}

	reply, err := s.chat.Ask(ctx, conversationID, question)
	if err != nil {
		s.logger.Error("ask failed", slog.String("conversation_id", conversationID), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}

	type codeReference struct {
		RepositoryID int64  `json:"repository_id"`
		Path         string `json:"path"`
		StartLine    int    `json:"start_line,omitempty"`
		EndLine      int    `json:"end_line,omitempty"`
	}
	type askResult struct {
		ConversationID      string          `json:"conversation_id"`
		Answer              string          `json:"answer"`
		CodeReferences      []codeReference `json:"code_references,omitempty"`
		FollowUps           []string        `json:"follow_ups,omitempty"`
		ResponseTimeSeconds float64         `json:"response_time_seconds"`
	}

	references := make([]codeReference, 0, len(reply.CodeReferences))
	for _, ref := range reply.CodeReferences {
		references = append(references, codeReference{
			RepositoryID: ref.RepositoryID,
			Path:         ref.Path,
			StartLine:    ref.StartLine,
			EndLine:      ref.EndLine,
		})
	}

	jsonBytes, err := json.Marshal(askResult{
		ConversationID:      conversationID,
		Answer:              reply.Message.Content(),
		CodeReferences:      references,
		FollowUps:           reply.FollowUps,
		ResponseTimeSeconds: reply.ResponseTimeSeconds,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleListRepositories handles the list_repositories tool invocation.
func (s *Server) handleListRepositories(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repositories, err := s.repositories.List(ctx)
	if err != nil {
		s.logger.Error("failed to list repositories", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("failed to list repositories: %v", err)), nil
	}

	type repositoryResult struct {
		ID              int64  `json:"id"`
		FullName        string `json:"full_name"`
		URL             string `json:"url"`
		Status          string `json:"status"`
		DefaultBranch   string `json:"default_branch"`
		PrimaryLanguage string `json:"primary_language,omitempty"`
	}

	results := make([]repositoryResult, len(repositories))
	for i, r := range repositories {
		results[i] = repositoryResult{
			ID:              r.ID(),
			FullName:        r.FullName(),
			URL:             r.URL(),
			Status:          string(r.Status()),
			DefaultBranch:   r.DefaultBranch(),
			PrimaryLanguage: r.Statistics().PrimaryLanguage(),
		}
	}

	jsonBytes, err := json.Marshal(results)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// handleGetDocumentation handles the get_documentation tool invocation.
func (s *Server) handleGetDocumentation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID := request.GetInt("repository_id", 0)
	if repoID <= 0 {
		return mcp.NewToolResultError("repository_id is required"), nil
	}

	documentation, err := s.docs.Get(ctx, int64(repoID))
	if err != nil {
		s.logger.Error("failed to get documentation",
			slog.Int("repository_id", repoID),
			slog.Any("error", err),
		)
		return mcp.NewToolResultError(fmt.Sprintf("failed to get documentation: %v", err)), nil
	}

	type sectionResult struct {
		Title   string `json:"title"`
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	type docsResult struct {
		RepositoryID int64           `json:"repository_id"`
		Status       string          `json:"status"`
		Sections     []sectionResult `json:"sections"`
	}

	sections := documentation.Sections()
	result := docsResult{
		RepositoryID: int64(repoID),
		Status:       string(documentation.Status()),
		Sections:     make([]sectionResult, len(sections)),
	}
	for i, sec := range sections {
		result.Sections[i] = sectionResult{
			Title:   sec.Title(),
			Type:    string(sec.Type()),
			Content: sec.Content(),
		}
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// documentURI renders a stable locator for a retrieved document. File
// documents point at their source path and line range; documentation
// sections have no file location and render empty.
func documentURI(doc search.Document) string {
	if doc.Path() == "" {
		return ""
	}
	uri := NewSourceURI(doc.RepositoryID(), doc.Path())
	if doc.StartLine() > 0 {
		uri = uri.WithLineRange(doc.StartLine(), doc.EndLine())
	}
	return uri.String()
}

func truncateTitle(question string) string {
	const maxTitle = 80
	if len(question) <= maxTitle {
		return question
	}
	return question[:maxTitle]
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
