// Package event defines the domain events published on the in-process bus.
// Every event serializes to a flat JSON object with id, occurredOn, and
// type fields alongside its payload.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every domain event.
type Event interface {
	EventID() string
	EventType() string
	OccurredOn() time.Time
}

// Event type values.
const (
	TypeRepositoryStatusChanged    = "repository.status_changed"
	TypeRepositoryReady            = "repository.ready"
	TypeRepositoryDiagnostic       = "repository.diagnostic"
	TypeRepositoryRemoved          = "repository.removed"
	TypeGraphStatusChanged         = "graph.status_changed"
	TypeGraphCompleted             = "graph.completed"
	TypeDocumentationStatusChanged = "documentation.status_changed"
	TypeDocumentationCompleted     = "documentation.completed"
	TypeMessageDelta               = "message.delta"
	TypeMessageComplete            = "message.complete"
)

// Base carries the fields shared by all events.
type Base struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"occurredOn"`
}

// EventID returns the unique event id.
func (b Base) EventID() string { return b.ID }

// EventType returns the event type.
func (b Base) EventType() string { return b.Type }

// OccurredOn returns when the event occurred.
func (b Base) OccurredOn() time.Time { return b.At }

func newBase(eventType string) Base {
	return Base{
		ID:   uuid.New().String(),
		Type: eventType,
		At:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Publisher publishes events. Publishing never blocks the caller.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

// RepositoryStatusChanged is raised on every repository state transition.
type RepositoryStatusChanged struct {
	Base
	RepositoryID int64  `json:"repositoryId"`
	FullName     string `json:"fullName"`
	From         string `json:"from"`
	To           string `json:"to"`
}

// NewRepositoryStatusChanged creates a RepositoryStatusChanged event.
func NewRepositoryStatusChanged(repositoryID int64, fullName, from, to string) RepositoryStatusChanged {
	return RepositoryStatusChanged{
		Base:         newBase(TypeRepositoryStatusChanged),
		RepositoryID: repositoryID,
		FullName:     fullName,
		From:         from,
		To:           to,
	}
}

// RepositoryReady is raised exactly once when an ingestion reaches Ready.
type RepositoryReady struct {
	Base
	RepositoryID int64  `json:"repositoryId"`
	FullName     string `json:"fullName"`
}

// NewRepositoryReady creates a RepositoryReady event.
func NewRepositoryReady(repositoryID int64, fullName string) RepositoryReady {
	return RepositoryReady{
		Base:         newBase(TypeRepositoryReady),
		RepositoryID: repositoryID,
		FullName:     fullName,
	}
}

// RepositoryDiagnostic is raised when an ingestion fails permanently.
type RepositoryDiagnostic struct {
	Base
	RepositoryID int64  `json:"repositoryId"`
	FullName     string `json:"fullName"`
	Kind         string `json:"kind"`
	Message      string `json:"message"`
}

// NewRepositoryDiagnostic creates a RepositoryDiagnostic event.
func NewRepositoryDiagnostic(repositoryID int64, fullName, kind, message string) RepositoryDiagnostic {
	return RepositoryDiagnostic{
		Base:         newBase(TypeRepositoryDiagnostic),
		RepositoryID: repositoryID,
		FullName:     fullName,
		Kind:         kind,
		Message:      message,
	}
}

// RepositoryRemoved is raised after a repository and its derived data are
// deleted.
type RepositoryRemoved struct {
	Base
	RepositoryID int64  `json:"repositoryId"`
	FullName     string `json:"fullName"`
}

// NewRepositoryRemoved creates a RepositoryRemoved event.
func NewRepositoryRemoved(repositoryID int64, fullName string) RepositoryRemoved {
	return RepositoryRemoved{
		Base:         newBase(TypeRepositoryRemoved),
		RepositoryID: repositoryID,
		FullName:     fullName,
	}
}

// GraphStatusChanged is raised on every knowledge graph state transition.
type GraphStatusChanged struct {
	Base
	GraphID int64  `json:"graphId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// NewGraphStatusChanged creates a GraphStatusChanged event.
func NewGraphStatusChanged(graphID int64, from, to string) GraphStatusChanged {
	return GraphStatusChanged{
		Base:    newBase(TypeGraphStatusChanged),
		GraphID: graphID,
		From:    from,
		To:      to,
	}
}

// GraphCompleted is raised when a knowledge graph build finishes.
type GraphCompleted struct {
	Base
	GraphID           int64   `json:"graphId"`
	RepositoryIDs     []int64 `json:"repositoryIds"`
	EntityCount       int64   `json:"entityCount"`
	RelationshipCount int64   `json:"relationshipCount"`
	PatternCount      int64   `json:"patternCount"`
}

// NewGraphCompleted creates a GraphCompleted event.
func NewGraphCompleted(graphID int64, repositoryIDs []int64, entities, relationships, patterns int64) GraphCompleted {
	ids := make([]int64, len(repositoryIDs))
	copy(ids, repositoryIDs)
	return GraphCompleted{
		Base:              newBase(TypeGraphCompleted),
		GraphID:           graphID,
		RepositoryIDs:     ids,
		EntityCount:       entities,
		RelationshipCount: relationships,
		PatternCount:      patterns,
	}
}

// DocumentationStatusChanged is raised on every documentation state
// transition.
type DocumentationStatusChanged struct {
	Base
	DocumentationID int64  `json:"documentationId"`
	RepositoryID    int64  `json:"repositoryId"`
	From            string `json:"from"`
	To              string `json:"to"`
}

// NewDocumentationStatusChanged creates a DocumentationStatusChanged event.
func NewDocumentationStatusChanged(documentationID, repositoryID int64, from, to string) DocumentationStatusChanged {
	return DocumentationStatusChanged{
		Base:            newBase(TypeDocumentationStatusChanged),
		DocumentationID: documentationID,
		RepositoryID:    repositoryID,
		From:            from,
		To:              to,
	}
}

// DocumentationCompleted is raised when documentation generation completes.
type DocumentationCompleted struct {
	Base
	DocumentationID int64   `json:"documentationId"`
	RepositoryID    int64   `json:"repositoryId"`
	Version         string  `json:"version"`
	QualityScore    float64 `json:"qualityScore"`
}

// NewDocumentationCompleted creates a DocumentationCompleted event.
func NewDocumentationCompleted(documentationID, repositoryID int64, version string, qualityScore float64) DocumentationCompleted {
	return DocumentationCompleted{
		Base:            newBase(TypeDocumentationCompleted),
		DocumentationID: documentationID,
		RepositoryID:    repositoryID,
		Version:         version,
		QualityScore:    qualityScore,
	}
}

// MessageDelta is one streamed chunk of an AI response. Seq is assigned by
// the bus, monotonically increasing per conversation.
type MessageDelta struct {
	Base
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Seq            uint64 `json:"seq"`
	Content        string `json:"content"`
}

// NewMessageDelta creates a MessageDelta event.
func NewMessageDelta(conversationID, messageID, content string) MessageDelta {
	return MessageDelta{
		Base:           newBase(TypeMessageDelta),
		ConversationID: conversationID,
		MessageID:      messageID,
		Content:        content,
	}
}

// MessageComplete terminates a streamed AI response. Seq is the final
// sequence number for the conversation's stream.
type MessageComplete struct {
	Base
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Seq            uint64 `json:"seq"`
}

// NewMessageComplete creates a MessageComplete event.
func NewMessageComplete(conversationID, messageID string) MessageComplete {
	return MessageComplete{
		Base:           newBase(TypeMessageComplete),
		ConversationID: conversationID,
		MessageID:      messageID,
	}
}
