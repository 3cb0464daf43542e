package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codelore/codelore/domain/fault"
)

// MessageType categorizes a conversation message.
type MessageType string

// MessageType values.
const (
	MessageTypeUserQuery     MessageType = "user_query"
	MessageTypeAIResponse    MessageType = "ai_response"
	MessageTypeSystemMessage MessageType = "system_message"
	MessageTypeCodeReference MessageType = "code_reference"
	MessageTypeSearchResult  MessageType = "search_result"
)

// Valid reports whether the message type is known.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeUserQuery, MessageTypeAIResponse, MessageTypeSystemMessage,
		MessageTypeCodeReference, MessageTypeSearchResult:
		return true
	}
	return false
}

// String returns the string representation of the message type.
func (t MessageType) String() string {
	return string(t)
}

// Attachment is a named artifact carried with a message.
type Attachment struct {
	Name        string
	ContentType string
	SizeBytes   int64
	URI         string
}

// Message is a single entry in a conversation. The timestamp is assigned
// when the message is appended to its conversation, not at construction.
type Message struct {
	id              string
	conversationID  string
	typ             MessageType
	content         string
	timestamp       time.Time
	attachments     []Attachment
	parentMessageID string
	edited          bool
	metadata        map[string]string
}

// NewMessage creates a message of the given type. Content must be non-empty.
func NewMessage(typ MessageType, content string) (Message, error) {
	if !typ.Valid() {
		return Message{}, fault.Validationf("unknown message type %q", string(typ))
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, fault.Validation("message content is required")
	}
	return Message{
		id:       uuid.New().String(),
		typ:      typ,
		content:  content,
		metadata: map[string]string{},
	}, nil
}

// ReconstructMessage recreates a Message from persistence.
func ReconstructMessage(
	id string,
	conversationID string,
	typ MessageType,
	content string,
	timestamp time.Time,
	attachments []Attachment,
	parentMessageID string,
	edited bool,
	metadata map[string]string,
) Message {
	return Message{
		id:              id,
		conversationID:  conversationID,
		typ:             typ,
		content:         content,
		timestamp:       timestamp,
		attachments:     copyAttachments(attachments),
		parentMessageID: parentMessageID,
		edited:          edited,
		metadata:        copyMeta(metadata),
	}
}

// ID returns the message identifier.
func (m Message) ID() string { return m.id }

// ConversationID returns the owning conversation, empty until appended.
func (m Message) ConversationID() string { return m.conversationID }

// Type returns the message type.
func (m Message) Type() MessageType { return m.typ }

// Content returns the message content.
func (m Message) Content() string { return m.content }

// Timestamp returns when the message was appended, zero until appended.
func (m Message) Timestamp() time.Time { return m.timestamp }

// Attachments returns a copy of the message attachments.
func (m Message) Attachments() []Attachment {
	return copyAttachments(m.attachments)
}

// AttachmentCount returns the number of attachments.
func (m Message) AttachmentCount() int { return len(m.attachments) }

// ParentMessageID returns the id of the message this one replies to,
// empty for top-level messages.
func (m Message) ParentMessageID() string { return m.parentMessageID }

// Edited reports whether the content has been modified after creation.
func (m Message) Edited() bool { return m.edited }

// Metadata returns a copy of the message metadata.
func (m Message) Metadata() map[string]string {
	return copyMeta(m.metadata)
}

// WithParent returns a copy replying to the given message id.
func (m Message) WithParent(parentMessageID string) Message {
	m.parentMessageID = parentMessageID
	return m
}

// WithAttachments returns a copy carrying the given attachments.
func (m Message) WithAttachments(attachments []Attachment) Message {
	m.attachments = copyAttachments(attachments)
	return m
}

// WithContent returns a copy with replaced content, marked as edited.
func (m Message) WithContent(content string) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return m, fault.Validation("message content is required")
	}
	m.content = content
	m.edited = true
	m.metadata = copyMeta(m.metadata)
	return m, nil
}

// WithMetadata returns a copy with the metadata key set.
func (m Message) WithMetadata(key, value string) Message {
	meta := copyMeta(m.metadata)
	meta[key] = value
	m.metadata = meta
	return m
}

func copyAttachments(in []Attachment) []Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]Attachment, len(in))
	copy(out, in)
	return out
}

func copyMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
