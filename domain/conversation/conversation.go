package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codelore/codelore/domain/fault"
)

// DefaultMaxMessages caps how many messages a single conversation may hold.
// Appends beyond the cap are rejected; older messages are never evicted.
const DefaultMaxMessages = 200

// DefaultTitle is used when a conversation is created without a title.
const DefaultTitle = "New conversation"

// Conversation is the aggregate root for a chat session. Messages may be
// appended only while the conversation is active, and lastActivityAt never
// decreases.
type Conversation struct {
	id             string
	userID         string
	title          string
	status         Status
	messages       []Message
	context        Context
	maxMessages    int
	createdAt      time.Time
	lastActivityAt time.Time
	metadata       map[string]string
}

// NewConversation creates an active conversation for a user.
func NewConversation(userID, title string, context Context) (Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return Conversation{}, fault.Validation("user id is required")
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := time.Now().UTC()
	return Conversation{
		id:             uuid.New().String(),
		userID:         userID,
		title:          title,
		status:         StatusActive,
		context:        context.Clone(),
		maxMessages:    DefaultMaxMessages,
		createdAt:      now,
		lastActivityAt: now,
		metadata:       map[string]string{},
	}, nil
}

// ReconstructConversation recreates a Conversation from persistence.
func ReconstructConversation(
	id string,
	userID string,
	title string,
	status Status,
	messages []Message,
	context Context,
	createdAt time.Time,
	lastActivityAt time.Time,
	metadata map[string]string,
) Conversation {
	return Conversation{
		id:             id,
		userID:         userID,
		title:          title,
		status:         status,
		messages:       copyMessages(messages),
		context:        context.Clone(),
		maxMessages:    DefaultMaxMessages,
		createdAt:      createdAt,
		lastActivityAt: lastActivityAt,
		metadata:       copyMeta(metadata),
	}
}

// ID returns the conversation identifier.
func (c Conversation) ID() string { return c.id }

// UserID returns the owning user.
func (c Conversation) UserID() string { return c.userID }

// Title returns the conversation title.
func (c Conversation) Title() string { return c.title }

// Status returns the lifecycle status.
func (c Conversation) Status() Status { return c.status }

// Context returns a copy of the conversation context.
func (c Conversation) Context() Context { return c.context.Clone() }

// CreatedAt returns when the conversation was created.
func (c Conversation) CreatedAt() time.Time { return c.createdAt }

// LastActivityAt returns the time of the most recent activity.
func (c Conversation) LastActivityAt() time.Time { return c.lastActivityAt }

// Metadata returns a copy of the conversation metadata.
func (c Conversation) Metadata() map[string]string { return copyMeta(c.metadata) }

// Messages returns a copy of all messages in append order.
func (c Conversation) Messages() []Message { return copyMessages(c.messages) }

// MessageCount returns the number of messages.
func (c Conversation) MessageCount() int { return len(c.messages) }

// LastMessage returns the most recent message, if any.
func (c Conversation) LastMessage() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// RecentMessages returns up to n of the most recent messages in append order.
func (c Conversation) RecentMessages(n int) []Message {
	if n <= 0 || len(c.messages) == 0 {
		return nil
	}
	if n > len(c.messages) {
		n = len(c.messages)
	}
	return copyMessages(c.messages[len(c.messages)-n:])
}

// AddMessage appends a message, assigning its timestamp and conversation id.
// Appends are rejected on non-active conversations and once the message cap
// is reached. Timestamps are clamped to be non-decreasing.
func (c Conversation) AddMessage(msg Message) (Conversation, error) {
	if c.status != StatusActive {
		return c, fault.Validationf("conversation %s is %s, messages may only be added while active", c.id, c.status)
	}
	if len(c.messages) >= c.limit() {
		return c, fault.Validationf("conversation %s reached the limit of %d messages", c.id, c.limit())
	}

	at := time.Now().UTC()
	if last, ok := c.LastMessage(); ok && at.Before(last.timestamp) {
		at = last.timestamp
	}
	msg.conversationID = c.id
	msg.timestamp = at

	messages := copyMessages(c.messages)
	c.messages = append(messages, msg)
	return c.touched(at), nil
}

// Touch records activity at the given time. lastActivityAt never decreases.
func (c Conversation) Touch(at time.Time) Conversation {
	return c.touched(at.UTC())
}

// WithTitle returns a copy with the title replaced.
func (c Conversation) WithTitle(title string) (Conversation, error) {
	if strings.TrimSpace(title) == "" {
		return c, fault.Validation("conversation title is required")
	}
	c.title = title
	return c, nil
}

// WithContext returns a copy with the context replaced.
func (c Conversation) WithContext(context Context) Conversation {
	c.context = context.Clone()
	return c
}

// WithMessageLimit returns a copy with a custom message cap. Non-positive
// values restore the default.
func (c Conversation) WithMessageLimit(n int) Conversation {
	if n <= 0 {
		n = DefaultMaxMessages
	}
	c.maxMessages = n
	return c
}

// WithMetadata returns a copy with the metadata key set.
func (c Conversation) WithMetadata(key, value string) Conversation {
	meta := copyMeta(c.metadata)
	meta[key] = value
	c.metadata = meta
	return c
}

// Archive moves the conversation to archived.
func (c Conversation) Archive() (Conversation, error) {
	return c.transition(StatusArchived)
}

// Reactivate moves an archived conversation back to active.
func (c Conversation) Reactivate() (Conversation, error) {
	return c.transition(StatusActive)
}

// MarkDeleted soft-deletes the conversation.
func (c Conversation) MarkDeleted() (Conversation, error) {
	return c.transition(StatusDeleted)
}

// IdleSince reports whether the conversation has seen no activity since
// the cutoff.
func (c Conversation) IdleSince(cutoff time.Time) bool {
	return c.lastActivityAt.Before(cutoff)
}

func (c Conversation) transition(next Status) (Conversation, error) {
	moved, err := c.status.TransitionTo(next)
	if err != nil {
		return c, err
	}
	c.status = moved
	return c.touched(time.Now().UTC()), nil
}

func (c Conversation) touched(at time.Time) Conversation {
	if at.After(c.lastActivityAt) {
		c.lastActivityAt = at
	}
	return c
}

func (c Conversation) limit() int {
	if c.maxMessages <= 0 {
		return DefaultMaxMessages
	}
	return c.maxMessages
}

func copyMessages(in []Message) []Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
