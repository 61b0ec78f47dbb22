package model

import (
	"strings"
	"time"

	"persona-ai-chat/internal/domain"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// TitleMaxRunes is the derived-title cut-off before the ellipsis.
	TitleMaxRunes = 30
)

// ChatMessage is one turn within a conversation. Index is dense and
// 0-based; insertion order equals conversational order.
type ChatMessage struct {
	ConversationID string
	Index          int
	Role           string
	Content        string
	Tokens         int
	Timestamp      time.Time
}

// Conversation is the aggregate root for a persona chat. Messages are
// append-only except for explicit edit and reroll, which overwrite in
// place (reroll also drops the conversational future).
type Conversation struct {
	ID                  string
	UserID              string
	Title               string
	TitleEdited         bool
	PersonaName         string
	PersonaInstructions string
	UserNote            string
	Model               string
	ContextSummary      string
	SummaryCheckpoint   int
	Messages            []ChatMessage
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func NewConversation(id, userID, modelName, defaultTitle string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		Title:     defaultTitle,
		Model:     modelName,
		Messages:  make([]ChatMessage, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message at the end and returns a pointer to the stored copy.
func (c *Conversation) Append(role, content string, tokens int) *ChatMessage {
	c.Messages = append(c.Messages, ChatMessage{
		ConversationID: c.ID,
		Index:          len(c.Messages),
		Role:           role,
		Content:        content,
		Tokens:         tokens,
		Timestamp:      time.Now(),
	})
	c.UpdatedAt = time.Now()
	return &c.Messages[len(c.Messages)-1]
}

// Edit replaces the content of the message at index in place.
func (c *Conversation) Edit(index int, content string) error {
	if index < 0 || index >= len(c.Messages) {
		return domain.ErrIndexOutOfRange
	}
	c.Messages[index].Content = content
	c.UpdatedAt = time.Now()
	return nil
}

// Reroll replaces the assistant message at index and truncates everything
// after it: downstream turns were causally dependent on the replaced
// content and are no longer valid.
func (c *Conversation) Reroll(index int, content string, tokens int) error {
	if index < 0 || index >= len(c.Messages) {
		return domain.ErrIndexOutOfRange
	}
	if c.Messages[index].Role != RoleAssistant {
		return domain.ErrNotAssistantMessage
	}
	c.Messages = c.Messages[:index+1]
	c.Messages[index].Content = content
	c.Messages[index].Tokens = tokens
	c.Messages[index].Timestamp = time.Now()
	if c.SummaryCheckpoint > len(c.Messages) {
		c.SummaryCheckpoint = len(c.Messages)
	}
	c.UpdatedAt = time.Now()
	return nil
}

// LastAssistantIndex returns the index of the most recent assistant turn,
// or -1 when there is none.
func (c *Conversation) LastAssistantIndex() int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return i
		}
	}
	return -1
}

// UnsummarizedCount is the number of messages newer than the checkpoint.
func (c *Conversation) UnsummarizedCount() int {
	n := len(c.Messages) - c.SummaryCheckpoint
	if n < 0 {
		return 0
	}
	return n
}

// AdvanceSummary installs a new merged summary and moves the checkpoint
// forward. The checkpoint is monotonic and never exceeds the number of
// messages actually summarized.
func (c *Conversation) AdvanceSummary(summary string, checkpoint int) error {
	if checkpoint < c.SummaryCheckpoint || checkpoint > len(c.Messages) {
		return domain.ErrInvalidArgument
	}
	c.ContextSummary = summary
	c.SummaryCheckpoint = checkpoint
	c.UpdatedAt = time.Now()
	return nil
}

// RecentWindow returns the trailing slice sent verbatim to the provider:
// at most turns*2 messages (user+assistant pairs).
func (c *Conversation) RecentWindow(turns int) []ChatMessage {
	n := turns * 2
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// DeriveTitle computes the display title from the first user message.
// Truncation counts runes, not bytes. fallback is the localized default
// used for an empty conversation.
func DeriveTitle(messages []ChatMessage, fallback string) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			break
		}
		runes := []rune(text)
		if len(runes) <= TitleMaxRunes {
			return text
		}
		return string(runes[:TitleMaxRunes]) + "..."
	}
	return fallback
}
