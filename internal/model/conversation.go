// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/yumchat/internal/tokens"
)

// MaxMessages is the maximum number of messages to keep in conversation history.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// summaryWidth bounds auto-generated summaries.
const summaryWidth = 60

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	Model         string `json:"model"`
	ContextWindow int    `json:"context_window"`

	// TotalTokens is the running total added by finished turns.
	TotalTokens int `json:"total_tokens"`

	// SystemPrompt is sent with every generate request when set.
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// NewConversation creates a new conversation with a UUID v4 identifier.
func NewConversation(model string, contextWindow int) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:            uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
		Messages:      make([]*Message, 0),
		Model:         model,
		ContextWindow: contextWindow,
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage adds a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateSummary()
	c.pruneOldMessages()
}

// AddUserMessage creates and adds a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and adds a streaming assistant message.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// AddErrorMessage adds a finished assistant message carrying an error
// notice.
func (c *Conversation) AddErrorMessage(reason string) *Message {
	msg := NewMessage(RoleAssistant, ErrorPrefix+reason)
	c.AddMessage(msg)
	return msg
}

// RemoveMessage removes a message by ID.
func (c *Conversation) RemoveMessage(id string) bool {
	for i, msg := range c.Messages {
		if msg.ID == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			c.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// GetLastUserMessage returns the most recent user message.
func (c *Conversation) GetLastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// GetMessageByID returns a message by its ID.
func (c *Conversation) GetMessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// ClearHistory removes all messages from the conversation.
func (c *Conversation) ClearHistory() {
	c.Messages = make([]*Message, 0)
	c.TotalTokens = 0
	c.UpdatedAt = time.Now()
}

// =============================================================================
// TOKEN TRACKING
// =============================================================================

// UpdateTokens adds n to the running total.
func (c *Conversation) UpdateTokens(n int) {
	c.TotalTokens += n
	c.UpdatedAt = time.Now()
}

// TotalTokensUsed sums the token counts of all messages.
func (c *Conversation) TotalTokensUsed() int {
	total := 0
	for _, msg := range c.Messages {
		total += msg.TokenCount
	}
	return total
}

// ContextUsagePercentage reports how much of the context window the
// messages occupy.
func (c *Conversation) ContextUsagePercentage() float64 {
	return tokens.ContextUsagePercentage(c.TotalTokensUsed(), c.ContextWindow)
}

// RemainingTokens reports how much of the context window is left.
func (c *Conversation) RemainingTokens() int {
	return tokens.RemainingTokens(c.TotalTokensUsed(), c.ContextWindow)
}

// IsContextNearLimit returns true if context usage is above 75%.
func (c *Conversation) IsContextNearLimit() bool {
	return c.ContextUsagePercentage() >= 75
}

// =============================================================================
// SUMMARY MANAGEMENT
// =============================================================================

// SetSummary manually sets the conversation summary.
func (c *Conversation) SetSummary(summary string) {
	c.Summary = summary
	c.UpdatedAt = time.Now()
}

// GetSummary returns the summary or a default.
func (c *Conversation) GetSummary() string {
	if c.Summary != "" {
		return c.Summary
	}
	return "New Conversation"
}

// updateSummary derives a summary from the first user message if not set.
func (c *Conversation) updateSummary() {
	if c.Summary != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Summary = msg.Preview(summaryWidth)
			return
		}
	}
}

// =============================================================================
// METADATA
// =============================================================================

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary,omitempty"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	TotalTokens  int       `json:"total_tokens"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Meta returns metadata about the conversation.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Summary:      c.Summary,
		Model:        c.Model,
		MessageCount: len(c.Messages),
		TotalTokens:  c.TotalTokens,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Clone creates a deep copy of the conversation. Streaming messages are
// copied as finalized snapshots.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Copy()
	}
	return &clone
}

// pruneOldMessages drops the oldest non-system messages once the history
// exceeds MaxMessages. System messages are kept in front.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var system, other []*Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			other = append(other, msg)
		}
	}
	if len(other) > MaxMessages {
		other = other[len(other)-MaxMessages:]
	}

	c.Messages = make([]*Message, 0, len(system)+len(other))
	c.Messages = append(c.Messages, system...)
	c.Messages = append(c.Messages, other...)
}
