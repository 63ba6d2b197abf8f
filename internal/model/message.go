// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/yumchat/internal/tokens"
	"github.com/jeranaias/yumchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// ErrorPrefix starts the content of error notices.
const ErrorPrefix = "Error: "

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseRole maps a heading or stored value back to a Role.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	case "system":
		return RoleSystem, true
	}
	return "", false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// While IsStreaming is set the text lives in an internal builder and
// GetDisplayContent must be used to read it; FinalizeStream moves it into
// Content.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`

	// Approximate tokens, role overhead included.
	TokenCount int `json:"token_count"`

	// Generation statistics (assistant messages)
	TokensPerSec  float64       `json:"tokens_per_sec,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`

	IsStreaming   bool            `json:"-"`
	streamContent strings.Builder `json:"-"`
}

// NewMessage creates a message with a generated ID and its token count.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:         generateID(),
		Role:       role,
		Content:    content,
		Timestamp:  time.Now(),
		TokenCount: tokens.CountMessageTokens(content),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates an empty assistant message in streaming mode.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          generateID(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// AppendToken appends text to a streaming message. It is a no-op once the
// message is finalized.
func (m *Message) AppendToken(text string) {
	if m.IsStreaming {
		m.streamContent.WriteString(text)
	}
}

// FinalizeStream freezes the streamed text into Content and records the
// generation statistics.
func (m *Message) FinalizeStream(tokenCount int, tokensPerSec float64, elapsed time.Duration) {
	if !m.IsStreaming {
		return
	}

	m.Content = m.streamContent.String()
	m.streamContent.Reset()
	m.IsStreaming = false
	m.TokenCount = tokenCount
	m.TokensPerSec = tokensPerSec
	m.TotalDuration = elapsed
}

// GetDisplayContent returns the content to display (streaming or final).
func (m *Message) GetDisplayContent() string {
	if m.IsStreaming {
		return m.streamContent.String()
	}
	return m.Content
}

// Preview returns the first line of the content truncated to maxWidth
// columns.
func (m *Message) Preview(maxWidth int) string {
	return util.TruncateWidth(util.FirstLine(m.GetDisplayContent()), maxWidth)
}

// IsError reports whether m is an error notice added after a failed turn.
func (m *Message) IsError() bool {
	return m.Role == RoleAssistant && !m.IsStreaming && strings.HasPrefix(m.Content, ErrorPrefix)
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.streamContent.Len() == 0
}

// Copy returns a finalized snapshot of m. Streaming text is carried over
// as Content.
func (m *Message) Copy() *Message {
	return &Message{
		ID:            m.ID,
		Role:          m.Role,
		Timestamp:     m.Timestamp,
		Content:       m.GetDisplayContent(),
		TokenCount:    m.TokenCount,
		TokensPerSec:  m.TokensPerSec,
		TotalDuration: m.TotalDuration,
	}
}

// FormatStats returns "<tokens> tokens | <rate>" for finished assistant
// messages, or "" when there is nothing to report.
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant || m.IsStreaming || m.TokensPerSec == 0 {
		return ""
	}
	return util.FormatCount(m.TokenCount) + " tokens | " + util.FormatRate(m.TokensPerSec)
}

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}
