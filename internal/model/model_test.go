// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage_CountsTokens(t *testing.T) {
	msg := NewUserMessage("a b c")

	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, 8, msg.TokenCount)
	assert.True(t, strings.HasPrefix(msg.ID, "msg_"))
	assert.False(t, msg.Timestamp.IsZero())
}

func TestMessage_Streaming(t *testing.T) {
	msg := NewAssistantMessage()
	assert.True(t, msg.IsEmpty())

	msg.AppendToken("Hello")
	msg.AppendToken(", world")
	assert.Equal(t, "Hello, world", msg.GetDisplayContent())
	assert.Equal(t, "", msg.Content)

	msg.FinalizeStream(7, 3.5, 2*time.Second)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "Hello, world", msg.Content)
	assert.Equal(t, 7, msg.TokenCount)
	assert.Equal(t, "7 tokens | 3.5 tok/s", msg.FormatStats())

	// Frozen after finalize.
	msg.AppendToken("!")
	msg.FinalizeStream(99, 0, 0)
	assert.Equal(t, "Hello, world", msg.GetDisplayContent())
	assert.Equal(t, 7, msg.TokenCount)
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("\n  What is the airspeed velocity of an unladen swallow?\nsecond line")
	assert.Equal(t, "What is the...", msg.Preview(14))
}

func TestMessage_Copy(t *testing.T) {
	msg := NewAssistantMessage()
	msg.AppendToken("partial")

	cp := msg.Copy()
	assert.Equal(t, "partial", cp.Content)
	assert.False(t, cp.IsStreaming)
	assert.Equal(t, msg.ID, cp.ID)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"User", RoleUser, true},
		{" assistant ", RoleAssistant, true},
		{"SYSTEM", RoleSystem, true},
		{"tool", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestNewConversation(t *testing.T) {
	conv := NewConversation("qwen3:4b", 4096)

	_, err := uuid.Parse(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "qwen3:4b", conv.Model)
	assert.Equal(t, 4096, conv.ContextWindow)
	assert.True(t, conv.IsEmpty())
	assert.Equal(t, "New Conversation", conv.GetSummary())
}

func TestConversation_SummaryFromFirstUserMessage(t *testing.T) {
	conv := NewConversation("m", 100)
	conv.AddUserMessage("Explain goroutines")
	conv.AddUserMessage("Something else")

	assert.Equal(t, "Explain goroutines", conv.GetSummary())

	conv.SetSummary("Concurrency")
	assert.Equal(t, "Concurrency", conv.Meta().Summary)
}

func TestConversation_TokenAccounting(t *testing.T) {
	conv := NewConversation("m", 100)
	conv.AddUserMessage("a b c") // 8

	reply := conv.AddAssistantMessage()
	reply.AppendToken("a b c d")
	reply.FinalizeStream(10, 1, time.Second)

	assert.Equal(t, 18, conv.TotalTokensUsed())
	assert.InDelta(t, 18.0, conv.ContextUsagePercentage(), 1e-9)
	assert.Equal(t, 82, conv.RemainingTokens())

	conv.UpdateTokens(18)
	conv.UpdateTokens(5)
	assert.Equal(t, 23, conv.TotalTokens)
	assert.Equal(t, 23, conv.Meta().TotalTokens)
}

func TestConversation_ZeroWindow(t *testing.T) {
	conv := NewConversation("m", 0)
	conv.AddUserMessage("hello")
	assert.Equal(t, 0.0, conv.ContextUsagePercentage())
	assert.False(t, conv.IsContextNearLimit())
}

func TestConversation_ErrorMessageAndRemove(t *testing.T) {
	conv := NewConversation("m", 100)
	placeholder := conv.AddAssistantMessage()
	notice := conv.AddErrorMessage("connection refused")

	assert.Equal(t, "Error: connection refused", notice.Content)
	assert.Equal(t, RoleAssistant, notice.Role)
	assert.True(t, notice.IsError())
	assert.False(t, placeholder.IsError())

	assert.True(t, conv.RemoveMessage(placeholder.ID))
	assert.False(t, conv.RemoveMessage(placeholder.ID))
	assert.Equal(t, notice, conv.GetLastMessage())
	assert.Nil(t, conv.GetLastUserMessage())
}

func TestConversation_Prune(t *testing.T) {
	conv := NewConversation("m", 0)
	conv.AddMessage(NewSystemMessage("be brief"))
	for i := 0; i < MaxMessages+10; i++ {
		conv.AddUserMessage("msg")
	}

	assert.Equal(t, MaxMessages+1, conv.MessageCount())
	assert.Equal(t, RoleSystem, conv.Messages[0].Role)
}

func TestConversation_Clone(t *testing.T) {
	conv := NewConversation("m", 100)
	conv.AddUserMessage("hello")
	streaming := conv.AddAssistantMessage()
	streaming.AppendToken("part")

	clone := conv.Clone()
	clone.Messages[0].Content = "changed"

	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "part", clone.Messages[1].Content)
	assert.Equal(t, conv.ID, clone.ID)
}

// =============================================================================
// MODEL REGISTRY TESTS
// =============================================================================

func TestContextWindowFor(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"llama2", 4096},
		{"Mistral", 8192},
		{"mistral:7b-instruct", 8192},
		{"qwen3:4b", 2048},
	}
	for _, tt := range tests {
		if got := ContextWindowFor(DefaultModels, tt.name, 2048); got != tt.want {
			t.Errorf("ContextWindowFor(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
