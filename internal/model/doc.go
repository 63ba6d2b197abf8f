// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: a chat session with its messages, model and token totals
//   - Message: one message; assistant messages stream into an internal
//     builder until finalized
//   - ModelInfo: a local model and its context window size
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
//	conv := model.NewConversation("qwen3:4b", 4096)
//	conv.AddUserMessage("Hello!")
//	reply := conv.AddAssistantMessage()
//	reply.AppendToken("Hi")
package model
