// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/yumchat/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func sampleConversation(t *testing.T) *model.Conversation {
	t.Helper()
	conv := model.NewConversation("qwen3:4b", 4096)
	conv.SystemPrompt = "be brief"
	conv.AddUserMessage("What is Go?")

	reply := conv.AddAssistantMessage()
	reply.AppendToken("<thinking>\nhmm\n</thinking>\n\n")
	reply.AppendToken("A language.\n\n## Not a heading\nMore text.")
	reply.FinalizeStream(20, 4.5, 2*time.Second)

	conv.AddErrorMessage("stream read failed: EOF")
	conv.UpdateTokens(30)
	return conv
}

// eachStore runs fn against both backends.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("file", func(t *testing.T) {
		s, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func contents(msgs []*model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.GetDisplayContent()
	}
	return out
}

// =============================================================================
// STORE TESTS
// =============================================================================

func TestStore_SaveAndLoad(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := sampleConversation(t)
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, conv.ID)
		require.NoError(t, err)

		assert.Equal(t, conv.ID, loaded.ID)
		assert.Equal(t, conv.Model, loaded.Model)
		assert.Equal(t, conv.Summary, loaded.Summary)
		assert.Equal(t, 4096, loaded.ContextWindow)
		assert.Equal(t, 30, loaded.TotalTokens)
		assert.Equal(t, "be brief", loaded.SystemPrompt)
		assert.True(t, conv.UpdatedAt.Equal(loaded.UpdatedAt))
		assert.Equal(t, contents(conv.Messages), contents(loaded.Messages))
	})
}

func TestStore_SaveReplaces(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := sampleConversation(t)
		require.NoError(t, s.Save(ctx, conv))

		conv.AddUserMessage("follow up")
		require.NoError(t, s.Save(ctx, conv))

		loaded, err := s.Load(ctx, conv.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.Messages, 4)

		metas, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, metas, 1)
		assert.Equal(t, 4, metas[0].MessageCount)
	})
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now()

		var ids []string
		for i := 0; i < 3; i++ {
			conv := model.NewConversation("m", 0)
			conv.AddUserMessage("conversation")
			conv.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.Save(ctx, conv))
			ids = append(ids, conv.ID)
		}

		metas, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, metas, 3)
		assert.Equal(t, ids[2], metas[0].ID)
		assert.Equal(t, ids[1], metas[1].ID)
		assert.Equal(t, ids[0], metas[2].ID)

		latest, err := LoadLatest(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, ids[2], latest.ID)
	})
}

func TestStore_LoadAndDeleteNotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrConversationNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrConversationNotFound)

		_, err = LoadLatest(ctx, s)
		assert.ErrorIs(t, err, ErrConversationNotFound)
	})
}

func TestStore_Delete(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		conv := sampleConversation(t)
		require.NoError(t, s.Save(ctx, conv))

		require.NoError(t, s.Delete(ctx, conv.ID))

		_, err := s.Load(ctx, conv.ID)
		assert.ErrorIs(t, err, ErrConversationNotFound)

		metas, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, metas)
	})
}

func TestSearch(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, prompt := range []string{"Explain goroutines", "Bake bread", "More GOROUTINES please"} {
			conv := model.NewConversation("m", 0)
			conv.AddUserMessage(prompt)
			require.NoError(t, s.Save(ctx, conv))
		}

		found, err := Search(ctx, s, "goroutines")
		require.NoError(t, err)
		assert.Len(t, found, 2)

		all, err := Search(ctx, s, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

// =============================================================================
// FILE STORE TESTS
// =============================================================================

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	conv := model.NewConversation("m", 0)
	conv.AddUserMessage("hi")
	reply := conv.AddAssistantMessage()
	reply.AppendToken("hello")
	reply.FinalizeStream(6, 0, 0)
	require.NoError(t, s.Save(context.Background(), conv))

	md, err := os.ReadFile(filepath.Join(dir, conv.ID+".md"))
	require.NoError(t, err)
	assert.Equal(t, "## User\n\nhi\n\n## Assistant\n\nhello\n\n", string(md))
	assert.FileExists(t, filepath.Join(dir, conv.ID+"_meta.json"))
}

func TestFileStore_SkipsCorruptMetadata(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad_meta.json"), []byte("{"), 0o644))

	conv := sampleConversation(t)
	require.NoError(t, s.Save(context.Background(), conv))

	metas, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, conv.ID, metas[0].ID)
}

func TestFileStore_EnforcesLimit(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	s.MaxConversations = 2

	base := time.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		conv := model.NewConversation("m", 0)
		conv.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Save(context.Background(), conv))
		ids = append(ids, conv.ID)
	}

	metas, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, ids[2], metas[0].ID)
	assert.Equal(t, ids[1], metas[1].ID)
}

func TestTranscriptRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msgs []*model.Message
	}{
		{"empty", nil},
		{"plain", []*model.Message{
			model.NewUserMessage("hi"),
			model.NewMessage(model.RoleAssistant, "hello"),
		}},
		{"empty content", []*model.Message{
			model.NewMessage(model.RoleAssistant, ""),
			model.NewUserMessage("next"),
			model.NewMessage(model.RoleAssistant, ""),
		}},
		{"leading blank lines", []*model.Message{
			model.NewMessage(model.RoleAssistant, "\n\n[Generation cancelled]"),
		}},
		{"heading-like content", []*model.Message{
			model.NewUserMessage("## Users\n\nnot a section"),
			model.NewSystemMessage("system text"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTranscript(string(RenderTranscript(tt.msgs)))
			assert.Equal(t, contents(tt.msgs), contents(got))
		})
	}
}

func TestParseTranscript_RecountsTokens(t *testing.T) {
	msgs := ParseTranscript("## User\n\na b c\n\n")
	require.Len(t, msgs, 1)
	assert.Equal(t, 8, msgs[0].TokenCount)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	fs, err := Open(BackendFile, dir)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fs)

	db, err := Open(BackendSQLite, dir)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, db)
	require.NoError(t, db.Close())
	assert.FileExists(t, filepath.Join(dir, sqliteFile))

	_, err = Open("redis", dir)
	assert.Error(t, err)
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "No saved conversations.", FormatList(nil))

	out := FormatList([]model.ConversationMeta{{
		ID:           "0123456789abcdef",
		Summary:      "Explain goroutines",
		Model:        "qwen3:4b",
		MessageCount: 4,
		UpdatedAt:    time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
	}})
	assert.Contains(t, out, "01234567 ")
	assert.Contains(t, out, "2025-01-02 03:04")
	assert.Contains(t, out, "Explain goroutines")
}
