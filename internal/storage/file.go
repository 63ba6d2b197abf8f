// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/util"
)

const (
	transcriptExt = ".md"
	metaSuffix    = "_meta.json"
)

// DefaultMaxConversations bounds a FileStore unless overridden.
const DefaultMaxConversations = 100

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps each conversation as a Markdown transcript (<id>.md) next
// to a JSON metadata file (<id>_meta.json).
type FileStore struct {
	// Dir holds the conversation files.
	Dir string

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int
}

// fileMeta is the on-disk metadata document.
type fileMeta struct {
	model.ConversationMeta
	ContextWindow int    `json:"context_window"`
	SystemPrompt  string `json:"system_prompt,omitempty"`
}

// NewFileStore creates a store in dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{Dir: dir, MaxConversations: DefaultMaxConversations}, nil
}

// Save writes the transcript first and the metadata second, each
// atomically. A conversation is listed only once its metadata exists.
func (s *FileStore) Save(_ context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		return errors.New("conversation has no id")
	}

	if err := util.AtomicWriteFile(s.transcriptPath(conv.ID), RenderTranscript(conv.Messages), 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}

	meta := fileMeta{
		ConversationMeta: conv.Meta(),
		ContextWindow:    conv.ContextWindow,
		SystemPrompt:     conv.SystemPrompt,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(s.metaPath(conv.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if s.MaxConversations > 0 {
		s.enforceLimit()
	}
	return nil
}

// Load reads a conversation back. Token counts are recomputed from the
// transcript.
func (s *FileStore) Load(_ context.Context, id string) (*model.Conversation, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.transcriptPath(id))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	conv := &model.Conversation{
		ID:            meta.ID,
		Summary:       meta.Summary,
		Model:         meta.Model,
		CreatedAt:     meta.CreatedAt,
		UpdatedAt:     meta.UpdatedAt,
		ContextWindow: meta.ContextWindow,
		TotalTokens:   meta.TotalTokens,
		SystemPrompt:  meta.SystemPrompt,
		Messages:      ParseTranscript(string(data)),
	}
	for _, msg := range conv.Messages {
		msg.Timestamp = meta.UpdatedAt
	}
	return conv, nil
}

// List returns all saved conversations (most recent first). Unreadable
// metadata files are skipped.
func (s *FileStore) List(_ context.Context) ([]model.ConversationMeta, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ConversationMeta{}, nil
		}
		return nil, err
	}

	metas := make([]model.ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		meta, err := s.readMeta(strings.TrimSuffix(entry.Name(), metaSuffix))
		if err != nil {
			continue
		}
		metas = append(metas, meta.ConversationMeta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete removes both files of a conversation.
func (s *FileStore) Delete(_ context.Context, id string) error {
	err := os.Remove(s.metaPath(id))
	if os.IsNotExist(err) {
		return ErrConversationNotFound
	}
	if err != nil {
		return err
	}
	if err := os.Remove(s.transcriptPath(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// enforceLimit removes the oldest conversations beyond MaxConversations.
func (s *FileStore) enforceLimit() {
	metas, err := s.List(context.Background())
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}
	for _, meta := range metas[s.MaxConversations:] {
		_ = s.Delete(context.Background(), meta.ID)
	}
}

func (s *FileStore) readMeta(id string) (*fileMeta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	var meta fileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", id, err)
	}
	if meta.ID == "" {
		meta.ID = id
	}
	return &meta, nil
}

func (s *FileStore) transcriptPath(id string) string {
	return filepath.Join(s.Dir, filepath.Base(id)+transcriptExt)
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.Dir, filepath.Base(id)+metaSuffix)
}

// =============================================================================
// TRANSCRIPT FORMAT
// =============================================================================

// RenderTranscript writes messages as "## Role" sections, each followed by
// a blank line, the content and another blank line.
func RenderTranscript(messages []*model.Message) []byte {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString("## ")
		sb.WriteString(msg.Role.DisplayName())
		sb.WriteString("\n\n")
		sb.WriteString(msg.GetDisplayContent())
		sb.WriteString("\n\n")
	}
	return []byte(sb.String())
}

// ParseTranscript is the inverse of RenderTranscript. A section heading is
// only recognized at the start of the file or after a blank line.
func ParseTranscript(text string) []*model.Message {
	var messages []*model.Message

	pos := 0
	for pos < len(text) {
		role, bodyStart, ok := headingAt(text, pos)
		if !ok {
			break
		}

		end, next := nextHeading(text, bodyStart)
		content := text[bodyStart:end]
		if next < 0 {
			content = strings.TrimSuffix(content, "\n\n")
		}
		messages = append(messages, model.NewMessage(role, content))

		if next < 0 {
			break
		}
		pos = next
	}
	return messages
}

// headingAt parses "## Role\n\n" at pos and returns where the body starts.
func headingAt(text string, pos int) (model.Role, int, bool) {
	rest := text[pos:]
	if !strings.HasPrefix(rest, "## ") {
		return "", 0, false
	}
	line, _, found := strings.Cut(rest[3:], "\n")
	if !found {
		return "", 0, false
	}
	role, ok := model.ParseRole(line)
	if !ok {
		return "", 0, false
	}

	start := pos + 3 + len(line) + 1
	if strings.HasPrefix(text[start:], "\n") {
		start++
	}
	return role, start, true
}

// nextHeading finds the earliest "\n\n## Role\n" after from. It returns the
// end of the current body and the start of the next heading, or -1.
func nextHeading(text string, from int) (int, int) {
	best := -1
	for _, role := range []model.Role{model.RoleUser, model.RoleAssistant, model.RoleSystem} {
		marker := "\n\n## " + role.DisplayName() + "\n"
		if i := strings.Index(text[from:], marker); i >= 0 && (best < 0 || from+i < best) {
			best = from + i
		}
	}
	if best < 0 {
		return len(text), -1
	}
	return best, best + 2
}
