// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/util"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// sqliteFile is the database name used by Open inside the storage directory.
const sqliteFile = "yumchat.db"

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists conversations.
type Store interface {
	// Save writes conv, replacing any earlier version with the same ID.
	Save(ctx context.Context, conv *model.Conversation) error

	// Load returns the conversation with id or ErrConversationNotFound.
	Load(ctx context.Context, id string) (*model.Conversation, error)

	// List returns metadata for every stored conversation, most recently
	// updated first.
	List(ctx context.Context) ([]model.ConversationMeta, error)

	// Delete removes a conversation or returns ErrConversationNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}

// Open creates the store for backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, sqliteFile))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Interface compliance checks.
var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// =============================================================================
// QUERIES
// =============================================================================

// Search returns the conversations whose summary contains query, ignoring
// case. An empty query matches everything.
func Search(ctx context.Context, s Store, query string) ([]model.ConversationMeta, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return all, nil
	}

	query = strings.ToLower(query)
	var results []model.ConversationMeta
	for _, meta := range all {
		if strings.Contains(strings.ToLower(meta.Summary), query) {
			results = append(results, meta)
		}
	}
	return results, nil
}

// LoadLatest loads the most recently updated conversation.
func LoadLatest(ctx context.Context, s Store) (*model.Conversation, error) {
	metas, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, ErrConversationNotFound
	}
	return s.Load(ctx, metas[0].ID)
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList renders conversation metadata as a plain table.
func FormatList(metas []model.ConversationMeta) string {
	if len(metas) == 0 {
		return "No saved conversations."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-8s  %-16s  %-14s  %5s  %s\n", "ID", "Updated", "Model", "Msgs", "Summary")
	for _, m := range metas {
		id := m.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(&sb, "%-8s  %-16s  %-14s  %5d  %s\n",
			id,
			m.UpdatedAt.Format("2006-01-02 15:04"),
			util.TruncateWidth(m.Model, 14),
			m.MessageCount,
			util.TruncateWidth(summaryOf(m), 40),
		)
	}
	return sb.String()
}

func summaryOf(m model.ConversationMeta) string {
	if m.Summary == "" {
		return "New Conversation"
	}
	return m.Summary
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
