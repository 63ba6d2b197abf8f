// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations between runs.
//
// # Backends
//
//   - FileStore: one Markdown transcript (<id>.md) with "## User" and
//     "## Assistant" sections per conversation, plus <id>_meta.json
//   - SQLiteStore: a single database with conversations and messages
//     tables (pure Go driver, no cgo)
//
// Both implement Store; Open picks one by name.
//
// # Usage
//
//	store, err := storage.Open(storage.BackendFile, dir)
//	err = store.Save(ctx, conv)
//	metas, err := store.List(ctx)
//	conv, err := store.Load(ctx, metas[0].ID)
//
// # Storage Location
//
// The default directory is <user config dir>/yumchat/chats.
package storage
