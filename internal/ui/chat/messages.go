// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/yumchat/internal/config"
)

// tickMsg drives session polling while a response streams.
type tickMsg time.Time

// OllamaStatusMsg reports the result of a health check.
type OllamaStatusMsg struct {
	Running bool
	Error   error
}

// ConfigReloadedMsg carries a configuration reloaded from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
	Err    error
}
