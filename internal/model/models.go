// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo records the context window of a local model. The list is kept
// in models.json next to the config file.
type ModelInfo struct {
	Name              string `json:"name"`
	ContextWindowSize int    `json:"context_window_size"`
}

// DefaultModels is written to models.json the first time it is needed.
var DefaultModels = []ModelInfo{
	{Name: "llama2", ContextWindowSize: 4096},
	{Name: "mistral", ContextWindowSize: 8192},
}

// =============================================================================
// LOOKUP
// =============================================================================

// ContextWindowFor returns the context window registered for name, or
// fallback. A tagged name such as "mistral:7b" matches an entry for
// "mistral" when there is no exact match.
func ContextWindowFor(models []ModelInfo, name string, fallback int) int {
	for _, m := range models {
		if strings.EqualFold(m.Name, name) && m.ContextWindowSize > 0 {
			return m.ContextWindowSize
		}
	}

	base, _, found := strings.Cut(name, ":")
	if found {
		for _, m := range models {
			if strings.EqualFold(m.Name, base) && m.ContextWindowSize > 0 {
				return m.ContextWindowSize
			}
		}
	}

	return fallback
}
