// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for yumchat.
//
// # Files
//
//   - config.toml: application settings, written with defaults on first run
//   - models.json: known models and their context window sizes
//
// Both live in the user config directory (for example ~/.config/yumchat on
// Linux), or in YUMCHAT_CONFIG_DIR when set.
//
// # Configuration Precedence
//
//   - Environment variables (YUMCHAT_*, OLLAMA_HOST)
//   - config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL: cfg.OllamaURL,
//	    Timeout: cfg.Timeout(),
//	})
//
// Watch reloads the file on change for long-running sessions.
package config
