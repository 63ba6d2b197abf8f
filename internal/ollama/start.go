// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// =============================================================================
// SERVER STARTUP
// =============================================================================

// startupPollInterval is how often readiness is probed after launching the
// server process.
const startupPollInterval = 500 * time.Millisecond

// EnsureRunning starts a local "ollama serve" when the server does not answer
// and waits until it becomes ready or wait elapses.
func (c *Client) EnsureRunning(ctx context.Context, wait time.Duration) error {
	if c.CheckRunning(ctx) == nil {
		return nil
	}

	path, err := findOllamaExecutable()
	if err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: "failed to find Ollama executable", Cause: err}
	}

	cmd := exec.Command(path, "serve")
	cmd.Env = os.Environ()
	cmd.SysProcAttr = detachedProcAttr()
	if err := cmd.Start(); err != nil {
		return &ClientError{Type: ErrTypeNotRunning, Message: "failed to start Ollama (path: " + path + ")", Cause: err}
	}
	// The server outlives this process.
	_ = cmd.Process.Release()

	c.logger.Info("started ollama", "path", path)
	return c.waitReady(ctx, wait)
}

// waitReady polls the server until it answers, ctx ends or wait elapses.
func (c *Client) waitReady(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(startupPollInterval)
	defer ticker.Stop()

	var lastErr error
	for time.Now().Before(deadline) {
		checkCtx, cancel := context.WithTimeout(ctx, startupPollInterval)
		lastErr = c.CheckRunning(checkCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return &ClientError{Type: ErrTypeConnection, Message: "Ollama startup cancelled", Cause: ctx.Err()}
		case <-ticker.C:
		}
	}

	return &ClientError{
		Type:    ErrTypeTimeout,
		Message: "Ollama started but is not responding after " + wait.String(),
		Cause:   lastErr,
	}
}
