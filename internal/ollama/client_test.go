// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithConfig(&ClientConfig{BaseURL: server.URL + "/", Timeout: 5 * time.Second})
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{})
	cfg := c.GetConfig()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultModel, cfg.DefaultModel)

	c.SetModel("mistral")
	assert.Equal(t, "mistral", c.GetDefaultModel())
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerateStream(t *testing.T) {
	var got GenerateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"thinking":"hmm","response":"","done":false}`,
			`{"response":"Hel`, // split mid-record across flushes
			"lo\",\"done\":false}\n",
			`{"response":"","done":true}` + "\n",
		} {
			if line[0] == '{' && line[len(line)-1] == '}' {
				line += "\n"
			}
			_, _ = io.WriteString(w, line)
			flusher.Flush()
		}
	})

	dec, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "hi"})
	require.NoError(t, err)
	defer dec.Close()

	assert.Equal(t, []ResponseUnit{
		{Reasoning: "hmm"},
		{Visible: "Hello"},
		{Final: true},
	}, collect(t, dec))

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, "hi", got.Prompt)
	assert.True(t, got.Stream)
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama2", req.Model)
		_, _ = io.WriteString(w, `{"model":"llama2","response":"pong","done":true,"eval_count":3}`)
	})

	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "llama2", Prompt: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Text())
	assert.True(t, resp.Done)
	assert.Equal(t, 3, resp.EvalCount)
}

func TestGenerate_ServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"model is loading"}`)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "ping"})
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "model is loading", svcErr.Message)
}

func TestGenerateStream_ModelNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model 'nope' not found"}`)
	})

	_, err := c.GenerateStream(context.Background(), GenerateRequest{Model: "nope"})
	assert.True(t, IsModelNotFound(err))
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestGenerateStream_ErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"boom"}`)
	})

	_, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "x"})
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrTypeInvalidResponse, clientErr.Type)
	assert.Contains(t, err.Error(), "boom")
}

func TestGenerateStream_NotRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url, Timeout: time.Second})
	_, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "x"})
	assert.True(t, IsNotRunning(err))
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestGenerateStream_Cancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GenerateStream(ctx, GenerateRequest{Prompt: "x"})

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.True(t, errors.Is(err, context.Canceled))
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[{"name":"qwen3:4b","size":2500000000},{"name":"llama2","size":2048}]}`)
	})

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "qwen3:4b", models[0].Name)
	assert.Equal(t, "2.3 GB", models[0].FormatSize())
	assert.Equal(t, "2.0 KB", models[1].FormatSize())
	assert.True(t, c.HealthCheck(context.Background()))
}

func TestShowModel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/show", r.URL.Path)
		var req ShowModelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen3:4b", req.Name)
		_, _ = io.WriteString(w, `{"details":{"family":"qwen3","parameter_size":"4B"},"capabilities":["completion","thinking"]}`)
	})

	info, err := c.ShowModel(context.Background(), "qwen3:4b")
	require.NoError(t, err)
	assert.Equal(t, "qwen3", info.Details.Family)
	assert.True(t, info.SupportsThinking())
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		m := ModelInfo{Size: tt.size}
		if got := m.FormatSize(); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestEnsureRunning_AlreadyUp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"models":[]}`)
	})
	assert.NoError(t, c.EnsureRunning(context.Background(), time.Second))
}
