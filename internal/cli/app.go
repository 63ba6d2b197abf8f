// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/config"
	"github.com/jeranaias/yumchat/internal/logging"
	"github.com/jeranaias/yumchat/internal/metrics"
	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/ollama"
	"github.com/jeranaias/yumchat/internal/storage"
	"github.com/jeranaias/yumchat/internal/stream"
	"github.com/jeranaias/yumchat/internal/turn"
)

const saveTimeout = 5 * time.Second

// app holds what every command needs: configuration, logger, client and
// conversation store.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *log.Logger
	logFile *os.File
	client  *ollama.Client
	metrics *metrics.Metrics
	store   storage.Store
	models  []model.ModelInfo
}

// newApp loads configuration and opens the log file and store. The
// persistent --config, --model, --debug and --metrics-addr flags override
// the file.
func newApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = p
	}

	cfg, err := config.LoadFromPath(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if name, _ := cmd.Flags().GetString("model"); name != "" {
		cfg.DefaultModel = name
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	debug, _ := cmd.Flags().GetBool("debug")

	a := &app{cfg: cfg, cfgPath: cfgPath, metrics: metrics.New()}
	a.openLogger(debug, cmd.ErrOrStderr())

	a.models = defaultModels()
	if path, err := config.ModelsPath(); err == nil {
		if models, err := config.LoadModels(path); err == nil {
			a.models = models
		} else {
			a.logger.Warn("using built-in model list", "err", err)
		}
	}

	a.client = ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.OllamaURL,
		Timeout:      cfg.Timeout(),
		DefaultModel: cfg.DefaultModel,
		Logger:       a.logger,
	})

	if !cfg.Storage.Disabled {
		dir, err := cfg.StorageDir()
		if err != nil {
			a.close()
			return nil, err
		}
		store, err := storage.Open(cfg.Storage.Backend, dir)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("opening conversation store: %w", err)
		}
		a.store = store
	}

	a.logger.Debug("config loaded", "path", cfgPath, "model", cfg.DefaultModel, "backend", cfg.Storage.Backend)
	return a, nil
}

// openLogger logs to the configured file. The terminal belongs to the UI,
// so stderr is only used when the file cannot be opened.
func (a *app) openLogger(debug bool, fallback io.Writer) {
	level, err := logging.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	opts := []logging.Option{
		logging.WithLevel(level),
		logging.WithDebug(debug),
		logging.WithPrefix("yumchat"),
	}

	path, err := a.cfg.LogPath()
	if err == nil {
		var logger *log.Logger
		logger, a.logFile, err = logging.OpenFile(path, opts...)
		if err == nil {
			a.logger = logger
			return
		}
	}

	a.logger = logging.New(append(opts, logging.WithWriter(fallback), logging.WithTimestamp(false))...)
	a.logger.Warn("logging to stderr", "err", err)
}

func defaultModels() []model.ModelInfo {
	return append([]model.ModelInfo(nil), model.DefaultModels...)
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing store", "err", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// =============================================================================
// CONVERSATIONS AND SESSIONS
// =============================================================================

// resumeOptions select the conversation a chat starts from.
type resumeOptions struct {
	continueLast bool
	resumeID     string
}

func addResumeFlags(cmd *cobra.Command, opts *resumeOptions) {
	cmd.Flags().BoolVarP(&opts.continueLast, "continue", "c", false, "Resume the most recent conversation")
	cmd.Flags().StringVar(&opts.resumeID, "resume", "", "Resume the conversation with this ID")
}

// newConversation starts an empty conversation with the configured model.
func (a *app) newConversation() *model.Conversation {
	window := model.ContextWindowFor(a.models, a.cfg.DefaultModel, a.cfg.ContextWindow)
	conv := model.NewConversation(a.cfg.DefaultModel, window)
	conv.SystemPrompt = a.cfg.SystemPrompt
	return conv
}

// conversation loads the conversation chosen by opts, or starts a new one.
func (a *app) conversation(ctx context.Context, opts resumeOptions) (*model.Conversation, error) {
	if opts.resumeID == "" && !opts.continueLast {
		return a.newConversation(), nil
	}
	if a.store == nil {
		return nil, errors.New("conversation storage is disabled")
	}

	var (
		conv *model.Conversation
		err  error
	)
	if opts.resumeID != "" {
		var id string
		if id, err = resolveID(ctx, a.store, opts.resumeID); err == nil {
			conv, err = a.store.Load(ctx, id)
		}
	} else {
		conv, err = storage.LoadLatest(ctx, a.store)
	}
	if err != nil {
		return nil, fmt.Errorf("resuming conversation: %w", err)
	}
	a.logger.Info("resumed conversation", "id", conv.ID, "messages", conv.MessageCount())
	return conv, nil
}

// newSession wires a session to the client, metrics and store.
func (a *app) newSession(conv *model.Conversation, showReasoning bool) *turn.Session {
	return turn.NewSession(conv, turn.SessionConfig{
		Generator:     a.client,
		ShowReasoning: showReasoning,
		StreamOptions: a.streamOptions(),
		OnFinish:      a.persist,
		Logger:        a.logger,
		Metrics:       a.metrics,
	})
}

func (a *app) streamOptions() []stream.Option {
	return []stream.Option{
		stream.WithSkipMalformed(a.cfg.Stream.SkipMalformedRecords),
		stream.WithBufferSize(a.cfg.Stream.ChannelBuffer),
		stream.WithMetrics(a.metrics),
	}
}

// persist saves conv after every turn.
func (a *app) persist(conv *model.Conversation, _ *turn.Turn) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := a.store.Save(ctx, conv); err != nil {
		a.logger.Error("failed to save conversation", "id", conv.ID, "err", err)
		return
	}
	a.logger.Debug("conversation saved", "id", conv.ID)
}

// serveMetrics exposes /metrics until ctx is done when an address is
// configured.
func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := a.metrics.Serve(ctx, addr, a.logger); err != nil {
			a.logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
}
