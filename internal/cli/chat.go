// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/config"
	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/ollama"
	"github.com/jeranaias/yumchat/internal/storage"
	"github.com/jeranaias/yumchat/internal/turn"
	"github.com/jeranaias/yumchat/internal/util"
)

const chatLongDesc string = `Start a line-based chat session without the full-screen interface.

Lines are sent as prompts; responses stream as they arrive. Ctrl+C stops a
response, Ctrl+C or Ctrl+D at the prompt exits. Input history is kept
between sessions.

Commands:
  /help             Show this list
  /new              Start a new conversation
  /model [name]     Show or switch the model
  /thinking         Show or hide reasoning
  /status           Show conversation statistics
  /history          List saved conversations
  /quit             Exit

Examples:
  yumchat chat
  yumchat chat --model mistral
  yumchat chat --continue`

const chatShortDesc string = "Interactive line-based chat"

const modelCheckTimeout = 5 * time.Second

func newChatCmd() *cobra.Command {
	resume := &resumeOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, *resume)
		},
	}
	addResumeFlags(cmd, resume)

	return cmd
}

func runChat(cmd *cobra.Command, resume resumeOptions) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	conv, err := a.conversation(cmd.Context(), resume)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a.serveMetrics(ctx)

	var input lineReader
	if isTerminal(cmd.InOrStdin()) {
		input = NewChatCLI()
	} else {
		input = newScannerReader(cmd.InOrStdin())
	}
	defer input.Close()

	repl := &chatREPL{
		app:     a,
		session: a.newSession(conv, a.cfg.ShowThinking),
		input:   input,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}
	return repl.loop(ctx)
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one prompt line at a time.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	_ = c.line.Close()
}

// scannerReader reads prompts from a pipe.
type scannerReader struct {
	scanner *bufio.Scanner
}

func newScannerReader(r io.Reader) *scannerReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxStdinPrompt)
	return &scannerReader{scanner: s}
}

func (s *scannerReader) ReadInput(string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerReader) Close() {}

// =============================================================================
// REPL
// =============================================================================

type chatREPL struct {
	app     *app
	session *turn.Session
	input   lineReader
	out     io.Writer
	errOut  io.Writer
}

func (r *chatREPL) loop(ctx context.Context) error {
	r.printWelcome()

	for {
		line, err := r.input.ReadInput("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				r.printExitSummary()
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			r.printExitSummary()
			return nil
		case strings.HasPrefix(line, "/"):
			keepGoing, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintln(r.errOut, ErrorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				r.printExitSummary()
				return nil
			}
		default:
			r.send(ctx, line)
		}
	}
}

// send runs one turn. Ctrl+C cancels the turn, not the session.
func (r *chatREPL) send(parent context.Context, prompt string) {
	ctx, stop := cancelOnInterrupt(parent)
	defer stop()

	if err := r.session.Submit(ctx, prompt); err != nil {
		fmt.Fprintln(r.errOut, ErrorStyle.Render("[Error]"), err)
		return
	}

	fmt.Fprint(r.out, PromptStyle.Render("assistant>")+" ")
	printer := newEventPrinter(r.out, r.out, r.session.ShowReasoning)
	r.session.Wait(ctx, printer.handle)
	printer.finish()

	if err := reportTurn(r.errOut, r.session.Current(), false); err != nil {
		fmt.Fprintln(r.errOut, ErrorStyle.Render("[Error]"), err)
	}
}

// command handles a slash command and reports whether the loop continues.
func (r *chatREPL) command(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	name := strings.ToLower(parts[0])
	args := parts[1:]

	switch name {
	case "/help", "/h", "/?", "/":
		r.printHelp()

	case "/new", "/clear":
		conv := r.app.newConversation()
		r.session = r.app.newSession(conv, r.session.ShowReasoning())
		fmt.Fprintln(r.out, SuccessStyle.Render("[New conversation]"))

	case "/model", "/m":
		return true, r.switchModel(ctx, args)

	case "/thinking", "/t":
		if r.session.ToggleReasoning() {
			fmt.Fprintln(r.out, DimStyle.Render("Reasoning shown"))
		} else {
			fmt.Fprintln(r.out, DimStyle.Render("Reasoning hidden"))
		}

	case "/status", "/s":
		r.printStatus()

	case "/history":
		return true, r.printHistory(ctx)

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", name)
	}
	return true, nil
}

func (r *chatREPL) switchModel(ctx context.Context, args []string) error {
	conv := r.session.Conversation()
	if len(args) == 0 {
		fmt.Fprintln(r.out, field("Model", conv.Model))
		return nil
	}
	if r.session.Busy() {
		return turn.ErrTurnInProgress
	}

	name := args[0]
	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()
	if _, err := r.app.client.ShowModel(checkCtx, name); err != nil {
		if !ollama.IsModelNotFound(err) {
			return err
		}
		fmt.Fprintln(r.errOut, WarningStyle.Render("[Warning]"), "model '"+name+"' is not installed; requests will fail until it is pulled")
	}

	r.session.SetModel(name, model.ContextWindowFor(r.app.models, name, r.app.cfg.ContextWindow))
	fmt.Fprintln(r.out, SuccessStyle.Render("[OK]"), "Switched to model:", name)
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (r *chatREPL) printWelcome() {
	conv := r.session.Conversation()
	fmt.Fprintln(r.out, TitleStyle.Render("yumchat"))
	fmt.Fprintln(r.out, field("Model", conv.Model))
	if !conv.IsEmpty() {
		fmt.Fprintln(r.out, field("Resumed", conv.GetSummary()))
	}
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, /quit to exit."))
	fmt.Fprintln(r.out)
}

func (r *chatREPL) printHelp() {
	fmt.Fprintln(r.out, TitleStyle.Render("Commands"))
	for _, line := range [][2]string{
		{"/help", "Show this list"},
		{"/new", "Start a new conversation"},
		{"/model [name]", "Show or switch the model"},
		{"/thinking", "Show or hide reasoning"},
		{"/status", "Show conversation statistics"},
		{"/history", "List saved conversations"},
		{"/quit", "Exit"},
	} {
		fmt.Fprintln(r.out, field(line[0], line[1]))
	}
}

func (r *chatREPL) printStatus() {
	conv := r.session.Conversation()
	fmt.Fprintln(r.out, field("Conversation", conv.ID))
	fmt.Fprintln(r.out, field("Model", conv.Model))
	fmt.Fprintln(r.out, field("Messages", util.FormatCount(conv.MessageCount())))
	fmt.Fprintln(r.out, field("Context", util.FormatCount(conv.TotalTokensUsed())+" / "+
		util.FormatCount(conv.ContextWindow)+" tokens ("+util.FormatPercent(conv.ContextUsagePercentage())+")"))
	reasoning := "hidden"
	if r.session.ShowReasoning() {
		reasoning = "shown"
	}
	fmt.Fprintln(r.out, field("Reasoning", reasoning))
}

func (r *chatREPL) printHistory(ctx context.Context) error {
	if r.app.store == nil {
		return errors.New("conversation storage is disabled")
	}
	metas, err := r.app.store.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, strings.TrimRight(storage.FormatList(metas), "\n"))
	return nil
}

func (r *chatREPL) printExitSummary() {
	conv := r.session.Conversation()
	if conv.IsEmpty() || r.app.store == nil {
		fmt.Fprintln(r.out, DimStyle.Render("Goodbye."))
		return
	}
	fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("Saved %d messages. Resume with: yumchat chat --resume %s",
		conv.MessageCount(), conv.ID)))
}
