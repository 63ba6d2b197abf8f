// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/yumchat/internal/stream"
	"github.com/jeranaias/yumchat/internal/turn"
	"github.com/jeranaias/yumchat/internal/util"
)

// MaxFileSize is the largest file --file will include (50KB).
const MaxFileSize = 50 * 1024

// maxStdinPrompt bounds a prompt read from a pipe.
const maxStdinPrompt = 1 << 20

const askLongDesc string = `Ask a single question and stream the answer to stdout.

The prompt is taken from the arguments, or from stdin when it is piped.
Reasoning from thinking models goes to stderr when shown, so the answer
can be redirected on its own. Ctrl+C stops the response and keeps what was
generated.

Examples:
  yumchat ask "What is the capital of France?"
  yumchat ask --thinking "Is 1001 prime?"
  yumchat ask "Review this code:" --file main.go
  git diff | yumchat ask`

const askShortDesc string = "Ask a single question"

type askOptions struct {
	file     string
	thinking bool
	quiet    bool
}

func newAskCmd() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: askShortDesc,
		Long:  askLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Include file content with the question")
	cmd.Flags().BoolVarP(&opts.thinking, "thinking", "t", false, "Show model reasoning on stderr")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print statistics")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string, opts *askOptions) error {
	prompt := strings.Join(args, " ")
	if strings.TrimSpace(prompt) == "" && !isTerminal(cmd.InOrStdin()) {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxStdinPrompt))
		if err != nil {
			return fmt.Errorf("reading prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	if opts.file != "" {
		content, err := readFileForContext(opts.file)
		if err != nil {
			return err
		}
		prompt += content
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("no prompt given")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := cancelOnInterrupt(cmd.Context())
	defer stop()
	a.serveMetrics(ctx)

	session := a.newSession(a.newConversation(), opts.thinking || a.cfg.ShowThinking)
	if err := session.Submit(ctx, prompt); err != nil {
		return err
	}

	printer := newEventPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), session.ShowReasoning)
	session.Wait(ctx, printer.handle)
	printer.finish()

	return reportTurn(cmd.ErrOrStderr(), session.Current(), opts.quiet)
}

// reportTurn prints the outcome of a finished turn and returns its error.
func reportTurn(w io.Writer, t *turn.Turn, quiet bool) error {
	switch t.Outcome() {
	case turn.OutcomeFailed:
		return errors.New(t.Reason())
	case turn.OutcomeCancelled:
		fmt.Fprintln(w, WarningStyle.Render("[Generation cancelled]"))
	default:
		if msg := t.Message(); !quiet && msg != nil {
			if stats := msg.FormatStats(); stats != "" {
				fmt.Fprintln(w, DimStyle.Render(stats))
			}
		}
	}
	return nil
}

// =============================================================================
// STREAM OUTPUT
// =============================================================================

// eventPrinter writes answer text to out and, when shown, reasoning to
// aside.
type eventPrinter struct {
	out     io.Writer
	aside   io.Writer
	faint   *faintWriter
	show    func() bool
	lastOut string
}

func newEventPrinter(out, aside io.Writer, show func() bool) *eventPrinter {
	return &eventPrinter{out: out, aside: aside, faint: newFaintWriter(aside), show: show}
}

func (p *eventPrinter) handle(ev stream.Event) {
	switch e := ev.(type) {
	case stream.ReasoningOpen:
		if p.show() {
			fmt.Fprintln(p.aside, DimStyle.Render("Thinking..."))
		}
	case stream.ReasoningChunk:
		if p.show() {
			p.faint.print(e.Text)
		}
	case stream.ReasoningClose:
		if p.show() {
			fmt.Fprint(p.aside, "\n\n")
		}
	case stream.AnswerChunk:
		fmt.Fprint(p.out, e.Text)
		p.lastOut = e.Text
	}
}

// finish ends the answer with a newline unless it already has one.
func (p *eventPrinter) finish() {
	if p.lastOut != "" && !strings.HasSuffix(p.lastOut, "\n") {
		fmt.Fprintln(p.out)
	}
	p.lastOut = ""
}

// =============================================================================
// FILE READING
// =============================================================================

// readFileForContext reads a file and formats it for inclusion in a prompt.
// Files larger than MaxFileSize are rejected.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}

	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d bytes)", info.Size(), MaxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "\n\n--- File: %s ---\n", path)
	builder.Write(content)
	if !strings.HasSuffix(string(content), "\n") {
		builder.WriteString("\n")
	}
	fmt.Fprintf(&builder, "--- End of %s ---\n", util.TruncateWidth(path, 60))
	return builder.String(), nil
}

// cancelOnInterrupt returns a context cancelled by the first Ctrl+C.
func cancelOnInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
