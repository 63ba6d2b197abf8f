// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/yumchat/internal/model"
	"github.com/jeranaias/yumchat/internal/stream"
	"github.com/jeranaias/yumchat/internal/turn"
)

// ErrAllFailed is returned by RunComparison when no model produced a
// passing probe.
var ErrAllFailed = errors.New("all models failed to run")

// =============================================================================
// RESULT TYPES
// =============================================================================

// Status is the outcome of a probe.
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ProbeResult holds the measurements of one probe.
type ProbeResult struct {
	Name          string        `json:"name"`
	Type          ProbeType     `json:"type"`
	Status        Status        `json:"status"`
	Duration      time.Duration `json:"duration"`
	TTFT          time.Duration `json:"ttft"`
	ReasoningTime time.Duration `json:"reasoning_time"`
	TokensPerSec  float64       `json:"tokens_per_sec"`
	TokenCount    int           `json:"token_count"`
	Chunks        int           `json:"chunks"`
	QualityScore  float64       `json:"quality_score"`
	Answer        string        `json:"answer,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Result holds the probe results for one model.
type Result struct {
	Model           string        `json:"model"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration"`
	Probes          []ProbeResult `json:"probes"`
	AvgTTFT         time.Duration `json:"avg_ttft"`
	AvgTokensPerSec float64       `json:"avg_tokens_per_sec"`
	AvgQualityScore float64       `json:"avg_quality_score"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
}

// =============================================================================
// BENCHMARK RUNNER
// =============================================================================

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProbes replaces the standard suite.
func WithProbes(probes []Probe) RunnerOption {
	return func(r *Runner) { r.probes = probes }
}

// WithStreamOptions passes options to every probe's stream.
func WithStreamOptions(opts ...stream.Option) RunnerOption {
	return func(r *Runner) { r.streamOpts = opts }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithProgress registers a callback run after each probe.
func WithProgress(fn func(modelName string, pr ProbeResult)) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// Runner executes probes against models. It is not safe for concurrent use.
type Runner struct {
	gen        stream.Generator
	probes     []Probe
	streamOpts []stream.Option
	logger     *log.Logger
	progress   func(string, ProbeResult)
	now        func() time.Time
}

// NewRunner creates a runner that opens streams through gen.
func NewRunner(gen stream.Generator, opts ...RunnerOption) *Runner {
	r := &Runner{
		gen:    gen,
		probes: StandardProbes(),
		logger: log.New(io.Discard),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the probe suite on one model. Probes after a cancellation
// are not run.
func (r *Runner) Run(ctx context.Context, modelName string) *Result {
	result := &Result{Model: modelName, StartTime: r.now()}

	for _, probe := range r.probes {
		if ctx.Err() != nil {
			break
		}
		pr := r.runProbe(ctx, modelName, probe)
		result.Probes = append(result.Probes, pr)
		r.logger.Debug("probe finished", "model", modelName, "probe", probe.Name, "status", pr.Status, "tps", pr.TokensPerSec)
		if r.progress != nil {
			r.progress(modelName, pr)
		}
	}

	result.Duration = r.now().Sub(result.StartTime)
	result.computeAggregates()
	return result
}

// runProbe runs probe as a turn on a fresh conversation.
func (r *Runner) runProbe(ctx context.Context, modelName string, probe Probe) ProbeResult {
	pr := ProbeResult{Name: probe.Name, Type: probe.Type, Status: StatusFailed}
	if strings.TrimSpace(probe.Prompt) == "" {
		pr.Error = "empty prompt"
		return pr
	}

	conv := model.NewConversation(modelName, 0)
	session := turn.NewSession(conv, turn.SessionConfig{
		Generator:     r.gen,
		StreamOptions: r.streamOpts,
		Logger:        r.logger,
	})

	start := r.now()
	if err := session.Submit(ctx, probe.Prompt); err != nil {
		pr.Error = err.Error()
		return pr
	}

	var first, spanStart, spanEnd time.Time
	session.Wait(ctx, func(ev stream.Event) {
		now := r.now()
		switch ev.(type) {
		case stream.ReasoningChunk:
			if spanStart.IsZero() {
				spanStart = now
			}
		case stream.ReasoningClose:
			spanEnd = now
		case stream.StreamComplete, stream.StreamFailed:
			return
		}
		if first.IsZero() {
			first = now
		}
		pr.Chunks++
	})
	end := r.now()

	pr.Duration = end.Sub(start)
	if !first.IsZero() {
		pr.TTFT = first.Sub(start)
	}
	if !spanStart.IsZero() {
		if spanEnd.IsZero() {
			spanEnd = end
		}
		pr.ReasoningTime = spanEnd.Sub(spanStart)
	}

	t := session.Current()
	if msg := t.Message(); msg != nil {
		pr.TokenCount = msg.TokenCount
		pr.TokensPerSec = msg.TokensPerSec
		pr.Answer = strings.TrimSuffix(msg.Content, turn.CancelMarker)
	}

	switch t.Outcome() {
	case turn.OutcomeComplete:
		pr.Status = StatusPassed
		if probe.Evaluator != nil {
			pr.QualityScore = probe.Evaluator(pr.Answer)
		}
	case turn.OutcomeCancelled:
		pr.Status = StatusCancelled
		pr.Error = "cancelled"
	default:
		pr.Error = t.Reason()
	}
	return pr
}

// RunComparison runs the suite on every model. It returns ErrAllFailed
// along with the comparison when no model passed a probe.
func (r *Runner) RunComparison(ctx context.Context, models []string) (*Comparison, error) {
	c := &Comparison{
		Models:    append([]string(nil), models...),
		Results:   make(map[string]*Result, len(models)),
		StartTime: r.now(),
	}

	anyPassed := false
	for _, name := range models {
		res := r.Run(ctx, name)
		c.Results[name] = res
		if res.Passed > 0 {
			anyPassed = true
		}
	}
	c.Duration = r.now().Sub(c.StartTime)

	if !anyPassed {
		return c, ErrAllFailed
	}
	return c, nil
}

// =============================================================================
// RESULT COMPUTATION
// =============================================================================

func (r *Result) computeAggregates() {
	var ttft time.Duration
	var tps, quality float64
	var ttftN, tpsN int

	r.Passed, r.Failed = 0, 0
	for _, p := range r.Probes {
		if p.Status != StatusPassed {
			r.Failed++
			continue
		}
		r.Passed++
		if p.TTFT > 0 {
			ttft += p.TTFT
			ttftN++
		}
		if p.TokensPerSec > 0 {
			tps += p.TokensPerSec
			tpsN++
		}
		quality += p.QualityScore
	}

	if ttftN > 0 {
		r.AvgTTFT = ttft / time.Duration(ttftN)
	}
	if tpsN > 0 {
		r.AvgTokensPerSec = tps / float64(tpsN)
	}
	if r.Passed > 0 {
		r.AvgQualityScore = quality / float64(r.Passed)
	}
}

// Summary returns a text summary of the result.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Model: %s\nDuration: %s\nProbes: %d passed, %d failed\nAvg TTFT: %s\nAvg Speed: %s\nAvg Quality: %s",
		r.Model,
		FormatDuration(r.Duration),
		r.Passed,
		r.Failed,
		FormatDuration(r.AvgTTFT),
		FormatTokensPerSec(r.AvgTokensPerSec),
		FormatQualityScore(r.AvgQualityScore),
	)
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "N/A"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// FormatTokensPerSec formats a rate for display.
func FormatTokensPerSec(tps float64) string {
	if tps == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f tok/s", tps)
}

// FormatQualityScore formats a quality score for display.
func FormatQualityScore(score float64) string {
	if score == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.0f%%", score)
}
