// Package prompt asks the operator questions on the terminal.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/shell/retry"
	"golang.org/x/term"
)

// ErrNoAnswer is returned when input ends before a valid answer.
var ErrNoAnswer = errors.New("no answer from operator")

// maxInvalid bounds how often an invalid answer is asked again.
const maxInvalid = 5

// Attended reports whether stdin is a terminal.
func Attended() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Option is one numbered choice of a menu.
type Option[T any] struct {
	Label string
	Value T
}

// Prompter reads answers from in and writes questions to out.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	logger *slog.Logger
}

// New creates a prompter. Nil streams use stdin and stderr.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *Prompter {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prompter{in: bufio.NewReader(in), out: out, logger: logger.With("component", "prompt")}
}

// Select shows a numbered menu and returns the chosen value.
func Select[T any](ctx context.Context, p *Prompter, question string, options []Option[T]) (T, error) {
	var zero T

	fmt.Fprintln(p.out, question)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt.Label)
	}

	for invalid := 0; invalid < maxInvalid; invalid++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		fmt.Fprintf(p.out, "Enter choice [1-%d]: ", len(options))

		line, err := p.in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if err != nil && answer == "" {
			if errors.Is(err, io.EOF) {
				return zero, ErrNoAnswer
			}
			return zero, err
		}

		if idx, convErr := strconv.Atoi(answer); convErr == nil && idx >= 1 && idx <= len(options) {
			p.logger.Debug("operator selected", "question", question, "choice", options[idx-1].Label)
			return options[idx-1].Value, nil
		}
		for _, opt := range options {
			if strings.EqualFold(answer, opt.Label) || strings.EqualFold(answer, firstWord(opt.Label)) {
				return opt.Value, nil
			}
		}
		fmt.Fprintln(p.out, "Invalid selection. Please try again.")
	}
	return zero, fmt.Errorf("%w: too many invalid selections", ErrNoAnswer)
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " ("); i > 0 {
		return s[:i]
	}
	return s
}

// =============================================================================
// Questions
// =============================================================================

// Escalate asks whether to retry, skip or abort a failed step. It implements
// retry.Escalator.
func (p *Prompter) Escalate(ctx context.Context, name string, err error) (retry.Decision, error) {
	fmt.Fprintf(p.out, "\n%s failed: %v\n", name, err)
	return Select(ctx, p, "How do you want to proceed?", []Option[retry.Decision]{
		{Label: "retry (run the step again)", Value: retry.DecisionRetry},
		{Label: "skip (continue without it)", Value: retry.DecisionSkip},
		{Label: "abort (stop the installation)", Value: retry.DecisionAbort},
	})
}

// ChooseDisposition asks what to do with an installation that already exists.
func (p *Prompter) ChooseDisposition(ctx context.Context, state domain.InstallationState) (domain.Disposition, error) {
	fmt.Fprintf(p.out, "\nAn existing installation was found (%s).\n", state.Summary())
	for _, kind := range domain.ResourceKinds() {
		for _, name := range state.Names(kind) {
			fmt.Fprintf(p.out, "  %-10s %s\n", kind, name)
		}
	}
	return Select(ctx, p, "What do you want to do?", []Option[domain.Disposition]{
		{Label: "keep (leave it running, change nothing)", Value: domain.DispositionKeep},
		{Label: "clean (remove everything, credentials included, and reinstall)", Value: domain.DispositionClean},
		{Label: "reuse (reconfigure in place, keep credentials and data)", Value: domain.DispositionReuse},
		{Label: "exit (stop without changes)", Value: domain.DispositionExit},
	})
}

// Confirm asks a yes/no question. Empty input takes def.
func (p *Prompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "%s [%s]: ", question, hint)

	line, err := p.in.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	if err != nil && answer == "" {
		if errors.Is(err, io.EOF) {
			return def, nil
		}
		return false, err
	}
	switch answer {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return def, nil
}
