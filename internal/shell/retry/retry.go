// Package retry runs an operation a bounded number of times and escalates to
// the operator when the automatic attempts are exhausted.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/flowstack/internal/shell/logging"
)

// =============================================================================
// Types
// =============================================================================

// Escalation selects what happens when the automatic attempts run out.
type Escalation string

const (
	// EscalationInteractive asks the Escalator for a decision.
	EscalationInteractive Escalation = "interactive"

	// EscalationFatal aborts.
	EscalationFatal Escalation = "fatal"
)

// Policy bounds one retried operation.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Escalation  Escalation
}

// DefaultPolicy is used when a policy leaves MaxAttempts unset.
var DefaultPolicy = Policy{MaxAttempts: 3, Delay: 5 * time.Second, Escalation: EscalationFatal}

// Decision is the operator's answer after the attempts are exhausted.
type Decision string

const (
	DecisionRetry Decision = "retry"
	DecisionSkip  Decision = "skip"
	DecisionAbort Decision = "abort"
)

// Escalator asks the operator how to proceed after a failure.
type Escalator interface {
	Escalate(ctx context.Context, name string, err error) (Decision, error)
}

// Outcome is how an attempted operation ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDegraded  Outcome = "degraded" // skipped by the operator
	OutcomeAborted   Outcome = "aborted"
)

// Result reports one call to Attempt. Attempts counts every execution of
// the operation, across operator retries.
type Result struct {
	Outcome  Outcome
	Attempts int
	Err      error
}

// Op is a retried operation.
type Op func(ctx context.Context) error

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// =============================================================================
// Permanent Errors
// =============================================================================

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The engine aborts on it without
// escalating.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// =============================================================================
// Engine
// =============================================================================

// Engine runs operations under a Policy.
type Engine struct {
	logger    *slog.Logger
	escalator Escalator
	sleep     Sleeper
}

// Option configures an Engine.
type Option func(*Engine)

// WithEscalator sets the operator prompt used by interactive policies.
func WithEscalator(e Escalator) Option {
	return func(engine *Engine) { engine.escalator = e }
}

// WithSleeper replaces the context-aware timer used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(engine *Engine) { engine.sleep = s }
}

// NewEngine creates an engine.
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger.With("component", "retry"), sleep: Sleep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Attempt runs op until it succeeds or the policy gives up.
//
// Between attempts the engine sleeps policy.Delay; it does not sleep after
// the last one. When every attempt has failed, an interactive policy with an
// escalator asks for a decision: retry starts a new round of attempts, skip
// ends with OutcomeDegraded and abort ends with OutcomeAborted. Any other
// policy aborts. A permanent error or a cancelled context aborts at once.
func (e *Engine) Attempt(ctx context.Context, name string, op Op, policy Policy) Result {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy.MaxAttempts
	}

	var res Result
	round := 0
	for {
		round++
		err := e.round(ctx, name, op, policy, &res)
		if err == nil {
			res.Outcome = OutcomeSucceeded
			res.Err = nil
			logging.Success(e.logger, name, "attempts", res.Attempts)
			return res
		}
		res.Err = err

		if IsPermanent(err) || ctx.Err() != nil {
			e.logger.Error(name+" failed", "error", err)
			res.Outcome = OutcomeAborted
			return res
		}

		decision := DecisionAbort
		if policy.Escalation == EscalationInteractive && e.escalator != nil {
			d, escErr := e.escalator.Escalate(ctx, name, err)
			if escErr != nil {
				e.logger.Error("escalation failed", "step", name, "error", escErr)
			} else {
				decision = d
			}
		}

		switch decision {
		case DecisionRetry:
			e.logger.Info("retrying on request", "step", name, "round", round+1)
			continue
		case DecisionSkip:
			e.logger.Warn(name+" skipped", "error", err)
			res.Outcome = OutcomeDegraded
			return res
		default:
			e.logger.Error(name+" failed", "attempts", res.Attempts, "error", err)
			res.Outcome = OutcomeAborted
			return res
		}
	}
}

// round runs up to policy.MaxAttempts attempts and returns the last error.
func (e *Engine) round(ctx context.Context, name string, op Op, policy Policy, res *Result) error {
	var lastErr error
	for n := 1; n <= policy.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		res.Attempts++
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}

		logging.Retry(e.logger, name+" failed",
			"attempt", fmt.Sprintf("%d/%d", n, policy.MaxAttempts),
			"error", lastErr,
		)

		if n < policy.MaxAttempts {
			if err := e.sleep(ctx, policy.Delay); err != nil {
				return Permanent(fmt.Errorf("%w (last error: %v)", err, lastErr))
			}
		}
	}
	return lastErr
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
