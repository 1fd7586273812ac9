// Package sequencer runs the installation phases in order, each through the
// retry engine, and reports how the run ended.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/shell/retry"
	"github.com/google/uuid"
)

// =============================================================================
// States
// =============================================================================

// State is the state of an installation run.
type State string

const (
	StateIdle               State = "Idle"
	StateDetecting          State = "Detecting"
	StateKeeping            State = "Keeping"
	StateExited             State = "Exited"
	StateCleaningUp         State = "CleaningUp"
	StateConfiguring        State = "Configuring"
	StateGeneratingManifest State = "GeneratingManifest"
	StateProvisioning       State = "Provisioning"
	StateDeploying          State = "Deploying"
	StateHealthChecking     State = "HealthChecking"
	StateDone               State = "Done"
	StateDegraded           State = "Degraded"
	StateFailed             State = "Failed"
)

// Terminal reports whether a run in state s has ended.
func (s State) Terminal() bool {
	switch s {
	case StateKeeping, StateExited, StateDone, StateDegraded, StateFailed:
		return true
	}
	return false
}

// =============================================================================
// Phases
// =============================================================================

// Phase is one step of a run. Run must be idempotent: the retry engine may
// call it several times.
type Phase struct {
	Name string

	// State is entered while the phase runs.
	State State

	// Capability names what the installation lacks when the phase is skipped.
	// Empty means the phase name is reported instead.
	Capability string

	// DependsOn lists earlier phases. When one of them was skipped, this
	// phase is skipped too.
	DependsOn []string

	// When is evaluated right before the phase. Nil means always run.
	When func() bool

	// Policy overrides the sequencer's retry policy.
	Policy *retry.Policy

	Run func(ctx context.Context) error
}

// StopError ends a run early, in a terminal state that is not a failure.
// A phase returns it when the operator chose to keep or leave an existing
// installation untouched.
type StopError struct {
	State  State
	Reason string
}

func (e *StopError) Error() string {
	return fmt.Sprintf("stopped in %s: %s", e.State, e.Reason)
}

// Stop returns a StopError.
func Stop(state State, reason string) error {
	return &StopError{State: state, Reason: reason}
}

// =============================================================================
// Report
// =============================================================================

// PhaseStatus is how one phase ended.
type PhaseStatus string

const (
	PhaseCompleted PhaseStatus = "completed"
	PhaseSkipped   PhaseStatus = "skipped"  // by the operator after failing
	PhaseBypassed  PhaseStatus = "bypassed" // a dependency was skipped
	PhaseNotNeeded PhaseStatus = "not_needed"
	PhaseFailed    PhaseStatus = "failed"
)

// PhaseRecord is the journal entry of one phase.
type PhaseRecord struct {
	Name     string        `json:"name"`
	State    State         `json:"state"`
	Status   PhaseStatus   `json:"status"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	RunID    string        `json:"run_id"`
	Final    State         `json:"final"`
	Phases   []PhaseRecord `json:"phases"`
	Missing  []string      `json:"missing,omitempty"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Err      error         `json:"-"`
}

// Phase returns the record of the named phase.
func (r Report) Phase(name string) (PhaseRecord, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseRecord{}, false
}

// =============================================================================
// Sequencer
// =============================================================================

// Sequencer runs phases in order.
type Sequencer struct {
	engine *retry.Engine
	policy retry.Policy
	logger *slog.Logger
	phases []Phase
	state  State
	now    func() time.Time
}

// New creates a sequencer running phases with policy unless a phase
// overrides it.
func New(engine *retry.Engine, policy retry.Policy, logger *slog.Logger, phases ...Phase) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		engine: engine,
		policy: policy,
		logger: logger.With("component", "sequencer"),
		phases: phases,
		state:  StateIdle,
		now:    time.Now,
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Run executes the phases and returns the report.
//
// A phase skipped by the operator, or bypassed because a dependency was
// skipped, is recorded as missing, and the run ends Degraded instead of Done. An aborted phase ends
// the run Failed. A phase returning a StopError ends it in the error's state.
func (s *Sequencer) Run(ctx context.Context) Report {
	report := Report{RunID: uuid.NewString(), Started: s.now()}
	skipped := make(map[string]bool)

	finish := func(final State, err error) Report {
		s.transition(final)
		report.Final = final
		report.Err = err
		report.Finished = s.now()
		return report
	}

	for _, phase := range s.phases {
		if phase.When != nil && !phase.When() {
			report.Phases = append(report.Phases, PhaseRecord{Name: phase.Name, State: phase.State, Status: PhaseNotNeeded})
			continue
		}

		if dep := firstSkipped(phase.DependsOn, skipped); dep != "" {
			s.logger.Warn("phase bypassed", "phase", phase.Name, "skipped_dependency", dep)
			skipped[phase.Name] = true
			report.Missing = appendMissing(report.Missing, phase)
			report.Phases = append(report.Phases, PhaseRecord{Name: phase.Name, State: phase.State, Status: PhaseBypassed})
			continue
		}

		s.transition(phase.State)

		policy := s.policy
		if phase.Policy != nil {
			policy = *phase.Policy
		}

		var stop *StopError
		started := s.now()
		res := s.engine.Attempt(ctx, phase.Name, func(ctx context.Context) error {
			err := phase.Run(ctx)
			if errors.As(err, &stop) {
				return nil
			}
			if errors.Is(err, domain.ErrValidation) {
				return retry.Permanent(err)
			}
			return err
		}, policy)

		record := PhaseRecord{
			Name:     phase.Name,
			State:    phase.State,
			Attempts: res.Attempts,
			Duration: s.now().Sub(started),
		}
		if res.Err != nil {
			record.Error = res.Err.Error()
		}

		switch res.Outcome {
		case retry.OutcomeSucceeded:
			record.Status = PhaseCompleted
			report.Phases = append(report.Phases, record)
			if stop != nil {
				s.logger.Info("run stopped", "state", stop.State, "reason", stop.Reason)
				return finish(stop.State, nil)
			}
		case retry.OutcomeDegraded:
			record.Status = PhaseSkipped
			report.Phases = append(report.Phases, record)
			skipped[phase.Name] = true
			report.Missing = appendMissing(report.Missing, phase)
		default:
			record.Status = PhaseFailed
			report.Phases = append(report.Phases, record)
			return finish(StateFailed, fmt.Errorf("%s: %w", phase.Name, res.Err))
		}
	}

	if len(report.Missing) > 0 {
		return finish(StateDegraded, nil)
	}
	return finish(StateDone, nil)
}

func (s *Sequencer) transition(to State) {
	if to == s.state {
		return
	}
	s.logger.Debug("state transition", "from", s.state, "to", to)
	s.state = to
}

func firstSkipped(deps []string, skipped map[string]bool) string {
	for _, d := range deps {
		if skipped[d] {
			return d
		}
	}
	return ""
}

func appendMissing(missing []string, phase Phase) []string {
	capability := phase.Capability
	if capability == "" {
		capability = phase.Name
	}
	for _, m := range missing {
		if m == capability {
			return missing
		}
	}
	return append(missing, capability)
}
