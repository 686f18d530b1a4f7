package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

// Engine runs an ordered list of provisioning steps. Execution is
// strictly sequential: steps mutate shared host state (kernel
// tunables, driver bindings, the package database) where concurrent
// mutation would race.
type Engine struct {
	dryRun bool
	logger ports.Logger
}

// New creates a new Engine.
func New(logger ports.Logger) *Engine {
	return &Engine{logger: logger}
}

// WithDryRun returns an Engine that only checks, never remediates.
func (e *Engine) WithDryRun(dryRun bool) *Engine {
	return &Engine{
		dryRun: dryRun,
		logger: e.logger,
	}
}

// Run executes the steps in order and returns the finalized report.
// Cancellation is honored between steps only; a remediation in flight
// runs to completion or its own timeout.
func (e *Engine) Run(ctx context.Context, steps []step.Step) *Report {
	report := NewReport()
	defer report.finalize()

	runCtx := step.NewRunContext(ctx).WithDryRun(e.dryRun)

	for _, s := range steps {
		select {
		case <-ctx.Done():
			e.logger.Warn(ctx, "run cancelled", ports.F("completed", report.Len()))
			return report
		default:
		}

		result := e.runStep(runCtx, s)
		report.append(result)
		e.logResult(ctx, result)

		if halts(result.Outcome(), result.Warning()) {
			break
		}
	}

	return report
}

// halts reports whether an outcome stops the run.
func halts(outcome Outcome, warning bool) bool {
	switch outcome {
	case OutcomeRebootRequired:
		return true
	case OutcomeFailed:
		return !warning
	case OutcomeSkipped, OutcomeApplied, OutcomeWouldApply:
		return false
	}
	return false
}

// runStep executes one step's check/remediate/verify cycle.
func (e *Engine) runStep(ctx step.RunContext, s step.Step) StepResult {
	start := time.Now()
	id := s.ID()

	status, err := s.Check(ctx)
	if err != nil {
		return e.failure(s, fmt.Errorf("check failed: %w", err)).
			WithDuration(time.Since(start))
	}

	// Idempotent short-circuit: a satisfied step is never remediated.
	if status == step.StatusSatisfied {
		result := NewStepResult(id, OutcomeSkipped, nil).
			WithDuration(time.Since(start)).
			WithNote(step.NoteOf(s))
		if step.IsDegraded(s) {
			result = result.WithWarning()
		}
		return result
	}

	if ctx.DryRun() {
		return NewStepResult(id, OutcomeWouldApply, nil).
			WithDuration(time.Since(start))
	}

	if err := s.Remediate(ctx); err != nil {
		if errors.Is(err, step.ErrRebootRequired) {
			return NewStepResult(id, OutcomeRebootRequired, err).
				WithDuration(time.Since(start)).
				WithNote(step.NoteOf(s))
		}
		return e.failure(s, err).WithDuration(time.Since(start))
	}

	verified, err := s.Verify(ctx)
	if err != nil {
		return e.failure(s, fmt.Errorf("verify failed: %w", err)).
			WithDuration(time.Since(start))
	}
	if verified != step.StatusSatisfied {
		if s.Policy() == step.RequiresReboot {
			return NewStepResult(id, OutcomeRebootRequired, nil).
				WithDuration(time.Since(start)).
				WithNote(step.NoteOf(s))
		}
		return e.failure(s, fmt.Errorf("verification reported %s after remediation", verified)).
			WithDuration(time.Since(start))
	}

	result := NewStepResult(id, OutcomeApplied, nil).
		WithDuration(time.Since(start)).
		WithNote(step.NoteOf(s))
	if step.IsDegraded(s) {
		result = result.WithWarning()
	}
	return result
}

// failure builds a failed result routed by the step's policy.
func (e *Engine) failure(s step.Step, err error) StepResult {
	result := NewStepResult(s.ID(), OutcomeFailed, err).WithNote(step.NoteOf(s))
	if s.Policy() == step.WarnAndContinue {
		result = result.WithWarning()
	}
	return result
}

// logResult emits one progress line per step boundary.
func (e *Engine) logResult(ctx context.Context, r StepResult) {
	fields := []ports.Field{
		ports.F("step", r.StepID().String()),
		ports.F("outcome", r.Outcome().String()),
		ports.F("duration", r.Duration().Round(time.Millisecond).String()),
	}
	if r.Note() != "" {
		fields = append(fields, ports.F("note", r.Note()))
	}

	switch {
	case r.Outcome() == OutcomeFailed && !r.Warning():
		fields = append(fields, ports.F("error", r.Error()))
		e.logger.Error(ctx, "step failed", fields...)
	case r.Outcome() == OutcomeFailed:
		fields = append(fields, ports.F("error", r.Error()))
		e.logger.Warn(ctx, "step failed, continuing", fields...)
	case r.Outcome() == OutcomeRebootRequired:
		e.logger.Warn(ctx, "reboot required", fields...)
	case r.Warning():
		e.logger.Warn(ctx, "step degraded", fields...)
	default:
		e.logger.Info(ctx, "step complete", fields...)
	}
}
