// Package hugepages provides the hugepage reservation step.
package hugepages

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/sizing"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

const meminfoPath = "/proc/meminfo"

// ReserveStep reserves a pool of hugepages of one size. The request is
// bounded by observed available memory minus a reserve, and retried at
// deterministically reduced sizes when the kernel cannot satisfy it.
type ReserveStep struct {
	hs         ports.HostState
	policy     sizing.Policy
	pageSizeKB int64
	target     int64
	reserveMB  int64
	id         step.StepID

	// set during Check/Remediate for reporting and Verify
	goal     int64
	note     string
	degraded bool
}

// NewReserveStep creates the hugepage reservation step.
func NewReserveStep(hs ports.HostState, policy sizing.Policy, pageSizeKB, targetPages, reserveMB int64) *ReserveStep {
	return &ReserveStep{
		hs:         hs,
		policy:     policy,
		pageSizeKB: pageSizeKB,
		target:     targetPages,
		reserveMB:  reserveMB,
		id:         step.MustNewStepID(fmt.Sprintf("hugepages:reserve:%dkB", pageSizeKB)),
	}
}

// ID returns the step identifier.
func (s *ReserveStep) ID() step.StepID {
	return s.id
}

// Policy returns the failure policy. An allocation below the absolute
// minimum makes the framework unusable, so failures are fatal.
func (s *ReserveStep) Policy() step.Policy {
	return step.FatalOnFailure
}

// Note returns the annotation for the last cycle.
func (s *ReserveStep) Note() string {
	return s.note
}

// Degraded reports whether the last cycle ended in partial success.
func (s *ReserveStep) Degraded() bool {
	return s.degraded
}

// nrPath is the kernel control file for this page size.
func (s *ReserveStep) nrPath() string {
	return fmt.Sprintf("/sys/kernel/mm/hugepages/hugepages-%dkB/nr_hugepages", s.pageSizeKB)
}

// Check reads the current pool size. An existing reservation at or
// above the target is satisfied; one at or above the minimum is kept
// rather than churned, reported as a degraded skip.
func (s *ReserveStep) Check(_ step.RunContext) (step.Status, error) {
	s.note, s.degraded = "", false

	current, err := s.readPages()
	if err != nil {
		return step.StatusUnknown, err
	}

	switch {
	case current >= s.target:
		return step.StatusSatisfied, nil
	case current >= s.policy.Minimum:
		s.degraded = true
		s.note = fmt.Sprintf("existing reservation of %d pages is below target %d but above minimum; keeping it", current, s.target)
		return step.StatusSatisfied, nil
	default:
		return step.StatusUnsatisfied, nil
	}
}

// Remediate writes pool sizes in a descending schedule until the
// kernel satisfies a request or the schedule is exhausted.
func (s *ReserveStep) Remediate(_ step.RunContext) error {
	feasible, err := s.feasibleTarget()
	if err != nil {
		return err
	}

	requested := s.target
	if feasible < requested {
		requested = feasible
	}
	if requested < s.policy.Floor {
		requested = s.policy.Floor
	}

	allocated := int64(0)
	for attempt := 0; attempt <= s.policy.MaxReductions; attempt++ {
		if err := s.hs.WriteFile(s.nrPath(), strconv.FormatInt(requested, 10)); err != nil {
			return fmt.Errorf("writing %s: %w", s.nrPath(), err)
		}

		allocated, err = s.readPages()
		if err != nil {
			return err
		}
		if allocated >= requested {
			break
		}

		next, ok := s.policy.NextAttempt(requested, allocated)
		if !ok {
			break
		}
		requested = next
	}

	s.goal = allocated
	switch s.policy.Classify(allocated, s.target) {
	case sizing.GradeSuccess:
		return nil
	case sizing.GradeDegraded:
		s.degraded = true
		s.note = fmt.Sprintf("allocated %d of %d requested pages", allocated, s.target)
		return nil
	default:
		return step.NewResourceInsufficientError("hugepage", allocated, s.policy.Minimum).
			WithStepID(s.id.String())
	}
}

// Verify re-reads the pool and confirms it holds what remediation
// settled on.
func (s *ReserveStep) Verify(_ step.RunContext) (step.Status, error) {
	current, err := s.readPages()
	if err != nil {
		return step.StatusUnknown, err
	}

	goal := s.goal
	if goal == 0 || goal > s.target {
		goal = s.target
	}
	if current >= goal && current >= s.policy.Minimum {
		return step.StatusSatisfied, nil
	}
	return step.StatusUnsatisfied, nil
}

// readPages reads the current pool size.
func (s *ReserveStep) readPages() (int64, error) {
	raw, err := s.hs.ReadFile(s.nrPath())
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", s.nrPath(), err)
	}
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}

// feasibleTarget computes how many pages the host can afford: available
// memory minus the configured reserve, in pages. Pages already in the
// pool do not count against availability, so they are added back.
func (s *ReserveStep) feasibleTarget() (int64, error) {
	availableKB, err := s.meminfoKB("MemAvailable")
	if err != nil {
		return 0, err
	}

	current, err := s.readPages()
	if err != nil {
		return 0, err
	}

	budgetKB := availableKB - s.reserveMB*1024
	if budgetKB < 0 {
		budgetKB = 0
	}
	return budgetKB/s.pageSizeKB + current, nil
}

// meminfoKB extracts one kB-denominated field from /proc/meminfo.
func (s *ReserveStep) meminfoKB(field string) (int64, error) {
	raw, err := s.hs.ReadFile(meminfoPath)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", meminfoPath, err)
	}

	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, field+":") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			break
		}
		return strconv.ParseInt(parts[1], 10, 64)
	}
	return 0, fmt.Errorf("%s has no %s field", meminfoPath, field)
}
