// Package build compiles the storage framework from source.
package build

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

// Options configures the source build.
type Options struct {
	// Dir is the framework source checkout.
	Dir string
	// ConfigureFlags are passed through to ./configure.
	ConfigureFlags []string
	// Jobs is the make parallelism; 0 means one job per CPU.
	Jobs int
	// Timeout bounds the whole configure-and-make run.
	Timeout time.Duration
	// Artifact is a path relative to Dir whose presence marks a
	// completed build.
	Artifact string
}

// CompileStep configures and builds the framework source tree.
type CompileStep struct {
	runner ports.CommandRunner
	hs     ports.HostState
	opts   Options
	id     step.StepID
}

// NewCompileStep creates the source build step.
func NewCompileStep(hs ports.HostState, runner ports.CommandRunner, opts Options) *CompileStep {
	return &CompileStep{
		runner: runner,
		hs:     hs,
		opts:   opts,
		id:     step.MustNewStepID("source:build"),
	}
}

// ID returns the step identifier.
func (s *CompileStep) ID() step.StepID {
	return s.id
}

// Policy returns the failure policy. Without a built framework there
// is nothing to smoke-test.
func (s *CompileStep) Policy() step.Policy {
	return step.FatalOnFailure
}

// artifactPath is the build marker's absolute location.
func (s *CompileStep) artifactPath() string {
	return filepath.Join(s.opts.Dir, s.opts.Artifact)
}

// Check looks for the build artifact. An existing build is not redone;
// operators wipe the artifact to force a rebuild.
func (s *CompileStep) Check(_ step.RunContext) (step.Status, error) {
	if !s.hs.Exists(s.opts.Dir) {
		return step.StatusUnknown, step.NewStepError(step.ErrCodeDependencyMissing,
			fmt.Sprintf("source directory %s does not exist", s.opts.Dir)).
			WithStepID(s.id.String()).
			WithSuggestion("Clone the framework source to the configured directory, or point source.dir at your checkout.")
	}
	if s.hs.Exists(s.artifactPath()) {
		return step.StatusSatisfied, nil
	}
	return step.StatusUnsatisfied, nil
}

// Remediate runs configure followed by make in the source directory.
func (s *CompileStep) Remediate(ctx step.RunContext) error {
	if err := s.run(ctx, append([]string{"./configure"}, s.opts.ConfigureFlags...)); err != nil {
		return err
	}

	jobs := s.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	return s.run(ctx, []string{"make", "-j" + strconv.Itoa(jobs)})
}

// Verify re-checks for the artifact the build should have produced.
func (s *CompileStep) Verify(_ step.RunContext) (step.Status, error) {
	if s.hs.Exists(s.artifactPath()) {
		return step.StatusSatisfied, nil
	}
	return step.StatusUnsatisfied, nil
}

// run executes one build command in the source directory under the
// shared timeout.
func (s *CompileStep) run(ctx step.RunContext, argv []string) error {
	result, err := s.runner.RunWith(ctx.Context(),
		ports.RunOpts{Dir: s.opts.Dir, Timeout: s.opts.Timeout}, argv[0], argv[1:]...)
	if err != nil {
		return step.NewExternalToolFailureError(argv[0], err).WithStepID(s.id.String())
	}
	if result.TimedOut {
		return step.NewExternalToolFailureError(argv[0],
			fmt.Errorf("timed out after %s", s.opts.Timeout)).
			WithStepID(s.id.String()).
			WithSuggestion("Raise source.timeout_minutes, or pre-build the framework out of band.")
	}
	if !result.Success() {
		return step.NewExternalToolFailureError(argv[0],
			fmt.Errorf("exit code %d: %s", result.ExitCode, tail(result.Stderr, 20))).
			WithStepID(s.id.String())
	}
	return nil
}

// tail returns the last n lines of tool output; build logs are long
// and only the end says what broke.
func tail(out string, n int) string {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
