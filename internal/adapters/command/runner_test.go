package command

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

func TestRealRunner_Success(t *testing.T) {
	runner := NewRealRunner()

	result, err := runner.Run(context.Background(), "true")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success() {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
}

func TestRealRunner_NonzeroExit(t *testing.T) {
	runner := NewRealRunner()

	result, err := runner.Run(context.Background(), "false")
	if err != nil {
		t.Fatalf("nonzero exit should not be a transport error, got %v", err)
	}
	if result.Success() {
		t.Error("false should not report success")
	}
	if result.ExitCode == 0 {
		t.Error("exit code should be nonzero")
	}
}

func TestRealRunner_CapturesStdout(t *testing.T) {
	runner := NewRealRunner()

	result, err := runner.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "hello\n")
	}
}

func TestRealRunner_MissingBinary(t *testing.T) {
	runner := NewRealRunner()

	_, err := runner.Run(context.Background(), "nvmeprep-no-such-binary")
	if err == nil {
		t.Error("missing binary should be a transport error")
	}
}

func TestRealRunner_Timeout(t *testing.T) {
	runner := NewRealRunner()

	result, err := runner.RunWith(context.Background(), ports.RunOpts{Timeout: 50 * time.Millisecond}, "sleep", "5")
	if err != nil {
		t.Fatalf("timeout should be reported in the result, got error %v", err)
	}
	if !result.TimedOut {
		t.Error("TimedOut should be set")
	}
	if result.Success() {
		t.Error("timed-out invocation must not report success")
	}
}

func TestRealRunner_WorkingDirectory(t *testing.T) {
	runner := NewRealRunner()
	dir := t.TempDir()

	result, err := runner.RunWith(context.Background(), ports.RunOpts{Dir: dir}, "pwd")
	if err != nil {
		t.Fatalf("RunWith() error = %v", err)
	}
	if got := result.Stdout; got != dir+"\n" {
		t.Errorf("pwd = %q, want %q", got, dir+"\n")
	}
}

func TestFakeRunner_ScriptedResults(t *testing.T) {
	fake := NewFakeRunner()
	fake.Stub("dpkg-query -W gcc", ports.CommandResult{ExitCode: 1, Stderr: "no packages found"})

	result, err := fake.Run(context.Background(), "dpkg-query", "-W", "gcc")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
	if !fake.CalledWith("dpkg-query -W gcc") {
		t.Error("call should be recorded")
	}
}
