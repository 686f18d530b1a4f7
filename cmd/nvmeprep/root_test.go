package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/nvmeprep/internal/domain/config"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/step"
)

func TestFormatError_UserError(t *testing.T) {
	err := config.NewValidationError("hugepages", "target_pages is below min_pages",
		"Raise target_pages or lower min_pages.")

	got := formatError(err)
	if !strings.Contains(got, "target_pages is below min_pages") {
		t.Errorf("formatError() = %q, missing message", got)
	}
	if !strings.Contains(got, "Suggestion: Raise target_pages") {
		t.Errorf("formatError() = %q, missing suggestion", got)
	}
}

func TestFormatError_StepError(t *testing.T) {
	err := step.NewPermissionDeniedError()

	got := formatError(err)
	if !strings.Contains(got, "root privileges") {
		t.Errorf("formatError() = %q, missing message", got)
	}
	if !strings.Contains(got, "Suggestion:") {
		t.Errorf("formatError() = %q, missing suggestion", got)
	}
}

func TestFormatError_PlainError(t *testing.T) {
	if got := formatError(errors.New("boom")); got != "boom" {
		t.Errorf("formatError() = %q, want boom", got)
	}
}

func TestPrintErrorTo(t *testing.T) {
	var buf bytes.Buffer
	printErrorTo(&buf, errors.New("boom"))
	if got := buf.String(); got != "Error: boom\n" {
		t.Errorf("printErrorTo() wrote %q", got)
	}
}

func TestConfigPath(t *testing.T) {
	orig := cfgFile
	defer func() { cfgFile = orig }()

	cfgFile = ""
	if got := configPath(); got != config.DefaultPath {
		t.Errorf("configPath() = %q, want default", got)
	}

	cfgFile = "/etc/nvmeprep.yaml"
	if got := configPath(); got != "/etc/nvmeprep.yaml" {
		t.Errorf("configPath() = %q", got)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(buf.String(), "nvmeprep") {
		t.Errorf("version output = %q", buf.String())
	}
}
