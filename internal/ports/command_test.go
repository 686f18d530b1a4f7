package ports

import "testing"

func TestCommandResult_Success(t *testing.T) {
	tests := []struct {
		name   string
		result CommandResult
		want   bool
	}{
		{"zero exit", CommandResult{ExitCode: 0}, true},
		{"nonzero exit", CommandResult{ExitCode: 1}, false},
		{"timed out", CommandResult{ExitCode: 0, TimedOut: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Success(); got != tt.want {
				t.Errorf("Success() = %v, want %v", got, tt.want)
			}
		})
	}
}
