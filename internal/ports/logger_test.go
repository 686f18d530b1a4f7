package ports

import "testing"

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestF(t *testing.T) {
	f := F("step", "hugepages")
	if f.Key != "step" {
		t.Errorf("Key = %q, want %q", f.Key, "step")
	}
	if f.Value != "hugepages" {
		t.Errorf("Value = %v, want %q", f.Value, "hugepages")
	}
}
