package sizing

import (
	"errors"
	"testing"
)

func defaultPolicy() Policy {
	return Policy{Factor: 2, Floor: 128, Minimum: 64, MaxReductions: 8}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr error
	}{
		{"valid", defaultPolicy(), nil},
		{"factor one", Policy{Factor: 1, Floor: 128, Minimum: 64}, ErrBadFactor},
		{"zero floor", Policy{Factor: 2, Floor: 0, Minimum: 64}, ErrBadFloor},
		{"minimum above floor", Policy{Factor: 2, Floor: 128, Minimum: 256}, ErrBadMinimum},
		{"zero minimum", Policy{Factor: 2, Floor: 128, Minimum: 0}, ErrBadMinimum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNextAttempt_Halves(t *testing.T) {
	p := defaultPolicy()

	next, ok := p.NextAttempt(2048, 300)
	if !ok || next != 1024 {
		t.Errorf("NextAttempt(2048, 300) = %d, %v, want 1024, true", next, ok)
	}
}

func TestNextAttempt_SatisfiedRequestStops(t *testing.T) {
	p := defaultPolicy()

	if _, ok := p.NextAttempt(256, 256); ok {
		t.Error("a satisfied request should not reduce further")
	}
	if _, ok := p.NextAttempt(256, 300); ok {
		t.Error("an over-satisfied request should not reduce further")
	}
}

func TestNextAttempt_FlooredAndExhausted(t *testing.T) {
	p := defaultPolicy()

	// 200/2 = 100 would fall below the floor; clamp to it.
	next, ok := p.NextAttempt(200, 50)
	if !ok || next != 128 {
		t.Errorf("NextAttempt(200, 50) = %d, %v, want 128, true", next, ok)
	}

	// At the floor the schedule is exhausted.
	if _, ok := p.NextAttempt(128, 50); ok {
		t.Error("request at the floor should exhaust the schedule")
	}
}

// The sequence of requested amounts strictly decreases and never falls
// below the floor.
func TestSchedule_ReductionLaw(t *testing.T) {
	p := defaultPolicy()
	amounts := p.Schedule(2048)

	want := []int64{2048, 1024, 512, 256, 128}
	if len(amounts) != len(want) {
		t.Fatalf("Schedule(2048) = %v, want %v", amounts, want)
	}
	for i := range want {
		if amounts[i] != want[i] {
			t.Fatalf("Schedule(2048) = %v, want %v", amounts, want)
		}
	}

	for i := 1; i < len(amounts); i++ {
		if amounts[i] >= amounts[i-1] {
			t.Errorf("schedule not strictly decreasing at %d: %v", i, amounts)
		}
		if amounts[i] < p.Floor {
			t.Errorf("schedule fell below floor at %d: %v", i, amounts)
		}
	}
}

func TestSchedule_BoundedByMaxReductions(t *testing.T) {
	p := Policy{Factor: 2, Floor: 1, Minimum: 1, MaxReductions: 3}
	amounts := p.Schedule(1 << 20)
	if len(amounts) != 4 { // initial + 3 reductions
		t.Errorf("len(Schedule) = %d, want 4: %v", len(amounts), amounts)
	}
}

func TestClassify(t *testing.T) {
	p := defaultPolicy()
	tests := []struct {
		name      string
		allocated int64
		target    int64
		want      Grade
	}{
		{"at target", 2048, 2048, GradeSuccess},
		{"above target", 4096, 2048, GradeSuccess},
		{"between minimum and target", 300, 2048, GradeDegraded},
		{"at minimum", 64, 2048, GradeDegraded},
		{"below minimum", 63, 2048, GradeInsufficient},
		{"zero", 0, 2048, GradeInsufficient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Classify(tt.allocated, tt.target); got != tt.want {
				t.Errorf("Classify(%d, %d) = %v, want %v", tt.allocated, tt.target, got, tt.want)
			}
		})
	}
}

// Spec'd sizing walk: available memory caps the allocation at 300
// pages, target 2048. Requests halve through 1024, 512 down to 256;
// 256 is at or below what the host can provide only partially, final
// allocation lands in [256, 300] and grades degraded since it is
// above the minimum of 64.
func TestReductionWalk_DegradedScenario(t *testing.T) {
	p := Policy{Factor: 2, Floor: 128, Minimum: 64, MaxReductions: 8}
	const feasible = 300

	requested := int64(2048)
	var walk []int64
	allocated := int64(0)
	for {
		walk = append(walk, requested)
		if requested <= feasible {
			allocated = requested
		} else {
			allocated = feasible
		}
		if allocated >= requested {
			break
		}
		next, ok := p.NextAttempt(requested, allocated)
		if !ok {
			break
		}
		requested = next
	}

	wantWalk := []int64{2048, 1024, 512, 256}
	if len(walk) != len(wantWalk) {
		t.Fatalf("walk = %v, want %v", walk, wantWalk)
	}
	for i := range wantWalk {
		if walk[i] != wantWalk[i] {
			t.Fatalf("walk = %v, want %v", walk, wantWalk)
		}
	}

	if allocated < 256 || allocated > 300 {
		t.Errorf("final allocation = %d, want within [256, 300]", allocated)
	}
	if grade := p.Classify(allocated, 2048); grade != GradeDegraded {
		t.Errorf("grade = %v, want %v", grade, GradeDegraded)
	}
}
