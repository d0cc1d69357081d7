package sim

import (
	"testing"
)

func TestBuildRunner(t *testing.T) {
	r, err := BuildRunner(RunnerConfig{
		MaxRounds:       4,
		FloorPct:        0.88,
		ConcessionRatio: 0.4,
		Tick:            25,
	})
	if err != nil {
		t.Fatalf("build runner err: %v", err)
	}
	if r.Neg == nil {
		t.Fatalf("runner components not initialized")
	}
	p := r.Neg.Policy()
	if p.MaxRounds != 4 || p.FloorPct != 0.88 || p.Tick != 25 {
		t.Fatalf("policy overrides not applied: %+v", p)
	}
	// 未覆盖的字段保持默认。
	if p.WalkAwayPct != 0.50 {
		t.Fatalf("default walk-away expected, got %v", p.WalkAwayPct)
	}
}

func TestBuildRunnerRejectsBadOverride(t *testing.T) {
	if _, err := BuildRunner(RunnerConfig{FloorPct: 1.5}); err == nil {
		t.Fatalf("expected policy validation error")
	}
}
