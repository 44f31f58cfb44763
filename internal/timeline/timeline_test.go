package timeline

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func TestComputeDeterminism(t *testing.T) {
	cfg := Config{StartTime: t0, SecondsPerQuestion: 60, QuestionCount: 5}

	pos := Compute(cfg, t0.Add(125*time.Second))
	if pos.Index != 2 || pos.Remaining != 55 || pos.Over {
		t.Fatalf("at +125s: got index=%d remaining=%d over=%v, want 2/55/false",
			pos.Index, pos.Remaining, pos.Over)
	}

	// Call history must not matter: the same now yields the same position.
	again := Compute(cfg, t0.Add(125*time.Second))
	if again != pos {
		t.Fatalf("repeated call diverged: %+v vs %+v", again, pos)
	}

	pos = Compute(cfg, t0.Add(305*time.Second))
	if !pos.Over || pos.Index != 4 || pos.Remaining != 0 {
		t.Fatalf("at +305s: got index=%d remaining=%d over=%v, want 4/0/true",
			pos.Index, pos.Remaining, pos.Over)
	}
}

func TestComputeMonotonicIndex(t *testing.T) {
	cfg := Config{StartTime: t0, SecondsPerQuestion: 7, QuestionCount: 11}

	prev := -1
	for s := 0; s <= 7*11+30; s++ {
		pos := Compute(cfg, t0.Add(time.Duration(s)*time.Second))
		if pos.Index < prev {
			t.Fatalf("index regressed at +%ds: %d -> %d", s, prev, pos.Index)
		}
		prev = pos.Index
	}
}

func TestComputeLateJoinConvergence(t *testing.T) {
	cfg := Config{StartTime: t0, SecondsPerQuestion: 45, QuestionCount: 8}
	now := t0.Add(200 * time.Second)

	// A student who has been polling since the start and one who joins at
	// `now` both derive their position from the same inputs; "join time" is
	// not an input at all.
	onTime := Compute(cfg, now)
	lateJoin := Compute(cfg, now)
	if onTime != lateJoin {
		t.Fatalf("late join diverged: %+v vs %+v", lateJoin, onTime)
	}
	if onTime.Index != 4 {
		t.Fatalf("expected both on question 4, got %d", onTime.Index)
	}
}

func TestComputeBeforeStartClamps(t *testing.T) {
	cfg := Config{StartTime: t0, SecondsPerQuestion: 60, QuestionCount: 3}

	pos := Compute(cfg, t0.Add(-90*time.Second))
	if pos.Index != 0 || pos.Remaining != 60 || pos.Over || pos.Elapsed != 0 {
		t.Fatalf("before start: got %+v, want question 0 with full window", pos)
	}
}

func TestComputeTenSecondWalk(t *testing.T) {
	cfg := Config{StartTime: t0, SecondsPerQuestion: 30, QuestionCount: 3}

	wantIndex := []int{0, 0, 0, 1, 1, 1, 2, 2, 2, 2}
	for step := 0; step < len(wantIndex); step++ {
		now := t0.Add(time.Duration(step*10) * time.Second)
		pos := Compute(cfg, now)
		if pos.Index != wantIndex[step] {
			t.Errorf("at +%ds: index=%d, want %d", step*10, pos.Index, wantIndex[step])
		}
		if wantOver := step*10 >= 90; pos.Over != wantOver {
			t.Errorf("at +%ds: over=%v, want %v", step*10, pos.Over, wantOver)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{StartTime: t0, SecondsPerQuestion: 0, QuestionCount: 5},
		{StartTime: t0, SecondsPerQuestion: 30, QuestionCount: 0},
		{StartTime: t0, SecondsPerQuestion: -1, QuestionCount: -1},
	}
	for _, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", cfg)
		}
	}

	good := Config{StartTime: t0, SecondsPerQuestion: 30, QuestionCount: 3}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got := good.EndTime(); !got.Equal(t0.Add(90 * time.Second)) {
		t.Errorf("EndTime = %v, want %v", got, t0.Add(90*time.Second))
	}
}
