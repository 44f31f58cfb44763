package attempt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
	"github.com/qcmdesk/qcmdesk-backend/internal/timeline"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type fakeGrader struct {
	mu      sync.Mutex
	answers []ledger.EffectiveAnswer
	calls   int
	err     error
	result  *Result
}

func (f *fakeGrader) Grade(_ context.Context, _ uuid.UUID, answers []ledger.EffectiveAnswer) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.answers = answers
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &Result{Score: 10, TotalGrade: 20, Status: "Submitted"}, nil
}

func (f *fakeGrader) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeGrader) snapshot() ([]ledger.EffectiveAnswer, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers, f.calls
}

type nopPersister struct{}

func (nopPersister) SaveAnswer(context.Context, uuid.UUID, uuid.UUID, int) error { return nil }

func (nopPersister) DiscardAnswer(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func newTestController(t *testing.T, spq, count int) (*Controller, *fakeClock, *fakeGrader, []uuid.UUID) {
	t.Helper()

	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	grader := &fakeGrader{}

	ids := make([]uuid.UUID, count)
	refs := make([]ledger.QuestionRef, count)
	for i := range refs {
		ids[i] = uuid.New()
		refs[i] = ledger.QuestionRef{ID: ids[i], ChoiceCount: 4}
	}

	attemptID := uuid.New()
	led := ledger.New(attemptID, refs, nopPersister{})

	cfg := timeline.Config{StartTime: start, SecondsPerQuestion: spq, QuestionCount: count}
	ctl, err := New(attemptID, cfg, led, clock, grader, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ctl, clock, grader, ids
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTickLocksOutgoingAndSkippedWindows(t *testing.T) {
	ctl, clock, _, ids := newTestController(t, 30, 3)

	ctl.tick()
	if st := ctl.Status(); st.State != StateRunning || st.Position.Index != 0 {
		t.Fatalf("after first tick: %+v", st)
	}

	// A backgrounded process misses two window boundaries; the next tick
	// locks both outgoing questions, not just the most recent.
	clock.Advance(65 * time.Second)
	ctl.tick()

	if st := ctl.Status(); st.Position.Index != 2 || st.State != StateRunning {
		t.Fatalf("after catch-up tick: %+v", st)
	}
	if err := ctl.Select(ids[0], 1); !errors.Is(err, ledger.ErrLocked) {
		t.Fatalf("q0 should be locked, got %v", err)
	}
	if err := ctl.Select(ids[1], 1); !errors.Is(err, ledger.ErrLocked) {
		t.Fatalf("q1 should be locked, got %v", err)
	}
	if err := ctl.Select(ids[2], 1); err != nil {
		t.Fatalf("q2 should be open, got %v", err)
	}
}

func TestAutoSubmitWhenTimelineEnds(t *testing.T) {
	ctl, clock, grader, ids := newTestController(t, 30, 3)
	ctx := context.Background()

	ctl.tick()
	if err := ctl.Select(ids[0], 2); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := ctl.Save(ctx, ids[0]); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(91 * time.Second)
	ctl.tick()

	<-ctl.Done()

	st := ctl.Status()
	if st.State != StateSubmitted || st.Result == nil {
		t.Fatalf("expected submitted with result, got %+v", st)
	}

	answers, calls := grader.snapshot()
	if calls != 1 {
		t.Fatalf("grader called %d times", calls)
	}
	if len(answers) != 3 {
		t.Fatalf("got %d answers", len(answers))
	}
	if answers[0].State != ledger.StateAnswered || *answers[0].SelectedIndex != 2 {
		t.Errorf("q0 = %+v, want answered index 2", answers[0])
	}
	// Never saved, windows closed at submission: missed, not sentinel 0.
	if answers[1].State != ledger.StateMissed || answers[2].State != ledger.StateMissed {
		t.Errorf("unsaved tail = %+v, want missed", answers[1:])
	}
}

func TestSubmitFailureAwaitsManualRetry(t *testing.T) {
	ctl, clock, grader, _ := newTestController(t, 10, 2)

	grader.setErr(errors.New("grading backend down"))

	clock.Advance(25 * time.Second)
	ctl.tick()

	waitFor(t, "submit failure", func() bool { return ctl.Status().SubmitError != "" })
	if st := ctl.Status(); st.State != StateSubmitting {
		t.Fatalf("state = %s, want SUBMITTING", st.State)
	}

	// Further ticks must not re-trigger submission on their own.
	ctl.tick()
	ctl.tick()
	if _, calls := grader.snapshot(); calls != 1 {
		t.Fatalf("tick auto-retried submission: %d calls", calls)
	}

	grader.setErr(nil)
	if err := ctl.RetrySubmit(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	<-ctl.Done()

	if st := ctl.Status(); st.State != StateSubmitted || st.SubmitError != "" {
		t.Fatalf("after retry: %+v", st)
	}
}

func TestFinishEarlyReportsNotReached(t *testing.T) {
	ctl, _, grader, ids := newTestController(t, 60, 4)
	ctx := context.Background()

	ctl.tick()
	if err := ctl.Select(ids[0], 0); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := ctl.Save(ctx, ids[0]); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := ctl.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	<-ctl.Done()

	answers, _ := grader.snapshot()
	if answers[0].State != ledger.StateAnswered {
		t.Errorf("q0 = %+v", answers[0])
	}
	for i := 1; i < 4; i++ {
		if answers[i].State != ledger.StateNotReached {
			t.Errorf("q%d = %+v, want not_reached", i, answers[i])
		}
	}

	// Finishing again is idempotent.
	if err := ctl.Finish(); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	if _, calls := grader.snapshot(); calls != 1 {
		t.Fatalf("duplicate submission: %d grader calls", calls)
	}
}

func TestLateAttachLandsOnSharedTimeline(t *testing.T) {
	ctl, clock, _, ids := newTestController(t, 30, 3)

	// Student joins 40s after the shared start: first tick must land on
	// question 1 with question 0 already locked, not on question 0.
	clock.Advance(40 * time.Second)
	ctl.tick()

	st := ctl.Status()
	if st.Position.Index != 1 {
		t.Fatalf("late join index = %d, want 1", st.Position.Index)
	}
	if st.Position.Remaining != 20 {
		t.Fatalf("late join remaining = %d, want 20", st.Position.Remaining)
	}
	if err := ctl.Select(ids[0], 0); !errors.Is(err, ledger.ErrLocked) {
		t.Fatalf("q0 after late join: %v, want ErrLocked", err)
	}
}

func TestEachSubscriberReceivesEvents(t *testing.T) {
	ctl, clock, _, _ := newTestController(t, 30, 3)
	ctl.tick()

	// Two tabs on the same attempt: a window boundary must reach both,
	// not whichever drained the channel first.
	first, cancelFirst := ctl.Subscribe()
	second, cancelSecond := ctl.Subscribe()
	defer cancelFirst()
	defer cancelSecond()

	clock.Advance(35 * time.Second)
	ctl.tick()

	for name, events := range map[string]<-chan Event{"first": first, "second": second} {
		select {
		case ev := <-events:
			if ev.Type != EventQuestionLocked {
				t.Fatalf("%s subscriber: got %s, want question_locked", name, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber never received the lock event", name)
		}
	}

	// Unsubscribing closes the feed without disturbing the other one.
	cancelFirst()
	if _, ok := <-first; ok {
		t.Fatal("cancelled subscription still open")
	}
}

func TestAttachAfterTimelineEndGradesSavedAnswers(t *testing.T) {
	start := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	// The server restarted and comes back 10 minutes after the exam
	// ended with one confirmed answer on disk.
	clock := &fakeClock{now: start.Add(10 * time.Minute)}
	grader := &fakeGrader{}

	ids := make([]uuid.UUID, 3)
	refs := make([]ledger.QuestionRef, 3)
	for i := range refs {
		ids[i] = uuid.New()
		refs[i] = ledger.QuestionRef{ID: ids[i], ChoiceCount: 4}
	}

	attemptID := uuid.New()
	led := ledger.New(attemptID, refs, nopPersister{})
	led.Seed(map[uuid.UUID]int{ids[1]: 2})

	cfg := timeline.Config{StartTime: start, SecondsPerQuestion: 30, QuestionCount: 3}
	ctl, err := New(attemptID, cfg, led, clock, grader, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// First tick catches up past the end: locks everything and submits.
	ctl.tick()
	<-ctl.Done()

	st := ctl.Status()
	if st.State != StateSubmitted || st.Result == nil {
		t.Fatalf("resumed attempt not graded: %+v", st)
	}

	answers, calls := grader.snapshot()
	if calls != 1 {
		t.Fatalf("grader called %d times", calls)
	}
	if answers[1].State != ledger.StateAnswered || *answers[1].SelectedIndex != 2 {
		t.Errorf("seeded answer = %+v, want answered index 2", answers[1])
	}
	if answers[0].State != ledger.StateMissed || answers[2].State != ledger.StateMissed {
		t.Errorf("unanswered = %+v, want missed", []ledger.EffectiveAnswer{answers[0], answers[2]})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	led := ledger.New(uuid.New(), []ledger.QuestionRef{{ID: uuid.New(), ChoiceCount: 2}}, nopPersister{})
	cfg := timeline.Config{SecondsPerQuestion: 0, QuestionCount: 1}
	if _, err := New(uuid.New(), cfg, led, &fakeClock{}, &fakeGrader{}, zerolog.Nop(), nil); err == nil {
		t.Fatal("expected error for invalid config")
	}
}
