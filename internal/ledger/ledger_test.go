package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakePersister struct {
	calls    []persistCall
	discards []uuid.UUID
	err      error
	onSave   func()
}

type persistCall struct {
	attemptID  uuid.UUID
	questionID uuid.UUID
	choice     int
}

func (f *fakePersister) SaveAnswer(_ context.Context, attemptID, questionID uuid.UUID, choice int) error {
	if f.onSave != nil {
		f.onSave()
	}
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, persistCall{attemptID, questionID, choice})
	return nil
}

func (f *fakePersister) DiscardAnswer(_ context.Context, _, questionID uuid.UUID) error {
	f.discards = append(f.discards, questionID)
	return nil
}

func newTestLedger(t *testing.T, n int) (*Ledger, []uuid.UUID, *fakePersister) {
	t.Helper()
	refs := make([]QuestionRef, n)
	ids := make([]uuid.UUID, n)
	for i := range refs {
		ids[i] = uuid.New()
		refs[i] = QuestionRef{ID: ids[i], ChoiceCount: 4}
	}
	p := &fakePersister{}
	return New(uuid.New(), refs, p), ids, p
}

func TestLockImmutability(t *testing.T) {
	led, ids, _ := newTestLedger(t, 3)
	ctx := context.Background()

	if err := led.Select(ids[0], 1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := led.Save(ctx, ids[0]); err != nil {
		t.Fatalf("save: %v", err)
	}

	led.Lock(ids[0])
	led.Lock(ids[0]) // idempotent

	if err := led.Select(ids[0], 2); !errors.Is(err, ErrLocked) {
		t.Fatalf("select after lock: got %v, want ErrLocked", err)
	}
	if err := led.Save(ctx, ids[0]); !errors.Is(err, ErrLocked) {
		t.Fatalf("save after lock: got %v, want ErrLocked", err)
	}

	snap := led.Snapshot()
	if snap[0].State != StateAnswered || *snap[0].SelectedIndex != 1 {
		t.Fatalf("locked answer changed: %+v", snap[0])
	}
}

func TestSelectIsNotSave(t *testing.T) {
	led, ids, p := newTestLedger(t, 2)

	if err := led.Select(ids[0], 2); err != nil {
		t.Fatalf("select: %v", err)
	}
	led.Lock(ids[0]) // window closes without an intervening save

	snap := led.Snapshot()
	if snap[0].State != StateMissed {
		t.Fatalf("unsaved selection leaked into snapshot: %+v", snap[0])
	}
	if snap[0].SelectedIndex != nil {
		t.Fatalf("missed answer carries an index: %+v", snap[0])
	}
	if len(p.calls) != 0 {
		t.Fatalf("select alone must not persist, got %d writes", len(p.calls))
	}
}

func TestSaveWithoutSelection(t *testing.T) {
	led, ids, _ := newTestLedger(t, 1)
	if err := led.Save(context.Background(), ids[0]); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("got %v, want ErrNoSelection", err)
	}
}

func TestSaveWritesThrough(t *testing.T) {
	led, ids, p := newTestLedger(t, 1)
	ctx := context.Background()

	if err := led.Select(ids[0], 3); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := led.Save(ctx, ids[0]); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(p.calls) != 1 || p.calls[0].questionID != ids[0] || p.calls[0].choice != 3 {
		t.Fatalf("unexpected persist calls: %+v", p.calls)
	}
}

func TestSavePersistenceFailure(t *testing.T) {
	led, ids, p := newTestLedger(t, 1)
	ctx := context.Background()
	p.err = errors.New("redis down")

	if err := led.Select(ids[0], 1); err != nil {
		t.Fatalf("select: %v", err)
	}

	err := led.Save(ctx, ids[0])
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("got %v, want *PersistenceError", err)
	}

	// The record stays unsaved; the student may retry while unlocked.
	if snap := led.Snapshot(); snap[0].State != StateNotReached {
		t.Fatalf("failed save marked record: %+v", snap[0])
	}
	p.err = nil
	if err := led.Save(ctx, ids[0]); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if snap := led.Snapshot(); snap[0].State != StateAnswered {
		t.Fatalf("retried save not recorded: %+v", snap[0])
	}
}

func TestLockDuringInFlightSaveDiscards(t *testing.T) {
	led, ids, p := newTestLedger(t, 1)
	ctx := context.Background()

	if err := led.Select(ids[0], 2); err != nil {
		t.Fatalf("select: %v", err)
	}

	// The window closes while the external write is in flight: the write
	// lands, then the lock verdict wins and the copy is retracted.
	p.onSave = func() { led.Lock(ids[0]) }

	if err := led.Save(ctx, ids[0]); !errors.Is(err, ErrLocked) {
		t.Fatalf("save racing lock: got %v, want ErrLocked", err)
	}
	if len(p.discards) != 1 || p.discards[0] != ids[0] {
		t.Fatalf("external copy not retracted: discards = %v", p.discards)
	}
	if snap := led.Snapshot(); snap[0].State != StateMissed {
		t.Fatalf("racing save counted: %+v", snap[0])
	}
}

func TestSeedRoundTrip(t *testing.T) {
	led, ids, p := newTestLedger(t, 3)

	led.Seed(map[uuid.UUID]int{ids[1]: 1, uuid.New(): 2})

	snap := led.Snapshot()
	if snap[1].State != StateAnswered || *snap[1].SelectedIndex != 1 {
		t.Fatalf("seeded answer missing: %+v", snap[1])
	}
	if snap[0].State != StateNotReached || snap[2].State != StateNotReached {
		t.Fatalf("untouched records wrong: %+v", snap)
	}
	if len(p.calls) != 0 {
		t.Fatalf("seeding must not re-persist, got %d writes", len(p.calls))
	}
	if got := led.SavedAnswers(); len(got) != 1 || got[ids[1]] != 1 {
		t.Fatalf("SavedAnswers = %v", got)
	}
}

func TestChoiceRangeAndUnknownQuestion(t *testing.T) {
	led, ids, _ := newTestLedger(t, 1)

	if err := led.Select(ids[0], 4); !errors.Is(err, ErrChoiceRange) {
		t.Fatalf("out-of-range select: got %v", err)
	}
	if err := led.Select(uuid.New(), 0); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("unknown question: got %v", err)
	}
}

func TestLockBeforeAndSnapshotStates(t *testing.T) {
	led, ids, _ := newTestLedger(t, 4)
	ctx := context.Background()

	_ = led.Select(ids[0], 0)
	_ = led.Save(ctx, ids[0])

	led.LockBefore(2) // windows 0 and 1 have closed

	snap := led.Snapshot()
	if snap[0].State != StateAnswered || *snap[0].SelectedIndex != 0 {
		t.Errorf("q0 = %+v, want answered index 0", snap[0])
	}
	if snap[1].State != StateMissed {
		t.Errorf("q1 = %+v, want missed", snap[1])
	}
	if snap[2].State != StateNotReached || snap[3].State != StateNotReached {
		t.Errorf("tail = %+v, want not_reached", snap[2:])
	}
}
