package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Ledger errors surface to students as disabled controls or inline
// validation, never as crashes.
var (
	ErrLocked          = errors.New("question window is locked")
	ErrNoSelection     = errors.New("no choice selected for this question")
	ErrUnknownQuestion = errors.New("question is not part of this attempt")
	ErrChoiceRange     = errors.New("selected choice index is out of range")
)

// PersistenceError wraps a failed write-through on Save. The student may
// retry while the window is open; once the window locks with saved=false
// the answer is gone, which models "you ran out of time to save".
type PersistenceError struct {
	QuestionID uuid.UUID
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist answer for question %s: %v", e.QuestionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persister is the external write-through target for saved answers.
// DiscardAnswer undoes a SaveAnswer whose question locked while the write
// was in flight, so external state cannot disagree with the ledger.
type Persister interface {
	SaveAnswer(ctx context.Context, attemptID, questionID uuid.UUID, choiceIndex int) error
	DiscardAnswer(ctx context.Context, attemptID, questionID uuid.UUID) error
}

// AnswerState is the tri-state wire value for an effective answer. A missed
// question (window closed without a save) and a never-reached question are
// reported explicitly instead of being collapsed into a sentinel index, so
// graders and dashboards can never confuse "answered choice 0" with "no
// answer".
type AnswerState string

const (
	StateAnswered   AnswerState = "answered"
	StateMissed     AnswerState = "missed"
	StateNotReached AnswerState = "not_reached"
)

// EffectiveAnswer is one question's contribution to the final submission.
// SelectedIndex is present only when State is StateAnswered.
type EffectiveAnswer struct {
	QuestionID    uuid.UUID   `json:"question_id"`
	State         AnswerState `json:"state"`
	SelectedIndex *int        `json:"selected_index,omitempty"`
}

// QuestionRef identifies a question slot for the ledger: its ID and how many
// choices it offers (for range-checking selections).
type QuestionRef struct {
	ID          uuid.UUID
	ChoiceCount int
}

type record struct {
	selected     int
	hasSelection bool
	saved        bool
	locked       bool
	choiceCount  int
}

// Ledger is the per-attempt record of selections, saves and locks. Only
// explicitly saved answers count toward the submission; once a question's
// window closes its record is immutable. The ledger — not UI navigation —
// is the freeze point, so a student cannot change an answer after time
// expires and a selection that was never confirmed is never silently
// promoted to an answer.
type Ledger struct {
	mu        sync.Mutex
	attemptID uuid.UUID
	persist   Persister
	order     []uuid.UUID
	records   map[uuid.UUID]*record
}

// New builds a ledger with one unset record per question.
func New(attemptID uuid.UUID, questions []QuestionRef, persist Persister) *Ledger {
	l := &Ledger{
		attemptID: attemptID,
		persist:   persist,
		order:     make([]uuid.UUID, 0, len(questions)),
		records:   make(map[uuid.UUID]*record, len(questions)),
	}
	for _, q := range questions {
		l.order = append(l.order, q.ID)
		l.records[q.ID] = &record{choiceCount: q.ChoiceCount}
	}
	return l
}

// Seed restores previously saved answers (reload / late join / second
// device). Seeded answers are marked saved without re-persisting; unknown
// question IDs are ignored.
func (l *Ledger) Seed(saved map[uuid.UUID]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for qid, idx := range saved {
		rec, ok := l.records[qid]
		if !ok || idx < 0 || idx >= rec.choiceCount {
			continue
		}
		rec.selected = idx
		rec.hasSelection = true
		rec.saved = true
	}
}

// Select records a tentative choice. A selection is not a save: it does not
// count toward the submission until Save confirms it.
func (l *Ledger) Select(questionID uuid.UUID, choiceIndex int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if rec.locked {
		return ErrLocked
	}
	if choiceIndex < 0 || choiceIndex >= rec.choiceCount {
		return ErrChoiceRange
	}

	rec.selected = choiceIndex
	rec.hasSelection = true
	rec.saved = false
	return nil
}

// Save confirms the current selection and writes it through to the
// persistence target. On a persistence failure the record stays unsaved and
// the caller receives a *PersistenceError; retrying is the student's call,
// not the ledger's.
func (l *Ledger) Save(ctx context.Context, questionID uuid.UUID) error {
	l.mu.Lock()
	rec, ok := l.records[questionID]
	if !ok {
		l.mu.Unlock()
		return ErrUnknownQuestion
	}
	if rec.locked {
		l.mu.Unlock()
		return ErrLocked
	}
	if !rec.hasSelection {
		l.mu.Unlock()
		return ErrNoSelection
	}
	choice := rec.selected
	l.mu.Unlock()

	// The write-through happens outside the lock: it is a network call and
	// must not stall concurrent ticks or selects. A lock that lands while
	// the write is in flight wins — see the re-check below.
	if err := l.persist.SaveAnswer(ctx, l.attemptID, questionID, choice); err != nil {
		return &PersistenceError{QuestionID: questionID, Err: err}
	}

	l.mu.Lock()
	if rec.locked {
		l.mu.Unlock()
		// The write landed but the window closed first: the answer does not
		// count, so undo the external copy before a restart can resurrect
		// it. Best effort — the lock verdict stands either way.
		_ = l.persist.DiscardAnswer(ctx, l.attemptID, questionID)
		return ErrLocked
	}
	if rec.hasSelection && rec.selected == choice {
		rec.saved = true
	}
	l.mu.Unlock()
	return nil
}

// Lock freezes a question's record. Idempotent and unconditional: the
// controller calls it when the timeline advances past the question and once
// more for the final question when the exam ends.
func (l *Ledger) Lock(questionID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[questionID]; ok {
		rec.locked = true
	}
}

// LockBefore locks every question strictly before the given position. Used
// by the controller to catch up after skipped ticks or a server restart.
func (l *Ledger) LockBefore(index int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index > len(l.order) {
		index = len(l.order)
	}
	for i := 0; i < index; i++ {
		l.records[l.order[i]].locked = true
	}
}

// LockAll freezes every record. Called when the timeline reports the exam
// over.
func (l *Ledger) LockAll() {
	l.LockBefore(len(l.order))
}

// QuestionID returns the question ID at a timeline position.
func (l *Ledger) QuestionID(index int) (uuid.UUID, bool) {
	if index < 0 || index >= len(l.order) {
		return uuid.Nil, false
	}
	return l.order[index], true
}

// Len returns the number of questions tracked.
func (l *Ledger) Len() int { return len(l.order) }

// SavedAnswers returns the confirmed answers, keyed by question ID. This is
// what the state endpoint hands back to a reloading client.
func (l *Ledger) SavedAnswers() map[uuid.UUID]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[uuid.UUID]int)
	for qid, rec := range l.records {
		if rec.saved {
			out[qid] = rec.selected
		}
	}
	return out
}

// Snapshot resolves every record to its effective answer, in question
// order. Unsaved records report missed when their window has closed and
// not_reached when it never did; a transient unsaved selection contributes
// nothing either way.
func (l *Ledger) Snapshot() []EffectiveAnswer {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]EffectiveAnswer, 0, len(l.order))
	for _, qid := range l.order {
		rec := l.records[qid]
		ea := EffectiveAnswer{QuestionID: qid}
		switch {
		case rec.saved:
			idx := rec.selected
			ea.State = StateAnswered
			ea.SelectedIndex = &idx
		case rec.locked:
			ea.State = StateMissed
		default:
			ea.State = StateNotReached
		}
		out = append(out, ea)
	}
	return out
}
