package attempt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qcmdesk/qcmdesk-backend/internal/ledger"
	"github.com/qcmdesk/qcmdesk-backend/internal/timeline"
)

// State is the controller's lifecycle state.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	// StateWaitingForNext only ever appears on question_locked events: the
	// lock and the advance happen inside a single tick, so Status() never
	// observes it.
	StateWaitingForNext State = "WAITING_FOR_NEXT"
	StateSubmitting     State = "SUBMITTING"
	StateSubmitted      State = "SUBMITTED"
	StateAborted        State = "ABORTED"
)

// Result is what the grading service hands back for a completed attempt.
type Result struct {
	Score          float64 `json:"score"`
	TotalGrade     float64 `json:"total_grade"`
	CorrectAnswers int     `json:"correct_answers"`
	Status         string  `json:"status"`
}

// Grader scores a finished attempt. Implemented by the grading service;
// faked in tests.
type Grader interface {
	Grade(ctx context.Context, attemptID uuid.UUID, answers []ledger.EffectiveAnswer) (*Result, error)
}

// SubmissionError marks a failed final submission. The controller stays in
// SUBMITTING and the student may retry; the exam-over state is preserved so
// retries are safe.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit attempt: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// ErrAlreadySubmitting is returned when a retry races an in-flight
// submission.
var ErrAlreadySubmitting = errors.New("submission already in flight")

// EventType identifies controller push events consumed by the WebSocket
// stream.
type EventType string

const (
	EventQuestionLocked   EventType = "question_locked"
	EventQuestionAdvanced EventType = "question_advanced"
	EventSubmitting       EventType = "submitting"
	EventGraded           EventType = "graded"
	EventSubmitFailed     EventType = "submit_failed"
	EventAborted          EventType = "aborted"
)

// Event is a state-transition notification.
type Event struct {
	Type       EventType         `json:"event"`
	State      State             `json:"state"`
	Position   timeline.Position `json:"position"`
	QuestionID uuid.UUID         `json:"question_id,omitempty"`
	Result     *Result           `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// StatusView is a point-in-time snapshot for the state endpoint and WS
// stream. Answers live in the ledger; this struct is recomputed on demand
// and is never their source of truth.
type StatusView struct {
	AttemptID   uuid.UUID         `json:"attempt_id"`
	State       State             `json:"state"`
	Position    timeline.Position `json:"position"`
	Result      *Result           `json:"result,omitempty"`
	SubmitError string            `json:"submit_error,omitempty"`
}

// Controller drives one student's attempt along the shared exam timeline.
// A single goroutine ticks once per second; the tick is the only thing that
// can move state without direct user action. Ticks are short and
// synchronous — the grading call is the one external write and runs on its
// own goroutine so it cannot stall the loop.
type Controller struct {
	attemptID uuid.UUID
	cfg       timeline.Config
	led       *ledger.Ledger
	clock     timeline.Clock
	grader    Grader
	log       zerolog.Logger

	mu         sync.Mutex
	runCtx     context.Context
	state      State
	lastIndex  int
	inFlight   bool
	submitErr  error
	result     *Result
	subs       map[int]chan Event
	nextSub    int
	done       chan struct{}
	onTerminal func(uuid.UUID)
}

// New builds a controller for one attempt. A missing or invalid exam config
// is fatal here: there is nothing to retry without a timeline.
func New(
	attemptID uuid.UUID,
	cfg timeline.Config,
	led *ledger.Ledger,
	clock timeline.Clock,
	grader Grader,
	log zerolog.Logger,
	onTerminal func(uuid.UUID),
) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if led.Len() != cfg.QuestionCount {
		return nil, fmt.Errorf("ledger tracks %d questions, config says %d", led.Len(), cfg.QuestionCount)
	}
	return &Controller{
		attemptID:  attemptID,
		cfg:        cfg,
		led:        led,
		clock:      clock,
		grader:     grader,
		log:        log.With().Str("component", "attempt_controller").Str("attempt_id", attemptID.String()).Logger(),
		runCtx:     context.Background(),
		state:      StateInitializing,
		subs:       make(map[int]chan Event),
		done:       make(chan struct{}),
		onTerminal: onTerminal,
	}, nil
}

// Run ticks until the context is cancelled or the attempt reaches a
// terminal state. Call in a goroutine.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Catch up immediately so a reload or server restart lands on the right
	// question without waiting a second.
	c.tick()

	for {
		select {
		case <-ctx.Done():
			c.abort()
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick recomputes the position and applies any window transitions. Never
// runs concurrently with itself: Run is the only caller and tick bodies are
// synchronous.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSubmitted, StateAborted:
		return
	case StateSubmitting:
		// Submission already triggered; leave retries to the student.
		return
	}

	pos := timeline.Compute(c.cfg, c.clock.Now())

	if pos.Over {
		// Lock everything that is still open, the final question included,
		// then hand the snapshot to the grader.
		c.led.LockAll()
		c.startSubmitLocked(pos)
		return
	}

	if c.state == StateInitializing {
		c.state = StateRunning
	}

	if pos.Index > c.lastIndex {
		// Covers skipped ticks (backgrounded process, restart catch-up):
		// every question between the remembered index and the new one had
		// its window close, so each gets locked exactly once.
		c.state = StateWaitingForNext
		for i := c.lastIndex; i < pos.Index; i++ {
			qid, _ := c.led.QuestionID(i)
			c.led.Lock(qid)
			c.emit(Event{Type: EventQuestionLocked, State: c.state, Position: pos, QuestionID: qid})
		}
		c.lastIndex = pos.Index
		c.state = StateRunning
		c.emit(Event{Type: EventQuestionAdvanced, State: c.state, Position: pos})
	}
}

// startSubmitLocked transitions to SUBMITTING and launches the grading call
// off the tick goroutine, on the run context so it outlives whichever
// request triggered it. Caller holds c.mu.
func (c *Controller) startSubmitLocked(pos timeline.Position) {
	c.state = StateSubmitting
	c.inFlight = true
	c.submitErr = nil
	c.emit(Event{Type: EventSubmitting, State: c.state, Position: pos})
	go c.submit(c.runCtx)
}

func (c *Controller) submit(ctx context.Context) {
	snap := c.led.Snapshot()

	res, err := c.grader.Grade(ctx, c.attemptID, snap)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false

	if err != nil {
		c.submitErr = &SubmissionError{Err: err}
		c.log.Error().Err(err).Msg("Submission failed, awaiting retry")
		c.emit(Event{Type: EventSubmitFailed, State: c.state, Error: err.Error()})
		return
	}

	c.result = res
	c.state = StateSubmitted
	c.log.Info().Float64("score", res.Score).Msg("Attempt submitted and graded")
	c.emit(Event{Type: EventGraded, State: c.state, Result: res})
	c.finishLocked()
}

// Select delegates a tentative choice to the ledger.
func (c *Controller) Select(questionID uuid.UUID, choiceIndex int) error {
	return c.led.Select(questionID, choiceIndex)
}

// Save confirms the current selection for a question. A save racing the
// window close is expected and comes back as ErrLocked, not prevented.
func (c *Controller) Save(ctx context.Context, questionID uuid.UUID) error {
	return c.led.Save(ctx, questionID)
}

// Finish submits early, before the timeline runs out. Questions whose
// windows never closed are reported not_reached. Idempotent once graded.
func (c *Controller) Finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateSubmitted:
		return nil
	case StateAborted:
		return ErrAborted
	case StateSubmitting:
		return ErrAlreadySubmitting
	}

	pos := timeline.Compute(c.cfg, c.clock.Now())
	c.startSubmitLocked(pos)
	return nil
}

// RetrySubmit relaunches a failed submission. No-op when nothing failed.
func (c *Controller) RetrySubmit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSubmitting {
		return nil
	}
	if c.inFlight {
		return ErrAlreadySubmitting
	}

	c.inFlight = true
	c.submitErr = nil
	go c.submit(c.runCtx)
	return nil
}

// ErrAborted is returned for interactions with a torn-down attempt.
var ErrAborted = errors.New("attempt aborted")

// Status returns a point-in-time view for the state endpoint.
func (c *Controller) Status() StatusView {
	c.mu.Lock()
	defer c.mu.Unlock()

	return StatusView{
		AttemptID:   c.attemptID,
		State:       c.state,
		Position:    timeline.Compute(c.cfg, c.clock.Now()),
		Result:      c.result,
		SubmitError: errString(c.submitErr),
	}
}

// Ledger exposes the attempt's answer ledger (for the state endpoint's
// saved-answers payload).
func (c *Controller) Ledger() *ledger.Ledger { return c.led }

// Config returns the immutable timeline config handed to clients.
func (c *Controller) Config() timeline.Config { return c.cfg }

// Result returns the grading result once submitted.
func (c *Controller) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Subscribe registers a push feed for one WebSocket connection. Every
// subscriber receives every event, so a second tab or a zombie socket left
// behind by a reload cannot steal frames from the live one. The returned
// cancel func must be called when the connection goes away.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 32)
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// Done is closed when the controller reaches a terminal state.
func (c *Controller) Done() <-chan struct{} { return c.done }

// abort tears the controller down without submitting. Navigating away just
// stops ticking; the server-side timeline keeps governing the attempt, so
// abort is only used on registry shutdown.
func (c *Controller) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitted || c.state == StateAborted {
		return
	}
	c.state = StateAborted
	c.emit(Event{Type: EventAborted, State: c.state})
	c.finishLocked()
}

// finishLocked closes done and notifies the registry. Caller holds c.mu.
func (c *Controller) finishLocked() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if c.onTerminal != nil {
		go c.onTerminal(c.attemptID)
	}
}

// emit fans the event out to every subscriber. Slow consumers miss events
// rather than blocking the controller. Caller holds c.mu.
func (c *Controller) emit(ev Event) {
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
